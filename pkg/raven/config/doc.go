/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
The client uses it for two inputs: the query options of a DSN, which are all
strings, and YAML/JSON configuration files, which carry native types.

# Basic Usage

	cfg := config.FromOptions(dsn.Options())

	queueSize := cfg.Int("queuesize", 50)            // "100" -> 100
	timeout := cfg.Duration("timeout", 10*time.Second) // "5s" -> 5s
	compress := cfg.Bool("compression", true)          // "false" -> false
	tags := cfg.StringMap("tags", nil)                 // "env:prod,team:core"

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m") or as seconds ("2.5")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Int, Float and Bool parse strings with strconv. StringSlice splits strings on
commas and StringMap reads "k:v" pairs separated by commas.

All methods return the default value if:
  - The key is missing
  - The value cannot be converted to the requested type
  - The conversion would lose precision (e.g., float to int with fraction)

# File Loading

	cfg, err := config.FromFile("sentry.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	dsn := cfg.String("dsn", "")

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
