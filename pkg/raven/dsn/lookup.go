package dsn

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/config"
)

// Environment variables consulted by Autodetect, in order.
const (
	EnvDSN        = "SENTRY_DSN"
	EnvLegacyDSN  = "RAVEN_DSN"
	EnvConfigFile = "SENTRY_CONFIG_FILE"
)

// Source yields a raw DSN string. An absent value is not an error.
type Source interface {
	Lookup() (string, bool)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (string, bool)

// Lookup implements Source.
func (f SourceFunc) Lookup() (string, bool) { return f() }

// EnvSource reads the named environment variable.
type EnvSource string

// Lookup implements Source.
func (e EnvSource) Lookup() (string, bool) {
	v := strings.TrimSpace(os.Getenv(string(e)))
	return v, v != ""
}

// StaticSource always yields its value, unless empty.
type StaticSource string

// Lookup implements Source.
func (s StaticSource) Lookup() (string, bool) {
	v := strings.TrimSpace(string(s))
	return v, v != ""
}

// FileSource reads Key (default "dsn") from a YAML or JSON file.
// Unreadable files count as absent.
type FileSource struct {
	Path string
	Key  string
}

// Lookup implements Source.
func (f FileSource) Lookup() (string, bool) {
	if f.Path == "" {
		return "", false
	}
	cfg, err := config.FromFile(f.Path)
	if err != nil {
		slog.Debug("dsn config file unusable",
			slog.String("path", f.Path),
			slog.String("error", err.Error()))
		return "", false
	}
	key := f.Key
	if key == "" {
		key = "dsn"
	}
	v := strings.TrimSpace(cfg.String(key, ""))
	return v, v != ""
}

// ConfigFileSource reads the "dsn" key of the file named by envVar.
func ConfigFileSource(envVar string) Source {
	return SourceFunc(func() (string, bool) {
		return FileSource{Path: os.Getenv(envVar)}.Lookup()
	})
}

// DefaultSources returns the sources Autodetect consults:
// SENTRY_DSN, RAVEN_DSN, then the file named by SENTRY_CONFIG_FILE.
func DefaultSources() []Source {
	return []Source{
		EnvSource(EnvDSN),
		EnvSource(EnvLegacyDSN),
		ConfigFileSource(EnvConfigFile),
	}
}

// Lookup returns the first value yielded by sources. Nil sources are skipped.
func Lookup(sources ...Source) (string, bool) {
	for _, s := range sources {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(); ok {
			return v, true
		}
	}
	return "", false
}

// Autodetect looks the DSN up from DefaultSources.
func Autodetect() (string, bool) {
	return Lookup(DefaultSources()...)
}
