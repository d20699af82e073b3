package event

import (
	"fmt"
	"strings"
)

// Level is the severity of an event.
type Level string

// Severity levels understood by the collector.
const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// String returns the wire name of the level.
func (l Level) String() string {
	return string(l)
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelFatal:
		return true
	}
	return false
}

// ParseLevel converts a level name, case-insensitively. "warn" and
// "critical" are accepted as aliases.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "warn":
		return LevelWarning, nil
	case "critical":
		return LevelFatal, nil
	default:
		if l.Valid() {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown level %q", s)
}
