package logging

import (
	"log/slog"
	"strings"
)

// Severity levels form a total order: DEBUG < INFO < WARNING < ERROR < CRITICAL.
// The first four map onto the standard slog levels; CRITICAL sits above ERROR.
const (
	LevelDebug    = slog.LevelDebug
	LevelInfo     = slog.LevelInfo
	LevelWarning  = slog.LevelWarn
	LevelError    = slog.LevelError
	LevelCritical = slog.Level(12)
)

// ParseLevel parses a configured level name.
// Names are case-insensitive; WARN is accepted as an alias for WARNING.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarning, true
	case "ERROR":
		return LevelError, true
	case "CRITICAL":
		return LevelCritical, true
	default:
		return 0, false
	}
}

// levelName renders a level the way the %(levelname)s placeholder expects.
func levelName(l slog.Level) string {
	switch {
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarning:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	case l < LevelCritical:
		return "ERROR"
	default:
		return "CRITICAL"
	}
}
