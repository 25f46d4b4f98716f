package logging

import "fmt"

// ConfigError reports an invalid logging configuration: an unresolved
// cross-reference, a missing required field, an unknown enumerated value, or a
// malformed number. It is raised at load time; the loader never commits a
// partially wired facility.
type ConfigError struct {
	Section string // "formatters", "handlers", "loggers", "root", ""
	Name    string // entry name within the section, if any
	Reason  string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Section != "" && e.Name != "":
		return fmt.Sprintf("logging config: %s[%q]: %s", e.Section, e.Name, e.Reason)
	case e.Section != "":
		return fmt.Sprintf("logging config: %s: %s", e.Section, e.Reason)
	default:
		return "logging config: " + e.Reason
	}
}

func configErrf(section, name, format string, args ...any) *ConfigError {
	return &ConfigError{Section: section, Name: name, Reason: fmt.Sprintf(format, args...)}
}
