package logging

import (
	"bytes"
	"errors"
	"io"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// Config is the declarative logging document, schema version 1.
//
// Cross-references are by name: handlers point at formatters, loggers (and
// root) point at handlers. All references must resolve; Parse rejects the
// document otherwise.
type Config struct {
	Version                int                        `yaml:"version"`
	DisableExistingLoggers bool                       `yaml:"disable_existing_loggers"`
	Formatters             map[string]FormatterConfig `yaml:"formatters"`
	Handlers               map[string]HandlerConfig   `yaml:"handlers"`
	Loggers                map[string]LoggerConfig    `yaml:"loggers"`
	Root                   *RootConfig                `yaml:"root"`
}

type FormatterConfig struct {
	Format string `yaml:"format"`
}

// Handler classes.
const (
	ClassConsole      = "console-stream"
	ClassRotatingFile = "rotating-file"
)

type HandlerConfig struct {
	Class     string `yaml:"class"`
	Level     string `yaml:"level"`
	Formatter string `yaml:"formatter"`

	// console-stream only.
	Stream string `yaml:"stream,omitempty"`

	// rotating-file only.
	Filename    string `yaml:"filename,omitempty"`
	MaxBytes    int64  `yaml:"maxBytes,omitempty"`
	BackupCount int    `yaml:"backupCount,omitempty"`
	Encoding    string `yaml:"encoding,omitempty"`
}

type LoggerConfig struct {
	Level    string   `yaml:"level"`
	Handlers []string `yaml:"handlers"`
	// Propagate defaults to true when omitted, matching the conventional
	// logger-hierarchy behavior.
	Propagate *bool `yaml:"propagate,omitempty"`
}

func (c LoggerConfig) propagate() bool { return c.Propagate == nil || *c.Propagate }

type RootConfig struct {
	Level    string   `yaml:"level"`
	Handlers []string `yaml:"handlers"`
}

// Parse decodes and validates a logging configuration document.
// Unknown keys, unresolved references, bad level names and malformed numeric
// fields all fail here, before any sink is touched.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, configErrf("", "", "empty document")
		}
		return nil, &ConfigError{Reason: "decode: " + err.Error()}
	}
	// Reject trailing documents (e.g. concatenated YAML).
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, configErrf("", "", "trailing data after document")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (c *Config) validate() error {
	if c.Version != 1 {
		return configErrf("", "", "unsupported version %d (want 1)", c.Version)
	}

	for name, f := range c.Formatters {
		if f.Format == "" {
			return configErrf("formatters", name, "missing format template")
		}
		if _, err := compileFormat(name, f.Format); err != nil {
			return err
		}
	}

	for name, h := range c.Handlers {
		if _, ok := ParseLevel(h.Level); !ok {
			return configErrf("handlers", name, "unknown level %q", h.Level)
		}
		if h.Formatter == "" {
			return configErrf("handlers", name, "missing formatter reference")
		}
		if _, ok := c.Formatters[h.Formatter]; !ok {
			return configErrf("handlers", name, "formatter %q is not declared", h.Formatter)
		}
		switch h.Class {
		case ClassConsole:
			if !validStream(h.Stream) {
				return configErrf("handlers", name, "unknown stream %q", h.Stream)
			}
			if h.Filename != "" || h.MaxBytes != 0 || h.BackupCount != 0 || h.Encoding != "" {
				return configErrf("handlers", name, "file fields are not valid for class %q", h.Class)
			}
		case ClassRotatingFile:
			if h.Filename == "" {
				return configErrf("handlers", name, "missing filename")
			}
			if h.MaxBytes < 0 {
				return configErrf("handlers", name, "maxBytes must be >= 0")
			}
			if h.BackupCount < 0 {
				return configErrf("handlers", name, "backupCount must be >= 0")
			}
			if !validEncoding(h.Encoding) {
				return configErrf("handlers", name, "unsupported encoding %q", h.Encoding)
			}
			if h.Stream != "" {
				return configErrf("handlers", name, "stream is not valid for class %q", h.Class)
			}
		case "":
			return configErrf("handlers", name, "missing class")
		default:
			return configErrf("handlers", name, "unknown class %q", h.Class)
		}
	}

	for name, l := range c.Loggers {
		if name == "" {
			return configErrf("loggers", name, "empty logger name")
		}
		if _, ok := ParseLevel(l.Level); !ok {
			return configErrf("loggers", name, "unknown level %q", l.Level)
		}
		for _, h := range l.Handlers {
			if _, ok := c.Handlers[h]; !ok {
				return configErrf("loggers", name, "handler %q is not declared", h)
			}
		}
	}

	if c.Root != nil {
		if _, ok := ParseLevel(c.Root.Level); !ok {
			return configErrf("root", "", "unknown level %q", c.Root.Level)
		}
		for _, h := range c.Root.Handlers {
			if _, ok := c.Handlers[h]; !ok {
				return configErrf("root", "", "handler %q is not declared", h)
			}
		}
	}
	return nil
}

// validStream accepts stdout/stderr references in both plain and
// "ext://sys.stdout" spelling. An empty value defaults to stdout.
func validStream(s string) bool {
	switch s {
	case "", "stdout", "ext://sys.stdout", "stderr", "ext://sys.stderr":
		return true
	default:
		return false
	}
}

func streamIsStderr(s string) bool {
	return s == "stderr" || s == "ext://sys.stderr"
}

// validEncoding: rendered text is written as UTF-8; only UTF-8 spellings (or
// an omitted field) are accepted.
func validEncoding(s string) bool {
	switch s {
	case "", "utf8", "utf-8", "UTF-8":
		return true
	default:
		return false
	}
}
