package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DefaultFormat is the template used by the fallback console wiring when no
// configuration has been applied.
const DefaultFormat = "%(asctime)s - %(name)s - %(levelname)s - %(message)s"

// Facility is an explicitly constructed logging facility: a tree of named
// loggers wired to shared sinks. It is built once at startup and passed to the
// components that log through it; there is no package-level singleton.
//
// Apply builds the complete new wiring first and only then commits it under
// the lock, so a bad document never leaves the facility half-configured.
type Facility struct {
	stdout io.Writer
	stderr io.Writer

	mu    sync.RWMutex
	nodes map[string]*node // every name ever declared or requested
	root  *node
	sinks []sink // closable sinks of the current generation
}

// node is one named logger. Nodes are never replaced once handed out; Apply
// rewires them in place so *slog.Logger values stay live.
type node struct {
	name   string
	parent *node // nearest registered ancestor; nil for root

	level     slog.Level
	hasLevel  bool
	sinks     []sink
	propagate bool
	disabled  bool
}

type Option func(*Facility)

// WithStdout overrides the writer behind stdout console handlers (tests).
func WithStdout(w io.Writer) Option { return func(f *Facility) { f.stdout = w } }

// WithStderr overrides the writer behind stderr console handlers (tests).
func WithStderr(w io.Writer) Option { return func(f *Facility) { f.stderr = w } }

// New returns a facility with fallback wiring: root at INFO writing to stdout
// through DefaultFormat. The caller is expected to Apply a parsed document on
// top; the fallback keeps diagnostics flowing when configuration fails.
func New(opts ...Option) *Facility {
	f := &Facility{
		stdout: os.Stdout,
		stderr: os.Stderr,
		nodes:  make(map[string]*node),
	}
	for _, o := range opts {
		o(f)
	}
	fmtr, err := compileFormat("default", DefaultFormat)
	if err != nil {
		panic("logging: default format does not compile: " + err.Error())
	}
	f.root = &node{
		name:      "root",
		level:     LevelInfo,
		hasLevel:  true,
		sinks:     []sink{newConsoleSink(f.stdout, LevelDebug, fmtr)},
		propagate: true,
	}
	return f
}

// Load parses the document at path and applies it to a fresh facility.
func Load(path string, opts ...Option) (*Facility, error) {
	cfg, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	f := New(opts...)
	if err := f.Apply(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Apply wires the facility from an already validated Config.
//
// Build order: formatters, then handlers (this opens files), then logger
// wiring. Any failure closes whatever was opened and returns without touching
// the live tree. On success the previous generation's file sinks are closed.
func (f *Facility) Apply(cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	fmtrs := make(map[string]*Formatter, len(cfg.Formatters))
	for name, fc := range cfg.Formatters {
		ft, err := compileFormat(name, fc.Format)
		if err != nil {
			return err
		}
		fmtrs[name] = ft
	}

	built := make(map[string]sink, len(cfg.Handlers))
	var closable []sink
	fail := func(err error) error {
		for _, s := range closable {
			_ = s.Close()
		}
		return err
	}
	for name, hc := range cfg.Handlers {
		level, _ := ParseLevel(hc.Level)
		fmtr := fmtrs[hc.Formatter]
		switch hc.Class {
		case ClassConsole:
			w := f.stdout
			if streamIsStderr(hc.Stream) {
				w = f.stderr
			}
			built[name] = newConsoleSink(w, level, fmtr)
		case ClassRotatingFile:
			s, err := newRotatingFileSink(hc.Filename, hc.MaxBytes, hc.BackupCount, level, fmtr)
			if err != nil {
				return fail(fmt.Errorf("handler %q: %w", name, err))
			}
			built[name] = s
			closable = append(closable, s)
		}
	}

	resolve := func(names []string) []sink {
		ss := make([]sink, 0, len(names))
		for _, n := range names {
			ss = append(ss, built[n])
		}
		return ss
	}

	f.mu.Lock()
	oldSinks := f.sinks
	f.sinks = closable

	// Reset every known logger first, then lay down the declared wiring.
	for _, n := range f.nodes {
		if _, declared := cfg.Loggers[n.name]; declared {
			continue
		}
		n.hasLevel = false
		n.sinks = nil
		n.propagate = true
		n.disabled = cfg.DisableExistingLoggers
	}
	for name, lc := range cfg.Loggers {
		n := f.nodes[name]
		if n == nil {
			n = &node{name: name}
			f.nodes[name] = n
		}
		level, _ := ParseLevel(lc.Level)
		n.level = level
		n.hasLevel = true
		n.sinks = resolve(lc.Handlers)
		n.propagate = lc.propagate()
		n.disabled = false
	}

	f.root.hasLevel = true
	f.root.propagate = true
	if cfg.Root != nil {
		level, _ := ParseLevel(cfg.Root.Level)
		f.root.level = level
		f.root.sinks = resolve(cfg.Root.Handlers)
	} else {
		f.root.level = LevelWarning
		f.root.sinks = nil
	}

	f.relink()
	f.mu.Unlock()

	for _, s := range oldSinks {
		_ = s.Close()
	}
	return nil
}

// relink recomputes parent pointers: each node points at its nearest
// registered dotted ancestor, falling back to root. Caller holds f.mu.
func (f *Facility) relink() {
	for _, n := range f.nodes {
		n.parent = f.findParent(n.name)
	}
}

func (f *Facility) findParent(name string) *node {
	for {
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return f.root
		}
		name = name[:i]
		if p, ok := f.nodes[name]; ok {
			return p
		}
	}
}

// Logger returns a live logger for name. Undeclared names inherit level and
// handlers from the nearest declared ancestor, ultimately root.
func (f *Facility) Logger(name string) *slog.Logger {
	f.mu.Lock()
	n, ok := f.nodes[name]
	if !ok {
		n = &node{name: name, propagate: true}
		f.nodes[name] = n
		n.parent = f.findParent(name)
	}
	f.mu.Unlock()
	return slog.New(&nodeHandler{f: f, n: n})
}

// Root returns the root logger.
func (f *Facility) Root() *slog.Logger {
	return slog.New(&nodeHandler{f: f, n: f.root})
}

// Close releases file sinks. The facility keeps working with whatever
// non-closable sinks remain; it is meant to be called once at shutdown.
func (f *Facility) Close() error {
	f.mu.Lock()
	sinks := f.sinks
	f.sinks = nil
	f.mu.Unlock()

	var first error
	for _, s := range sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (n *node) effectiveLevel() slog.Level {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.hasLevel {
			return cur.level
		}
	}
	return LevelWarning
}

// dispatch routes one record: the originating logger's effective level gates
// it, then it flows through the handler chain upward until a propagate=false
// logger (or root) stops it. Every sink applies its own level independently.
func (f *Facility) dispatch(n *node, rec record) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n.disabled || rec.Level < n.effectiveLevel() {
		return nil
	}
	var first error
	for cur := n; cur != nil; {
		if !cur.disabled {
			for _, s := range cur.sinks {
				if err := s.emit(rec); err != nil && first == nil {
					first = err
				}
			}
		}
		if !cur.propagate {
			break
		}
		cur = cur.parent
	}
	return first
}

// ---- slog bridge ----

type nodeHandler struct {
	f     *Facility
	n     *node
	attrs []slog.Attr
	group string
}

func (h *nodeHandler) Enabled(_ context.Context, lvl slog.Level) bool {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	return !h.n.disabled && lvl >= h.n.effectiveLevel()
}

func (h *nodeHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return h.f.dispatch(h.n, record{
		Time:    ts,
		Level:   r.Level,
		Name:    h.n.name,
		Line:    lineOf(r.PC),
		Message: h.message(r),
	})
}

func (h *nodeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	all := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	all = append(all, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		all = append(all, a)
	}
	return &nodeHandler{f: h.f, n: h.n, attrs: all, group: h.group}
}

func (h *nodeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	g := name
	if h.group != "" {
		g = h.group + "." + name
	}
	return &nodeHandler{f: h.f, n: h.n, attrs: h.attrs, group: g}
}

// message flattens the record message plus structured attrs into the text the
// %(message)s placeholder renders.
func (h *nodeHandler) message(r slog.Record) string {
	if len(h.attrs) == 0 && r.NumAttrs() == 0 {
		return r.Message
	}
	var b strings.Builder
	b.WriteString(r.Message)
	writeAttr := func(a slog.Attr) {
		b.WriteString(" ")
		b.WriteString(a.Key)
		b.WriteString("=")
		b.WriteString(attrString(a.Value))
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		writeAttr(a)
		return true
	})
	return b.String()
}

func attrString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		if v.Kind() == slog.KindAny {
			if err, ok := v.Any().(error); ok {
				return fmt.Sprintf("%q", err.Error())
			}
		}
		return fmt.Sprint(v.Any())
	}
}

func lineOf(pc uintptr) int {
	if pc == 0 {
		return 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return frame.Line
}
