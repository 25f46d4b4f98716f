package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// sink is a wired handler: its own level filter plus a bound formatter.
// emit is called only for records that already passed the owning logger's
// level; the sink applies its own threshold as an independent second filter.
type sink interface {
	emit(r record) error
	io.Closer
}

// ---- console ----

type consoleSink struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	fmtr  *Formatter
	buf   []byte
}

func newConsoleSink(w io.Writer, level slog.Level, f *Formatter) *consoleSink {
	return &consoleSink{w: w, level: level, fmtr: f}
}

func (s *consoleSink) emit(r record) error {
	if r.Level < s.level {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.fmtr.render(s.buf[:0], r)
	_, err := s.w.Write(s.buf)
	return err
}

func (s *consoleSink) Close() error { return nil }

// ---- rotating file ----

// rotatingFileSink appends rendered records to a file and rotates it by size:
// when a write would push the file past maxBytes, the current file becomes
// <name>.1, existing backups shift up, anything beyond backupCount is dropped,
// and a fresh file is opened. Writes are serialized by the mutex.
type rotatingFileSink struct {
	mu    sync.Mutex
	path  string
	max   int64 // 0 disables rotation
	keep  int   // backupCount; 0 means truncate in place
	level slog.Level
	fmtr  *Formatter

	f    *os.File
	size int64
	buf  []byte
}

func newRotatingFileSink(path string, maxBytes int64, backupCount int, level slog.Level, f *Formatter) (*rotatingFileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	s := &rotatingFileSink{path: path, max: maxBytes, keep: backupCount, level: level, fmtr: f}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *rotatingFileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	s.f = f
	s.size = st.Size()
	return nil
}

func (s *rotatingFileSink) emit(r record) error {
	if r.Level < s.level {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = s.fmtr.render(s.buf[:0], r)
	if s.max > 0 && s.size+int64(len(s.buf)) > s.max && s.size > 0 {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	n, err := s.f.Write(s.buf)
	s.size += int64(n)
	return err
}

// rotate shifts <path>.i to <path>.(i+1) for i = keep-1 .. 1, moves the live
// file to <path>.1 and reopens a fresh one. The backup beyond keep falls off
// via the final rename over it.
func (s *rotatingFileSink) rotate() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("rotate: close: %w", err)
	}
	s.f = nil

	if s.keep == 0 {
		// No backups retained: start over in place.
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rotate: remove: %w", err)
		}
		return s.open()
	}

	for i := s.keep - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", s.path, i)
		dst := fmt.Sprintf("%s.%d", s.path, i+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	return s.open()
}

func (s *rotatingFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
