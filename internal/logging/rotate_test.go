package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestFileSink(t *testing.T, path string, maxBytes int64, backups int) *rotatingFileSink {
	t.Helper()
	fmtr, err := compileFormat("test", "%(message)s")
	if err != nil {
		t.Fatal(err)
	}
	s, err := newRotatingFileSink(path, maxBytes, backups, LevelDebug, fmtr)
	if err != nil {
		t.Fatalf("newRotatingFileSink: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func emitLine(t *testing.T, s *rotatingFileSink, msg string) {
	t.Helper()
	if err := s.emit(record{Level: LevelInfo, Message: msg}); err != nil {
		t.Fatalf("emit(%q): %v", msg, err)
	}
}

func TestRotationArchivesAndContinues(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")
	// Each rendered line is 8 bytes ("line-N" + newline is 7; use fixed width).
	s := newTestFileSink(t, path, 20, 5)

	emitLine(t, s, "line-001") // 9 bytes
	emitLine(t, s, "line-002") // 18 bytes
	emitLine(t, s, "line-003") // would be 27 > 20: rotates first

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read live file: %v", err)
	}
	if got := string(b); got != "line-003\n" {
		t.Fatalf("live file = %q, want the post-rotation line only", got)
	}
	b1, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if !strings.Contains(string(b1), "line-001") || !strings.Contains(string(b1), "line-002") {
		t.Fatalf("backup missing archived lines: %q", b1)
	}
}

func TestRotationDiscardsOldestBeyondBackupCount(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")
	s := newTestFileSink(t, path, 10, 2)

	// Every line overflows the 10-byte cap once the file is non-empty, so each
	// emit after the first rotates.
	for i := 1; i <= 6; i++ {
		emitLine(t, s, fmt.Sprintf("record-%03d", i))
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("missing .1 backup: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Fatalf("missing .2 backup: %v", err)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf(".3 backup should have been discarded, stat err = %v", err)
	}

	// Ordering: .1 is newer than .2.
	b1, _ := os.ReadFile(path + ".1")
	b2, _ := os.ReadFile(path + ".2")
	if !strings.Contains(string(b1), "record-005") {
		t.Fatalf(".1 = %q, want the most recently archived record", b1)
	}
	if !strings.Contains(string(b2), "record-004") {
		t.Fatalf(".2 = %q, want the previously archived record", b2)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "record-006") {
		t.Fatalf("live file = %q, want the latest record", b)
	}
}

func TestNoRotationWhenMaxBytesZero(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")
	s := newTestFileSink(t, path, 0, 5)

	for i := 0; i < 50; i++ {
		emitLine(t, s, "grow without bound")
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatalf("rotation happened with maxBytes=0, stat err = %v", err)
	}
}

func TestZeroBackupCountTruncates(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.log")
	s := newTestFileSink(t, path, 10, 0)

	emitLine(t, s, "first-record")
	emitLine(t, s, "second-record")

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Fatalf("backup created with backupCount=0, stat err = %v", err)
	}
	b, _ := os.ReadFile(path)
	if got := string(b); got != "second-record\n" {
		t.Fatalf("live file = %q, want truncated to the latest record", got)
	}
}

func TestSinkCreatesParentDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "nested", "pipeline.log")
	s := newTestFileSink(t, path, 0, 0)
	emitLine(t, s, "created")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created under nested directory: %v", err)
	}
}
