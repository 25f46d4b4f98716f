package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"marketpipe/internal/analytics"
	"marketpipe/internal/orderbook"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.metrics.jsonl   (append-only JSON Lines)
//   - <prefix>.snapshots.jsonl (append-only JSON Lines)
type fileStore struct {
	log *slog.Logger

	mu           sync.Mutex
	metricsFile  *os.File
	metricsPath  string
	snapshotFile *os.File
}

func openFile(cfg Config, log *slog.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	metricsPath := prefix + ".metrics.jsonl"
	mf, err := os.OpenFile(metricsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	sf, err := os.OpenFile(prefix+".snapshots.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = mf.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		metricsFile:  mf,
		metricsPath:  metricsPath,
		snapshotFile: sf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.metricsFile != nil {
		err1 = s.metricsFile.Close()
		s.metricsFile = nil
	}
	if s.snapshotFile != nil {
		err2 = s.snapshotFile.Close()
		s.snapshotFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendMetrics(ctx context.Context, m analytics.Metrics) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsFile == nil {
		return errors.New("metrics file closed")
	}
	return json.NewEncoder(s.metricsFile).Encode(m)
}

func (s *fileStore) AppendSnapshot(ctx context.Context, snap orderbook.Snapshot) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotFile == nil {
		return errors.New("snapshot file closed")
	}
	return json.NewEncoder(s.snapshotFile).Encode(snap)
}

// RecentMetrics scans the metrics file. The file driver is meant for small
// local runs, so a full scan is acceptable.
func (s *fileStore) RecentMetrics(ctx context.Context, symbol string, limit int) ([]analytics.Metrics, error) {
	_ = ctx
	s.mu.Lock()
	path := s.metricsPath
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rows []analytics.Metrics
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var m analytics.Metrics
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			s.log.Warn("skipping malformed metrics row", "error", err)
			continue
		}
		if m.Symbol == symbol {
			rows = append(rows, m)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
