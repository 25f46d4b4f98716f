package storage

import (
	"context"
	"errors"
	"time"

	"marketpipe/internal/analytics"
	"marketpipe/internal/orderbook"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines files
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the pipeline core.
type Store interface {
	AppendMetrics(ctx context.Context, m analytics.Metrics) error
	AppendSnapshot(ctx context.Context, s orderbook.Snapshot) error

	// RecentMetrics returns up to limit rows for a symbol, newest first.
	RecentMetrics(ctx context.Context, symbol string, limit int) ([]analytics.Metrics, error)

	Close() error
}
