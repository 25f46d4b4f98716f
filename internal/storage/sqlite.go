package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"marketpipe/internal/analytics"
	"marketpipe/internal/orderbook"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log *slog.Logger
}

func openSQLite(cfg Config, log *slog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendMetrics(ctx context.Context, m analytics.Metrics) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	signals := ""
	if len(m.Signals) > 0 {
		signals = strings.Join(m.Signals, ",")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metrics(at, symbol, best_bid, best_ask, mid_price, spread, spread_bps, vwap, volume, imbalance, volatility, signals)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.Timestamp.Format(time.RFC3339Nano), m.Symbol,
		m.BestBid, m.BestAsk, m.MidPrice, m.Spread, m.SpreadBps,
		m.VWAP, m.Volume, m.Imbalance, m.Volatility, nullStr(signals),
	)
	return err
}

func (s *sqliteStore) AppendSnapshot(ctx context.Context, snap orderbook.Snapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	book, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots(at, symbol, sequence, book) VALUES(?,?,?,?)`,
		time.Unix(0, snap.Timestamp).Format(time.RFC3339Nano), snap.Symbol, snap.Sequence, string(book),
	)
	return err
}

func (s *sqliteStore) RecentMetrics(ctx context.Context, symbol string, limit int) ([]analytics.Metrics, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, symbol, best_bid, best_ask, mid_price, spread, spread_bps, vwap, volume, imbalance, volatility, signals
		 FROM metrics WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.Metrics
	for rows.Next() {
		var (
			m       analytics.Metrics
			at      string
			signals sql.NullString
		)
		if err := rows.Scan(&at, &m.Symbol, &m.BestBid, &m.BestAsk, &m.MidPrice,
			&m.Spread, &m.SpreadBps, &m.VWAP, &m.Volume, &m.Imbalance, &m.Volatility, &signals); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			m.Timestamp = t
		}
		if signals.Valid && signals.String != "" {
			m.Signals = strings.Split(signals.String, ",")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
