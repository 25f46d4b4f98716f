package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"marketpipe/internal/analytics"
	"marketpipe/internal/orderbook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMetrics(symbol string, mid float64, at time.Time) analytics.Metrics {
	return analytics.Metrics{
		Symbol:    symbol,
		Timestamp: at,
		BestBid:   mid - 0.05,
		BestAsk:   mid + 0.05,
		MidPrice:  mid,
		Spread:    0.1,
		SpreadBps: 0.1 / mid * 10000,
		VWAP:      mid,
		Volume:    400,
		Imbalance: 0.25,
		Signals:   []string{"upward_momentum"},
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, discardLogger())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, discardLogger()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, discardLogger()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func testStoreRoundTrip(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		m := sampleMetrics("AAPL", 100+float64(i), base.Add(time.Duration(i)*time.Second))
		if err := st.AppendMetrics(ctx, m); err != nil {
			t.Fatalf("AppendMetrics: %v", err)
		}
	}
	if err := st.AppendMetrics(ctx, sampleMetrics("MSFT", 300, base)); err != nil {
		t.Fatalf("AppendMetrics: %v", err)
	}
	if err := st.AppendSnapshot(ctx, orderbook.Snapshot{
		Symbol:    "AAPL",
		Timestamp: base.UnixNano(),
		Sequence:  42,
		Bids:      []orderbook.PriceLevel{{Price: 99.95, Size: 100, Orders: 1}},
		Asks:      []orderbook.PriceLevel{{Price: 100.05, Size: 50, Orders: 1}},
	}); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}

	rows, err := st.RecentMetrics(ctx, "AAPL", 3)
	if err != nil {
		t.Fatalf("RecentMetrics: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	// Newest first.
	if rows[0].MidPrice != 104 || rows[2].MidPrice != 102 {
		t.Fatalf("rows out of order: %v, %v", rows[0].MidPrice, rows[2].MidPrice)
	}
	if rows[0].Symbol != "AAPL" {
		t.Fatalf("symbol = %q", rows[0].Symbol)
	}
	if len(rows[0].Signals) != 1 || rows[0].Signals[0] != "upward_momentum" {
		t.Fatalf("signals = %v", rows[0].Signals)
	}

	none, err := st.RecentMetrics(ctx, "GOOGL", 10)
	if err != nil {
		t.Fatalf("RecentMetrics: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("rows for unknown symbol = %d", len(none))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{
		Driver: "file",
		Path:   filepath.Join(t.TempDir(), "pipe.db"),
	}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	testStoreRoundTrip(t, st)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "pipe.sqlite"),
		BusyTimeout: time.Second,
	}, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	testStoreRoundTrip(t, st)
}
