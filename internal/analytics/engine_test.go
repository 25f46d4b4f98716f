package analytics

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"marketpipe/internal/ingest"
	"marketpipe/internal/market"
	"marketpipe/internal/orderbook"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bookUpd(seq uint64, side market.Side, price, size float64) market.Update {
	return market.Update{
		Timestamp:  int64(seq),
		Symbol:     "AAPL",
		Price:      price,
		Size:       size,
		Side:       side,
		Type:       market.Add,
		Sequence:   seq,
		ExchangeID: "SIM",
	}
}

func newTestEngine(t *testing.T) (*Engine, *orderbook.Manager, *ingest.Ring) {
	t.Helper()
	books := orderbook.NewManager()
	buffer := ingest.NewRing(100)
	e := NewEngine(EngineOptions{WindowSize: 10, Interval: time.Second, Depth: 10},
		books, buffer, discardLogger())
	return e, books, buffer
}

func TestTickComputesTopOfBookMetrics(t *testing.T) {
	t.Parallel()
	e, books, buffer := newTestEngine(t)

	for _, u := range []market.Update{
		bookUpd(1, market.Bid, 99.95, 300),
		bookUpd(2, market.Ask, 100.05, 100),
	} {
		if err := books.Apply(u); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		buffer.Add(u)
	}
	e.Tick(time.Now())

	m, ok := e.Latest("AAPL")
	if !ok {
		t.Fatal("no metrics recorded")
	}
	if m.BestBid != 99.95 || m.BestAsk != 100.05 {
		t.Fatalf("top of book = %v/%v", m.BestBid, m.BestAsk)
	}
	if math.Abs(m.MidPrice-100) > 1e-9 {
		t.Fatalf("mid = %v, want 100", m.MidPrice)
	}
	if math.Abs(m.Spread-0.1) > 1e-9 {
		t.Fatalf("spread = %v, want 0.1", m.Spread)
	}
	if math.Abs(m.SpreadBps-10) > 1e-6 {
		t.Fatalf("spread_bps = %v, want 10", m.SpreadBps)
	}
	// 300 bid vs 100 ask: (300-100)/400 = 0.5
	if math.Abs(m.Imbalance-0.5) > 1e-9 {
		t.Fatalf("imbalance = %v, want 0.5", m.Imbalance)
	}
	// VWAP over the two adds: (99.95*300 + 100.05*100) / 400
	wantVWAP := (99.95*300 + 100.05*100) / 400
	if math.Abs(m.VWAP-wantVWAP) > 1e-9 {
		t.Fatalf("vwap = %v, want %v", m.VWAP, wantVWAP)
	}
	if m.Volume != 400 {
		t.Fatalf("volume = %v, want 400", m.Volume)
	}
}

func TestTickSkipsOneSidedBooks(t *testing.T) {
	t.Parallel()
	e, books, _ := newTestEngine(t)
	if err := books.Apply(bookUpd(1, market.Bid, 100, 10)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	e.Tick(time.Now())
	if _, ok := e.Latest("AAPL"); ok {
		t.Fatal("expected no metrics for a one-sided book")
	}
}

func TestSignalsFire(t *testing.T) {
	t.Parallel()
	m := Metrics{MidPrice: 102, SpreadBps: 80, Imbalance: 0.9, Volatility: 0.05}
	got := signals(m, 100) // mid above the window average
	want := map[string]bool{
		"strong_bid_pressure": true,
		"wide_spread":         true,
		"high_volatility":     true,
		"upward_momentum":     true,
	}
	if len(got) != len(want) {
		t.Fatalf("signals = %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected signal %q in %v", s, got)
		}
	}

	if got := signals(Metrics{Imbalance: -0.8}, 0); len(got) != 1 || got[0] != "strong_ask_pressure" {
		t.Fatalf("signals = %v, want strong_ask_pressure only", got)
	}
	if got := signals(Metrics{MidPrice: 100, Imbalance: 0.1}, 101); len(got) != 0 {
		t.Fatalf("signals = %v, want none", got)
	}
}

func TestVolatilityOfConstantSeriesIsZero(t *testing.T) {
	t.Parallel()
	if v := logReturnVolatility([]float64{100, 100, 100, 100}); v != 0 {
		t.Fatalf("volatility = %v, want 0", v)
	}
	if v := logReturnVolatility([]float64{100, 101}); v != 0 {
		t.Fatal("too-short series must yield 0")
	}
	if v := logReturnVolatility([]float64{100, 101, 99, 102, 98}); v <= 0 {
		t.Fatalf("volatility = %v, want > 0", v)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	t.Parallel()
	e, books, _ := newTestEngine(t)
	seq := uint64(0)
	next := func() uint64 { seq++; return seq }
	if err := books.Apply(bookUpd(next(), market.Bid, 100, 10)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := books.Apply(bookUpd(next(), market.Ask, 100.1, 10)); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i := 0; i < historyLimit+50; i++ {
		e.Tick(time.Now())
	}
	if n := len(e.History("AAPL")); n != historyLimit {
		t.Fatalf("history len = %d, want %d", n, historyLimit)
	}
}
