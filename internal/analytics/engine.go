package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketpipe/internal/ingest"
	"marketpipe/internal/market"
	"marketpipe/internal/orderbook"
)

// historyLimit bounds the retained metrics per symbol.
const historyLimit = 1000

// EngineOptions configures the analytics engine.
type EngineOptions struct {
	WindowSize int           // mid-price observations per rolling window
	Interval   time.Duration // computation cadence
	Depth      int           // book levels considered for imbalance
}

// Engine periodically computes metrics for every live book and keeps a
// bounded per-symbol history.
type Engine struct {
	log      *slog.Logger
	books    *orderbook.Manager
	buffer   *ingest.Ring
	interval time.Duration
	window   int
	depth    int

	mu      sync.RWMutex
	windows map[string]*symbolWindow
	history map[string][]Metrics
	ticks   uint64
}

func NewEngine(opts EngineOptions, books *orderbook.Manager, buffer *ingest.Ring, log *slog.Logger) *Engine {
	window := opts.WindowSize
	if window <= 0 {
		window = 100
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	depth := opts.Depth
	if depth <= 0 {
		depth = 10
	}
	return &Engine{
		log:      log,
		books:    books,
		buffer:   buffer,
		interval: interval,
		window:   window,
		depth:    depth,
		windows:  make(map[string]*symbolWindow),
		history:  make(map[string][]Metrics),
	}
}

// Run recomputes metrics on the configured cadence until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("analytics engine started", "interval", e.interval, "window", e.window)
	defer e.log.Info("analytics engine stopped", "ticks", e.ticks)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Tick(time.Now())
		}
	}
}

// Tick computes one observation per live symbol at the given time.
func (e *Engine) Tick(now time.Time) {
	recent := e.buffer.Latest(e.buffer.Cap())

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ticks++

	for _, sym := range e.books.Symbols() {
		b := e.books.Get(sym)
		if b == nil {
			continue
		}
		m, ok := e.computeLocked(b, sym, now, recent)
		if !ok {
			continue
		}
		hist := append(e.history[sym], m)
		if len(hist) > historyLimit {
			hist = hist[len(hist)-historyLimit:]
		}
		e.history[sym] = hist

		if len(m.Signals) > 0 {
			e.log.Info("trading signals",
				"symbol", sym, "signals", m.Signals,
				"mid", m.MidPrice, "spread_bps", m.SpreadBps)
		}
	}
}

func (e *Engine) computeLocked(b *orderbook.Book, sym string, now time.Time, recent []market.Update) (Metrics, bool) {
	bid, ask, bidOK, askOK := b.TopOfBook()
	if !bidOK || !askOK {
		return Metrics{}, false
	}

	mid := (bid.Price + ask.Price) / 2
	spread := ask.Price - bid.Price

	w := e.windows[sym]
	if w == nil {
		w = newSymbolWindow(e.window)
		e.windows[sym] = w
	}
	prior := w.values() // before this observation, for the momentum baseline
	w.push(mid)

	price, volume := vwap(sym, recent)

	m := Metrics{
		Symbol:     sym,
		Timestamp:  now,
		BestBid:    bid.Price,
		BestAsk:    ask.Price,
		MidPrice:   mid,
		Spread:     spread,
		VWAP:       price,
		Volume:     volume,
		Imbalance:  imbalance(b.Levels(market.Bid, e.depth), b.Levels(market.Ask, e.depth)),
		Volatility: logReturnVolatility(w.values()),
	}
	if mid > 0 {
		m.SpreadBps = spread / mid * 10000
	}
	m.Signals = signals(m, windowAverage(prior))
	return m, true
}

// Latest returns the most recent observation for a symbol.
func (e *Engine) Latest(symbol string) (Metrics, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hist := e.history[symbol]
	if len(hist) == 0 {
		return Metrics{}, false
	}
	return hist[len(hist)-1], true
}

// History returns a copy of the retained observations for a symbol, oldest
// first.
func (e *Engine) History(symbol string) []Metrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Metrics(nil), e.history[symbol]...)
}
