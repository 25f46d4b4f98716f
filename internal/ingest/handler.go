package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"

	"marketpipe/internal/market"
	"marketpipe/internal/orderbook"
)

// HandlerOptions configures the feed handler.
type HandlerOptions struct {
	Symbols      []string
	BufferSize   int
	GapThreshold int // gaps larger than this reset the book
}

// Handler validates the update stream, tracks per-symbol sequence continuity
// and drives the order books. Out-of-order or unknown-symbol updates are
// counted and dropped; a large sequence gap resets the affected symbol's book
// so it can rebuild from fresh data.
type Handler struct {
	log    *slog.Logger
	books  *orderbook.Manager
	buffer *Ring

	symbols      map[string]bool
	gapThreshold uint64
	lastSeq      map[string]uint64

	// Counters are read by the periodic status job while Handle runs on the
	// feed goroutine.
	processed atomic.Uint64
	dropped   atomic.Uint64
	gaps      atomic.Uint64
}

func NewHandler(opts HandlerOptions, books *orderbook.Manager, log *slog.Logger) *Handler {
	symbols := make(map[string]bool, len(opts.Symbols))
	for _, s := range opts.Symbols {
		symbols[s] = true
	}
	threshold := opts.GapThreshold
	if threshold <= 0 {
		threshold = 10
	}
	size := opts.BufferSize
	if size <= 0 {
		size = 10000
	}
	return &Handler{
		log:          log,
		books:        books,
		buffer:       NewRing(size),
		symbols:      symbols,
		gapThreshold: uint64(threshold),
		lastSeq:      make(map[string]uint64, len(opts.Symbols)),
	}
}

// Buffer exposes the retained update history.
func (h *Handler) Buffer() *Ring { return h.buffer }

// Stats returns processed, dropped and gap counters. Safe to call from any
// goroutine.
func (h *Handler) Stats() (processed, dropped, gaps uint64) {
	return h.processed.Load(), h.dropped.Load(), h.gaps.Load()
}

// Handle processes one update. It never returns an error for bad feed data;
// problems are logged and counted so a noisy feed cannot stall the pipeline.
func (h *Handler) Handle(u market.Update) {
	if !h.symbols[u.Symbol] {
		h.dropped.Add(1)
		h.log.Warn("update for unconfigured symbol dropped", "symbol", u.Symbol, "sequence", u.Sequence)
		return
	}

	last := h.lastSeq[u.Symbol]
	if last != 0 && u.Sequence > last+1 {
		gap := u.Sequence - last - 1
		h.gaps.Add(1)
		if gap > h.gapThreshold {
			h.log.Error("large sequence gap, resetting book",
				"symbol", u.Symbol, "gap", gap, "last", last, "got", u.Sequence)
			if b := h.books.Get(u.Symbol); b != nil {
				b.Clear()
			}
		} else {
			h.log.Warn("sequence gap detected",
				"symbol", u.Symbol, "gap", gap, "last", last, "got", u.Sequence)
		}
	}
	if u.Sequence <= last {
		h.dropped.Add(1)
		h.log.Warn("out-of-order update dropped",
			"symbol", u.Symbol, "sequence", u.Sequence, "last", last)
		return
	}
	h.lastSeq[u.Symbol] = u.Sequence

	h.buffer.Add(u)
	if err := h.books.Apply(u); err != nil {
		h.dropped.Add(1)
		h.log.Warn("book rejected update", "symbol", u.Symbol, "sequence", u.Sequence, "error", err)
		return
	}
	processed := h.processed.Add(1)

	h.checkCrossed(u.Symbol)

	if processed%1000 == 0 {
		h.log.Debug("feed progress",
			"processed", processed, "dropped", h.dropped.Load(), "gaps", h.gaps.Load())
	}
}

// Run consumes updates from in until the channel closes or ctx ends.
func (h *Handler) Run(ctx context.Context, in <-chan market.Update) error {
	h.log.Info("feed handler started", "symbols", len(h.symbols))
	defer func() {
		processed, dropped, gaps := h.Stats()
		h.log.Info("feed handler stopped",
			"processed", processed, "dropped", dropped, "gaps", gaps)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-in:
			if !ok {
				return nil
			}
			h.Handle(u)
		}
	}
}

func (h *Handler) checkCrossed(symbol string) {
	b := h.books.Get(symbol)
	if b == nil {
		return
	}
	bid, ask, bidOK, askOK := b.TopOfBook()
	if bidOK && askOK && bid.Price >= ask.Price {
		h.log.Warn("crossed book", "symbol", symbol, "bid", bid.Price, "ask", ask.Price)
	}
}

// CheckAllBooks runs a health pass over every configured symbol: empty books
// and abnormally wide spreads (over 5% of the mid price) are reported.
func (h *Handler) CheckAllBooks() {
	for sym := range h.symbols {
		b := h.books.Get(sym)
		if b == nil {
			h.log.Warn("no book for symbol yet", "symbol", sym)
			continue
		}
		bid, ask, bidOK, askOK := b.TopOfBook()
		if !bidOK && !askOK {
			h.log.Warn("book is empty", "symbol", sym)
			continue
		}
		if bidOK && askOK {
			mid := (bid.Price + ask.Price) / 2
			if mid > 0 && (ask.Price-bid.Price)/mid > 0.05 {
				h.log.Warn("abnormally wide spread",
					"symbol", sym, "bid", bid.Price, "ask", ask.Price)
			}
		}
	}
}
