// Package orderbook maintains per-symbol price-level books built from feed
// updates.
package orderbook

import (
	"errors"
	"sort"
	"sync"

	"marketpipe/internal/market"
)

var (
	ErrWrongSymbol   = errors.New("orderbook: update for a different symbol")
	ErrStaleSequence = errors.New("orderbook: stale or duplicate sequence number")
)

// PriceLevel is one visible level of a book side.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Orders int     `json:"orders"`
}

// Snapshot is a point-in-time, depth-limited view of a book.
type Snapshot struct {
	Symbol    string       `json:"symbol"`
	Timestamp int64        `json:"timestamp"` // ns, from the last applied update
	Bids      []PriceLevel `json:"bids"`      // best (highest) first
	Asks      []PriceLevel `json:"asks"`      // best (lowest) first
	Sequence  uint64       `json:"sequence"`
}

type level struct {
	price  float64
	size   float64
	orders int
}

// side keeps levels sorted ascending by price; bids read from the back, asks
// from the front.
type side struct {
	levels []level
}

func (s *side) find(price float64) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool { return s.levels[i].price >= price })
	return i, i < len(s.levels) && s.levels[i].price == price
}

func (s *side) set(price, size float64) {
	i, ok := s.find(price)
	if ok {
		s.levels[i].size = size
		s.levels[i].orders = 1
		return
	}
	s.levels = append(s.levels, level{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level{price: price, size: size, orders: 1}
}

func (s *side) remove(price float64) {
	if i, ok := s.find(price); ok {
		s.levels = append(s.levels[:i], s.levels[i+1:]...)
	}
}

// Book is the live order book for a single symbol. Safe for concurrent use.
type Book struct {
	symbol string

	mu       sync.RWMutex
	bids     side
	asks     side
	lastTime int64
	sequence uint64
}

func NewBook(symbol string) *Book {
	return &Book{symbol: symbol}
}

func (b *Book) Symbol() string { return b.symbol }

// Apply processes one update. Updates for a different symbol or with a
// sequence number at or below the last applied one are rejected.
func (b *Book) Apply(u market.Update) error {
	if u.Symbol != b.symbol {
		return ErrWrongSymbol
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if u.Sequence <= b.sequence {
		return ErrStaleSequence
	}
	s := &b.bids
	if u.Side == market.Ask {
		s = &b.asks
	}
	switch u.Type {
	case market.Delete:
		s.remove(u.Price)
	case market.Modify:
		// Modify only touches an existing level; a modify for an unknown
		// price is ignored (the add that introduces it was missed).
		if _, ok := s.find(u.Price); ok {
			s.set(u.Price, u.Size)
		}
	default: // market.Add
		s.set(u.Price, u.Size)
	}
	b.lastTime = u.Timestamp
	b.sequence = u.Sequence
	return nil
}

// Levels returns up to depth levels for one side, best first.
func (b *Book) Levels(sd market.Side, depth int) []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.levelsLocked(sd, depth)
}

func (b *Book) levelsLocked(sd market.Side, depth int) []PriceLevel {
	s := &b.bids
	if sd == market.Ask {
		s = &b.asks
	}
	n := len(s.levels)
	if depth > n {
		depth = n
	}
	out := make([]PriceLevel, 0, depth)
	for i := 0; i < depth; i++ {
		var lv level
		if sd == market.Bid {
			lv = s.levels[n-1-i] // highest first
		} else {
			lv = s.levels[i] // lowest first
		}
		out = append(out, PriceLevel{Price: lv.price, Size: lv.size, Orders: lv.orders})
	}
	return out
}

// TopOfBook returns the best bid and ask. ok is false for an empty side.
func (b *Book) TopOfBook() (bid, ask PriceLevel, bidOK, askOK bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n := len(b.bids.levels); n > 0 {
		lv := b.bids.levels[n-1]
		bid, bidOK = PriceLevel{Price: lv.price, Size: lv.size, Orders: lv.orders}, true
	}
	if len(b.asks.levels) > 0 {
		lv := b.asks.levels[0]
		ask, askOK = PriceLevel{Price: lv.price, Size: lv.size, Orders: lv.orders}, true
	}
	return bid, ask, bidOK, askOK
}

// Snapshot captures the current state down to depth levels per side.
func (b *Book) Snapshot(depth int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		Symbol:    b.symbol,
		Timestamp: b.lastTime,
		Bids:      b.levelsLocked(market.Bid, depth),
		Asks:      b.levelsLocked(market.Ask, depth),
		Sequence:  b.sequence,
	}
}

// Clear drops all levels but keeps the sequence number, so replayed stale
// updates remain rejected after a reset.
func (b *Book) Clear() {
	b.mu.Lock()
	b.bids.levels = nil
	b.asks.levels = nil
	b.mu.Unlock()
}
