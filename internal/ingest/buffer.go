// Package ingest generates, validates and buffers market data updates.
package ingest

import (
	"sync"

	"marketpipe/internal/market"
)

// Ring is a bounded buffer retaining the most recent updates. Safe for
// concurrent use.
type Ring struct {
	mu   sync.Mutex
	buf  []market.Update
	next int // insertion index
	full bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]market.Update, capacity)}
}

func (r *Ring) Add(u market.Update) {
	r.mu.Lock()
	r.buf[r.next] = u
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *Ring) Cap() int { return len(r.buf) }

// Latest returns up to n of the most recent updates, oldest first.
func (r *Ring) Latest(n int) []market.Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}
	out := make([]market.Update, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *Ring) Clear() {
	r.mu.Lock()
	r.next = 0
	r.full = false
	r.mu.Unlock()
}
