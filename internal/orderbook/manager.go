package orderbook

import (
	"sort"
	"sync"

	"marketpipe/internal/market"
)

// Manager owns one Book per symbol, creating books lazily as updates arrive.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

func NewManager() *Manager {
	return &Manager{books: make(map[string]*Book)}
}

func (m *Manager) GetOrCreate(symbol string) *Book {
	m.mu.RLock()
	b := m.books[symbol]
	m.mu.RUnlock()
	if b != nil {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b = m.books[symbol]; b == nil {
		b = NewBook(symbol)
		m.books[symbol] = b
	}
	return b
}

// Apply routes an update to the symbol's book.
func (m *Manager) Apply(u market.Update) error {
	return m.GetOrCreate(u.Symbol).Apply(u)
}

// Get returns the book for symbol, or nil if none exists yet.
func (m *Manager) Get(symbol string) *Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[symbol]
}

func (m *Manager) Remove(symbol string) {
	m.mu.Lock()
	delete(m.books, symbol)
	m.mu.Unlock()
}

// Symbols lists the symbols with live books, sorted for stable iteration.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}
