package orderbook

import (
	"errors"
	"testing"

	"marketpipe/internal/market"
)

func upd(seq uint64, side market.Side, typ market.UpdateType, price, size float64) market.Update {
	return market.Update{
		Timestamp:  int64(seq) * 1000,
		Symbol:     "AAPL",
		Price:      price,
		Size:       size,
		Side:       side,
		Type:       typ,
		Sequence:   seq,
		ExchangeID: "SIM",
	}
}

func mustApply(t *testing.T, b *Book, u market.Update) {
	t.Helper()
	if err := b.Apply(u); err != nil {
		t.Fatalf("Apply(seq=%d): %v", u.Sequence, err)
	}
}

func TestBookAddModifyDelete(t *testing.T) {
	t.Parallel()
	b := NewBook("AAPL")
	mustApply(t, b, upd(1, market.Bid, market.Add, 150.00, 100))
	mustApply(t, b, upd(2, market.Bid, market.Add, 149.50, 200))
	mustApply(t, b, upd(3, market.Ask, market.Add, 150.10, 50))

	bid, ask, bidOK, askOK := b.TopOfBook()
	if !bidOK || !askOK {
		t.Fatal("expected both sides populated")
	}
	if bid.Price != 150.00 || ask.Price != 150.10 {
		t.Fatalf("top of book = %v / %v", bid.Price, ask.Price)
	}

	mustApply(t, b, upd(4, market.Bid, market.Modify, 150.00, 75))
	bid, _, _, _ = b.TopOfBook()
	if bid.Size != 75 {
		t.Fatalf("modified size = %v, want 75", bid.Size)
	}

	// Modify for a price never added is a no-op.
	mustApply(t, b, upd(5, market.Bid, market.Modify, 148.00, 10))
	if levels := b.Levels(market.Bid, 10); len(levels) != 2 {
		t.Fatalf("bid levels = %d, want 2", len(levels))
	}

	mustApply(t, b, upd(6, market.Bid, market.Delete, 150.00, 0))
	bid, _, bidOK, _ = b.TopOfBook()
	if !bidOK || bid.Price != 149.50 {
		t.Fatalf("best bid after delete = %v (ok=%v)", bid.Price, bidOK)
	}
}

func TestBookRejectsWrongSymbolAndStaleSequence(t *testing.T) {
	t.Parallel()
	b := NewBook("AAPL")
	mustApply(t, b, upd(5, market.Bid, market.Add, 150, 100))

	wrong := upd(6, market.Bid, market.Add, 150, 100)
	wrong.Symbol = "MSFT"
	if err := b.Apply(wrong); !errors.Is(err, ErrWrongSymbol) {
		t.Fatalf("err = %v, want ErrWrongSymbol", err)
	}
	if err := b.Apply(upd(5, market.Ask, market.Add, 151, 10)); !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("err = %v, want ErrStaleSequence", err)
	}
	if err := b.Apply(upd(3, market.Ask, market.Add, 151, 10)); !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("err = %v, want ErrStaleSequence", err)
	}
}

func TestBookLevelsOrderingAndDepth(t *testing.T) {
	t.Parallel()
	b := NewBook("AAPL")
	seq := uint64(0)
	next := func() uint64 { seq++; return seq }
	for _, p := range []float64{149, 151, 148, 150} {
		mustApply(t, b, upd(next(), market.Bid, market.Add, p, 10))
	}
	for _, p := range []float64{153, 152, 155, 154} {
		mustApply(t, b, upd(next(), market.Ask, market.Add, p, 10))
	}

	bids := b.Levels(market.Bid, 3)
	if len(bids) != 3 || bids[0].Price != 151 || bids[1].Price != 150 || bids[2].Price != 149 {
		t.Fatalf("bids = %+v, want highest first", bids)
	}
	asks := b.Levels(market.Ask, 3)
	if len(asks) != 3 || asks[0].Price != 152 || asks[1].Price != 153 || asks[2].Price != 154 {
		t.Fatalf("asks = %+v, want lowest first", asks)
	}
}

func TestBookSnapshotAndClear(t *testing.T) {
	t.Parallel()
	b := NewBook("AAPL")
	mustApply(t, b, upd(1, market.Bid, market.Add, 150, 100))
	mustApply(t, b, upd(2, market.Ask, market.Add, 151, 50))

	snap := b.Snapshot(10)
	if snap.Symbol != "AAPL" || snap.Sequence != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("snapshot levels = %d/%d", len(snap.Bids), len(snap.Asks))
	}

	b.Clear()
	snap = b.Snapshot(10)
	if len(snap.Bids) != 0 || len(snap.Asks) != 0 {
		t.Fatal("Clear left levels behind")
	}
	// Sequence survives a clear so stale replays stay rejected.
	if err := b.Apply(upd(1, market.Bid, market.Add, 150, 100)); !errors.Is(err, ErrStaleSequence) {
		t.Fatalf("err = %v, want ErrStaleSequence after clear", err)
	}
}

func TestManagerRoutesBySymbol(t *testing.T) {
	t.Parallel()
	m := NewManager()
	u := upd(1, market.Bid, market.Add, 150, 100)
	if err := m.Apply(u); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	u2 := upd(1, market.Ask, market.Add, 300, 10)
	u2.Symbol = "MSFT"
	if err := m.Apply(u2); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if m.Get("AAPL") == nil || m.Get("MSFT") == nil {
		t.Fatal("books not created")
	}
	if m.Get("GOOGL") != nil {
		t.Fatal("unexpected book")
	}
	if got := m.Symbols(); len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Fatalf("Symbols = %v", got)
	}
	m.Remove("MSFT")
	if m.Get("MSFT") != nil {
		t.Fatal("Remove did not drop the book")
	}
}
