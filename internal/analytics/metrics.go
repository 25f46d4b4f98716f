// Package analytics computes rolling market metrics and trading signals from
// live order books.
package analytics

import (
	"math"
	"time"

	"marketpipe/internal/market"
	"marketpipe/internal/orderbook"
)

// Metrics is one computed observation for a symbol.
type Metrics struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	MidPrice  float64 `json:"mid_price"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spread_bps"`

	// VWAP and Volume are computed over the recent update window.
	VWAP   float64 `json:"vwap"`
	Volume float64 `json:"volume"`

	// Imbalance is (bidSize-askSize)/(bidSize+askSize) over the visible
	// depth, in [-1, 1].
	Imbalance float64 `json:"imbalance"`

	// Volatility is the annualized standard deviation of mid-price log
	// returns over the rolling window.
	Volatility float64 `json:"volatility"`

	Signals []string `json:"signals,omitempty"`
}

// symbolWindow holds the per-symbol rolling state.
type symbolWindow struct {
	mids []float64 // ring of recent mid prices
	next int
	full bool
}

func newSymbolWindow(size int) *symbolWindow {
	return &symbolWindow{mids: make([]float64, size)}
}

func (w *symbolWindow) push(mid float64) {
	w.mids[w.next] = mid
	w.next++
	if w.next == len(w.mids) {
		w.next = 0
		w.full = true
	}
}

// values returns the window contents oldest first.
func (w *symbolWindow) values() []float64 {
	if w.full {
		out := make([]float64, 0, len(w.mids))
		out = append(out, w.mids[w.next:]...)
		return append(out, w.mids[:w.next]...)
	}
	return w.mids[:w.next]
}

// logReturnVolatility computes the annualized stddev of log returns over the
// mid-price window, assuming one observation per second.
func logReturnVolatility(mids []float64) float64 {
	if len(mids) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(mids)-1)
	for i := 1; i < len(mids); i++ {
		if mids[i-1] <= 0 || mids[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(mids[i]/mids[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	const secondsPerYear = 252 * 6.5 * 3600 // trading seconds
	return math.Sqrt(variance) * math.Sqrt(secondsPerYear)
}

// vwap computes the volume weighted average price and total volume over a
// batch of updates for one symbol. Deletes carry no size and are skipped.
func vwap(symbol string, updates []market.Update) (price, volume float64) {
	var notional float64
	for _, u := range updates {
		if u.Symbol != symbol || u.Type == market.Delete || u.Size <= 0 {
			continue
		}
		notional += u.Price * u.Size
		volume += u.Size
	}
	if volume == 0 {
		return 0, 0
	}
	return notional / volume, volume
}

// imbalance measures bid/ask size pressure over the visible levels.
func imbalance(bids, asks []orderbook.PriceLevel) float64 {
	var bidSize, askSize float64
	for _, l := range bids {
		bidSize += l.Size
	}
	for _, l := range asks {
		askSize += l.Size
	}
	total := bidSize + askSize
	if total == 0 {
		return 0
	}
	return (bidSize - askSize) / total
}

// Signal thresholds.
const (
	imbalanceSignal = 0.7
	wideSpreadBps   = 50
	highVolatility  = 0.02
)

func signals(m Metrics, windowAvg float64) []string {
	var out []string
	if m.Imbalance > imbalanceSignal {
		out = append(out, "strong_bid_pressure")
	}
	if m.Imbalance < -imbalanceSignal {
		out = append(out, "strong_ask_pressure")
	}
	if m.SpreadBps > wideSpreadBps {
		out = append(out, "wide_spread")
	}
	if m.Volatility > highVolatility {
		out = append(out, "high_volatility")
	}
	if windowAvg > 0 && m.MidPrice > windowAvg {
		out = append(out, "upward_momentum")
	}
	return out
}

func windowAverage(mids []float64) float64 {
	if len(mids) == 0 {
		return 0
	}
	var sum float64
	for _, m := range mids {
		sum += m
	}
	return sum / float64(len(mids))
}
