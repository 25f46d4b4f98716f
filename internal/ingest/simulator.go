package ingest

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"marketpipe/internal/market"
)

// SimulatorOptions configures the synthetic feed.
type SimulatorOptions struct {
	Symbols       []string
	InitialPrices map[string]float64 // missing symbols start at 100
	Volatility    float64            // per-update stddev as a fraction of price
	Interval      time.Duration      // pacing between updates
	Seed          int64              // 0 seeds from the clock
}

// Simulator produces a random-walk market data stream: each update moves one
// randomly chosen symbol by a normally distributed fraction of its price,
// with log-normally distributed order sizes and a strictly increasing
// sequence number.
type Simulator struct {
	log     *slog.Logger
	symbols []string
	prices  map[string]float64
	vol     float64
	limiter *rate.Limiter
	rng     *rand.Rand
	seq     uint64
}

func NewSimulator(opts SimulatorOptions, log *slog.Logger) *Simulator {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	prices := make(map[string]float64, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		p := opts.InitialPrices[sym]
		if p <= 0 {
			p = 100
		}
		prices[sym] = p
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Simulator{
		log:     log,
		symbols: append([]string(nil), opts.Symbols...),
		prices:  prices,
		vol:     opts.Volatility,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Next generates one update. Not safe for concurrent use; Run is the intended
// driver.
func (s *Simulator) Next() market.Update {
	s.seq++
	sym := s.symbols[s.rng.Intn(len(s.symbols))]

	// Random walk: normally distributed move proportional to the price.
	s.prices[sym] += s.rng.NormFloat64() * s.vol * s.prices[sym]

	// Log-normal sizes give a realistic long tail of order sizes.
	size := math.Exp(4 + 0.5*s.rng.NormFloat64())

	return market.Update{
		Timestamp:  time.Now().UnixNano(),
		Symbol:     sym,
		Price:      s.prices[sym],
		Size:       size,
		Side:       market.Side(s.rng.Intn(2)),
		Type:       market.UpdateType(s.rng.Intn(3)),
		Sequence:   s.seq,
		ExchangeID: "SIM",
	}
}

// Run streams updates into out, paced by the configured interval, until ctx
// ends. The channel is not closed; the caller owns it.
func (s *Simulator) Run(ctx context.Context, out chan<- market.Update) error {
	s.log.Info("starting market data simulation", "symbols", len(s.symbols))
	defer s.log.Info("market data simulation stopped", "updates", s.seq)

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}
		select {
		case out <- s.Next():
		case <-ctx.Done():
			return nil
		}
	}
}
