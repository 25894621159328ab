package market

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"
)

// SyntheticProvider generates a reproducible random walk per subject. It
// stands in for the network provider in offline runs and tests.
type SyntheticProvider struct {
	// Now anchors the last bar; defaults to time.Now.
	Now   func() time.Time
	Start float64
	Drift float64
	Vol   float64
}

func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{Start: 100, Drift: 0.0004, Vol: 0.015}
}

func (s *SyntheticProvider) Fetch(ctx context.Context, subject, period string) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol := NormalizeSubject(subject)
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrDataset)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	n := TradingDays(period)
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	seed := h.Sum64()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	end := now().UTC().Truncate(24 * time.Hour)
	dates := tradingDates(end, n)

	price := s.Start
	bars := make([]Bar, n)
	for i := range bars {
		ret := s.Drift + s.Vol*rng.NormFloat64()
		open := price
		price = math.Max(0.01, price*math.Exp(ret))
		spread := math.Abs(s.Vol * price * rng.Float64())
		bars[i] = Bar{
			Time:   dates[i],
			Open:   open,
			High:   math.Max(open, price) + spread,
			Low:    math.Max(0.01, math.Min(open, price)-spread),
			Close:  price,
			Volume: float64(1_000_000 + rng.IntN(4_000_000)),
		}
	}
	return NewDataset(symbol, period, "synthetic", bars), nil
}

// tradingDates returns n weekdays ending at end, oldest first.
func tradingDates(end time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	d := end
	for i := n - 1; i >= 0; {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out[i] = d
			i--
		}
		d = d.AddDate(0, 0, -1)
	}
	return out
}
