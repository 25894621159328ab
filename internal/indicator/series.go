package indicator

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than a window.
var ErrInsufficientData = errors.New("insufficient data")

func need(xs []float64, n int) error {
	if len(xs) < n {
		return fmt.Errorf("%w: need %d bars, have %d", ErrInsufficientData, n, len(xs))
	}
	return nil
}

// lastSMA is the mean of the final window values.
func lastSMA(xs []float64, window int) float64 {
	sum := 0.0
	for _, x := range xs[len(xs)-window:] {
		sum += x
	}
	return sum / float64(window)
}

// lastStd is the sample standard deviation of the final window values.
func lastStd(xs []float64, window int) float64 {
	mean := lastSMA(xs, window)
	ss := 0.0
	for _, x := range xs[len(xs)-window:] {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(window-1))
}

// ema returns the recursive exponential average seeded with the first value.
func ema(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1)
	out[0] = xs[0]
	for i := 1; i < len(xs); i++ {
		out[i] = alpha*xs[i] + (1-alpha)*out[i-1]
	}
	return out
}

// lastRSI uses simple averages of gains and losses over the final period changes.
func lastRSI(xs []float64, period int) float64 {
	var gain, loss float64
	for i := len(xs) - period; i < len(xs); i++ {
		d := xs[i] - xs[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(period)
	loss /= float64(period)
	switch {
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}
