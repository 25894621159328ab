package indicator

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

// RSI flags momentum extremes against oversold/overbought thresholds.
type RSI struct{}

func (RSI) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := rsiParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	closes := ds.Closes()
	if err := need(closes, cfg.Period+1); err != nil {
		return analysis.TaskResult{}, err
	}
	v := lastRSI(closes, cfg.Period)
	signal := "Neutral"
	switch {
	case v < cfg.Oversold:
		signal = "Oversold"
	case v > cfg.Overbought:
		signal = "Overbought"
	}
	return analysis.TaskResult{
		Indicator: "RSI",
		Signal:    signal,
		Details:   fmt.Sprintf("RSI(period=%d) is %.2f; thresholds %g/%g", cfg.Period, v, cfg.Oversold, cfg.Overbought),
		Meta:      map[string]any{"value": v},
	}, nil
}

// MACD compares the MACD line with its signal line.
type MACD struct{}

func (MACD) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := macdParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	closes := ds.Closes()
	if err := need(closes, cfg.Slow+cfg.Signal); err != nil {
		return analysis.TaskResult{}, err
	}
	fast, slow := ema(closes, cfg.Fast), ema(closes, cfg.Slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	sig := ema(line, cfg.Signal)
	m, s := line[len(line)-1], sig[len(sig)-1]
	signal := "Neutral"
	switch {
	case m > s:
		signal = "Bullish Crossover"
	case m < s:
		signal = "Bearish Crossover"
	}
	return analysis.TaskResult{
		Indicator: "MACD",
		Signal:    signal,
		Details:   fmt.Sprintf("MACD(fast=%d, slow=%d, signal=%d) -> %.2f vs %.2f", cfg.Fast, cfg.Slow, cfg.Signal, m, s),
		Meta:      map[string]any{"macd": m, "signal_line": s, "histogram": m - s},
	}, nil
}

// BollingerBands locates the last close relative to the volatility bands.
type BollingerBands struct{}

func (BollingerBands) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := bollingerParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	closes := ds.Closes()
	if err := need(closes, cfg.Window); err != nil {
		return analysis.TaskResult{}, err
	}
	mid := lastSMA(closes, cfg.Window)
	std := lastStd(closes, cfg.Window)
	upper, lower := mid+cfg.Width*std, mid-cfg.Width*std
	price := closes[len(closes)-1]
	signal := "Within bands"
	switch {
	case price > upper:
		signal = "Price above upper band"
	case price < lower:
		signal = "Price below lower band"
	}
	return analysis.TaskResult{
		Indicator: "Bollinger Bands",
		Signal:    signal,
		Details:   fmt.Sprintf("Price %.2f, lower %.2f, upper %.2f", price, lower, upper),
		Meta:      map[string]any{"price": price, "lower": lower, "middle": mid, "upper": upper},
	}, nil
}

// MovingAverage reports golden and death crosses of two simple averages.
type MovingAverage struct{}

func (MovingAverage) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := maParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	closes := ds.Closes()
	if err := need(closes, cfg.Long); err != nil {
		return analysis.TaskResult{}, err
	}
	short, long := lastSMA(closes, cfg.Short), lastSMA(closes, cfg.Long)
	signal := "Neutral"
	switch {
	case short > long:
		signal = "Golden Cross"
	case short < long:
		signal = "Death Cross"
	}
	return analysis.TaskResult{
		Indicator: "Moving Average",
		Signal:    signal,
		Details:   fmt.Sprintf("%d-day MA %.2f vs %d-day MA %.2f", cfg.Short, short, cfg.Long, long),
		Meta:      map[string]any{"short": short, "long": long},
	}, nil
}

// EMA compares a fast and a slow exponential average.
type EMA struct{}

func (EMA) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := emaParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	closes := ds.Closes()
	if err := need(closes, cfg.Slow); err != nil {
		return analysis.TaskResult{}, err
	}
	f := ema(closes, cfg.Fast)[len(closes)-1]
	s := ema(closes, cfg.Slow)[len(closes)-1]
	rel := "equals"
	switch {
	case f > s:
		rel = "above"
	case f < s:
		rel = "below"
	}
	return analysis.TaskResult{
		Indicator: "EMA",
		Signal:    fmt.Sprintf("EMA%d %s EMA%d", cfg.Fast, rel, cfg.Slow),
		Details:   fmt.Sprintf("EMA%d %.2f vs EMA%d %.2f", cfg.Fast, f, cfg.Slow, s),
		Meta:      map[string]any{"fast": f, "slow": s},
	}, nil
}
