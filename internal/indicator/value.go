package indicator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

// FundamentalsSource returns valuation figures for a subject.
type FundamentalsSource interface {
	Fundamentals(ctx context.Context, subject string) (market.Fundamentals, error)
}

// Value gives a quick valuation take from P/E, P/B, PEG and market cap.
type Value struct {
	Source FundamentalsSource
	Logger *zap.Logger
}

func (v *Value) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := valueParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	ticker := cfg.Ticker
	if ticker == "" && ds != nil {
		ticker = ds.Subject()
	}
	var f market.Fundamentals
	if v.Source != nil && ticker != "" {
		f, err = v.Source.Fundamentals(ctx, ticker)
		if err != nil {
			if v.Logger != nil {
				v.Logger.Warn("fundamentals unavailable", zap.String("ticker", ticker), zap.Error(err))
			}
			f = market.Fundamentals{}
		}
	}
	signal, details := assessValue(f)
	meta := map[string]any{}
	if f.Name != "" {
		meta["name"] = f.Name
	}
	return analysis.TaskResult{Indicator: "Value Analysis", Signal: signal, Details: details, Meta: meta}, nil
}

// assessValue applies the heuristics in increasing precedence: cheap P/E,
// then PEG below one, then an expensive P/E.
func assessValue(f market.Fundamentals) (signal, details string) {
	pe := f.PE()
	var parts []string
	if pe != nil {
		parts = append(parts, fmt.Sprintf("P/E: %.2f", *pe))
	}
	if f.PriceBook != nil {
		parts = append(parts, fmt.Sprintf("P/B: %.2f", *f.PriceBook))
	}
	if f.PEG != nil {
		parts = append(parts, fmt.Sprintf("PEG: %.2f", *f.PEG))
	}
	if f.MarketCap != nil {
		parts = append(parts, "Market Cap: "+groupThousands(*f.MarketCap))
	}
	details = "Valuation data unavailable (network/cache)."
	if len(parts) > 0 {
		details = strings.Join(parts, ", ")
	}

	signal = "Neutral"
	if pe != nil && *pe < 15 {
		signal = "Potentially Undervalued"
	}
	if f.PEG != nil && *f.PEG < 1 {
		signal = "Growth Undervalued"
	}
	if pe != nil && *pe > 35 {
		signal = "Potentially Overvalued"
	}
	return signal, details
}

func groupThousands(v float64) string {
	s := fmt.Sprintf("%.0f", v)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
