package indicator

import (
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/llm"
)

// Deps are the external sources used by the non-technical units. Nil
// sources make those units report a Neutral signal.
type Deps struct {
	Headlines    HeadlineSource
	Fundamentals FundamentalsSource
	LLM          llm.Client
	NewsModel    string
	Logger       *zap.Logger
	Now          func() time.Time
}

// Default builds the registry with every built-in indicator.
func Default(deps Deps) *Registry {
	r := NewRegistry()
	r.MustRegister(Card{
		ID: "RSI", Name: "RSI", Kind: KindTechnical, Params: rsiParams,
		Description: "Relative strength index; flags oversold and overbought momentum.",
	}, RSI{})
	r.MustRegister(Card{
		ID: "MACD", Name: "MACD", Kind: KindTechnical, Params: macdParams,
		Description: "Moving average convergence divergence; reports signal-line crossovers.",
	}, MACD{})
	r.MustRegister(Card{
		ID: "BollingerBands", Name: "Bollinger Bands", Kind: KindTechnical, Params: bollingerParams,
		Description: "Price position relative to volatility bands around a simple average.",
	}, BollingerBands{})
	r.MustRegister(Card{
		ID: "MovingAverage", Name: "Moving Average", Kind: KindTechnical, Params: maParams,
		Description: "Short versus long simple moving average; golden and death crosses.",
	}, MovingAverage{})
	r.MustRegister(Card{
		ID: "EMA", Name: "EMA", Kind: KindTechnical, Params: emaParams,
		Description: "Fast versus slow exponential moving average.",
	}, EMA{})
	r.MustRegister(Card{
		ID: "News", Name: "News", Kind: KindNews, Params: newsParams,
		Description: "Recent headlines and their likely near-term impact.",
	}, &News{Source: deps.Headlines, LLM: deps.LLM, Model: deps.NewsModel, Now: deps.Now, Logger: deps.Logger})
	r.MustRegister(Card{
		ID: "ValueAnalysis", Name: "Value Analysis", Kind: KindFundamental, Params: valueParams,
		Description: "Valuation metrics (P/E, P/B, PEG, market cap) and a quick take.",
	}, &Value{Source: deps.Fundamentals, Logger: deps.Logger})
	return r
}
