package indicator

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

type validator interface {
	Validate() error
}

// record is the ParamSet for a typed configuration struct T. Decoding starts
// from the defaults, so missing keys keep their default values.
type record[T validator] struct {
	defaults T
}

func newRecord[T validator](defaults T) record[T] { return record[T]{defaults: defaults} }

func (r record[T]) Decode(in analysis.Params) (T, error) {
	out := r.defaults
	if len(in) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &out,
		})
		if err != nil {
			return out, err
		}
		if err := dec.Decode(map[string]any(in)); err != nil {
			return out, fmt.Errorf("decode params: %w", err)
		}
	}
	if err := out.Validate(); err != nil {
		return out, fmt.Errorf("invalid params: %w", err)
	}
	return out, nil
}

func (r record[T]) Defaults() analysis.Params {
	p, _ := encode(r.defaults)
	return p
}

func (r record[T]) Normalize(in analysis.Params) (analysis.Params, error) {
	v, err := r.Decode(in)
	if err != nil {
		return nil, err
	}
	return encode(v)
}

func encode(v any) (analysis.Params, error) {
	var m map[string]any
	if err := mapstructure.Decode(v, &m); err != nil {
		return nil, err
	}
	// empty optional strings are dropped
	for k, val := range m {
		if s, ok := val.(string); ok && s == "" {
			delete(m, k)
		}
	}
	return analysis.Params(m), nil
}

// RSIConfig configures the momentum oscillator.
type RSIConfig struct {
	Period     int     `mapstructure:"period"`
	Oversold   float64 `mapstructure:"oversold"`
	Overbought float64 `mapstructure:"overbought"`
}

func (c RSIConfig) Validate() error {
	if c.Period < 2 {
		return fmt.Errorf("period must be at least 2, got %d", c.Period)
	}
	if c.Oversold < 0 || c.Overbought > 100 || c.Oversold >= c.Overbought {
		return fmt.Errorf("thresholds must satisfy 0 <= oversold < overbought <= 100, got %g/%g", c.Oversold, c.Overbought)
	}
	return nil
}

// MACDConfig configures the trend crossover spans.
type MACDConfig struct {
	Fast   int `mapstructure:"fast"`
	Slow   int `mapstructure:"slow"`
	Signal int `mapstructure:"signal"`
}

func (c MACDConfig) Validate() error {
	if c.Fast < 1 || c.Signal < 1 {
		return fmt.Errorf("fast and signal spans must be positive")
	}
	if c.Slow <= c.Fast {
		return fmt.Errorf("slow span %d must exceed fast span %d", c.Slow, c.Fast)
	}
	return nil
}

// BollingerConfig configures the band window and width in standard deviations.
type BollingerConfig struct {
	Window int     `mapstructure:"window"`
	Width  float64 `mapstructure:"width"`
}

func (c BollingerConfig) Validate() error {
	if c.Window < 2 {
		return fmt.Errorf("window must be at least 2, got %d", c.Window)
	}
	if c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %g", c.Width)
	}
	return nil
}

// MovingAverageConfig configures the short and long simple averages.
type MovingAverageConfig struct {
	Short int `mapstructure:"short"`
	Long  int `mapstructure:"long"`
}

func (c MovingAverageConfig) Validate() error {
	if c.Short < 1 || c.Long <= c.Short {
		return fmt.Errorf("windows must satisfy 0 < short < long, got %d/%d", c.Short, c.Long)
	}
	return nil
}

// EMAConfig configures the exponential average pair.
type EMAConfig struct {
	Fast int `mapstructure:"fast"`
	Slow int `mapstructure:"slow"`
}

func (c EMAConfig) Validate() error {
	if c.Fast < 1 || c.Slow <= c.Fast {
		return fmt.Errorf("spans must satisfy 0 < fast < slow, got %d/%d", c.Fast, c.Slow)
	}
	return nil
}

// NewsConfig configures headline retrieval.
type NewsConfig struct {
	Ticker string `mapstructure:"ticker"`
	TopN   int    `mapstructure:"top_n"`
	Days   int    `mapstructure:"days"`
}

func (c NewsConfig) Validate() error {
	if c.TopN < 1 || c.TopN > 100 {
		return fmt.Errorf("top_n must be within 1..100, got %d", c.TopN)
	}
	if c.Days < 1 {
		return fmt.Errorf("days must be positive, got %d", c.Days)
	}
	return nil
}

// ValueConfig configures the fundamentals lookup.
type ValueConfig struct {
	Ticker string `mapstructure:"ticker"`
}

func (c ValueConfig) Validate() error {
	if strings.ContainsAny(c.Ticker, " /?#") {
		return fmt.Errorf("invalid ticker %q", c.Ticker)
	}
	return nil
}

var (
	rsiParams       = newRecord(RSIConfig{Period: 14, Oversold: 30, Overbought: 70})
	macdParams      = newRecord(MACDConfig{Fast: 12, Slow: 26, Signal: 9})
	bollingerParams = newRecord(BollingerConfig{Window: 20, Width: 2})
	maParams        = newRecord(MovingAverageConfig{Short: 50, Long: 200})
	emaParams       = newRecord(EMAConfig{Fast: 12, Slow: 26})
	newsParams      = newRecord(NewsConfig{TopN: 6, Days: 7})
	valueParams     = newRecord(ValueConfig{})
)
