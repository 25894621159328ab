package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrDataset marks a dataset that cannot be used for analysis. It is the only
// error class that aborts an orchestration run.
var ErrDataset = errors.New("dataset unavailable")

// Provider fetches historical prices for a subject.
type Provider interface {
	Fetch(ctx context.Context, subject, period string) (*Dataset, error)
}

// Bar is one OHLCV observation.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Dataset is an ascending series of bars. It is never mutated after
// construction, so one instance can be shared by concurrent readers.
type Dataset struct {
	subject string
	period  string
	source  string
	bars    []Bar
}

// NewDataset copies bars into a new dataset.
func NewDataset(subject, period, source string, bars []Bar) *Dataset {
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return &Dataset{subject: NormalizeSubject(subject), period: period, source: source, bars: cp}
}

func (d *Dataset) Subject() string { return d.subject }
func (d *Dataset) Period() string  { return d.period }
func (d *Dataset) Source() string  { return d.source }
func (d *Dataset) Len() int        { return len(d.bars) }

// Bars returns a copy of the series.
func (d *Dataset) Bars() []Bar {
	out := make([]Bar, len(d.bars))
	copy(out, d.bars)
	return out
}

// Closes returns a copy of the closing prices, oldest first.
func (d *Dataset) Closes() []float64 {
	out := make([]float64, len(d.bars))
	for i, b := range d.bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar.
func (d *Dataset) Last() (Bar, bool) {
	if len(d.bars) == 0 {
		return Bar{}, false
	}
	return d.bars[len(d.bars)-1], true
}

// Validate rejects empty or malformed series with ErrDataset.
func (d *Dataset) Validate() error {
	if d == nil || len(d.bars) == 0 {
		return fmt.Errorf("%w: no price data", ErrDataset)
	}
	for i, b := range d.bars {
		if math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			return fmt.Errorf("%w: non-finite close at %s", ErrDataset, b.Time.Format(time.DateOnly))
		}
		if i > 0 && !b.Time.After(d.bars[i-1].Time) {
			return fmt.Errorf("%w: bars not ascending at index %d", ErrDataset, i)
		}
	}
	return nil
}

type datasetJSON struct {
	Subject string `json:"subject"`
	Period  string `json:"period"`
	Source  string `json:"source"`
	Bars    []Bar  `json:"bars"`
}

func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(datasetJSON{Subject: d.subject, Period: d.period, Source: d.source, Bars: d.bars})
}

func (d *Dataset) UnmarshalJSON(b []byte) error {
	var raw datasetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*d = *NewDataset(raw.Subject, raw.Period, raw.Source, raw.Bars)
	return nil
}

// NormalizeSubject upper-cases and trims a ticker symbol.
func NormalizeSubject(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// periodBars approximates trading days per period label.
var periodBars = map[string]int{
	"1mo": 21,
	"3mo": 63,
	"6mo": 126,
	"1y":  252,
	"2y":  504,
	"5y":  1260,
	"10y": 2520,
}

// TradingDays returns the approximate number of daily bars in period.
func TradingDays(period string) int {
	if n, ok := periodBars[strings.ToLower(period)]; ok {
		return n
	}
	return periodBars["1y"]
}

// ValidPeriod reports whether period is a recognized range label.
func ValidPeriod(period string) bool {
	_, ok := periodBars[strings.ToLower(period)]
	return ok || strings.EqualFold(period, "max") || strings.EqualFold(period, "ytd")
}
