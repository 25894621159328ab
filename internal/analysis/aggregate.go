package analysis

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentiment is the aggregate direction across signals.
type Sentiment string

const (
	Bullish Sentiment = "Bullish"
	Bearish Sentiment = "Bearish"
	Neutral Sentiment = "Neutral"
)

var (
	bullishKeywords = []string{"bull", "golden", "oversold", "undervalued", "positive"}
	bearishKeywords = []string{"bear", "death", "overbought", "overvalued", "negative"}
)

// Classify maps one signal label onto a sentiment bucket. Bullish keywords are
// checked first.
func Classify(signal string) Sentiment {
	s := strings.ToLower(signal)
	if s == strings.ToLower(SignalError) {
		return Neutral
	}
	for _, k := range bullishKeywords {
		if strings.Contains(s, k) {
			return Bullish
		}
	}
	for _, k := range bearishKeywords {
		if strings.Contains(s, k) {
			return Bearish
		}
	}
	return Neutral
}

// Tally counts results per sentiment bucket.
func Tally(results []TaskResult) map[Sentiment]int {
	counts := map[Sentiment]int{Bullish: 0, Bearish: 0, Neutral: 0}
	for _, r := range results {
		counts[Classify(r.Signal)]++
	}
	return counts
}

// Aggregate returns the bucket holding strictly the most results. Ties and
// empty input are Neutral.
func Aggregate(results []TaskResult) Sentiment {
	c := Tally(results)
	switch {
	case c[Bullish] > c[Bearish] && c[Bullish] > c[Neutral]:
		return Bullish
	case c[Bearish] > c[Bullish] && c[Bearish] > c[Neutral]:
		return Bearish
	default:
		return Neutral
	}
}

// NewReport packages a finished run. The plan is copied so the report does not
// alias caller state.
func NewReport(plan Plan, results []TaskResult, summary SummaryResult, now time.Time) Report {
	p := plan
	p.Items = append([]TaskSpec(nil), plan.Items...)
	p.Requested = append([]string(nil), plan.Requested...)
	return Report{
		ID:          uuid.NewString(),
		Subject:     plan.Subject,
		Period:      plan.Period,
		Mode:        plan.Mode,
		GeneratedAt: now.UTC(),
		Results:     append([]TaskResult(nil), results...),
		Sentiment:   Aggregate(results),
		Summary:     summary,
		Plan:        &p,
	}
}
