package analysis

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := map[string]Sentiment{
		"Bullish Crossover":       Bullish,
		"Golden Cross":            Bullish,
		"Oversold":                Bullish,
		"Potentially Undervalued": Bullish,
		"Positive":                Bullish,
		"Bearish Crossover":       Bearish,
		"Death Cross":             Bearish,
		"Overbought":              Bearish,
		"Potentially Overvalued":  Bearish,
		"Negative":                Bearish,
		"Within bands":            Neutral,
		"Neutral":                 Neutral,
		"Error":                   Neutral,
		"":                        Neutral,
	}
	for signal, want := range cases {
		if got := Classify(signal); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", signal, got, want)
		}
	}
}

func results(signals ...string) []TaskResult {
	out := make([]TaskResult, len(signals))
	for i, s := range signals {
		out[i] = TaskResult{Indicator: "x", Signal: s}
	}
	return out
}

func TestAggregateStrictMajority(t *testing.T) {
	cases := []struct {
		name    string
		signals []string
		want    Sentiment
	}{
		{"empty", nil, Neutral},
		{"bullish wins", []string{"Golden Cross", "Bullish Crossover", "Within bands"}, Bullish},
		{"bearish wins", []string{"Death Cross", "Overbought", "Oversold"}, Bearish},
		{"bull bear tie", []string{"Golden Cross", "Death Cross"}, Neutral},
		{"bull neutral tie", []string{"Golden Cross", "Within bands"}, Neutral},
		{"all errors", []string{"Error", "Error"}, Neutral},
	}
	for _, tc := range cases {
		if got := Aggregate(results(tc.signals...)); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestAggregateOrderIndependent(t *testing.T) {
	in := results("Golden Cross", "Oversold", "Death Cross", "Within bands", "Bullish Crossover", "Error")
	want := Aggregate(in)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(in), func(a, b int) { in[a], in[b] = in[b], in[a] })
		if got := Aggregate(in); got != want {
			t.Fatalf("order changed result: %s vs %s", got, want)
		}
	}
}

func TestErrorResult(t *testing.T) {
	params := Params{"period": 14}
	r := ErrorResult("RSI", params, errors.New("boom"))
	if !r.IsError() {
		t.Fatalf("expected error signal")
	}
	if !strings.Contains(r.Details, "boom") || !strings.Contains(r.Details, "RSI") {
		t.Fatalf("details should name indicator and cause: %q", r.Details)
	}
	params["period"] = 99
	if r.Meta["params"].(Params)["period"] != 14 {
		t.Fatalf("params should be copied")
	}
}

func TestNewReport(t *testing.T) {
	plan := Plan{Subject: "AAPL", Period: "1y", Mode: ModeTechnical, Items: []TaskSpec{{Name: "RSI"}}}
	res := results("Oversold")
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	rep := NewReport(plan, res, SummaryResult{Text: "t", Method: SummaryFallback}, now)
	if rep.ID == "" || rep.Subject != "AAPL" || rep.Period != "1y" {
		t.Fatalf("unexpected report shell %+v", rep)
	}
	if rep.Sentiment != Bullish {
		t.Fatalf("expected bullish, got %s", rep.Sentiment)
	}
	if rep.GeneratedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
	plan.Items[0].Name = "mutated"
	if rep.Plan.Items[0].Name != "RSI" {
		t.Fatalf("report plan aliases caller plan")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeTechnical, "VALUE": ModeValue, " news ": ModeNews} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("astro"); err == nil {
		t.Fatalf("expected error")
	}
}
