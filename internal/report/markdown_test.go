package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

var day = time.Date(2025, 3, 7, 15, 30, 0, 0, time.UTC)

func TestFileName(t *testing.T) {
	cases := map[analysis.Mode]string{
		analysis.ModeTechnical: "AAPL_20250307.md",
		analysis.ModeValue:     "AAPL_20250307_value.md",
		analysis.ModeNews:      "AAPL_20250307_news.md",
	}
	for mode, want := range cases {
		if got := FileName(analysis.Report{Subject: "aapl", Mode: mode, GeneratedAt: day}); got != want {
			t.Fatalf("mode %s: got %q want %q", mode, got, want)
		}
	}
}

func TestSaveReportWritesHeaderAndSummary(t *testing.T) {
	dir := t.TempDir()
	sink := NewMarkdownSink(filepath.Join(dir, "out"), nil)
	r := analysis.Report{
		Subject: "AAPL", Mode: analysis.ModeValue, GeneratedAt: day,
		Results: []analysis.TaskResult{{Indicator: "Value Analysis", Signal: "Neutral", Meta: map[string]any{"name": "Apple Inc."}}},
		Summary: analysis.SummaryResult{Text: "Value is fair.\n"},
	}
	if err := sink.SaveReport(context.Background(), r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "out", "AAPL_20250307_value.md"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(b); got != "### Value Analysis Report: Apple Inc.\n\nValue is fair.\n" {
		t.Fatalf("unexpected markdown %q", got)
	}
}

func TestRenderNewsHeadlines(t *testing.T) {
	r := analysis.Report{
		Subject: "AAPL", Mode: analysis.ModeNews, GeneratedAt: day,
		Results: []analysis.TaskResult{{Indicator: "News", Signal: "Positive", Meta: map[string]any{
			"headlines": []market.Headline{{Title: "Record quarter", URL: "https://x.test/a", Publisher: "Wire", PublishedAt: day}},
		}}},
		Summary: analysis.SummaryResult{Text: "News summary"},
	}
	out := Render(r)
	if !strings.HasPrefix(out, "### News Report: AAPL\n") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- 2025-03-07 15:30 UTC – Wire: [Record quarter](https://x.test/a)") {
		t.Fatalf("headline line missing: %q", out)
	}

	// the same meta after a JSON round trip through the store
	r.Results[0].Meta["headlines"] = []any{map[string]any{"title": "Probe opened", "url": "u", "publisher": "P", "published_at": "2025-03-07T15:30:00Z"}}
	if out := Render(r); !strings.Contains(out, "– P: [Probe opened](u)") {
		t.Fatalf("decoded headline missing: %q", out)
	}

	r.Results = nil
	if out := Render(r); !strings.Contains(out, "No recent news found.") {
		t.Fatalf("expected empty headline note: %q", out)
	}
}
