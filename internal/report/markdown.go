package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

// MarkdownSink writes each report to <Dir>/<SUBJECT>_<yyyymmdd>[_value|_news].md.
// A later run on the same day overwrites the file.
type MarkdownSink struct {
	Dir    string
	Logger *zap.Logger
}

func NewMarkdownSink(dir string, logger *zap.Logger) *MarkdownSink {
	if dir == "" {
		dir = "reports"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkdownSink{Dir: dir, Logger: logger}
}

// FileName returns the report file name for r.
func FileName(r analysis.Report) string {
	name := fmt.Sprintf("%s_%s", market.NormalizeSubject(r.Subject), r.GeneratedAt.Format("20060102"))
	switch r.Mode {
	case analysis.ModeValue:
		name += "_value"
	case analysis.ModeNews:
		name += "_news"
	}
	return name + ".md"
}

// SaveReport implements engine.Sink.
func (m *MarkdownSink) SaveReport(ctx context.Context, r analysis.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(m.Dir, FileName(r))
	if err := os.WriteFile(path, []byte(Render(r)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if m.Logger != nil {
		m.Logger.Info("markdown report written", zap.String("path", path))
	}
	return nil
}

// Render formats a report as markdown.
func Render(r analysis.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s Report: %s\n\n", modeLabel(r.Mode), displayName(r))
	b.WriteString(strings.TrimRight(r.Summary.Text, "\n"))
	b.WriteString("\n")

	if r.Mode == analysis.ModeNews {
		b.WriteString("\n#### Headlines\n\n")
		hs := headlines(r)
		if len(hs) == 0 {
			b.WriteString("No recent news found.\n")
		}
		for _, h := range hs {
			when := ""
			if !h.PublishedAt.IsZero() {
				when = h.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")
			}
			title := h.Title
			if title == "" {
				title = "Untitled"
			}
			fmt.Fprintf(&b, "- %s – %s: [%s](%s)\n", when, h.Publisher, title, h.URL)
		}
	}
	return b.String()
}

func modeLabel(m analysis.Mode) string {
	switch m {
	case analysis.ModeValue:
		return "Value Analysis"
	case analysis.ModeNews:
		return "News"
	default:
		return "Technical Analysis"
	}
}

// displayName prefers the company name reported by the value unit.
func displayName(r analysis.Report) string {
	for _, res := range r.Results {
		if name, ok := res.Meta["name"].(string); ok && strings.TrimSpace(name) != "" {
			return name
		}
	}
	return r.Subject
}

func headlines(r analysis.Report) []market.Headline {
	for _, res := range r.Results {
		switch hs := res.Meta["headlines"].(type) {
		case []market.Headline:
			return hs
		case []any:
			// reports loaded back from JSON
			out := make([]market.Headline, 0, len(hs))
			for _, v := range hs {
				if m, ok := v.(map[string]any); ok {
					out = append(out, headlineFromMap(m))
				}
			}
			return out
		}
	}
	return nil
}

func headlineFromMap(m map[string]any) market.Headline {
	str := func(k string) string { s, _ := m[k].(string); return s }
	h := market.Headline{Title: str("title"), URL: str("url"), Publisher: str("publisher"), Description: str("description")}
	if ts := str("published_at"); ts != "" {
		h.PublishedAt, _ = time.Parse(time.RFC3339, ts)
	}
	return h
}
