package indicator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/llm"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

// HeadlineSource returns recent headlines for a subject.
type HeadlineSource interface {
	Headlines(ctx context.Context, subject string, since time.Time, limit int) ([]market.Headline, error)
}

var (
	positiveKeywords = []string{"beats", "upgrade", "record", "surge", "growth", "strong", "outperform"}
	negativeKeywords = []string{"miss", "downgrade", "probe", "lawsuit", "recall", "fall", "weak", "cut"}

	impactRe = regexp.MustCompile(`(?i)\b(positive|negative|neutral)\b`)
)

const noNews = "No recent news available or network restricted."

// News assesses the likely near-term impact of recent headlines. The LLM
// assessment is preferred; keyword scoring is used when it is unavailable.
type News struct {
	Source HeadlineSource
	LLM    llm.Client
	Model  string
	Now    func() time.Time
	Logger *zap.Logger
}

func (n *News) Compute(ctx context.Context, ds *market.Dataset, params analysis.Params) (analysis.TaskResult, error) {
	cfg, err := newsParams.Decode(params)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	ticker := cfg.Ticker
	if ticker == "" && ds != nil {
		ticker = ds.Subject()
	}
	neutral := analysis.TaskResult{Indicator: "News", Signal: "Neutral", Details: noNews}
	if n.Source == nil || ticker == "" {
		return neutral, nil
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	since := now().AddDate(0, 0, -cfg.Days)
	headlines, err := n.Source.Headlines(ctx, ticker, since, cfg.TopN)
	if err != nil {
		if n.Logger != nil {
			n.Logger.Warn("headline fetch failed", zap.String("ticker", ticker), zap.Error(err))
		}
		return neutral, nil
	}
	if len(headlines) > cfg.TopN {
		headlines = headlines[:cfg.TopN]
	}
	if len(headlines) == 0 {
		return neutral, nil
	}
	meta := map[string]any{"headlines": headlines}

	if n.LLM != nil {
		out := n.LLM.Complete(ctx, llm.Request{
			System:      "You write concise, investor-friendly analyses.",
			Prompt:      impactPrompt(headlines),
			Model:       n.Model,
			Temperature: 0.2,
		})
		if out.OK() {
			signal := "Neutral"
			if m := impactRe.FindStringSubmatch(out.Text()); m != nil {
				signal = strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
			}
			meta["method"] = "llm"
			meta["model"] = out.Model()
			return analysis.TaskResult{Indicator: "News", Signal: signal, Details: strings.TrimSpace(out.Text()), Meta: meta}, nil
		}
		if n.Logger != nil {
			n.Logger.Debug("news impact assessment unavailable", zap.Error(out.Reason()))
		}
	}

	pos, neg, err := keywordScore(headlines)
	if err != nil {
		return analysis.TaskResult{}, err
	}
	signal := "Neutral"
	switch {
	case pos > neg:
		signal = "Positive"
	case neg > pos:
		signal = "Negative"
	}
	meta["method"] = "keywords"
	meta["positive"] = pos
	meta["negative"] = neg
	var b strings.Builder
	b.WriteString("Headlines:")
	for _, h := range headlines {
		b.WriteString("\n- ")
		b.WriteString(h.Title)
	}
	return analysis.TaskResult{Indicator: "News", Signal: signal, Details: b.String(), Meta: meta}, nil
}

func impactPrompt(headlines []market.Headline) string {
	var b strings.Builder
	b.WriteString("You are a financial news analyst. Given these recent headlines for the stock, ")
	b.WriteString("summarize the key themes in 3-5 bullet points, then assess the likely near-term impact ")
	b.WriteString("on the stock as Positive, Negative, or Neutral and explain why.\n\n")
	for _, h := range headlines {
		b.WriteString("- ")
		b.WriteString(h.Title)
		b.WriteString("\n")
	}
	return b.String()
}

type headlineDoc struct {
	Title string `json:"title"`
}

// keywordScore counts how many positive and negative keywords appear in any
// headline title.
func keywordScore(headlines []market.Headline) (pos, neg int, err error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return 0, 0, fmt.Errorf("headline index: %w", err)
	}
	defer index.Close()
	for i, h := range headlines {
		if err := index.Index(strconv.Itoa(i), headlineDoc{Title: h.Title}); err != nil {
			return 0, 0, fmt.Errorf("index headline: %w", err)
		}
	}
	count := func(words []string) (int, error) {
		hits := 0
		for _, w := range words {
			q := bleve.NewPrefixQuery(w)
			q.SetField("title")
			res, err := index.Search(bleve.NewSearchRequestOptions(q, 1, 0, false))
			if err != nil {
				return 0, err
			}
			if res.Total > 0 {
				hits++
			}
		}
		return hits, nil
	}
	if pos, err = count(positiveKeywords); err != nil {
		return 0, 0, err
	}
	if neg, err = count(negativeKeywords); err != nil {
		return 0, 0, err
	}
	return pos, neg, nil
}
