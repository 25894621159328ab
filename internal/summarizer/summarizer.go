package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/llm"
)

// ErrEmptySummary is recorded when the service answers with blank text.
var ErrEmptySummary = errors.New("summary service returned empty text")

// Input is everything the narrative is written from.
type Input struct {
	Subject   string
	Mode      analysis.Mode
	Results   []analysis.TaskResult
	Plan      *analysis.Plan
	Sentiment analysis.Sentiment
}

// Summarizer writes the run narrative. It never fails.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) analysis.SummaryResult
}

type Service struct {
	client     llm.Client
	model      string
	logger     *zap.Logger
	onFallback func(reason error)
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithModel selects the routing key used for summary requests.
func WithModel(model string) Option { return func(s *Service) { s.model = model } }

// WithFallbackHook is called with the reason whenever the local summary is used.
func WithFallbackHook(fn func(reason error)) Option {
	return func(s *Service) { s.onFallback = fn }
}

func New(client llm.Client, opts ...Option) *Service {
	s := &Service{client: client, model: "summary", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Summarize(ctx context.Context, in Input) analysis.SummaryResult {
	if s.client == nil {
		return s.fallback(in, llm.ErrNoCredentials)
	}
	system, prompt := promptFor(in)
	out := s.client.Complete(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Model:       s.model,
		Temperature: 0.2,
	})
	if !out.OK() {
		return s.fallback(in, out.Reason())
	}
	text := strings.TrimSpace(out.Text())
	if text == "" {
		return s.fallback(in, ErrEmptySummary)
	}
	return analysis.SummaryResult{Text: text, Method: analysis.SummaryExternal, Model: out.Model()}
}

func (s *Service) fallback(in Input, reason error) analysis.SummaryResult {
	s.logger.Info("using fallback summary", zap.String("subject", in.Subject), zap.Error(reason))
	if s.onFallback != nil {
		s.onFallback(reason)
	}
	return Fallback(in, reason)
}

// Fallback renders the local templated summary. The text is never empty.
func Fallback(in Input, reason error) analysis.SummaryResult {
	mode := in.Mode
	if mode == "" {
		mode = analysis.ModeTechnical
	}
	sentiment := in.Sentiment
	if sentiment == "" {
		sentiment = analysis.Aggregate(in.Results)
	}
	why := "summary service unavailable"
	if reason != nil {
		why = reason.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s summary for %s:\n", mode.Title(), in.Subject)
	if in.Plan != nil {
		fmt.Fprintf(&b, "Planned indicators: %s\n", strings.Join(in.Plan.Names(), ", "))
		if in.Plan.Rationale != "" {
			fmt.Fprintf(&b, "Rationale: %s\n", in.Plan.Rationale)
		}
	}
	for _, r := range in.Results {
		fmt.Fprintf(&b, "- %s: %s. %s\n", r.Indicator, r.Signal, r.Details)
	}
	fmt.Fprintf(&b, "Overall signal: %s\n", sentiment)
	fmt.Fprintf(&b, "\n(Note: Used local fallback summary: %s)", why)
	return analysis.SummaryResult{Text: b.String(), Method: analysis.SummaryFallback, FallbackReason: why}
}

type promptResult struct {
	Indicator string `json:"indicator"`
	Signal    string `json:"signal"`
	Details   string `json:"details"`
}

func promptFor(in Input) (system, prompt string) {
	rows := make([]promptResult, len(in.Results))
	for i, r := range in.Results {
		rows[i] = promptResult{Indicator: r.Indicator, Signal: r.Signal, Details: r.Details}
	}
	payload, _ := json.Marshal(rows)

	var b strings.Builder
	switch in.Mode {
	case analysis.ModeValue:
		system = "You are a value-focused equity analyst."
		fmt.Fprintf(&b, "You are a financial analyst specializing in value investing. Given the following fundamental metrics for %s, ", in.Subject)
		b.WriteString("write a concise Markdown summary of valuation and whether it appears attractive. ")
		b.WriteString("Be balanced and note caveats when data is missing.\n\n")
	case analysis.ModeNews:
		system = "You write concise, investor-friendly analyses."
		fmt.Fprintf(&b, "You are a financial news analyst. Summarize the news assessment for %s, ", in.Subject)
		b.WriteString("the key themes and the likely near-term impact on the stock.\n\n")
	default:
		system = "You are a financial analyst specializing in technical analysis."
		fmt.Fprintf(&b, "Summarize the following technical analysis results for %s into a coherent report. ", in.Subject)
		b.WriteString("Provide a clear and concise view of the stock's technical outlook. ")
		b.WriteString("Indicators whose signal is Error failed to compute; mention them briefly.\n\n")
	}
	if in.Plan != nil {
		if in.Plan.Rationale != "" {
			fmt.Fprintf(&b, "Plan rationale: %s\n", in.Plan.Rationale)
		}
		if in.Plan.Strategy != "" {
			fmt.Fprintf(&b, "Plan strategy: %s\n", in.Plan.Strategy)
		}
	}
	if in.Sentiment != "" {
		fmt.Fprintf(&b, "Aggregate signal: %s\n", in.Sentiment)
	}
	fmt.Fprintf(&b, "Results (JSON):\n%s\n", payload)
	return system, b.String()
}
