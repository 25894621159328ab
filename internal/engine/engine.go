package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
	"github.com/mohammad-safakhou/tickerscope/internal/planner"
	"github.com/mohammad-safakhou/tickerscope/internal/summarizer"
)

// DefaultDeadline bounds a whole run when no deadline is configured.
const DefaultDeadline = 2 * time.Minute

// ErrInvalidRequest rejects a run before any work starts.
var ErrInvalidRequest = errors.New("invalid analysis request")

// Runner dispatches planned tasks and returns one result per item in order.
type Runner interface {
	Run(ctx context.Context, runID string, ds *market.Dataset, items []analysis.TaskSpec, maxWorkers int) []analysis.TaskResult
}

// Sink receives every finished report. Sink errors are logged, never fatal.
type Sink interface {
	SaveReport(ctx context.Context, r analysis.Report) error
}

// Request describes one orchestration run.
type Request struct {
	Subject    string
	Indicators []string
	Period     string
	Mode       analysis.Mode
	// NoSave skips all sinks.
	NoSave bool
}

// Engine runs fetch, plan, dispatch, aggregate and summarize for a subject.
type Engine struct {
	provider      market.Provider
	planner       planner.Planner
	runner        Runner
	summarizer    summarizer.Summarizer
	sinks         []Sink
	deadline      time.Duration
	defaultPeriod string
	logger        *zap.Logger
	now           func() time.Time
	onRun         func(ctx context.Context, r analysis.Report)
	tracer        trace.Tracer
}

type Option func(*Engine)

func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithDeadline bounds the overall run, including planning and summarizing.
func WithDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.deadline = d
		}
	}
}

func WithDefaultPeriod(p string) Option {
	return func(e *Engine) {
		if p != "" {
			e.defaultPeriod = p
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRunHook is called once per completed run, after the sinks.
func WithRunHook(fn func(ctx context.Context, r analysis.Report)) Option {
	return func(e *Engine) { e.onRun = fn }
}

func New(provider market.Provider, p planner.Planner, runner Runner, s summarizer.Summarizer, opts ...Option) *Engine {
	e := &Engine{
		provider:      provider,
		planner:       p,
		runner:        runner,
		summarizer:    s,
		deadline:      DefaultDeadline,
		defaultPeriod: "1y",
		logger:        zap.NewNop(),
		now:           time.Now,
		tracer:        otel.Tracer("tickerscope/internal/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes one analysis. The only error after validation is a dataset
// failure wrapping market.ErrDataset; task, planning and summary failures are
// absorbed into the report.
func (e *Engine) Run(ctx context.Context, req Request) (analysis.Report, error) {
	subject := market.NormalizeSubject(req.Subject)
	if subject == "" {
		return analysis.Report{}, fmt.Errorf("%w: subject is required", ErrInvalidRequest)
	}
	period := strings.ToLower(strings.TrimSpace(req.Period))
	if period == "" {
		period = e.defaultPeriod
	}
	if !market.ValidPeriod(period) {
		return analysis.Report{}, fmt.Errorf("%w: unknown period %q", ErrInvalidRequest, req.Period)
	}
	mode := req.Mode
	if mode == "" {
		mode = analysis.ModeTechnical
	}

	ctx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("subject", subject),
		attribute.String("mode", string(mode)),
	))
	defer span.End()
	logger := e.logger.With(zap.String("run_id", runID), zap.String("subject", subject))

	ds, err := e.fetch(ctx, subject, period)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dataset")
		logger.Error("dataset unavailable", zap.Error(err))
		return analysis.Report{}, err
	}
	logger.Info("dataset loaded", zap.String("source", ds.Source()), zap.Int("bars", ds.Len()))

	plan := e.planner.Plan(ctx, planner.Request{
		Subject:   subject,
		Requested: req.Indicators,
		Period:    period,
		Mode:      mode,
	})
	logger.Info("plan ready", zap.Strings("items", plan.Names()), zap.String("source", string(plan.Source)))

	results := e.runner.Run(ctx, runID, ds, plan.Items, plan.MaxWorkers)
	sentiment := analysis.Aggregate(results)

	summary := e.summarizer.Summarize(ctx, summarizer.Input{
		Subject:   subject,
		Mode:      mode,
		Results:   results,
		Plan:      &plan,
		Sentiment: sentiment,
	})

	report := analysis.NewReport(plan, results, summary, e.now())
	report.ID = runID
	span.SetAttributes(
		attribute.String("sentiment", string(report.Sentiment)),
		attribute.String("summary_method", string(summary.Method)),
	)

	if !req.NoSave {
		// sinks get their own budget so a run that used its whole deadline can still be saved
		sinkCtx, sinkCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		for _, s := range e.sinks {
			if err := s.SaveReport(sinkCtx, report); err != nil {
				logger.Warn("report sink failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
			}
		}
		sinkCancel()
	}
	if e.onRun != nil {
		e.onRun(ctx, report)
	}
	logger.Info("run complete",
		zap.String("sentiment", string(report.Sentiment)),
		zap.String("summary_method", string(summary.Method)),
		zap.Int("results", len(results)))
	return report, nil
}

func (e *Engine) fetch(ctx context.Context, subject, period string) (*market.Dataset, error) {
	ds, err := e.provider.Fetch(ctx, subject, period)
	if err != nil {
		if errors.Is(err, market.ErrDataset) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", market.ErrDataset, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
