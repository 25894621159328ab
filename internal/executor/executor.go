package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
)

const (
	DefaultMaxWorkers  = 5
	DefaultTaskTimeout = 30 * time.Second
)

var (
	// ErrPanic wraps a value recovered from a panicking unit.
	ErrPanic = errors.New("indicator panicked")
	// ErrTaskTimeout marks a task that exceeded its own deadline.
	ErrTaskTimeout = errors.New("timed out")
)

// Outcome labels recorded for every task.
const (
	OutcomeOK         = "ok"
	OutcomeError      = "error"
	OutcomePanic      = "panic"
	OutcomeTimeout    = "timeout"
	OutcomeCanceled   = "canceled"
	OutcomeUnresolved = "unresolved"
)

// Resolver maps an indicator name to its computation unit.
type Resolver interface {
	Resolve(name string) (analysis.Unit, error)
}

// ParamNormalizer is implemented by resolvers that know each unit's typed
// parameters. When the resolver provides it, results record the filled-in
// params the unit ran with instead of the raw item params.
type ParamNormalizer interface {
	NormalizeParams(name string, params analysis.Params) (analysis.Params, error)
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	Duration func(ctx context.Context, indicator string, d time.Duration)
	Outcome  func(ctx context.Context, indicator, outcome string)
}

// Executor dispatches plan items over a bounded worker pool. Every item
// yields exactly one result; failures never abort sibling tasks.
type Executor struct {
	resolver    Resolver
	taskTimeout time.Duration
	maxWorkers  int
	journal     Journal
	metrics     Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithTaskTimeout bounds each task individually.
func WithTaskTimeout(d time.Duration) Option {
	return func(ex *Executor) {
		if d > 0 {
			ex.taskTimeout = d
		}
	}
}

// WithMaxWorkers sets the pool size used when a run does not request one.
func WithMaxWorkers(n int) Option {
	return func(ex *Executor) {
		if n > 0 {
			ex.maxWorkers = n
		}
	}
}

// WithJournal sets the progress recorder.
func WithJournal(j Journal) Option {
	return func(ex *Executor) {
		if j != nil {
			ex.journal = j
		}
	}
}

// WithMetrics sets executor metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) {
		ex.metrics = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(ex *Executor) {
		if l != nil {
			ex.logger = l
		}
	}
}

// New creates a new Executor instance.
func New(resolver Resolver, opts ...Option) *Executor {
	ex := &Executor{
		resolver:    resolver,
		taskTimeout: DefaultTaskTimeout,
		maxWorkers:  DefaultMaxWorkers,
		journal:     NoopJournal{},
		logger:      zap.NewNop(),
		tracer:      otel.Tracer("tickerscope/internal/executor"),
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Run executes items against ds and returns one result per item, in item
// order. maxWorkers <= 0 selects the executor default.
func (e *Executor) Run(ctx context.Context, runID string, ds *market.Dataset, items []analysis.TaskSpec, maxWorkers int) []analysis.TaskResult {
	results := make([]analysis.TaskResult, len(items))
	if len(items) == 0 {
		return results
	}
	n := maxWorkers
	if n <= 0 {
		n = e.maxWorkers
	}
	if n > len(items) {
		n = len(items)
	}
	if err := e.journal.StartRun(ctx, runID, items); err != nil {
		e.logger.Warn("journal start failed", zap.String("run_id", runID), zap.Error(err))
	}

	var g errgroup.Group
	g.SetLimit(n)
	for i, item := range items {
		g.Go(func() error {
			results[i] = e.runTask(ctx, runID, ds, i, item)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) runTask(ctx context.Context, runID string, ds *market.Dataset, index int, item analysis.TaskSpec) analysis.TaskResult {
	params := item.Params.Clone()
	if params == nil {
		params = analysis.Params{}
	}
	// invalid or unknown params are left as given; the unit or the resolver reports them
	if n, ok := e.resolver.(ParamNormalizer); ok {
		if norm, err := n.NormalizeParams(item.Name, params); err == nil {
			params = norm
		}
	}
	ctx, span := e.tracer.Start(ctx, "executor.task", trace.WithAttributes(
		attribute.String("indicator", item.Name),
		attribute.Int("index", index),
	))
	defer span.End()

	if err := e.journal.TaskStarted(ctx, runID, index, item); err != nil {
		e.logger.Warn("journal task start failed", zap.String("run_id", runID), zap.Int("index", index), zap.Error(err))
	}
	start := time.Now()
	res, outcome := e.execute(ctx, ds, item.Name, params)
	elapsed := time.Since(start)

	if res.Indicator == "" {
		res.Indicator = item.Name
	}
	if res.Meta == nil {
		res.Meta = map[string]any{}
	}
	res.Meta["params"] = params

	span.SetAttributes(attribute.String("signal", res.Signal), attribute.String("outcome", outcome))
	if res.IsError() {
		span.SetStatus(codes.Error, res.Details)
		e.logger.Warn("task failed",
			zap.String("run_id", runID),
			zap.String("indicator", item.Name),
			zap.String("outcome", outcome),
			zap.String("details", res.Details))
	} else {
		e.logger.Debug("task completed",
			zap.String("run_id", runID),
			zap.String("indicator", res.Indicator),
			zap.String("signal", res.Signal),
			zap.Duration("elapsed", elapsed))
	}
	if e.metrics.Duration != nil {
		e.metrics.Duration(ctx, item.Name, elapsed)
	}
	if e.metrics.Outcome != nil {
		e.metrics.Outcome(ctx, item.Name, outcome)
	}
	if err := e.journal.TaskFinished(ctx, runID, index, res, elapsed); err != nil {
		e.logger.Warn("journal task finish failed", zap.String("run_id", runID), zap.Int("index", index), zap.Error(err))
	}
	return res
}

type computed struct {
	res analysis.TaskResult
	err error
}

// execute runs the unit in its own goroutine so a unit that ignores its
// context is reported as timed out without holding the pool slot.
func (e *Executor) execute(ctx context.Context, ds *market.Dataset, name string, params analysis.Params) (analysis.TaskResult, string) {
	if err := ctx.Err(); err != nil {
		return analysis.ErrorResult(name, params, fmt.Errorf("canceled: %w", err)), OutcomeCanceled
	}
	if e.resolver == nil {
		return analysis.ErrorResult(name, params, errors.New("no resolver configured")), OutcomeUnresolved
	}
	unit, err := e.resolver.Resolve(name)
	if err != nil {
		return analysis.ErrorResult(name, params, err), OutcomeUnresolved
	}

	tctx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()
	done := make(chan computed, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- computed{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		res, err := unit.Compute(tctx, ds, params.Clone())
		done <- computed{res: res, err: err}
	}()

	select {
	case c := <-done:
		switch {
		case c.err == nil:
			return c.res, OutcomeOK
		case errors.Is(c.err, ErrPanic):
			return analysis.ErrorResult(name, params, c.err), OutcomePanic
		case tctx.Err() != nil:
			// the unit gave up because its context ended
			return e.expired(ctx, name, params)
		}
		return analysis.ErrorResult(name, params, c.err), OutcomeError
	case <-tctx.Done():
		return e.expired(ctx, name, params)
	}
}

func (e *Executor) expired(parent context.Context, name string, params analysis.Params) (analysis.TaskResult, string) {
	if err := parent.Err(); err != nil {
		return analysis.ErrorResult(name, params, fmt.Errorf("canceled: %w", err)), OutcomeCanceled
	}
	return analysis.ErrorResult(name, params, fmt.Errorf("%w after %s", ErrTaskTimeout, e.taskTimeout)), OutcomeTimeout
}
