package executor

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

// Journal records run progress. Errors are logged by the executor and never
// change task results.
type Journal interface {
	StartRun(ctx context.Context, runID string, items []analysis.TaskSpec) error
	TaskStarted(ctx context.Context, runID string, index int, item analysis.TaskSpec) error
	TaskFinished(ctx context.Context, runID string, index int, res analysis.TaskResult, elapsed time.Duration) error
}

// NoopJournal records nothing.
type NoopJournal struct{}

func (NoopJournal) StartRun(ctx context.Context, runID string, items []analysis.TaskSpec) error {
	return nil
}
func (NoopJournal) TaskStarted(ctx context.Context, runID string, index int, item analysis.TaskSpec) error {
	return nil
}
func (NoopJournal) TaskFinished(ctx context.Context, runID string, index int, res analysis.TaskResult, elapsed time.Duration) error {
	return nil
}
