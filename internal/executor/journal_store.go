package executor

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/store"
)

type journalStore interface {
	StartRun(ctx context.Context, runID string, total int) error
	UpsertTask(ctx context.Context, rec store.TaskRecord) error
}

// StoreJournal persists task progress rows using the shared store.
type StoreJournal struct {
	store journalStore
}

// NewStoreJournal constructs a Journal backed by store.Store.
func NewStoreJournal(st journalStore) *StoreJournal {
	return &StoreJournal{store: st}
}

func (j *StoreJournal) StartRun(ctx context.Context, runID string, items []analysis.TaskSpec) error {
	if j.store == nil {
		return nil
	}
	return j.store.StartRun(ctx, runID, len(items))
}

func (j *StoreJournal) TaskStarted(ctx context.Context, runID string, index int, item analysis.TaskSpec) error {
	if j.store == nil {
		return nil
	}
	return j.store.UpsertTask(ctx, store.TaskRecord{
		RunID:     runID,
		Index:     index,
		Indicator: item.Name,
		Status:    store.TaskStatusRunning,
		Params:    item.Params,
	})
}

func (j *StoreJournal) TaskFinished(ctx context.Context, runID string, index int, res analysis.TaskResult, elapsed time.Duration) error {
	if j.store == nil {
		return nil
	}
	status := store.TaskStatusCompleted
	if res.IsError() {
		status = store.TaskStatusFailed
	}
	params, _ := res.Meta["params"].(analysis.Params)
	return j.store.UpsertTask(ctx, store.TaskRecord{
		RunID:      runID,
		Index:      index,
		Indicator:  res.Indicator,
		Status:     status,
		Signal:     res.Signal,
		Details:    res.Details,
		Params:     params,
		DurationMs: elapsed.Milliseconds(),
	})
}

var _ Journal = (*StoreJournal)(nil)
