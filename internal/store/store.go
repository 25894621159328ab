package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

type Store struct {
	DB *sql.DB
}

// Task statuses persisted by the run journal.
const (
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// TaskRecord is one journalled task of a run.
type TaskRecord struct {
	RunID      string
	Index      int
	Indicator  string
	Status     string
	Signal     string
	Details    string
	Params     analysis.Params
	DurationMs int64
	UpdatedAt  time.Time
}

// ReportRow is the listing view of a stored report.
type ReportRow struct {
	ID          string             `json:"id"`
	Subject     string             `json:"subject"`
	Period      string             `json:"period"`
	Mode        analysis.Mode      `json:"mode"`
	Sentiment   analysis.Sentiment `json:"sentiment"`
	GeneratedAt time.Time          `json:"generated_at"`
}

var (
	metricsOnce    sync.Once
	reportsCounter otelmetric.Int64Counter
	metricsInitErr error
)

func initStoreMetrics() {
	meter := otel.Meter("store")
	reportsCounter, metricsInitErr = meter.Int64Counter("tickerscope_reports_saved_total")
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// StartRun records a run and its task count.
func (s *Store) StartRun(ctx context.Context, runID string, total int) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO runs (id, status, total_tasks, started_at)
VALUES ($1,'running',$2,NOW())
ON CONFLICT (id) DO UPDATE SET
  status      = 'running',
  total_tasks = EXCLUDED.total_tasks,
  started_at  = NOW();
`, runID, total)
	return err
}

// UpsertTask writes the latest state of one task.
func (s *Store) UpsertTask(ctx context.Context, rec TaskRecord) error {
	if rec.RunID == "" {
		return fmt.Errorf("run_id is required")
	}
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("marshal task params: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO run_tasks (run_id, idx, indicator, status, signal, details, params, duration_ms, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (run_id, idx) DO UPDATE SET
  indicator   = EXCLUDED.indicator,
  status      = EXCLUDED.status,
  signal      = EXCLUDED.signal,
  details     = EXCLUDED.details,
  params      = EXCLUDED.params,
  duration_ms = EXCLUDED.duration_ms,
  updated_at  = NOW();
`, rec.RunID, rec.Index, rec.Indicator, rec.Status, rec.Signal, rec.Details, params, rec.DurationMs)
	return err
}

// ListTasks returns the journalled tasks of a run in plan order.
func (s *Store) ListTasks(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id::text, idx, indicator, status, signal, details, params, duration_ms, updated_at
FROM run_tasks WHERE run_id=$1 ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaskRecord
	for rows.Next() {
		var (
			rec    TaskRecord
			params []byte
		)
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Indicator, &rec.Status, &rec.Signal, &rec.Details, &params, &rec.DurationMs, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			_ = json.Unmarshal(params, &rec.Params)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveReport upserts a report, replaces its per-task results and marks the
// matching run completed.
func (s *Store) SaveReport(ctx context.Context, r analysis.Report) error {
	metricsOnce.Do(initStoreMetrics)
	var planJSON []byte
	if r.Plan != nil {
		b, err := json.Marshal(r.Plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		planJSON = b
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO reports (id, subject, period, mode, sentiment, summary, summary_method, summary_model, fallback_reason, plan, generated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  sentiment       = EXCLUDED.sentiment,
  summary         = EXCLUDED.summary,
  summary_method  = EXCLUDED.summary_method,
  summary_model   = EXCLUDED.summary_model,
  fallback_reason = EXCLUDED.fallback_reason,
  plan            = EXCLUDED.plan;
`, r.ID, r.Subject, r.Period, string(r.Mode), string(r.Sentiment), r.Summary.Text, string(r.Summary.Method),
		r.Summary.Model, r.Summary.FallbackReason, planJSON, r.GeneratedAt); err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_results WHERE report_id=$1`, r.ID); err != nil {
		return fmt.Errorf("clear report results: %w", err)
	}
	for i, res := range r.Results {
		meta, err := json.Marshal(res.Meta)
		if err != nil {
			return fmt.Errorf("marshal result meta: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO report_results (report_id, idx, indicator, signal, details, meta)
VALUES ($1,$2,$3,$4,$5,$6)`, r.ID, i, res.Indicator, res.Signal, res.Details, meta); err != nil {
			return fmt.Errorf("insert report result %d: %w", i, err)
		}
	}
	// a journalled run with the same id is now complete
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status='completed', finished_at=NOW() WHERE id=$1`, r.ID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if metricsInitErr == nil && reportsCounter != nil {
		reportsCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("mode", string(r.Mode))))
	}
	return nil
}

// GetReport loads a report with its results. The bool indicates whether a
// record was found.
func (s *Store) GetReport(ctx context.Context, id string) (analysis.Report, bool, error) {
	var (
		r        analysis.Report
		mode     string
		senti    string
		method   string
		planJSON []byte
	)
	row := s.DB.QueryRowContext(ctx, `
SELECT id::text, subject, period, mode, sentiment, summary, summary_method, summary_model, fallback_reason, plan, generated_at
FROM reports WHERE id=$1`, id)
	if err := row.Scan(&r.ID, &r.Subject, &r.Period, &mode, &senti, &r.Summary.Text, &method,
		&r.Summary.Model, &r.Summary.FallbackReason, &planJSON, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return analysis.Report{}, false, nil
		}
		return analysis.Report{}, false, err
	}
	r.Mode = analysis.Mode(mode)
	r.Sentiment = analysis.Sentiment(senti)
	r.Summary.Method = analysis.SummaryMethod(method)
	if len(planJSON) > 0 {
		var p analysis.Plan
		if err := json.Unmarshal(planJSON, &p); err == nil {
			r.Plan = &p
		}
	}

	rows, err := s.DB.QueryContext(ctx, `
SELECT indicator, signal, details, meta FROM report_results WHERE report_id=$1 ORDER BY idx`, id)
	if err != nil {
		return analysis.Report{}, false, err
	}
	defer rows.Close()
	r.Results = []analysis.TaskResult{}
	for rows.Next() {
		var (
			res  analysis.TaskResult
			meta []byte
		)
		if err := rows.Scan(&res.Indicator, &res.Signal, &res.Details, &meta); err != nil {
			return analysis.Report{}, false, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &res.Meta)
		}
		r.Results = append(r.Results, res)
	}
	if err := rows.Err(); err != nil {
		return analysis.Report{}, false, err
	}
	return r, true, nil
}

// ListReports returns the most recent reports, optionally for one subject.
func (s *Store) ListReports(ctx context.Context, subject string, limit int) ([]ReportRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, subject, period, mode, sentiment, generated_at
FROM reports WHERE ($1 = '' OR subject = $1)
ORDER BY generated_at DESC LIMIT $2`, subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportRow
	for rows.Next() {
		var (
			row         ReportRow
			mode, senti string
		)
		if err := rows.Scan(&row.ID, &row.Subject, &row.Period, &mode, &senti, &row.GeneratedAt); err != nil {
			return nil, err
		}
		row.Mode = analysis.Mode(mode)
		row.Sentiment = analysis.Sentiment(senti)
		out = append(out, row)
	}
	return out, rows.Err()
}
