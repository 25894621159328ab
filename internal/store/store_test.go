package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func sampleReport() analysis.Report {
	plan := analysis.Plan{Subject: "AAPL", Period: "1y", Mode: analysis.ModeTechnical, Items: []analysis.TaskSpec{{Name: "RSI"}}, Source: analysis.PlanFallback}
	return analysis.Report{
		ID:          "9b2f4c1e-7d7a-4a39-9a8e-2f0b6f1c9d11",
		Subject:     "AAPL",
		Period:      "1y",
		Mode:        analysis.ModeTechnical,
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Results: []analysis.TaskResult{
			{Indicator: "RSI", Signal: "Oversold", Details: "RSI(period=14) is 25.00; thresholds 30/70"},
			{Indicator: "MACD", Signal: "Bearish Crossover", Details: "MACD"},
		},
		Sentiment: analysis.Neutral,
		Summary:   analysis.SummaryResult{Text: "summary", Method: analysis.SummaryFallback, FallbackReason: "no key"},
		Plan:      &plan,
	}
}

func TestStartRun(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO runs (id, status, total_tasks, started_at)`)).
		WithArgs("run-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := st.StartRun(context.Background(), "run-1", 4); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertTask(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO run_tasks (run_id, idx, indicator, status, signal, details, params, duration_ms, updated_at)`)).
		WithArgs("run-1", 2, "RSI", TaskStatusCompleted, "Oversold", "d", []byte(`{"period":14}`), int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := st.UpsertTask(context.Background(), TaskRecord{
		RunID: "run-1", Index: 2, Indicator: "RSI", Status: TaskStatusCompleted,
		Signal: "Oversold", Details: "d", Params: analysis.Params{"period": 14}, DurationMs: 12,
	})
	if err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	if err := st.UpsertTask(context.Background(), TaskRecord{}); err == nil {
		t.Fatalf("expected missing run id to be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReport(t *testing.T) {
	st, mock := newMock(t)
	r := sampleReport()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO reports (id, subject, period, mode, sentiment, summary, summary_method, summary_model, fallback_reason, plan, generated_at)`)).
		WithArgs(r.ID, "AAPL", "1y", "technical", "Neutral", "summary", "fallback", "", "no key", sqlmock.AnyArg(), r.GeneratedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM report_results WHERE report_id=$1`)).
		WithArgs(r.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i, res := range r.Results {
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO report_results (report_id, idx, indicator, signal, details, meta)`)).
			WithArgs(r.ID, i, res.Indicator, res.Signal, res.Details, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE runs SET status='completed', finished_at=NOW() WHERE id=$1`)).
		WithArgs(r.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := st.SaveReport(context.Background(), r); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveReportRollsBackOnFailure(t *testing.T) {
	st, mock := newMock(t)
	r := sampleReport()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO reports").WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()
	if err := st.SaveReport(context.Background(), r); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReport(t *testing.T) {
	st, mock := newMock(t)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reports WHERE id=$1`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "period", "mode", "sentiment", "summary", "summary_method", "summary_model", "fallback_reason", "plan", "generated_at"}).
			AddRow("r1", "AAPL", "1y", "technical", "Bullish", "text", "external", "gpt-4-turbo", "", []byte(`{"subject":"AAPL","items":[{"name":"RSI","params":{}}],"source":"external"}`), at))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM report_results WHERE report_id=$1 ORDER BY idx`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"indicator", "signal", "details", "meta"}).
			AddRow("RSI", "Oversold", "d1", []byte(`{"value":25}`)).
			AddRow("MACD", "Bullish Crossover", "d2", nil))

	r, ok, err := st.GetReport(context.Background(), "r1")
	if err != nil || !ok {
		t.Fatalf("GetReport: ok=%v err=%v", ok, err)
	}
	if r.Sentiment != analysis.Bullish || r.Summary.Method != analysis.SummaryExternal || r.Plan == nil || r.Plan.Source != analysis.PlanExternal {
		t.Fatalf("unexpected report %+v", r)
	}
	if len(r.Results) != 2 || r.Results[0].Meta["value"] != 25.0 {
		t.Fatalf("unexpected results %+v", r.Results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetReportNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("FROM reports").WithArgs("missing").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, ok, err := st.GetReport(context.Background(), "missing")
	if err != nil || ok {
		t.Fatalf("expected not found, got ok=%v err=%v", ok, err)
	}
}

func TestListReports(t *testing.T) {
	st, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reports WHERE ($1 = '' OR subject = $1)`)).
		WithArgs("AAPL", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "period", "mode", "sentiment", "generated_at"}).
			AddRow("r1", "AAPL", "1y", "value", "Neutral", at))
	rows, err := st.ListReports(context.Background(), "AAPL", 0)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(rows) != 1 || rows[0].Mode != analysis.ModeValue {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	if err := Migrate("", "", "up", 0); err == nil {
		t.Fatalf("expected error without dsn")
	}
}
