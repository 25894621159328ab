package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/engine"
	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
	"github.com/mohammad-safakhou/tickerscope/internal/store"
)

type fakeAnalyzer struct {
	got engine.Request
	err error
}

func (f *fakeAnalyzer) Run(ctx context.Context, req engine.Request) (analysis.Report, error) {
	f.got = req
	if f.err != nil {
		return analysis.Report{}, f.err
	}
	return analysis.Report{
		ID:        "r1",
		Subject:   market.NormalizeSubject(req.Subject),
		Mode:      req.Mode,
		Results:   []analysis.TaskResult{{Indicator: "RSI", Signal: "Oversold"}},
		Sentiment: analysis.Bullish,
		Summary:   analysis.SummaryResult{Text: "ok", Method: analysis.SummaryFallback},
	}, nil
}

func newTestServer(t *testing.T, a Analyzer, reports ReportStore, secret string) *echo.Echo {
	t.Helper()
	return New(Deps{
		Analyzer:  a,
		Catalog:   indicator.Default(indicator.Deps{}),
		Reports:   reports,
		JWTSecret: secret,
	})
}

func do(e *echo.Echo, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t, &fakeAnalyzer{}, nil, "")
	if rec := do(e, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestListIndicators(t *testing.T) {
	e := newTestServer(t, &fakeAnalyzer{}, nil, "")
	rec := do(e, http.MethodGet, "/api/v1/indicators", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var resp IndicatorsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Indicators) != 7 {
		t.Fatalf("expected 7 cards, got %d", len(resp.Indicators))
	}
}

func TestCreateAnalysis(t *testing.T) {
	a := &fakeAnalyzer{}
	e := newTestServer(t, a, nil, "")
	rec := do(e, http.MethodPost, "/api/v1/analyses", `{"subject":"aapl","indicators":["RSI"],"period":"6mo","mode":"Value"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if a.got.Subject != "aapl" || a.got.Mode != analysis.ModeValue || a.got.Period != "6mo" || len(a.got.Indicators) != 1 {
		t.Fatalf("unexpected engine request %+v", a.got)
	}
	var r analysis.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Subject != "AAPL" || r.Sentiment != analysis.Bullish {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestCreateAnalysisErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"dataset", fmt.Errorf("%w: no price data", market.ErrDataset), `{"subject":"ZZZZ"}`, http.StatusUnprocessableEntity},
		{"invalid", fmt.Errorf("%w: subject is required", engine.ErrInvalidRequest), `{"subject":""}`, http.StatusBadRequest},
		{"mode", nil, `{"subject":"AAPL","mode":"astrology"}`, http.StatusBadRequest},
		{"body", nil, `{"subject":`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		e := newTestServer(t, &fakeAnalyzer{err: tc.err}, nil, "")
		rec := do(e, http.MethodPost, "/api/v1/analyses", tc.body, nil)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
		var he HTTPError
		if err := json.Unmarshal(rec.Body.Bytes(), &he); err != nil || he.Error == "" {
			t.Fatalf("%s: expected error envelope, got %q", tc.name, rec.Body.String())
		}
	}
}

func TestGetAnalysisFromStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	e := newTestServer(t, &fakeAnalyzer{}, &store.Store{DB: db}, "")

	const id = "6f1c2b1e-3d4a-4f5b-9c8d-7e6f5a4b3c2d"
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM reports WHERE id=$1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "period", "mode", "sentiment", "summary", "summary_method", "summary_model", "fallback_reason", "plan", "generated_at"}).
			AddRow(id, "AAPL", "1y", "technical", "Neutral", "text", "fallback", "", "no key", nil, at))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM report_results WHERE report_id=$1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"indicator", "signal", "details", "meta"}))
	rec := do(e, http.MethodGet, "/api/v1/analyses/"+id, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}

	const missing = "0b9e7c3a-1f2d-4e5c-8a7b-6d5c4b3a2f1e"
	mock.ExpectQuery("FROM reports").WithArgs(missing).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if rec := do(e, http.MethodGet, "/api/v1/analyses/"+missing, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}

	// malformed ids never reach the database
	if rec := do(e, http.MethodGet, "/api/v1/analyses/not-a-uuid", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for malformed id got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnalysesWithoutStore(t *testing.T) {
	e := newTestServer(t, &fakeAnalyzer{}, nil, "")
	if rec := do(e, http.MethodGet, "/api/v1/analyses/r1", "", nil); rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 got %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := "s3cret"
	e := newTestServer(t, &fakeAnalyzer{}, nil, secret)

	if rec := do(e, http.MethodGet, "/api/v1/indicators", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	bad, _ := SignToken("svc", []byte("other"), time.Minute)
	if rec := do(e, http.MethodGet, "/api/v1/indicators", "", map[string]string{"Authorization": "Bearer " + bad}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", rec.Code)
	}
	tok, err := SignToken("svc", []byte(secret), time.Minute)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if rec := do(e, http.MethodGet, "/api/v1/indicators", "", map[string]string{"Authorization": "Bearer " + tok}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	// health stays public
	if rec := do(e, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should not require auth, got %d", rec.Code)
	}
}
