package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/engine"
	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
	"github.com/mohammad-safakhou/tickerscope/internal/store"
)

// Analyzer runs one analysis.
type Analyzer interface {
	Run(ctx context.Context, req engine.Request) (analysis.Report, error)
}

// Catalog lists registered indicators.
type Catalog interface {
	Cards() []indicator.Card
}

// ReportStore reads persisted reports.
type ReportStore interface {
	GetReport(ctx context.Context, id string) (analysis.Report, bool, error)
	ListReports(ctx context.Context, subject string, limit int) ([]store.ReportRow, error)
}

// Deps are the collaborators behind the HTTP API. Reports and Metrics are
// optional; an empty JWTSecret leaves the API unauthenticated.
type Deps struct {
	Analyzer  Analyzer
	Catalog   Catalog
	Reports   ReportStore
	Metrics   http.Handler
	JWTSecret string
	Logger    *zap.Logger
}

// New builds the echo application.
func New(deps Deps) *echo.Echo {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Warn("http error",
			zap.Int("status", code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.Error(err))
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	h := &handler{deps: deps, logger: logger}
	api := e.Group("/api/v1")
	if deps.JWTSecret != "" {
		api.Use(AuthMiddleware([]byte(deps.JWTSecret)))
	}
	api.GET("/indicators", h.listIndicators)
	api.POST("/analyses", h.createAnalysis)
	api.GET("/analyses", h.listAnalyses)
	api.GET("/analyses/:id", h.getAnalysis)
	return e
}

// Run serves e on addr until ctx is canceled.
func Run(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

type handler struct {
	deps   Deps
	logger *zap.Logger
}

func (h *handler) listIndicators(c echo.Context) error {
	return c.JSON(http.StatusOK, IndicatorsResponse{Indicators: h.deps.Catalog.Cards()})
}

// createAnalysis runs an analysis synchronously and returns the report.
// Dataset failures map to 422; everything else that completes is a 201.
func (h *handler) createAnalysis(c echo.Context) error {
	var req AnalysisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	mode, err := analysis.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.deps.Analyzer.Run(c.Request().Context(), engine.Request{
		Subject:    req.Subject,
		Indicators: req.Indicators,
		Period:     req.Period,
		Mode:       mode,
		NoSave:     req.NoSave,
	})
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, market.ErrDataset):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *handler) getAnalysis(c echo.Context) error {
	if h.deps.Reports == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report storage not configured")
	}
	// ids are uuids; anything else cannot name a stored report
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	r, ok, err := h.deps.Reports.GetReport(c.Request().Context(), id.String())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "report not found")
	}
	return c.JSON(http.StatusOK, r)
}

func (h *handler) listAnalyses(c echo.Context) error {
	if h.deps.Reports == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "report storage not configured")
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &limit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
		}
	}
	rows, err := h.deps.Reports.ListReports(c.Request().Context(), market.NormalizeSubject(c.QueryParam("subject")), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if rows == nil {
		rows = []store.ReportRow{}
	}
	return c.JSON(http.StatusOK, rows)
}
