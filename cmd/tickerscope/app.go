package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/config"
	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/engine"
	"github.com/mohammad-safakhou/tickerscope/internal/executor"
	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
	"github.com/mohammad-safakhou/tickerscope/internal/llm"
	"github.com/mohammad-safakhou/tickerscope/internal/logging"
	"github.com/mohammad-safakhou/tickerscope/internal/market"
	"github.com/mohammad-safakhou/tickerscope/internal/planner"
	"github.com/mohammad-safakhou/tickerscope/internal/report"
	"github.com/mohammad-safakhou/tickerscope/internal/store"
	"github.com/mohammad-safakhou/tickerscope/internal/summarizer"
	"github.com/mohammad-safakhou/tickerscope/internal/telemetry"
)

// app holds the wired process dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	tele     *telemetry.Telemetry
	registry *indicator.Registry
	engine   *engine.Engine
	store    *store.Store
	redis    *redis.Client
}

type bootOptions struct {
	serveMetrics bool
}

func bootstrap(ctx context.Context, cfgPath string, opts bootOptions) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.General.LogLevel, cfg.General.Debug)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	a.tele, err = telemetry.Setup(ctx, cfg.Telemetry, telemetry.Options{
		ServiceVersion: version,
		ServeMetrics:   opts.serveMetrics,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr(),
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.String("addr", cfg.Storage.Redis.Addr()), zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
		}
	}
	if cfg.Storage.Postgres.Enabled() && cfg.Analysis.SaveDatabase {
		pctx, cancel := context.WithTimeout(ctx, cfg.Storage.Postgres.Timeout)
		st, err := store.NewWithDSN(pctx, cfg.Storage.Postgres.DSN())
		cancel()
		if err != nil {
			logger.Warn("postgres unavailable, continuing without database sink", zap.Error(err))
		} else {
			a.store = st
		}
	}

	client := llm.FromConfig(cfg.LLM)
	httpClient := market.NewHTTPClient(cfg.Data.Timeout, cfg.Data.Retries, 500*time.Millisecond)
	a.registry = indicator.Default(indicator.Deps{
		Headlines: market.NewsAPI{
			APIKey:     cfg.Sources.NewsAPI.APIKey,
			Endpoint:   cfg.Sources.NewsAPI.Endpoint,
			MaxResults: cfg.Sources.NewsAPI.MaxResults,
			HTTP:       httpClient,
		},
		Fundamentals: market.YahooFundamentals{BaseURL: cfg.Sources.Fundamentals.BaseURL, HTTP: httpClient},
		LLM:          client,
		NewsModel:    cfg.LLM.Routing.News,
		Logger:       logger.Named("indicator"),
	})

	execOpts := []executor.Option{
		executor.WithMaxWorkers(cfg.Agents.MaxWorkers),
		executor.WithTaskTimeout(cfg.Agents.TaskTimeout),
		executor.WithMetrics(telemetry.ExecutorMetrics()),
		executor.WithLogger(logger.Named("executor")),
	}
	sinks := []engine.Sink{}
	if cfg.Analysis.SaveMarkdown {
		sinks = append(sinks, report.NewMarkdownSink(cfg.Analysis.ReportsDir, logger.Named("report")))
	}
	if a.store != nil {
		execOpts = append(execOpts, executor.WithJournal(executor.NewStoreJournal(a.store)))
		sinks = append(sinks, a.store)
	}

	a.engine = engine.New(
		a.provider(httpClient),
		planner.New(client, a.registry,
			planner.WithLogger(logger.Named("planner")),
			planner.WithModel(cfg.LLM.Routing.Planning),
			planner.WithFallbackHook(func(error) { telemetry.RecordFallback(ctx, "planner") }),
		),
		executor.New(a.registry, execOpts...),
		summarizer.New(client,
			summarizer.WithLogger(logger.Named("summarizer")),
			summarizer.WithModel(cfg.LLM.Routing.Summary),
			summarizer.WithFallbackHook(func(error) { telemetry.RecordFallback(ctx, "summarizer") }),
		),
		engine.WithSinks(sinks...),
		engine.WithDeadline(cfg.General.RunDeadline),
		engine.WithDefaultPeriod(cfg.Analysis.DefaultPeriod),
		engine.WithLogger(logger.Named("engine")),
		engine.WithRunHook(func(ctx context.Context, r analysis.Report) {
			source := ""
			if r.Plan != nil {
				source = string(r.Plan.Source)
			}
			telemetry.RecordRun(ctx, string(r.Mode), source, string(r.Summary.Method))
		}),
	)
	return a, nil
}

// provider layers the price sources: network, then synthetic fallback, then
// the Redis cache in front of both.
func (a *app) provider(httpClient *market.HTTPClient) market.Provider {
	var p market.Provider
	switch a.cfg.Data.Provider {
	case "synthetic":
		p = market.NewSyntheticProvider()
	default:
		p = market.NewYahooProvider(a.cfg.Data.BaseURL, httpClient, a.logger.Named("market"))
		if a.cfg.Data.SyntheticFallback {
			p = &market.FallbackProvider{Primary: p, Secondary: market.NewSyntheticProvider(), Logger: a.logger.Named("market")}
		}
	}
	if a.redis != nil {
		p = &market.CachedProvider{
			Next:   p,
			Cache:  market.RedisCache{Client: a.redis},
			TTL:    a.cfg.Data.CacheTTL,
			Logger: a.logger.Named("cache"),
		}
	}
	return p
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	if a.tele != nil {
		errs = append(errs, a.tele.Shutdown(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
