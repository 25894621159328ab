package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/engine"
)

// Runner runs one analysis.
type Runner interface {
	Run(ctx context.Context, req engine.Request) (analysis.Report, error)
}

// Locker guards a subject so only one instance analyzes it per tick.
type Locker interface {
	// TryLock returns ok=false when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Config describes what to watch.
type Config struct {
	Cron     string
	Subjects []string
	Mode     analysis.Mode
	Period   string
	// Interval is how often the schedule is checked.
	Interval time.Duration
	LockTTL  time.Duration
}

// Scheduler runs the configured subjects whenever the cron schedule is due.
type Scheduler struct {
	cfg    Config
	runner Runner
	locker Locker
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func New(cfg Config, runner Runner, locker Locker, logger *zap.Logger) (*Scheduler, error) {
	if _, err := cronexpr.Parse(cfg.Cron); err != nil && !isShorthand(cfg.Cron) {
		return nil, fmt.Errorf("invalid cron %q: %w", cfg.Cron, err)
	}
	if len(cfg.Subjects) == 0 {
		return nil, fmt.Errorf("scheduler needs at least one subject")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		locker: locker,
		logger: logger,
		now:    time.Now,
		last:   map[string]time.Time{},
	}, nil
}

// Run checks the schedule every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	for _, subject := range s.cfg.Subjects {
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		last, seen := s.last[subject]
		s.mu.Unlock()
		var lastPtr *time.Time
		if seen {
			lastPtr = &last
		}
		if !isDue(s.cfg.Cron, lastPtr, s.now()) {
			continue
		}
		s.runSubject(ctx, subject)
	}
}

func (s *Scheduler) runSubject(ctx context.Context, subject string) {
	logger := s.logger.With(zap.String("subject", subject))
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, "tickerscope:sched:lock:"+subject, s.cfg.LockTTL)
		if err != nil {
			logger.Warn("schedule lock failed", zap.Error(err))
			return
		}
		if !ok {
			logger.Debug("subject locked by another instance")
			return
		}
		defer unlock()
	}

	started := s.now()
	r, err := s.runner.Run(ctx, engine.Request{Subject: subject, Mode: s.cfg.Mode, Period: s.cfg.Period})
	// a failed run still counts; the next attempt waits for the next slot
	s.mu.Lock()
	s.last[subject] = started
	s.mu.Unlock()
	if err != nil {
		logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	logger.Info("scheduled run complete", zap.String("report_id", r.ID), zap.String("sentiment", string(r.Sentiment)))
}

func isShorthand(spec string) bool { return spec == "@daily" || spec == "@hourly" }

// isDue reports whether a schedule should fire at now given the last run.
// Supports "@daily", "@hourly" and standard cron expressions; a subject that
// never ran is due immediately.
func isDue(spec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch spec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return now.Sub(*last) >= 24*time.Hour
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}
