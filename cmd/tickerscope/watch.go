package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/scheduler"
)

func watchCMD(cfgPath *string) *cobra.Command {
	var (
		subjects []string
		cron     string
	)
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Analyze the configured subjects on a cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *cfgPath, bootOptions{serveMetrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			sc := a.cfg.Scheduler
			if len(subjects) > 0 {
				sc.Subjects = subjects
			}
			if cron != "" {
				sc.Cron = cron
			}
			mode, err := analysis.ParseMode(sc.Mode)
			if err != nil {
				return fmt.Errorf("scheduler.mode: %w", err)
			}
			var locker scheduler.Locker
			if a.redis != nil {
				locker = scheduler.RedisLocker{Client: a.redis}
			}
			s, err := scheduler.New(scheduler.Config{
				Cron:     sc.Cron,
				Subjects: sc.Subjects,
				Mode:     mode,
				Period:   sc.Period,
				Interval: sc.Interval,
				LockTTL:  sc.LockTTL,
			}, a.engine, locker, a.logger.Named("scheduler"))
			if err != nil {
				return err
			}
			a.logger.Info("watching", zap.Strings("subjects", sc.Subjects), zap.String("cron", sc.Cron))
			return s.Run(ctx)
		},
	}
	watch.Flags().StringSliceVarP(&subjects, "subject", "s", nil, "subjects to watch (default from scheduler.subjects)")
	watch.Flags().StringVar(&cron, "cron", "", "cron expression (default from scheduler.cron)")
	return watch
}
