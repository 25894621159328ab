package main

import (
	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/tickerscope/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *cfgPath, bootOptions{serveMetrics: true})
			if err != nil {
				return err
			}
			defer a.Close()

			deps := srv.Deps{
				Analyzer:  a.engine,
				Catalog:   a.registry,
				Metrics:   a.tele.Handler(),
				JWTSecret: a.cfg.Server.JWTSecret,
				Logger:    a.logger.Named("http"),
			}
			if a.store != nil {
				deps.Reports = a.store
			}
			if addr == "" {
				addr = a.cfg.Server.Address
			}
			return srv.Run(ctx, srv.New(deps), addr, a.logger)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default from server.address)")
	return serve
}
