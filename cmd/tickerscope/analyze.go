package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/tickerscope/internal/analysis"
	"github.com/mohammad-safakhou/tickerscope/internal/engine"
	"github.com/mohammad-safakhou/tickerscope/internal/report"
)

func analyzeCMD(cfgPath *string) *cobra.Command {
	var (
		indicators []string
		period     string
		mode       string
		asJSON     bool
		noSave     bool
		pretty     bool
	)
	cmd := &cobra.Command{
		Use:   "analyze SUBJECT",
		Short: "Run one analysis and print the summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := analysis.ParseMode(mode)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *cfgPath, bootOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			// only a dataset failure or an invalid request gets here as an error
			r, err := a.engine.Run(ctx, engine.Request{
				Subject:    args[0],
				Indicators: indicators,
				Period:     period,
				Mode:       m,
				NoSave:     noSave,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			if pretty {
				return renderPretty(out, r)
			}
			fmt.Fprintln(out, r.Summary.Text)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&indicators, "indicator", "i", nil, "indicator to run (repeatable; default depends on mode)")
	cmd.Flags().StringVarP(&period, "period", "p", "", "history range, e.g. 6mo, 1y, 5y (default from config)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "technical", "analysis mode: technical, value or news")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip markdown and database sinks")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render the markdown report for the terminal")
	return cmd
}

func renderPretty(w io.Writer, r analysis.Report) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := renderer.Render(report.Render(r))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}
