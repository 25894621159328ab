package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/tickerscope/internal/indicator"
)

func indicatorsCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "indicators",
		Short: "List registered indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := indicator.Default(indicator.Deps{})
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tDEFAULTS\tDESCRIPTION")
			for _, c := range reg.Cards() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", c.ID, c.Name, c.Kind, c.Params.Defaults(), c.Description)
			}
			return w.Flush()
		},
	}
}
