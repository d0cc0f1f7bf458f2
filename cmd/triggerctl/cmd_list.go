package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newListCmd creates the "triggerctl list" subcommand.
func newListCmd(flags *catalogFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered command trigger in firing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeCatalog, err := flags.openStore(ctx)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			defer closeCatalog()

			triggers, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}

			if len(triggers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No triggers registered")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOMMAND\tPHASE\tEVENT\tPROCEDURE\tSTATE")
			for _, t := range triggers {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Name, t.Command, t.Phase, t.Event, t.Procedure.Func, t.Enabled)
			}
			return w.Flush()
		},
	}
}
