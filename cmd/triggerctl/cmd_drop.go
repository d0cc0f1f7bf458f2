package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newDropCmd creates the "triggerctl drop" subcommand.
func newDropCmd(flags *catalogFlags) *cobra.Command {
	var ifExists bool
	var proc string

	cmd := &cobra.Command{
		Use:   "drop [COMMAND/NAME...]",
		Short: "Drop command triggers",
		Long: "Remove one or more triggers by their COMMAND/NAME reference,\n" +
			"or every trigger depending on a procedure with --proc.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if proc == "" && len(args) == 0 {
				return fmt.Errorf("drop: nothing to drop: give COMMAND/NAME arguments or --proc")
			}

			ctx := cmd.Context()
			store, closeCatalog, err := flags.openStore(ctx)
			if err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			defer closeCatalog()

			if proc != "" {
				n, err := store.DropProcedure(ctx, proc)
				if err != nil {
					return fmt.Errorf("drop: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d trigger(s) depending on %s\n", n, proc)
			}

			for _, arg := range args {
				id, err := resolve(ctx, store, arg, ifExists)
				if err != nil {
					return fmt.Errorf("drop: %w", err)
				}

				if id == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Trigger %s does not exist, skipping\n", arg)
					continue
				}

				if err := store.Drop(ctx, id, ifExists); err != nil {
					return fmt.Errorf("drop: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Dropped trigger %s\n", arg)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "do not fail when a trigger is missing")
	cmd.Flags().StringVar(&proc, "proc", "", "drop every trigger depending on this procedure")

	return cmd
}
