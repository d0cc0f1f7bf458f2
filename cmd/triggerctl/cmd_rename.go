package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRenameCmd creates the "triggerctl rename" subcommand.
func newRenameCmd(flags *catalogFlags) *cobra.Command {
	var ifExists bool

	cmd := &cobra.Command{
		Use:   "rename <COMMAND/NAME> <new-name>",
		Short: "Rename a command trigger",
		Long:  "Change a trigger's name. The new name must be free within the\ntrigger's command class. Renaming changes the firing order.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeCatalog, err := flags.openStore(ctx)
			if err != nil {
				return fmt.Errorf("rename: %w", err)
			}
			defer closeCatalog()

			id, err := resolve(ctx, store, args[0], ifExists)
			if err != nil {
				return fmt.Errorf("rename: %w", err)
			}

			if id == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Trigger %s does not exist, skipping\n", args[0])
				return nil
			}

			if err := store.Rename(ctx, id, args[1], ifExists); err != nil {
				return fmt.Errorf("rename: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Renamed trigger %s to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifExists, "if-exists", false, "do not fail when the trigger is missing")

	return cmd
}
