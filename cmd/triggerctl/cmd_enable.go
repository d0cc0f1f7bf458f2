package main

import (
	"fmt"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/spf13/cobra"
)

func setEnabledState(flags *catalogFlags, cmd *cobra.Command, arg string, state desc.EnabledState) error {
	ctx := cmd.Context()
	store, closeCatalog, err := flags.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeCatalog()

	id, err := resolve(ctx, store, arg, false)
	if err != nil {
		return err
	}

	if err := store.SetEnabledState(ctx, id, state); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Trigger %s is now %s\n", arg, state)
	return nil
}

// newEnableCmd creates the "triggerctl enable" subcommand.
func newEnableCmd(flags *catalogFlags) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "enable <COMMAND/NAME>",
		Short: "Enable a command trigger",
		Long:  "Enable a trigger, optionally restricted to a replication role\nwith --role origin or --role replica.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state := desc.Enabled
			switch role {
			case "":
			case "origin":
				state = desc.FiresOnOrigin
			case "replica":
				state = desc.FiresOnReplica
			default:
				return fmt.Errorf("enable: invalid role %q: want origin or replica", role)
			}

			if err := setEnabledState(flags, cmd, args[0], state); err != nil {
				return fmt.Errorf("enable: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "fire only under this replication role: origin or replica")

	return cmd
}

// newDisableCmd creates the "triggerctl disable" subcommand.
func newDisableCmd(flags *catalogFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <COMMAND/NAME>",
		Short: "Disable a command trigger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := setEnabledState(flags, cmd, args[0], desc.Disabled); err != nil {
				return fmt.Errorf("disable: %w", err)
			}
			return nil
		},
	}
}
