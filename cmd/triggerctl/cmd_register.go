package main

import (
	"fmt"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/spf13/cobra"
)

// newRegisterCmd creates the "triggerctl register" subcommand.
func newRegisterCmd(flags *catalogFlags) *cobra.Command {
	var (
		phase      string
		event      string
		proc       string
		returns    string
		convention string
		enabled    string
	)

	cmd := &cobra.Command{
		Use:   "register <command> <name>",
		Short: "Register a new command trigger",
		Long: "Register a trigger on a command class (or ANY for a wildcard trigger).\n" +
			"The procedure's return type defaults to what the phase demands:\n" +
			"boolean for BEFORE and INSTEAD_OF, void for AFTER.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := desc.ParsePhase(phase)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}

			t := &desc.Trigger{
				Command: args[0],
				Name:    args[1],
				Event:   desc.Event(event),
				Phase:   p,
				Procedure: desc.Procedure{
					Func:    proc,
					Returns: desc.ReturnBoolean,
				},
			}
			if p == desc.PhaseAfter {
				t.Procedure.Returns = desc.ReturnVoid
			}

			switch returns {
			case "":
			case "boolean":
				t.Procedure.Returns = desc.ReturnBoolean
			case "void":
				t.Procedure.Returns = desc.ReturnVoid
			default:
				return fmt.Errorf("register: invalid return type %q: want boolean or void", returns)
			}

			switch convention {
			case "", "standard":
				t.Procedure.Convention = desc.ConventionStandard
			case "extended":
				t.Procedure.Convention = desc.ConventionExtended
			default:
				return fmt.Errorf("register: invalid calling convention %q: want standard or extended", convention)
			}

			if enabled != "" {
				state, err := desc.ParseEnabledState(enabled)
				if err != nil {
					return fmt.Errorf("register: %w", err)
				}
				t.Enabled = state
			}

			ctx := cmd.Context()
			store, closeCatalog, err := flags.openStore(ctx)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}
			defer closeCatalog()

			id, err := store.Register(ctx, t)
			if err != nil {
				return fmt.Errorf("register: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered trigger %s on %s (id %d)\n", t.Name, t.Command, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "firing phase: BEFORE, AFTER or INSTEAD_OF (required)")
	cmd.Flags().StringVar(&proc, "proc", "", "procedure reference the trigger fires (required)")
	cmd.Flags().StringVar(&event, "event", "", "lifecycle event, defaults to the phase's natural event")
	cmd.Flags().StringVar(&returns, "returns", "", "declared procedure return type: boolean or void")
	cmd.Flags().StringVar(&convention, "convention", "standard", "calling convention: standard or extended")
	cmd.Flags().StringVar(&enabled, "enabled", "", "initial firing configuration: enabled, disabled, origin or replica")
	_ = cmd.MarkFlagRequired("phase")
	_ = cmd.MarkFlagRequired("proc")

	return cmd
}
