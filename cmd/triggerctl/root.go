package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kataras/cmdtrigger"
	"github.com/kataras/cmdtrigger/desc"

	"github.com/spf13/cobra"
)

// catalogFlags are the connection flags shared by every subcommand.
// Exactly one of dsn or db must be set.
type catalogFlags struct {
	dsn     string // postgres connection string.
	db      string // sqlite file path.
	channel string
	config  string // optional TOML config file.
}

func (f *catalogFlags) open(ctx context.Context) (cmdtrigger.Catalog, error) {
	switch {
	case f.dsn != "" && f.db != "":
		return nil, fmt.Errorf("set either --dsn or --db, not both")
	case f.dsn != "":
		return cmdtrigger.OpenCatalog(ctx, f.dsn, f.channel)
	case f.db != "":
		return cmdtrigger.OpenSQLiteCatalog(f.db)
	default:
		return nil, fmt.Errorf("a catalog is required: set --dsn (postgres) or --db (sqlite)")
	}
}

func (f *catalogFlags) loadConfig() (*cmdtrigger.Config, error) {
	cfg := cmdtrigger.DefaultConfig()
	if f.config != "" {
		loaded, err := cmdtrigger.LoadConfig(f.config)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if err := cfg.ParseEnv(); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if f.channel != "" {
		cfg.Channel = f.channel
	}

	return cfg, nil
}

// openStore opens the catalog and the registration layer over it.
// The returned closer releases the catalog.
func (f *catalogFlags) openStore(ctx context.Context) (*cmdtrigger.Store, func() error, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	catalog, err := f.open(ctx)
	if err != nil {
		return nil, nil, err
	}

	return cmdtrigger.NewStore(catalog, cfg), catalog.Close, nil
}

func newRootCmd() *cobra.Command {
	flags := new(catalogFlags)

	root := &cobra.Command{
		Use:           "triggerctl",
		Short:         "Manage command trigger definitions",
		Long:          "triggerctl registers, inspects and removes command trigger definitions\nstored in a PostgreSQL or SQLite catalog.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.dsn, "dsn", "", "postgres connection string of the catalog")
	root.PersistentFlags().StringVar(&flags.db, "db", "", "sqlite file path of the catalog")
	root.PersistentFlags().StringVar(&flags.channel, "channel", "", "notification channel (postgres catalogs only)")
	root.PersistentFlags().StringVar(&flags.config, "config", "", "path to a TOML configuration file")

	root.AddCommand(
		newRegisterCmd(flags),
		newDropCmd(flags),
		newRenameCmd(flags),
		newEnableCmd(flags),
		newDisableCmd(flags),
		newListCmd(flags),
	)

	return root
}

// resolve turns a "command/name" argument into a trigger identifier.
// With missingOK it resolves an absent trigger to the zero identifier.
func resolve(ctx context.Context, store *cmdtrigger.Store, arg string, missingOK bool) (desc.TriggerID, error) {
	command, name, found := strings.Cut(arg, "/")
	if !found || command == "" || name == "" {
		return 0, fmt.Errorf("invalid trigger reference %q: want COMMAND/NAME, e.g. \"CREATE TABLE/audit\"", arg)
	}

	return store.LookupID(ctx, command, name, missingOK)
}
