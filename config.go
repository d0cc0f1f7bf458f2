package cmdtrigger

import (
	"fmt"
	"os"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Config carries the runtime settings of the engine and its catalogs.
// Zero values fall back to the defaults documented per field, so an empty
// Config is usable as-is. Load it from a TOML file with LoadConfig and
// override from the environment with ParseEnv.
type Config struct {
	// Channel is the notification channel the PostgreSQL catalog uses to
	// broadcast definition changes across processes.
	// Defaults to "cmdtrigger_changes".
	Channel string `toml:"channel" env:"CMDTRIGGER_CHANNEL"`

	// ReplicationRole is the session replication role the engine starts
	// with: "origin", "local" or "replica". Defaults to "origin".
	ReplicationRole string `toml:"replication_role" env:"CMDTRIGGER_REPLICATION_ROLE"`

	// NonCancellable lists command tags that commit incrementally and
	// cannot be rolled back by a veto; registering an AFTER trigger on
	// them is rejected. Defaults to VACUUM and CLUSTER.
	NonCancellable []string `toml:"non_cancellable" env:"CMDTRIGGER_NON_CANCELLABLE" envSeparator:","`

	// Warned maps command tags with documented partial capture to the
	// warning logged when a trigger is registered on them.
	Warned map[string]string `toml:"warned"`
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	cfg := new(Config)
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Channel == "" {
		c.Channel = "cmdtrigger_changes"
	}

	if c.ReplicationRole == "" {
		c.ReplicationRole = desc.RoleOrigin.String()
	}

	if len(c.NonCancellable) == 0 {
		c.NonCancellable = []string{"VACUUM", "CLUSTER"}
	}

	if c.Warned == nil {
		c.Warned = map[string]string{
			"CREATE INDEX": "the trigger will not fire on concurrently-created indexes",
			"REINDEX":      "the trigger will not fire on REINDEX DATABASE",
		}
	}
}

// LoadConfig reads a TOML configuration file and fills the defaults for
// anything the file leaves unset.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg := new(Config)
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg.setDefaults()
	return cfg, nil
}

// ParseEnv overrides the configuration from CMDTRIGGER_* environment
// variables, then re-applies the defaults for anything still unset.
func (c *Config) ParseEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	c.setDefaults()
	return nil
}

// Role parses the configured replication role.
func (c *Config) Role() (desc.ReplicationRole, error) {
	return desc.ParseReplicationRole(c.ReplicationRole)
}
