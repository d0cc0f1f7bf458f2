package cmdtrigger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kataras/cmdtrigger/desc"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Channel != "cmdtrigger_changes" {
		t.Fatalf("unexpected default channel: %q", cfg.Channel)
	}

	role, err := cfg.Role()
	if err != nil {
		t.Fatal(err)
	}

	if role != desc.RoleOrigin {
		t.Fatalf("expected the origin role by default, got %v", role)
	}

	if len(cfg.NonCancellable) == 0 {
		t.Fatal("expected a default non-cancellable command list")
	}

	if _, ok := cfg.Warned["CREATE INDEX"]; !ok {
		t.Fatal("expected CREATE INDEX on the default warned list")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmdtrigger.toml")
	body := `
channel = "my_changes"
replication_role = "replica"
non_cancellable = ["VACUUM", "CHECKPOINT"]

[warned]
"DROP INDEX" = "partial capture"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Channel != "my_changes" {
		t.Fatalf("unexpected channel: %q", cfg.Channel)
	}

	role, err := cfg.Role()
	if err != nil {
		t.Fatal(err)
	}

	if role != desc.RoleReplica {
		t.Fatalf("expected the replica role, got %v", role)
	}

	if len(cfg.NonCancellable) != 2 || cfg.NonCancellable[1] != "CHECKPOINT" {
		t.Fatalf("unexpected non-cancellable list: %v", cfg.NonCancellable)
	}

	if cfg.Warned["DROP INDEX"] != "partial capture" {
		t.Fatalf("unexpected warned map: %v", cfg.Warned)
	}
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cmdtrigger.toml")
	if err := os.WriteFile(path, []byte(`channel = "my_changes"`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	// What the file leaves unset falls back to the defaults.
	if cfg.ReplicationRole != "origin" {
		t.Fatalf("expected the default role, got %q", cfg.ReplicationRole)
	}

	if len(cfg.NonCancellable) == 0 {
		t.Fatal("expected the default non-cancellable list")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestConfigParseEnv(t *testing.T) {
	t.Setenv("CMDTRIGGER_CHANNEL", "env_changes")
	t.Setenv("CMDTRIGGER_REPLICATION_ROLE", "local")
	t.Setenv("CMDTRIGGER_NON_CANCELLABLE", "VACUUM,REINDEX")

	cfg := new(Config)
	if err := cfg.ParseEnv(); err != nil {
		t.Fatal(err)
	}

	if cfg.Channel != "env_changes" {
		t.Fatalf("unexpected channel: %q", cfg.Channel)
	}

	role, err := cfg.Role()
	if err != nil {
		t.Fatal(err)
	}

	if role != desc.RoleLocal {
		t.Fatalf("expected the local role, got %v", role)
	}

	if len(cfg.NonCancellable) != 2 || cfg.NonCancellable[1] != "REINDEX" {
		t.Fatalf("unexpected non-cancellable list: %v", cfg.NonCancellable)
	}
}
