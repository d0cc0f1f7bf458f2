package cmdtrigger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kataras/cmdtrigger/desc"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver.
)

// sqliteSchemaDDL is the definitions table for the embedded catalog.
// Mirrors the PostgreSQL layout minus the notification channel; an
// embedded catalog has no remote caches to signal.
const sqliteSchemaDDL = `
CREATE TABLE IF NOT EXISTS cmd_triggers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	name TEXT NOT NULL,
	event TEXT NOT NULL,
	phase TEXT NOT NULL,
	proc_func TEXT NOT NULL,
	proc_returns TEXT NOT NULL,
	proc_convention TEXT NOT NULL,
	enabled TEXT NOT NULL DEFAULT 'A',
	UNIQUE (command, name)
);
CREATE INDEX IF NOT EXISTS cmd_triggers_command_idx ON cmd_triggers (command);
CREATE INDEX IF NOT EXISTS cmd_triggers_proc_func_idx ON cmd_triggers (proc_func);
`

// SQLiteCatalog is the embedded, file-backed Catalog for hosts that carry
// their trigger definitions alongside the process instead of in a shared
// database server.
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLiteCatalog opens (or creates) the definitions database at the
// given path. Pass ":memory:" for a throwaway catalog.
func OpenSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalog: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite catalog: %w", err)
	}

	if _, err := db.Exec(sqliteSchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

// DB exposes the underlying handle, mainly for tests.
func (c *SQLiteCatalog) DB() *sql.DB { return c.db }

// Close closes the database handle.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// Insert persists a new trigger definition and returns its assigned identifier.
func (c *SQLiteCatalog) Insert(ctx context.Context, t *desc.Trigger) (desc.TriggerID, error) {
	query := `INSERT INTO cmd_triggers (command, name, event, phase, proc_func, proc_returns, proc_convention, enabled)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	res, err := c.db.ExecContext(ctx, query,
		t.Command, t.Name, string(t.Event),
		string(t.Phase), t.Procedure.Func, string(t.Procedure.Returns), string(t.Procedure.Convention),
		string(t.Enabled))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, ErrDuplicateName
		}

		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	return desc.TriggerID(id), nil
}

func scanSQLiteTrigger(row interface{ Scan(...any) error }) (*desc.Trigger, error) {
	var (
		t          desc.Trigger
		event      string
		phase      string
		returns    string
		convention string
		enabled    string
	)

	err := row.Scan(&t.ID, &t.Command, &t.Name, &event,
		&phase, &t.Procedure.Func, &returns, &convention, &enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	t.Event = desc.Event(event)
	t.Phase = desc.Phase(phase[0])
	t.Procedure.Returns = desc.ReturnType(returns[0])
	t.Procedure.Convention = desc.Convention(convention[0])
	t.Enabled = desc.EnabledState(enabled[0])
	return &t, nil
}

// Get fetches one trigger definition by identifier.
func (c *SQLiteCatalog) Get(ctx context.Context, id desc.TriggerID) (*desc.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM cmd_triggers WHERE id = ? LIMIT 1;`
	return scanSQLiteTrigger(c.db.QueryRowContext(ctx, query, id))
}

// Find returns the trigger registered under (command, name), or nil when absent.
func (c *SQLiteCatalog) Find(ctx context.Context, command, name string) (*desc.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM cmd_triggers WHERE command = ? AND name = ? LIMIT 1;`

	t, err := scanSQLiteTrigger(c.db.QueryRowContext(ctx, query, command, name))
	if err != nil {
		if IsErrNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return t, nil
}

func (c *SQLiteCatalog) scanQuery(ctx context.Context, query string, args ...any) ([]*desc.Trigger, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	triggers := make([]*desc.Trigger, 0)
	for rows.Next() {
		t, err := scanSQLiteTrigger(rows)
		if err != nil {
			return nil, err
		}

		triggers = append(triggers, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return triggers, nil
}

// Scan returns every trigger definition ordered by trigger name.
func (c *SQLiteCatalog) Scan(ctx context.Context) ([]*desc.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM cmd_triggers ORDER BY name;`
	return c.scanQuery(ctx, query)
}

// ScanCommand returns the definitions of a single command class
// ordered by trigger name, wildcard definitions excluded.
func (c *SQLiteCatalog) ScanCommand(ctx context.Context, command string) ([]*desc.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM cmd_triggers WHERE command = ? ORDER BY name;`
	return c.scanQuery(ctx, query, command)
}

// Update overwrites the definition row matching t.ID.
func (c *SQLiteCatalog) Update(ctx context.Context, t *desc.Trigger) error {
	query := `UPDATE cmd_triggers SET command = ?, name = ?, event = ?, phase = ?,
	proc_func = ?, proc_returns = ?, proc_convention = ?, enabled = ? WHERE id = ?;`

	res, err := c.db.ExecContext(ctx, query,
		t.Command, t.Name, string(t.Event), string(t.Phase),
		t.Procedure.Func, string(t.Procedure.Returns), string(t.Procedure.Convention),
		string(t.Enabled), t.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateName
		}

		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes one trigger definition by identifier.
func (c *SQLiteCatalog) Delete(ctx context.Context, id desc.TriggerID) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cmd_triggers WHERE id = ?;`, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteByProcedure removes every trigger definition depending on the given
// procedure reference and returns how many rows went away.
func (c *SQLiteCatalog) DeleteByProcedure(ctx context.Context, fn string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cmd_triggers WHERE proc_func = ?;`, fn)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

var _ Catalog = (*SQLiteCatalog)(nil)
