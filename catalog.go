package cmdtrigger

import (
	"context"

	"github.com/kataras/cmdtrigger/desc"
)

// Catalog is the durable store of trigger definitions, one row per trigger.
// The storage engine is an external collaborator: it owns tuple storage,
// transactional visibility and index maintenance, this package only
// consumes ordered scans and single-row mutations.
//
// Implementations must enforce a unique key on (Command, Name) and keep
// Scan results ordered by trigger name, that order is the firing order.
// Every mutating method must be atomic: a failed call leaves no partial row
// behind.
//
// Available implementations: PGCatalog (PostgreSQL), SQLiteCatalog
// (embedded) and MemCatalog (in-memory, for tests and embedders).
type Catalog interface {
	// Insert persists a new definition and returns its assigned identifier.
	// The passed definition is not mutated.
	Insert(ctx context.Context, t *desc.Trigger) (desc.TriggerID, error)
	// Get fetches one definition by identifier, ErrNotFound when missing.
	Get(ctx context.Context, id desc.TriggerID) (*desc.Trigger, error)
	// Find returns the definition registered under (command, name),
	// or nil and no error when absent.
	Find(ctx context.Context, command, name string) (*desc.Trigger, error)
	// Scan returns every definition ordered by trigger name.
	Scan(ctx context.Context) ([]*desc.Trigger, error)
	// ScanCommand returns the definitions of a single command class
	// ordered by trigger name. It does not include wildcard definitions.
	ScanCommand(ctx context.Context, command string) ([]*desc.Trigger, error)
	// Update overwrites the definition row matching t.ID,
	// ErrNotFound when missing.
	Update(ctx context.Context, t *desc.Trigger) error
	// Delete removes one definition by identifier, ErrNotFound when missing.
	Delete(ctx context.Context, id desc.TriggerID) error
	// DeleteByProcedure removes every definition depending on the given
	// procedure reference and returns how many rows went away. This is the
	// cascade half of the dependency edge recorded at registration time.
	DeleteByProcedure(ctx context.Context, fn string) (int64, error)
	// Close releases the catalog's resources.
	Close() error
}
