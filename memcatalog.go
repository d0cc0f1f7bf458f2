package cmdtrigger

import (
	"context"
	"sort"
	"sync"

	"github.com/kataras/cmdtrigger/desc"
)

// MemCatalog is an in-memory Catalog implementation. It backs the package
// tests and embedders that keep trigger definitions for the lifetime of the
// process only. Safe for concurrent use.
type MemCatalog struct {
	mu     sync.RWMutex
	nextID desc.TriggerID
	rows   map[desc.TriggerID]*desc.Trigger
}

var _ Catalog = (*MemCatalog)(nil)

// NewMemCatalog creates and returns a new empty in-memory catalog.
func NewMemCatalog() *MemCatalog {
	return &MemCatalog{rows: make(map[desc.TriggerID]*desc.Trigger)}
}

// Insert persists a new definition and returns its assigned identifier.
// It fails with ErrDuplicateName when (Command, Name) is already taken,
// the in-memory equivalent of the SQL catalogs' unique index.
func (c *MemCatalog) Insert(_ context.Context, t *desc.Trigger) (desc.TriggerID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range c.rows {
		if row.Command == t.Command && row.Name == t.Name {
			return 0, ErrDuplicateName
		}
	}

	c.nextID++

	row := *t // copy, the catalog owns its rows.
	row.ID = c.nextID
	c.rows[row.ID] = &row

	return row.ID, nil
}

// Get fetches one definition by identifier.
func (c *MemCatalog) Get(_ context.Context, id desc.TriggerID) (*desc.Trigger, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row, ok := c.rows[id]
	if !ok {
		return nil, ErrNotFound
	}

	t := *row // copy, callers must not reach into the catalog's memory.
	return &t, nil
}

// Find returns the definition registered under (command, name), nil when absent.
func (c *MemCatalog) Find(_ context.Context, command, name string) (*desc.Trigger, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, row := range c.rows {
		if row.Command == command && row.Name == name {
			t := *row
			return &t, nil
		}
	}

	return nil, nil
}

// Scan returns every definition ordered by trigger name.
func (c *MemCatalog) Scan(_ context.Context) ([]*desc.Trigger, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.collect(func(*desc.Trigger) bool { return true }), nil
}

// ScanCommand returns the definitions of a single command class in name order.
func (c *MemCatalog) ScanCommand(_ context.Context, command string) ([]*desc.Trigger, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.collect(func(t *desc.Trigger) bool { return t.Command == command }), nil
}

// collect copies the matching rows sorted by name. Callers hold the read lock.
func (c *MemCatalog) collect(match func(*desc.Trigger) bool) []*desc.Trigger {
	list := make([]*desc.Trigger, 0, len(c.rows))
	for _, row := range c.rows {
		if match(row) {
			t := *row
			list = append(list, &t)
		}
	}

	sort.Slice(list, func(i, j int) bool { // name order is the firing order.
		return list[i].Name < list[j].Name
	})

	return list
}

// Update overwrites the definition row matching t.ID.
func (c *MemCatalog) Update(_ context.Context, t *desc.Trigger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rows[t.ID]; !ok {
		return ErrNotFound
	}

	row := *t
	c.rows[row.ID] = &row
	return nil
}

// Delete removes one definition by identifier.
func (c *MemCatalog) Delete(_ context.Context, id desc.TriggerID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rows[id]; !ok {
		return ErrNotFound
	}

	delete(c.rows, id)
	return nil
}

// DeleteByProcedure removes every definition depending on the given procedure.
func (c *MemCatalog) DeleteByProcedure(_ context.Context, fn string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for id, row := range c.rows {
		if row.Procedure.Func == fn {
			delete(c.rows, id)
			n++
		}
	}

	return n, nil
}

// Close implements the Catalog interface, it's a no-op for the in-memory catalog.
func (c *MemCatalog) Close() error { return nil }
