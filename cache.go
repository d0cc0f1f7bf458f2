package cmdtrigger

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kataras/cmdtrigger/desc"
)

// FiringProc is one procedure to call during a firing pass, paired with the
// name of the trigger that registered it so that vetoes and failures can be
// reported against the trigger, not the anonymous procedure.
type FiringProc struct {
	Trigger string
	Proc    desc.Procedure
}

// Entry is the result of a cache lookup for one (command, event) pair.
// Command-specific procedures and wildcard (ANY) procedures are reported
// separately, each list in firing order (alphabetical by trigger name).
// The dispatch engine runs both, specific first; callers using the cache
// directly may apply their own policy.
type Entry struct {
	Command string
	Event   desc.Event

	Before    []FiringProc
	After     []FiringProc
	InsteadOf []FiringProc

	AnyBefore    []FiringProc
	AnyAfter     []FiringProc
	AnyInsteadOf []FiringProc
}

// IsInsteadOf reports whether any INSTEAD OF procedure is registered for
// this command, forcing the substitution phase.
func (e *Entry) IsInsteadOf() bool {
	return len(e.InsteadOf) > 0 || len(e.AnyInsteadOf) > 0
}

// IsEmpty reports whether no procedure at all would fire for this command.
func (e *Entry) IsEmpty() bool {
	return len(e.Before) == 0 && len(e.After) == 0 && len(e.InsteadOf) == 0 &&
		len(e.AnyBefore) == 0 && len(e.AnyAfter) == 0 && len(e.AnyInsteadOf) == 0
}

type cacheKey struct {
	command string
	event   desc.Event
}

type cacheBucket struct {
	before    []FiringProc
	after     []FiringProc
	insteadOf []FiringProc
}

// snapshot is one fully-built, immutable view of the catalog. It records
// the invalidation version and the replication role it was built under;
// a mismatch on either forces a rebuild.
type snapshot struct {
	version uint64
	role    desc.ReplicationRole
	buckets map[cacheKey]*cacheBucket
}

// Cache is the in-memory trigger index, derived and disposable: the catalog
// rows stay the only truth. It is rebuilt lazily by a full name-ordered
// scan on the first lookup after an invalidation, and published atomically:
// concurrent readers observe either the fully-old or the fully-new
// snapshot, never a partially-built one.
//
// Invalidation is coarse: any catalog mutation discards the whole cache.
// Rebuild cost is proportional to the registered trigger count, which is
// expected to stay small.
type Cache struct {
	catalog Catalog
	role    func() desc.ReplicationRole

	version atomic.Uint64              // bumped by Invalidate.
	snap    atomic.Pointer[snapshot]   // latest published snapshot.
	buildMu sync.Mutex                 // serializes rebuilds, not lookups.
}

// NewCache creates a trigger cache over the given catalog. The role
// function supplies the session replication role at build time; nil
// defaults to the origin role.
func NewCache(catalog Catalog, role func() desc.ReplicationRole) *Cache {
	if role == nil {
		role = func() desc.ReplicationRole { return desc.RoleOrigin }
	}

	return &Cache{catalog: catalog, role: role}
}

// Invalidate discards the cache. The next lookup rebuilds it from the
// catalog. Raise it only after the underlying mutation fully committed.
func (c *Cache) Invalidate() {
	c.version.Add(1)
}

// Lookup returns the firing entry for the given command class and event.
// The entry merges nothing: specific-class and wildcard procedures are
// reported in separate lists, see Entry.
func (c *Cache) Lookup(ctx context.Context, command string, event desc.Event) (*Entry, error) {
	snap, err := c.current(ctx)
	if err != nil {
		return nil, err
	}

	entry := &Entry{Command: command, Event: event}

	if b, ok := snap.buckets[cacheKey{command, event}]; ok {
		entry.Before = b.before
		entry.After = b.after
		entry.InsteadOf = b.insteadOf
	}

	if command != desc.AnyCommand { // wildcard triggers match every command.
		if b, ok := snap.buckets[cacheKey{desc.AnyCommand, event}]; ok {
			entry.AnyBefore = b.before
			entry.AnyAfter = b.after
			entry.AnyInsteadOf = b.insteadOf
		}
	}

	return entry, nil
}

// current returns a snapshot matching the present invalidation version and
// replication role, rebuilding when needed.
func (c *Cache) current(ctx context.Context) (*snapshot, error) {
	if snap := c.snap.Load(); snap != nil &&
		snap.version == c.version.Load() && snap.role == c.role() {
		return snap, nil // fast path, no locking for readers.
	}

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	// Another lookup may have rebuilt while we waited for the lock.
	if snap := c.snap.Load(); snap != nil &&
		snap.version == c.version.Load() && snap.role == c.role() {
		return snap, nil
	}

	// Capture version and role before scanning: an invalidation racing
	// with the scan leaves the new snapshot already stale and the next
	// lookup rebuilds again.
	snap := &snapshot{
		version: c.version.Load(),
		role:    c.role(),
		buckets: make(map[cacheKey]*cacheBucket),
	}

	rows, err := c.catalog.Scan(ctx) // full scan, ordered by trigger name.
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if !row.Enabled.Fires(snap.role) { // replication-role filter, build time.
			continue
		}

		key := cacheKey{row.Command, row.Event}
		b, ok := snap.buckets[key]
		if !ok {
			b = new(cacheBucket)
			snap.buckets[key] = b
		}

		fp := FiringProc{Trigger: row.Name, Proc: row.Procedure}
		switch row.Phase {
		case desc.PhaseBefore:
			b.before = append(b.before, fp)
		case desc.PhaseAfter:
			b.after = append(b.after, fp)
		case desc.PhaseInsteadOf:
			b.insteadOf = append(b.insteadOf, fp)
		}
	}

	c.snap.Store(snap) // publish, swap is atomic for concurrent readers.
	return snap, nil
}
