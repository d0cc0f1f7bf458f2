package cmdtrigger

import (
	"context"
	"sync"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/jackc/pgx/v5/tracelog"
)

// Store is the registration layer over a Catalog: it owns the schema-level
// invariants of trigger definitions (name uniqueness, phase exclusion,
// return contracts, privilege and self-committing-command restrictions)
// and raises the invalidation signal after every committed mutation.
// It performs no transaction management of its own, atomicity of a single
// mutation is the catalog's job.
type Store struct {
	catalog Catalog
	logger  tracelog.Logger

	authorize func(ctx context.Context) error

	nonCancellable map[string]struct{} // AFTER triggers on these are rejected.
	warned         map[string]string   // registrations on these log a warning.

	mu       sync.Mutex
	onChange []func()
}

// NewStore creates the registration layer over the given catalog.
// A nil config means defaults.
func NewStore(catalog Catalog, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfg.setDefaults()
	}

	s := &Store{
		catalog:        catalog,
		nonCancellable: make(map[string]struct{}, len(cfg.NonCancellable)),
		warned:         make(map[string]string, len(cfg.Warned)),
	}

	for _, tag := range cfg.NonCancellable {
		s.nonCancellable[desc.NormalizeCommandTag(tag)] = struct{}{}
	}

	for tag, detail := range cfg.Warned {
		s.warned[desc.NormalizeCommandTag(tag)] = detail
	}

	return s
}

// HandleAuthorization sets the privilege gate called before every mutating
// operation. The gate returning an error maps to ErrInsufficientPrivilege.
// Registration is a privileged operation: trigger procedures run with
// elevated rights, so only trusted administrators may manage them.
// A nil gate (the default) allows everything, for hosts that authorize
// before calling in.
func (s *Store) HandleAuthorization(fn func(ctx context.Context) error) *Store {
	s.authorize = fn
	return s
}

// SetLogger sets the logger used for registration warnings.
func (s *Store) SetLogger(logger tracelog.Logger) *Store {
	s.logger = logger
	return s
}

// OnChange subscribes fn to the invalidation signal: it is called after
// every committed mutation of the definition store.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// invalidate raises the invalidation signal. Call only after the mutation
// fully committed.
func (s *Store) invalidate() {
	s.mu.Lock()
	subs := s.onChange
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *Store) checkPrivileges(ctx context.Context) error {
	if s.authorize == nil {
		return nil
	}

	if err := s.authorize(ctx); err != nil {
		return ErrInsufficientPrivilege
	}

	return nil
}

func (s *Store) log(ctx context.Context, msg string, data map[string]any) {
	if s.logger != nil {
		s.logger.Log(ctx, tracelog.LogLevelWarn, msg, data)
	}
}

// Register validates and persists a new trigger definition and returns its
// assigned identifier. The command tag is normalized to its canonical form.
//
// All validation happens before any catalog mutation, no partial
// registration is ever visible:
//   - ErrInsufficientPrivilege when the authorization gate refuses.
//   - ErrInvalidReturnContract when the procedure's declared return type
//     does not match the phase (BEFORE and INSTEAD OF return boolean,
//     AFTER returns void).
//   - ErrUnsupportedCommand for an AFTER trigger on a command that commits
//     incrementally (a veto there would be meaningless, the work is done).
//   - ErrDuplicateName when the (command, name) pair is taken.
//   - ErrConflictingPhase when an INSTEAD OF trigger would coexist with a
//     BEFORE or AFTER one on the same command class, or the reverse.
//
// The catalog row records the procedure reference, which is the dependency
// edge consumed by DropProcedure's cascade.
func (s *Store) Register(ctx context.Context, t *desc.Trigger) (desc.TriggerID, error) {
	if err := s.checkPrivileges(ctx); err != nil {
		return 0, err
	}

	def := *t // copy, normalization must not write back to the caller.
	def.Command = desc.NormalizeCommandTag(def.Command)
	if def.Event == "" {
		// The event follows the phase unless the caller picked one.
		if def.Phase == desc.PhaseAfter {
			def.Event = desc.EventCommandEnd
		} else {
			def.Event = desc.EventCommandStart
		}
	}
	if def.Enabled == 0 {
		def.Enabled = desc.Enabled
	}

	if err := def.Validate(); err != nil {
		return 0, err
	}

	if !def.Procedure.SatisfiesContract(def.Phase) {
		return 0, &ContractError{Name: def.Name, Phase: def.Phase, Declared: def.Procedure.Returns}
	}

	if _, ok := s.nonCancellable[def.Command]; ok && def.Phase == desc.PhaseAfter {
		return 0, ErrUnsupportedCommand
	}

	existing, err := s.catalog.Find(ctx, def.Command, def.Name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, ErrDuplicateName
	}

	if err := s.checkPhaseConflict(ctx, &def); err != nil {
		return 0, err
	}

	// Warn only once the registration is known to go through.
	if detail, ok := s.warned[def.Command]; ok {
		s.log(ctx, "command triggers are partially supported on "+def.Command,
			map[string]any{"trigger": def.Name, "detail": detail})
	}

	id, err := s.catalog.Insert(ctx, &def)
	if err != nil {
		return 0, err
	}

	s.invalidate()
	return id, nil
}

// checkPhaseConflict enforces the mutual exclusion rules within a command
// class: INSTEAD OF cannot coexist with BEFORE, and neither can it with
// AFTER. BEFORE and AFTER coexist freely.
func (s *Store) checkPhaseConflict(ctx context.Context, def *desc.Trigger) error {
	siblings, err := s.catalog.ScanCommand(ctx, def.Command)
	if err != nil {
		return err
	}

	for _, sib := range siblings {
		conflict := (def.Phase == desc.PhaseInsteadOf && sib.Phase != desc.PhaseInsteadOf) ||
			(def.Phase != desc.PhaseInsteadOf && sib.Phase == desc.PhaseInsteadOf)
		if conflict {
			return &ConflictError{Command: def.Command, Phase: def.Phase, Existing: sib.Name}
		}
	}

	return nil
}

// LookupID resolves a trigger's identifier by command class and name.
// When missing and missingOK is false it fails with ErrNotFound, otherwise
// it returns zero and no error.
func (s *Store) LookupID(ctx context.Context, command, name string, missingOK bool) (desc.TriggerID, error) {
	t, err := s.catalog.Find(ctx, desc.NormalizeCommandTag(command), name)
	if err != nil {
		return 0, err
	}

	if t == nil {
		if missingOK {
			return 0, nil
		}
		return 0, ErrNotFound
	}

	return t.ID, nil
}

// Drop removes a trigger definition. A missing trigger is an ErrNotFound
// unless missingOK is set, in which case the call is a no-op.
func (s *Store) Drop(ctx context.Context, id desc.TriggerID, missingOK bool) error {
	if err := s.checkPrivileges(ctx); err != nil {
		return err
	}

	if err := s.catalog.Delete(ctx, id); err != nil {
		if missingOK && IsErrNotFound(err) {
			return nil
		}
		return err
	}

	s.invalidate()
	return nil
}

// Rename changes a trigger's name. The new name must be free within the
// trigger's command class (ErrDuplicateName otherwise). A missing trigger
// is an ErrNotFound unless missingOK is set.
//
// Renaming changes the firing order, so it invalidates the cache like any
// other mutation.
func (s *Store) Rename(ctx context.Context, id desc.TriggerID, newName string, missingOK bool) error {
	if err := s.checkPrivileges(ctx); err != nil {
		return err
	}

	t, err := s.catalog.Get(ctx, id)
	if err != nil {
		if missingOK && IsErrNotFound(err) {
			return nil
		}
		return err
	}

	taken, err := s.catalog.Find(ctx, t.Command, newName)
	if err != nil {
		return err
	}
	if taken != nil {
		return ErrDuplicateName
	}

	t.Name = newName
	if err := t.Validate(); err != nil {
		return err
	}

	if err := s.catalog.Update(ctx, t); err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// SetEnabledState changes a trigger's firing configuration. It is a pure
// state mutation, no validation beyond existence.
func (s *Store) SetEnabledState(ctx context.Context, id desc.TriggerID, state desc.EnabledState) error {
	if err := s.checkPrivileges(ctx); err != nil {
		return err
	}

	t, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}

	t.Enabled = state
	if err := t.Validate(); err != nil {
		return err
	}

	if err := s.catalog.Update(ctx, t); err != nil {
		return err
	}

	s.invalidate()
	return nil
}

// DropProcedure cascades the removal of a procedure to every trigger
// definition depending on it and returns how many definitions went away.
// Call it when the host drops the procedure itself.
func (s *Store) DropProcedure(ctx context.Context, fn string) (int64, error) {
	if err := s.checkPrivileges(ctx); err != nil {
		return 0, err
	}

	n, err := s.catalog.DeleteByProcedure(ctx, fn)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		s.invalidate()
	}

	return n, nil
}

// List returns every trigger definition in name order.
func (s *Store) List(ctx context.Context) ([]*desc.Trigger, error) {
	return s.catalog.Scan(ctx)
}
