package cmdtrigger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/jackc/pgx/v5/tracelog"
)

func boolProc(name string) desc.Procedure {
	return desc.Procedure{Func: name, Returns: desc.ReturnBoolean, Convention: desc.ConventionStandard}
}

func voidProc(name string) desc.Procedure {
	return desc.Procedure{Func: name, Returns: desc.ReturnVoid, Convention: desc.ConventionStandard}
}

func newTestStore() *Store {
	return NewStore(NewMemCatalog(), nil)
}

func TestStoreRegister(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "create table",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("audit_fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if id == 0 {
		t.Fatal("expected a non-zero identifier")
	}

	got, err := store.catalog.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	// The tag is stored normalized and the omitted fields get their defaults.
	if got.Command != "CREATE TABLE" {
		t.Fatalf("expected normalized command tag, got %q", got.Command)
	}

	if got.Event != desc.EventCommandStart {
		t.Fatalf("expected the phase's natural event, got %q", got.Event)
	}

	if got.Enabled != desc.Enabled {
		t.Fatalf("expected the enabled default, got %q", got.Enabled)
	}
}

func TestStoreRegisterAfterEventDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "DROP TABLE",
		Name:      "cleanup",
		Phase:     desc.PhaseAfter,
		Procedure: voidProc("cleanup_fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.catalog.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	if got.Event != desc.EventCommandEnd {
		t.Fatalf("expected AFTER to default to the command-end event, got %q", got.Event)
	}
}

func TestStoreRegisterEventMismatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	// An explicitly picked event must host the trigger's phase, otherwise
	// no firing pass would ever reach the definition.
	_, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Event:     desc.EventCommandEnd,
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if err == nil {
		t.Fatal("expected a BEFORE trigger on the command-end event to be rejected")
	}

	_, err = store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "log",
		Event:     desc.EventCommandStart,
		Phase:     desc.PhaseAfter,
		Procedure: voidProc("fn"),
	})
	if err == nil {
		t.Fatal("expected an AFTER trigger on the command-start event to be rejected")
	}

	// The matching pair registers as before.
	if _, err = store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Event:     desc.EventCommandStart,
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRegisterDuplicateName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	reg := func(command, name string) error {
		_, err := store.Register(ctx, &desc.Trigger{
			Command:   command,
			Name:      name,
			Phase:     desc.PhaseBefore,
			Procedure: boolProc("fn"),
		})
		return err
	}

	if err := reg("CREATE TABLE", "audit"); err != nil {
		t.Fatal(err)
	}

	if err := reg("CREATE TABLE", "audit"); !IsErrDuplicateName(err) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The same name under a different command class is allowed.
	if err := reg("DROP TABLE", "audit"); err != nil {
		t.Fatal(err)
	}
}

func TestStoreRegisterReturnContract(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	tests := []struct {
		phase desc.Phase
		proc  desc.Procedure
		valid bool
	}{
		{desc.PhaseBefore, boolProc("fn"), true},
		{desc.PhaseBefore, voidProc("fn"), false},
		{desc.PhaseInsteadOf, boolProc("fn"), true},
		{desc.PhaseInsteadOf, voidProc("fn"), false},
		{desc.PhaseAfter, voidProc("fn"), true},
		{desc.PhaseAfter, boolProc("fn"), false},
	}

	for i, tt := range tests {
		// A fresh class per case keeps the phase-conflict rule out of the way.
		command := fmt.Sprintf("ALTER DOMAIN %d", i)

		_, err := store.Register(ctx, &desc.Trigger{
			Command:   command,
			Name:      "t",
			Phase:     tt.phase,
			Procedure: tt.proc,
		})

		if tt.valid {
			if err != nil {
				t.Fatalf("[%d] expected %s with %s result to register, got %v", i, tt.phase, tt.proc.Returns, err)
			}
			continue
		}

		if !errors.Is(err, ErrInvalidReturnContract) {
			t.Fatalf("[%d] expected ErrInvalidReturnContract, got %v", i, err)
		}

		var contractErr *ContractError
		if !errors.As(err, &contractErr) {
			t.Fatalf("[%d] expected a *ContractError, got %T", i, err)
		}

		if contractErr.Declared != tt.proc.Returns {
			t.Fatalf("[%d] expected the declared type %q reported, got %q", i, tt.proc.Returns, contractErr.Declared)
		}
	}
}

func TestStoreRegisterPhaseConflict(t *testing.T) {
	ctx := context.Background()

	reg := func(store *Store, name string, phase desc.Phase) error {
		proc := boolProc("fn")
		if phase == desc.PhaseAfter {
			proc = voidProc("fn")
		}

		_, err := store.Register(ctx, &desc.Trigger{
			Command:   "CREATE VIEW",
			Name:      name,
			Phase:     phase,
			Procedure: proc,
		})
		return err
	}

	t.Run("instead_of rejects before", func(t *testing.T) {
		store := newTestStore()
		if err := reg(store, "replace", desc.PhaseInsteadOf); err != nil {
			t.Fatal(err)
		}

		err := reg(store, "check", desc.PhaseBefore)
		if !errors.Is(err, ErrConflictingPhase) {
			t.Fatalf("expected ErrConflictingPhase, got %v", err)
		}

		var conflictErr *ConflictError
		if !errors.As(err, &conflictErr) {
			t.Fatalf("expected a *ConflictError, got %T", err)
		}

		if conflictErr.Existing != "replace" {
			t.Fatalf("expected the existing trigger named, got %q", conflictErr.Existing)
		}
	})

	t.Run("after rejects instead_of", func(t *testing.T) {
		store := newTestStore()
		if err := reg(store, "log", desc.PhaseAfter); err != nil {
			t.Fatal(err)
		}

		if err := reg(store, "replace", desc.PhaseInsteadOf); !errors.Is(err, ErrConflictingPhase) {
			t.Fatalf("expected ErrConflictingPhase, got %v", err)
		}
	})

	t.Run("before and after coexist", func(t *testing.T) {
		store := newTestStore()
		if err := reg(store, "check", desc.PhaseBefore); err != nil {
			t.Fatal(err)
		}

		if err := reg(store, "log", desc.PhaseAfter); err != nil {
			t.Fatal(err)
		}
	})
}

func TestStoreRegisterNonCancellable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	// VACUUM commits incrementally, an AFTER trigger on it is rejected.
	_, err := store.Register(ctx, &desc.Trigger{
		Command:   "VACUUM",
		Name:      "log",
		Phase:     desc.PhaseAfter,
		Procedure: voidProc("fn"),
	})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand, got %v", err)
	}

	// A BEFORE trigger on the same command is fine.
	if _, err = store.Register(ctx, &desc.Trigger{
		Command:   "VACUUM",
		Name:      "gate",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	}); err != nil {
		t.Fatal(err)
	}
}

// captureLogger records the messages logged through it, for tests.
type captureLogger struct {
	messages []string
}

func (l *captureLogger) Log(_ context.Context, _ tracelog.LogLevel, msg string, _ map[string]any) {
	l.messages = append(l.messages, msg)
}

func TestStoreRegisterWarnedCommand(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	store := newTestStore().SetLogger(logger)

	// CREATE INDEX is warn-listed by default, a successful registration
	// logs the partial-capture warning.
	if _, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE INDEX",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	}); err != nil {
		t.Fatal(err)
	}

	if len(logger.messages) != 1 {
		t.Fatalf("expected one warning, got %d: %v", len(logger.messages), logger.messages)
	}

	// A rejected registration stays silent, the warning belongs to
	// definitions that actually made it into the catalog.
	if _, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE INDEX",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	}); !IsErrDuplicateName(err) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	if len(logger.messages) != 1 {
		t.Fatalf("expected no warning from the rejected registration, got %d", len(logger.messages))
	}
}

func TestStoreAuthorization(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	store.HandleAuthorization(func(context.Context) error {
		return errors.New("nope")
	})

	_, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if !errors.Is(err, ErrInsufficientPrivilege) {
		t.Fatalf("expected ErrInsufficientPrivilege, got %v", err)
	}

	if err = store.Drop(ctx, 1, false); !errors.Is(err, ErrInsufficientPrivilege) {
		t.Fatalf("expected ErrInsufficientPrivilege from Drop, got %v", err)
	}
}

func TestStoreDrop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err = store.Drop(ctx, id, false); err != nil {
		t.Fatal(err)
	}

	if err = store.Drop(ctx, id, false); !IsErrNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The missing-ok flag turns the second drop into a no-op.
	if err = store.Drop(ctx, id, true); err != nil {
		t.Fatal(err)
	}
}

func TestStoreLookupID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	// Lookups normalize the tag the same way registration does.
	got, err := store.LookupID(ctx, "create   table", "audit", false)
	if err != nil {
		t.Fatal(err)
	}

	if got != id {
		t.Fatalf("expected id %d, got %d", id, got)
	}

	if _, err = store.LookupID(ctx, "CREATE TABLE", "missing", false); !IsErrNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err = store.LookupID(ctx, "CREATE TABLE", "missing", true)
	if err != nil {
		t.Fatal(err)
	}

	if got != 0 {
		t.Fatalf("expected the zero id for a tolerated miss, got %d", got)
	}
}

func TestStoreRename(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	reg := func(name string) desc.TriggerID {
		t.Helper()
		id, err := store.Register(ctx, &desc.Trigger{
			Command:   "CREATE TABLE",
			Name:      name,
			Phase:     desc.PhaseBefore,
			Procedure: boolProc("fn"),
		})
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	id := reg("audit")
	reg("taken")

	if err := store.Rename(ctx, id, "taken", false); !IsErrDuplicateName(err) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	if err := store.Rename(ctx, id, "verify", false); err != nil {
		t.Fatal(err)
	}

	if _, err := store.LookupID(ctx, "CREATE TABLE", "verify", false); err != nil {
		t.Fatalf("expected the new name to resolve, got %v", err)
	}

	if err := store.Rename(ctx, 404, "whatever", true); err != nil {
		t.Fatalf("expected a tolerated miss, got %v", err)
	}
}

func TestStoreSetEnabledState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err = store.SetEnabledState(ctx, id, desc.FiresOnReplica); err != nil {
		t.Fatal(err)
	}

	got, err := store.catalog.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	if got.Enabled != desc.FiresOnReplica {
		t.Fatalf("expected FiresOnReplica, got %q", got.Enabled)
	}
}

func TestStoreDropProcedure(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	for i, command := range []string{"CREATE TABLE", "DROP TABLE", "ALTER TABLE"} {
		proc := boolProc("shared_fn")
		if i == 2 {
			proc = boolProc("other_fn")
		}

		if _, err := store.Register(ctx, &desc.Trigger{
			Command:   command,
			Name:      "audit",
			Phase:     desc.PhaseBefore,
			Procedure: proc,
		}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.DropProcedure(ctx, "shared_fn")
	if err != nil {
		t.Fatal(err)
	}

	if n != 2 {
		t.Fatalf("expected the cascade to remove 2 triggers, got %d", n)
	}

	left, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(left) != 1 || left[0].Command != "ALTER TABLE" {
		t.Fatalf("expected only the ALTER TABLE trigger to survive, got %+v", left)
	}
}

func TestStoreOnChange(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	var changes int
	store.OnChange(func() { changes++ })

	id, err := store.Register(ctx, &desc.Trigger{
		Command:   "CREATE TABLE",
		Name:      "audit",
		Phase:     desc.PhaseBefore,
		Procedure: boolProc("fn"),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err = store.Rename(ctx, id, "verify", false); err != nil {
		t.Fatal(err)
	}

	if err = store.SetEnabledState(ctx, id, desc.Disabled); err != nil {
		t.Fatal(err)
	}

	if err = store.Drop(ctx, id, false); err != nil {
		t.Fatal(err)
	}

	if changes != 4 {
		t.Fatalf("expected 4 change signals, got %d", changes)
	}

	// A failed mutation must not raise the signal.
	if err = store.Drop(ctx, id, false); !IsErrNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if n, err := store.DropProcedure(ctx, "missing_fn"); err != nil || n != 0 {
		t.Fatalf("expected an empty cascade, got %d, %v", n, err)
	}

	if changes != 4 {
		t.Fatalf("expected no signal from failed or empty mutations, got %d", changes)
	}
}
