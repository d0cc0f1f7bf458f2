package cmdtrigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/jackc/pgx/v5/pgtype"
)

// CallArgs is the positional argument list passed to a trigger procedure.
// All fields but When are nullable: a wildcard registration firing under
// ANY receives a null command tag and object identity is null until the
// target object is known. The Valid flags of the pgtype values carry the
// null information.
type CallArgs struct {
	When       string      // firing phase name: BEFORE, AFTER or INSTEAD OF.
	Tag        pgtype.Text // command tag, null for wildcard registrations.
	ObjectID   pgtype.Uint32
	SchemaName pgtype.Text
	ObjectName pgtype.Text

	// ParseTree is the command's internal structured representation,
	// an opaque handle passed only to ConventionExtended procedures.
	// It is never interpreted by this package.
	ParseTree any
	// Deparsed is the reconstructed textual form of the command, resolved
	// lazily and only for ConventionExtended procedures.
	Deparsed pgtype.Text
}

// Result is what a procedure invocation came back with. A null result from
// a boolean-contract procedure is treated as "do not veto".
type Result struct {
	Bool   bool // the boolean signal, meaningful when IsNull is false.
	IsNull bool // true when the procedure returned nothing.
}

// Invoker is the external procedure-call capability: given an opaque
// procedure reference and the typed argument list it runs the procedure
// and reports its result. An invocation may block arbitrarily long, it may
// itself run further commands; the engine never interrupts it forcefully.
type Invoker interface {
	Invoke(ctx context.Context, proc desc.Procedure, args CallArgs) (Result, error)
}

// ProcFunc is a Go-native trigger procedure hosted by a Registry.
type ProcFunc func(ctx context.Context, args CallArgs) (Result, error)

// Registry is an in-process Invoker backed by a map of named Go functions.
// It is the invocation mechanism used by embedders (and the package tests);
// hosts with their own procedure runtime implement Invoker directly.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]ProcFunc
}

var _ Invoker = (*Registry)(nil)

// NewRegistry creates and returns a new empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]ProcFunc)}
}

// Register makes fn callable under the given name, overwriting any previous
// registration of the same name.
func (r *Registry) Register(name string, fn ProcFunc) {
	r.mu.Lock()
	r.funcs[name] = fn
	r.mu.Unlock()
}

// Unregister removes the function registered under the given name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.funcs, name)
	r.mu.Unlock()
}

// Invoke implements the Invoker interface.
func (r *Registry) Invoke(ctx context.Context, proc desc.Procedure, args CallArgs) (Result, error) {
	r.mu.RLock()
	fn, ok := r.funcs[proc.Func]
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("procedure %q is not registered", proc.Func)
	}

	return fn(ctx, args)
}

// text returns a non-null pgtype.Text carrying the given string.
func text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: true}
}
