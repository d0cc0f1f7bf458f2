package cmdtrigger

import (
	"context"
	"sync"

	"github.com/kataras/cmdtrigger/desc"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/tracelog"
)

// ObjectIdentity describes the object a command targets. It is resolved
// lazily, at most once per firing pass, because a command with no
// registered triggers must pay nothing for identity work.
type ObjectIdentity struct {
	ObjectID   uint32 // zero when the object has no identifier yet.
	SchemaName string
	ObjectName string
}

// FiringContext is the per-command input of the dispatch engine. One is
// built by the command pipeline for each in-flight command and owned
// exclusively by that command's execution frame, it is never persisted
// and never shared across commands.
//
// ResolveObject and Deparse are optional lazy suppliers: the engine calls
// each at most once per firing pass, the first time a procedure in that
// pass needs the value. Leave them nil when the information does not exist
// for this command, procedures then receive nulls.
type FiringContext struct {
	// Tag is the precomputed command tag, e.g. "CREATE TABLE".
	Tag string
	// MatchAny controls whether wildcard (ANY) triggers also fire for
	// this command. NewFiringContext enables it.
	MatchAny bool
	// ParseTree is the command's internal structured representation,
	// opaque to this package, forwarded to extended-convention procedures.
	ParseTree any

	// ResolveObject supplies the target object's identity.
	ResolveObject func(ctx context.Context) (*ObjectIdentity, error)
	// Deparse supplies the reconstructed textual form of the command.
	Deparse func(ctx context.Context) (string, error)
}

// NewFiringContext creates a firing context for the given command tag,
// normalized to its canonical form, with wildcard matching enabled.
func NewFiringContext(tag string) *FiringContext {
	return &FiringContext{Tag: desc.NormalizeCommandTag(tag), MatchAny: true}
}

// Decision is the tagged outcome kind of a BEFORE / INSTEAD OF firing pass.
type Decision uint8

const (
	// Proceed lets the pipeline execute the real command.
	Proceed Decision = iota
	// Cancelled means a BEFORE procedure vetoed the command.
	Cancelled
	// Substituted means INSTEAD OF procedures replaced the command.
	Substituted
)

// String returns the decision's name.
func (d Decision) String() string {
	switch d {
	case Proceed:
		return "proceed"
	case Cancelled:
		return "cancelled"
	case Substituted:
		return "substituted"
	default:
		return "unknown"
	}
}

// FiringOutcome reports how a BEFORE / INSTEAD OF firing pass ended.
// A veto is a normal, successful outcome, not an error condition.
type FiringOutcome struct {
	Decision Decision
	// VetoedBy names the trigger whose procedure returned false,
	// set when Decision is Cancelled.
	VetoedBy string
	// InsteadOfCount is how many INSTEAD OF procedures executed,
	// set when Decision is Substituted.
	InsteadOfCount int
}

// ShouldProceed reports whether the pipeline must execute the real command.
func (o FiringOutcome) ShouldProceed() bool { return o.Decision == Proceed }

// workspace is the dedicated working-memory scope of one firing pass.
// It memoizes the lazily-resolved object identity and deparsed text and
// carries the argument scratch space, so N commands firing M procedures
// do not accumulate N×M garbage. Acquired from a pool when a pass has
// procedures to run and released deterministically when the pass ends,
// regardless of success, veto or error.
type workspace struct {
	obj     *ObjectIdentity
	objDone bool

	deparsed     pgtype.Text
	deparsedDone bool

	args CallArgs // rebuilt per procedure, backing storage reused.
}

var workspacePool = sync.Pool{
	New: func() any { return new(workspace) },
}

func acquireWorkspace() *workspace {
	return workspacePool.Get().(*workspace)
}

// release resets the workspace and returns it to the pool.
func (w *workspace) release() {
	*w = workspace{}
	workspacePool.Put(w)
}

// objectIdentity resolves the target object's identity at most once per pass.
func (w *workspace) objectIdentity(ctx context.Context, fc *FiringContext) (*ObjectIdentity, error) {
	if w.objDone {
		return w.obj, nil
	}

	w.objDone = true
	if fc.ResolveObject == nil {
		return nil, nil
	}

	obj, err := fc.ResolveObject(ctx)
	if err != nil {
		return nil, err
	}

	w.obj = obj
	return obj, nil
}

// deparsedForm reconstructs the command's text at most once per pass.
func (w *workspace) deparsedForm(ctx context.Context, fc *FiringContext) (pgtype.Text, error) {
	if w.deparsedDone {
		return w.deparsed, nil
	}

	w.deparsedDone = true
	if fc.Deparse == nil {
		return pgtype.Text{}, nil
	}

	s, err := fc.Deparse(ctx)
	if err != nil {
		return pgtype.Text{}, err
	}

	w.deparsed = text(s)
	return w.deparsed, nil
}

// FireBeforeOrInsteadOf resolves and runs the command-start firing pass.
//
// If any INSTEAD OF procedure is registered for the command's class the
// phase is forced to INSTEAD OF: every registered INSTEAD OF procedure runs
// in firing order (they do not short-circuit each other), BEFORE triggers
// are suppressed entirely and the outcome tells the pipeline to skip the
// real command. Otherwise the BEFORE procedures run in firing order until
// the first one answers false, a cooperative veto that cancels the command
// and is reported (not raised) through the outcome and the engine's logger.
//
// Command-specific procedures run before wildcard (ANY) ones; wildcard
// procedures receive a null command tag.
func (e *Engine) FireBeforeOrInsteadOf(ctx context.Context, fc *FiringContext) (FiringOutcome, error) {
	entry, err := e.lookup(ctx, fc, desc.EventCommandStart)
	if err != nil {
		return FiringOutcome{}, err
	}

	insteadOf := len(entry.InsteadOf) + len(entry.AnyInsteadOf)
	if insteadOf == 0 && len(entry.Before) == 0 && len(entry.AnyBefore) == 0 {
		return FiringOutcome{Decision: Proceed}, nil // nothing fires, zero cost.
	}

	ws := acquireWorkspace()
	defer ws.release()

	if insteadOf > 0 {
		// Substitution: all of them always run, even when BEFORE triggers
		// are also present, never both phases for the same command.
		if err := e.runAll(ctx, fc, ws, desc.PhaseInsteadOf, entry.InsteadOf, false); err != nil {
			return FiringOutcome{}, err
		}
		if err := e.runAll(ctx, fc, ws, desc.PhaseInsteadOf, entry.AnyInsteadOf, true); err != nil {
			return FiringOutcome{}, err
		}

		return FiringOutcome{Decision: Substituted, InsteadOfCount: insteadOf}, nil
	}

	vetoedBy, err := e.runBefore(ctx, fc, ws, entry.Before, false)
	if err != nil {
		return FiringOutcome{}, err
	}

	if vetoedBy == "" {
		vetoedBy, err = e.runBefore(ctx, fc, ws, entry.AnyBefore, true)
		if err != nil {
			return FiringOutcome{}, err
		}
	}

	if vetoedBy != "" {
		e.log(ctx, tracelog.LogLevelWarn, "command cancelled by BEFORE trigger", map[string]any{
			"trigger": vetoedBy,
			"command": fc.Tag,
		})

		return FiringOutcome{Decision: Cancelled, VetoedBy: vetoedBy}, nil
	}

	return FiringOutcome{Decision: Proceed}, nil
}

// FireAfter runs the command-end firing pass: every AFTER procedure in
// firing order, unconditionally, once the real command has completed.
// AFTER procedures cannot veto; a failure propagates as the command's own
// failure and aborts the remainder of the pass.
func (e *Engine) FireAfter(ctx context.Context, fc *FiringContext) error {
	entry, err := e.lookup(ctx, fc, desc.EventCommandEnd)
	if err != nil {
		return err
	}

	if len(entry.After) == 0 && len(entry.AnyAfter) == 0 {
		return nil // nothing fires, zero cost.
	}

	ws := acquireWorkspace()
	defer ws.release()

	if err := e.runAll(ctx, fc, ws, desc.PhaseAfter, entry.After, false); err != nil {
		return err
	}

	return e.runAll(ctx, fc, ws, desc.PhaseAfter, entry.AnyAfter, true)
}

// lookup resolves the cache entry for the firing context.
func (e *Engine) lookup(ctx context.Context, fc *FiringContext, event desc.Event) (*Entry, error) {
	entry, err := e.cache.Lookup(ctx, fc.Tag, event)
	if err != nil {
		return nil, err
	}

	if !fc.MatchAny { // the caller opted out of wildcard triggers.
		entry.AnyBefore, entry.AnyAfter, entry.AnyInsteadOf = nil, nil, nil
	}

	return entry, nil
}

// runAll invokes every listed procedure in order, ignoring boolean results.
func (e *Engine) runAll(ctx context.Context, fc *FiringContext, ws *workspace,
	phase desc.Phase, procs []FiringProc, fromAny bool) error {
	for _, fp := range procs {
		if _, err := e.call(ctx, fc, ws, phase, fp, fromAny); err != nil {
			return err
		}
	}

	return nil
}

// runBefore invokes the BEFORE procedures in order and returns the name of
// the first trigger whose procedure answered false, stopping there. A null
// or true result means "do not veto".
func (e *Engine) runBefore(ctx context.Context, fc *FiringContext, ws *workspace,
	procs []FiringProc, fromAny bool) (vetoedBy string, err error) {
	for _, fp := range procs {
		res, err := e.call(ctx, fc, ws, desc.PhaseBefore, fp, fromAny)
		if err != nil {
			return "", err
		}

		if !res.IsNull && !res.Bool {
			return fp.Trigger, nil
		}
	}

	return "", nil
}

// call builds the argument list and invokes one procedure.
func (e *Engine) call(ctx context.Context, fc *FiringContext, ws *workspace,
	phase desc.Phase, fp FiringProc, fromAny bool) (Result, error) {
	obj, err := ws.objectIdentity(ctx, fc)
	if err != nil {
		return Result{}, err
	}

	args := &ws.args
	*args = CallArgs{When: phase.String()}

	if !fromAny { // wildcard registrations receive a null command tag.
		args.Tag = text(fc.Tag)
	}

	if obj != nil {
		args.ObjectID = pgtype.Uint32{Uint32: obj.ObjectID, Valid: obj.ObjectID != 0}
		args.SchemaName = text(obj.SchemaName)
		args.ObjectName = text(obj.ObjectName)
	}

	if fp.Proc.Convention == desc.ConventionExtended {
		args.ParseTree = fc.ParseTree

		deparsed, err := ws.deparsedForm(ctx, fc)
		if err != nil {
			return Result{}, err
		}
		args.Deparsed = deparsed
	}

	res, err := e.invoker.Invoke(ctx, fp.Proc, *args)
	if err != nil {
		return Result{}, &ProcedureError{
			Trigger: fp.Trigger,
			Phase:   phase,
			Func:    fp.Proc.Func,
			Err:     err,
		}
	}

	return res, nil
}
