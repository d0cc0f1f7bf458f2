package cmdtrigger

import (
	"errors"
	"fmt"

	"github.com/kataras/cmdtrigger/desc"
)

var (
	// ErrDuplicateName is fired from Register and Rename when a trigger
	// with the same name already exists for the same command class.
	//
	// This error should be compared using errors.Is() or the IsErrDuplicateName
	// package-level function.
	ErrDuplicateName = errors.New("trigger already exists")
	// ErrNotFound is fired from Drop, Rename, SetEnabledState and LookupID
	// when no trigger matches, unless the caller passed the missing-ok flag.
	ErrNotFound = errors.New("trigger does not exist")
	// ErrConflictingPhase is fired from Register when an INSTEAD OF trigger
	// would coexist with a BEFORE or AFTER one on the same command class,
	// or the other way around.
	ErrConflictingPhase = errors.New("conflicting firing phase")
	// ErrInvalidReturnContract is fired from Register when the procedure's
	// declared return type does not match the phase's contract.
	ErrInvalidReturnContract = errors.New("invalid procedure return contract")
	// ErrInsufficientPrivilege is fired from any registration operation
	// when the caller is not authorized to manage command triggers.
	ErrInsufficientPrivilege = errors.New("must be superuser to use command triggers")
	// ErrUnsupportedCommand is fired from Register when an AFTER trigger
	// targets a command that commits incrementally and cannot be rolled
	// back, so firing it transactionally would be a lie.
	ErrUnsupportedCommand = errors.New("command triggers are not supported on this command")
)

// IsErrDuplicateName reports whether the error is ErrDuplicateName.
func IsErrDuplicateName(err error) bool {
	return errors.Is(err, ErrDuplicateName)
}

// IsErrNotFound reports whether the error is ErrNotFound.
func IsErrNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ConflictError carries the details of an ErrConflictingPhase rejection.
// Compare with errors.As().
type ConflictError struct {
	Command  string     // the command class both triggers target.
	Phase    desc.Phase // the phase being registered.
	Existing string     // the name of the already-registered trigger.
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s trigger on %s: %v with existing trigger %q",
		e.Phase, e.Command, ErrConflictingPhase, e.Existing)
}

// Unwrap makes the error match ErrConflictingPhase under errors.Is.
func (e *ConflictError) Unwrap() error { return ErrConflictingPhase }

// ContractError carries the details of an ErrInvalidReturnContract rejection.
// Compare with errors.As().
type ContractError struct {
	Name     string          // the trigger being registered.
	Phase    desc.Phase      // the phase being registered.
	Declared desc.ReturnType // the procedure's declared return type.
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	want := "boolean"
	if e.Phase == desc.PhaseAfter {
		want = "void"
	}

	return fmt.Sprintf("trigger %q: %v: %s procedure must return type %q, declared %q",
		e.Name, ErrInvalidReturnContract, e.Phase, want, e.Declared)
}

// Unwrap makes the error match ErrInvalidReturnContract under errors.Is.
func (e *ContractError) Unwrap() error { return ErrInvalidReturnContract }

// ProcedureError wraps whatever a trigger procedure raised during a firing
// pass. It aborts the remainder of the pass and propagates to the pipeline
// as the command's own failure. Compare with errors.As().
type ProcedureError struct {
	Trigger string     // the trigger whose procedure failed.
	Phase   desc.Phase // the phase it fired at.
	Func    string     // the procedure reference.
	Err     error      // what the procedure raised.
}

// Error implements the error interface.
func (e *ProcedureError) Error() string {
	return fmt.Sprintf("%s trigger %q: procedure %q: %v", e.Phase, e.Trigger, e.Func, e.Err)
}

// Unwrap returns the procedure's own error.
func (e *ProcedureError) Unwrap() error { return e.Err }
