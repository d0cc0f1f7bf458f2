package desc

import (
	"fmt"
	"strings"
)

// AnyCommand is the wildcard command class. A trigger registered on
// AnyCommand fires for every command in addition to the command-specific
// triggers, see the cache lookup documentation on the root package.
const AnyCommand = "ANY"

// TriggerID is the catalog identifier of a registered trigger.
// Zero is never a valid identifier.
type TriggerID int64

// Phase is the moment a trigger runs relative to the real command.
// The values are the single characters persisted in the catalog row.
type Phase byte

const (
	// PhaseBefore fires before the real command. Its procedure returns a
	// boolean: false is a cooperative veto that cancels the command.
	PhaseBefore Phase = 'B'
	// PhaseAfter fires after the real command completed. Its procedure
	// returns nothing and can never veto.
	PhaseAfter Phase = 'A'
	// PhaseInsteadOf replaces the real command entirely.
	PhaseInsteadOf Phase = 'I'
)

// String returns the phase's name as passed to trigger procedures.
func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "BEFORE"
	case PhaseAfter:
		return "AFTER"
	case PhaseInsteadOf:
		return "INSTEAD OF"
	default:
		return fmt.Sprintf("Phase(%q)", byte(p))
	}
}

// IsValid reports whether the phase is one of the known firing phases.
func (p Phase) IsValid() bool {
	return p == PhaseBefore || p == PhaseAfter || p == PhaseInsteadOf
}

// ParsePhase returns the Phase described by the given text, e.g. "BEFORE",
// "after" or "instead of".
func ParsePhase(s string) (Phase, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BEFORE", "B":
		return PhaseBefore, nil
	case "AFTER", "A":
		return PhaseAfter, nil
	case "INSTEAD OF", "INSTEAD_OF", "INSTEADOF", "I":
		return PhaseInsteadOf, nil
	default:
		return 0, fmt.Errorf("unknown firing phase: %q", s)
	}
}

// EnabledState is the trigger's firing configuration with respect to the
// session replication role. The values are the single characters persisted
// in the catalog row.
type EnabledState byte

const (
	// Enabled fires regardless of the session replication role.
	Enabled EnabledState = 'A'
	// Disabled never fires.
	Disabled EnabledState = 'D'
	// FiresOnOrigin fires only when the session role is origin or local.
	FiresOnOrigin EnabledState = 'O'
	// FiresOnReplica fires only when the session role is replica.
	FiresOnReplica EnabledState = 'R'
)

// String returns the state's name as accepted by ParseEnabledState.
func (s EnabledState) String() string {
	switch s {
	case Enabled:
		return "ENABLED"
	case Disabled:
		return "DISABLED"
	case FiresOnOrigin:
		return "FIRES_ON_ORIGIN"
	case FiresOnReplica:
		return "FIRES_ON_REPLICA"
	default:
		return fmt.Sprintf("EnabledState(%q)", byte(s))
	}
}

// IsValid reports whether the state is one of the known firing configurations.
func (s EnabledState) IsValid() bool {
	switch s {
	case Enabled, Disabled, FiresOnOrigin, FiresOnReplica:
		return true
	default:
		return false
	}
}

// ParseEnabledState returns the EnabledState described by the given text.
func ParseEnabledState(s string) (EnabledState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ENABLED", "ALWAYS", "A":
		return Enabled, nil
	case "DISABLED", "D":
		return Disabled, nil
	case "FIRES_ON_ORIGIN", "ORIGIN", "O":
		return FiresOnOrigin, nil
	case "FIRES_ON_REPLICA", "REPLICA", "R":
		return FiresOnReplica, nil
	default:
		return 0, fmt.Errorf("unknown enabled state: %q", s)
	}
}

// ReplicationRole is the session's runtime replication role which,
// combined with the trigger's EnabledState, decides whether the trigger
// fires at all.
type ReplicationRole byte

const (
	// RoleOrigin is the ordinary local execution role.
	RoleOrigin ReplicationRole = 'O'
	// RoleLocal behaves like origin for trigger firing purposes.
	RoleLocal ReplicationRole = 'L'
	// RoleReplica is the replica-applied execution role.
	RoleReplica ReplicationRole = 'R'
)

// String returns the role's name as accepted by ParseReplicationRole.
func (r ReplicationRole) String() string {
	switch r {
	case RoleOrigin:
		return "origin"
	case RoleLocal:
		return "local"
	case RoleReplica:
		return "replica"
	default:
		return fmt.Sprintf("ReplicationRole(%q)", byte(r))
	}
}

// ParseReplicationRole returns the ReplicationRole described by the given text.
// An empty string maps to the origin role.
func ParseReplicationRole(s string) (ReplicationRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "origin", "":
		return RoleOrigin, nil
	case "local":
		return RoleLocal, nil
	case "replica":
		return RoleReplica, nil
	default:
		return 0, fmt.Errorf("unknown replication role: %q", s)
	}
}

// Fires reports whether a trigger with this state fires under the given
// session replication role.
func (s EnabledState) Fires(role ReplicationRole) bool {
	switch s {
	case Disabled:
		return false
	case Enabled:
		return true
	case FiresOnReplica:
		return role == RoleReplica
	case FiresOnOrigin:
		return role == RoleOrigin || role == RoleLocal
	default:
		return false
	}
}

// Event is the lifecycle moment a trigger subscribes to, distinct from
// the firing phase.
type Event string

const (
	// EventCommandStart is raised before the real command executes.
	// It hosts the BEFORE and INSTEAD OF firing passes.
	EventCommandStart Event = "ddl_command_start"
	// EventCommandEnd is raised once the real command completed.
	// It hosts the AFTER firing pass.
	EventCommandEnd Event = "ddl_command_end"
)

// Hosts reports whether the event's firing pass runs the given phase:
// command start hosts BEFORE and INSTEAD OF, command end hosts AFTER.
func (e Event) Hosts(p Phase) bool {
	switch e {
	case EventCommandStart:
		return p == PhaseBefore || p == PhaseInsteadOf
	case EventCommandEnd:
		return p == PhaseAfter
	default:
		return false
	}
}

// ReturnType is a trigger procedure's declared return contract.
type ReturnType byte

const (
	// ReturnBoolean declares a boolean result, required for BEFORE and
	// INSTEAD OF procedures where false means "do not proceed".
	ReturnBoolean ReturnType = 'b'
	// ReturnVoid declares no result, required for AFTER procedures.
	ReturnVoid ReturnType = 'v'
)

// String returns the contract's name.
func (r ReturnType) String() string {
	switch r {
	case ReturnBoolean:
		return "boolean"
	case ReturnVoid:
		return "void"
	default:
		return fmt.Sprintf("ReturnType(%q)", byte(r))
	}
}

// Convention is a trigger procedure's calling convention. It is resolved
// once at registration time, never re-detected per call.
type Convention byte

const (
	// ConventionStandard receives: phase, command tag, object id,
	// schema name and object name.
	ConventionStandard Convention = 's'
	// ConventionExtended receives the standard arguments plus the
	// command's internal structured representation as an opaque handle.
	ConventionExtended Convention = 'x'
)

// Procedure is an opaque reference to a callable trigger procedure
// together with its declared contracts. The invocation mechanism itself is
// external, see the root package's Invoker interface.
type Procedure struct {
	// Func identifies the procedure at the invoker, e.g. a function name.
	Func string
	// Returns is the declared return contract.
	Returns ReturnType
	// Convention is the declared calling convention.
	Convention Convention
}

// SatisfiesContract reports whether the procedure's declared return type
// matches the given phase's contract: BEFORE and INSTEAD OF procedures
// must return a boolean signal, AFTER procedures must return nothing.
func (p Procedure) SatisfiesContract(phase Phase) bool {
	switch phase {
	case PhaseBefore, PhaseInsteadOf:
		return p.Returns == ReturnBoolean
	case PhaseAfter:
		return p.Returns == ReturnVoid
	default:
		return false
	}
}

// Trigger represents a single command trigger definition, one catalog row.
// The Name is unique within its Command class. Definitions are created by
// an explicit registration, mutated by enable/disable and rename and
// destroyed by an explicit drop or by cascading removal of the procedure.
type Trigger struct {
	ID        TriggerID    // assigned by the catalog on insert.
	Command   string       // command tag (e.g. "CREATE TABLE") or AnyCommand.
	Name      string       // trigger name, unique per command class.
	Event     Event        // lifecycle moment the trigger subscribes to.
	Phase     Phase        // BEFORE, AFTER or INSTEAD OF.
	Procedure Procedure    // the procedure to call.
	Enabled   EnabledState // firing configuration.
}

// Validate checks the field-level invariants of the definition.
// Cross-definition rules (duplicate names, phase conflicts) belong to the
// registration layer which can see the rest of the catalog.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("trigger: empty name")
	}

	if strings.TrimSpace(t.Command) == "" {
		return fmt.Errorf("trigger %q: empty command class", t.Name)
	}

	if t.Event == "" {
		return fmt.Errorf("trigger %q: empty event", t.Name)
	}

	if !t.Phase.IsValid() {
		return fmt.Errorf("trigger %q: invalid firing phase", t.Name)
	}

	if !t.Event.Hosts(t.Phase) {
		// A mismatched pair would never be reached by any firing pass.
		return fmt.Errorf("trigger %q: event %q does not host the %s phase", t.Name, t.Event, t.Phase)
	}

	if strings.TrimSpace(t.Procedure.Func) == "" {
		return fmt.Errorf("trigger %q: empty procedure reference", t.Name)
	}

	if !t.Enabled.IsValid() {
		return fmt.Errorf("trigger %q: invalid enabled state", t.Name)
	}

	return nil
}

// IsWildcard reports whether the trigger is registered on the wildcard
// command class and matches every command.
func (t *Trigger) IsWildcard() bool {
	return t.Command == AnyCommand
}
