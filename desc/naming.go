package desc

import (
	"strings"

	"github.com/gertd/go-pluralize"
)

var p = pluralize.NewClient()

// RelationName returns the catalog relation name for the given entity name,
// e.g. "CmdTrigger" becomes "cmd_triggers".
func RelationName(entity string) string {
	return p.Plural(SnakeCase(entity))
}

// NormalizeCommandTag returns the canonical form of a command tag:
// upper-cased with single spaces, e.g. "create  table" becomes
// "CREATE TABLE". The wildcard AnyCommand normalizes to itself.
func NormalizeCommandTag(tag string) string {
	fields := strings.Fields(tag)
	for i, f := range fields {
		fields[i] = strings.ToUpper(f)
	}

	return strings.Join(fields, " ")
}

// DefaultTriggerName builds a conventional trigger name out of a firing
// phase and a command tag, e.g. "before_create_table". It is a suggestion
// only, callers are free to pick any unique name.
func DefaultTriggerName(phase Phase, tag string) string {
	var b strings.Builder

	switch phase {
	case PhaseBefore:
		b.WriteString("before")
	case PhaseAfter:
		b.WriteString("after")
	case PhaseInsteadOf:
		b.WriteString("instead_of")
	}

	for _, f := range strings.Fields(tag) {
		b.WriteRune('_')
		b.WriteString(strings.ToLower(f))
	}

	return b.String()
}

// SnakeCase converts a given string to a friendly snake case, e.g.
// - userId to user_id
// - ID     to id
// - CmdTrigger to cmd_trigger
// - Option to option
func SnakeCase(camel string) string {
	var (
		b            strings.Builder
		prevWasUpper bool
	)

	for i, c := range camel {
		if isUppercase(c) { // it's upper.
			if b.Len() > 0 && !prevWasUpper { // it's not the first and the previous was not uppercased too (e.g  "ID").
				b.WriteRune('_')
			} else { // check for XxxAPIKey, it should be written as xxx_api_key.
				next := i + 1
				if next > 1 && len(camel)-1 > next {
					if !isUppercase(rune(camel[next])) {
						b.WriteRune('_')
					}
				}
			}

			b.WriteRune(c - 'A' + 'a') // write its lowercase version.
			prevWasUpper = true
		} else {
			b.WriteRune(c) // write it as it is, it's already lowercased.
			prevWasUpper = false
		}
	}

	return b.String()
}

// isUppercase returns true if the given rune is uppercase.
func isUppercase(c rune) bool {
	return 'A' <= c && c <= 'Z'
}
