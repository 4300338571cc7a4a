// Package lifecycle owns the contract state enumeration, the legal
// transition table and the gated transition manager.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// State is one value of the fixed contract lifecycle enumeration.
type State string

const (
	StateInitiated State = "INITIATED"
	StateDraft     State = "DRAFT"
	StateSigned    State = "SIGNED"
	StateNotary    State = "NOTARY"
	StateDispute   State = "DISPUTE"
	StateDone      State = "DONE" // terminal
)

// transitions is the full table of legal moves. DONE has no outgoing edges.
var transitions = map[State][]State{
	StateInitiated: {StateDraft, StateDone},
	StateDraft:     {StateSigned, StateDone},
	StateSigned:    {StateNotary, StateDispute, StateDone},
	StateNotary:    {StateDone, StateDispute},
	StateDispute:   {StateDone},
	StateDone:      {},
}

// ErrUnknownState rejects values outside the enumeration.
var ErrUnknownState = errors.New("unknown lifecycle state")

// ParseState validates a wire-format state value.
func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return st, nil
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0 && s.Valid()
}

// AllowedTargets returns the legal targets from s, in table order.
func AllowedTargets(from State) []State {
	targets := transitions[from]
	out := make([]State, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from → to is in the transition table.
func CanTransition(from, to State) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an attempted move outside the table,
// carrying the allowed set for remediation. Caller error, never retried.
type InvalidTransitionError struct {
	From    State
	To      State
	Allowed []State
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("transition %s -> %s is not allowed (allowed targets: %s)",
		e.From, e.To, strings.Join(allowed, ", "))
}

// StaleStateError reports that the caller's view of the current state no
// longer matches the stored one.
type StaleStateError struct {
	ContractID string
	Expected   State
	Actual     State
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("contract %s is in state %s, not %s", e.ContractID, e.Actual, e.Expected)
}

// NotEligibleError reports that document completeness blocks the transition.
type NotEligibleError struct {
	ContractID string
	From       State
	To         State
	Reasons    []string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("contract %s may not move %s -> %s: %s",
		e.ContractID, e.From, e.To, strings.Join(e.Reasons, "; "))
}
