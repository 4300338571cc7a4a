// Package gate decides whether document-inventory completeness permits a
// lifecycle transition. It is a pure query layer: no mutation, no side
// effects, and blocking reasons are results, not errors.
package gate

import (
	"context"
	"fmt"

	"pactum.org/internal/inventory"
	"pactum.org/internal/lifecycle"
)

// Rule declares the document-completeness conditions for one transition.
// Conditions compose independently; all failures are collected.
type Rule struct {
	From lifecycle.State
	To   lifecycle.State

	// RequireGroupsValidated lists groups whose mandatory items must all
	// be VALIDATED.
	RequireGroupsValidated []string
	// RequireTypes lists item types that must exist and be VALIDATED.
	RequireTypes []string
	// MinValidated is the minimum count of VALIDATED items contract-wide.
	MinValidated int
}

// Result is the full eligibility answer, including everything the caller
// needs to present a remediation list.
type Result struct {
	ContractID      string           `json:"contract_id"`
	From            lifecycle.State  `json:"from"`
	TargetState     lifecycle.State  `json:"target_state,omitempty"`
	CanAdvance      bool             `json:"can_advance"`
	BlockingReasons []string         `json:"blocking_reasons,omitempty"`
	PendingItems    []inventory.Item `json:"pending_items,omitempty"`
}

// DefaultRules mirrors the lifecycle table's primary advancement path.
func DefaultRules() []Rule {
	return []Rule{
		{From: lifecycle.StateInitiated, To: lifecycle.StateDraft,
			RequireTypes: []string{"TERMS_SHEET"}},
		{From: lifecycle.StateDraft, To: lifecycle.StateSigned,
			RequireGroupsValidated: []string{"contract"}, MinValidated: 2},
		{From: lifecycle.StateSigned, To: lifecycle.StateNotary,
			RequireGroupsValidated: []string{"identity"}, RequireTypes: []string{"SIGNED_CONTRACT"}},
		{From: lifecycle.StateSigned, To: lifecycle.StateDone,
			RequireGroupsValidated: []string{"contract", "identity"}},
		{From: lifecycle.StateNotary, To: lifecycle.StateDone,
			RequireTypes: []string{"NOTARY_DEED"}, MinValidated: 3},
		{From: lifecycle.StateDispute, To: lifecycle.StateDone},
	}
}

// Gate evaluates eligibility rules against current inventory state.
type Gate struct {
	store inventory.Store
	rules []Rule
}

// New constructs a Gate; rules defaults to DefaultRules when empty.
func New(store inventory.Store, rules ...Rule) *Gate {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Gate{store: store, rules: rules}
}

// CheckEligibility evaluates the rule for (from → to). When to is nil the
// first declared rule for `from` decides the target. A terminal from-state
// can never advance. Transitions without a declared rule carry no document
// conditions.
func (g *Gate) CheckEligibility(ctx context.Context, contractID string, from lifecycle.State, to *lifecycle.State) (Result, error) {
	result := Result{ContractID: contractID, From: from}

	if from.Terminal() {
		result.BlockingReasons = []string{fmt.Sprintf("state %s is terminal and has no outgoing transitions", from)}
		return result, nil
	}

	rule, ok := g.ruleFor(from, to)
	if !ok {
		if to == nil {
			result.BlockingReasons = []string{fmt.Sprintf("no advancement rule declared for state %s", from)}
			return result, nil
		}
		// A declared-rule miss means no document conditions apply.
		result.TargetState = *to
		result.CanAdvance = true
		return result, nil
	}
	result.TargetState = rule.To

	items, err := g.store.ListItems(ctx, contractID)
	if err != nil {
		return Result{}, err
	}

	g.checkGroups(rule, items, &result)
	g.checkTypes(rule, items, &result)
	g.checkMinValidated(rule, items, &result)

	result.CanAdvance = len(result.BlockingReasons) == 0
	return result, nil
}

// Eligible adapts the gate to the lifecycle manager's checker interface.
func (g *Gate) Eligible(ctx context.Context, contractID string, from, to lifecycle.State) (bool, []string, error) {
	result, err := g.CheckEligibility(ctx, contractID, from, &to)
	if err != nil {
		return false, nil, err
	}
	return result.CanAdvance, result.BlockingReasons, nil
}

func (g *Gate) ruleFor(from lifecycle.State, to *lifecycle.State) (Rule, bool) {
	for _, rule := range g.rules {
		if rule.From != from {
			continue
		}
		if to == nil || rule.To == *to {
			return rule, true
		}
	}
	return Rule{}, false
}

func (g *Gate) checkGroups(rule Rule, items []inventory.Item, result *Result) {
	for _, group := range rule.RequireGroupsValidated {
		missing := 0
		for _, item := range items {
			if item.Group != group || !item.Mandatory {
				continue
			}
			if item.Status != inventory.StatusValidated {
				missing++
				result.PendingItems = appendPending(result.PendingItems, item)
			}
		}
		if missing > 0 {
			result.BlockingReasons = append(result.BlockingReasons,
				fmt.Sprintf("group %q: %d mandatory document(s) not validated", group, missing))
		}
	}
}

func (g *Gate) checkTypes(rule Rule, items []inventory.Item, result *Result) {
	for _, typ := range rule.RequireTypes {
		var found *inventory.Item
		for i := range items {
			if items[i].Type == typ {
				found = &items[i]
				break
			}
		}
		switch {
		case found == nil:
			result.BlockingReasons = append(result.BlockingReasons,
				fmt.Sprintf("required document %s does not exist", typ))
		case found.Status != inventory.StatusValidated:
			result.BlockingReasons = append(result.BlockingReasons,
				fmt.Sprintf("required document %s is %s, not VALIDATED", typ, found.Status))
			result.PendingItems = appendPending(result.PendingItems, *found)
		}
	}
}

func (g *Gate) checkMinValidated(rule Rule, items []inventory.Item, result *Result) {
	if rule.MinValidated <= 0 {
		return
	}
	validated := 0
	for _, item := range items {
		if item.Status == inventory.StatusValidated {
			validated++
		}
	}
	if validated < rule.MinValidated {
		result.BlockingReasons = append(result.BlockingReasons,
			fmt.Sprintf("only %d of %d required validated document(s) present", validated, rule.MinValidated))
	}
}

func appendPending(pending []inventory.Item, item inventory.Item) []inventory.Item {
	for _, p := range pending {
		if p.ID == item.ID {
			return pending
		}
	}
	return append(pending, item)
}
