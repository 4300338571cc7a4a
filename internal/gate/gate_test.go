package gate

import (
	"context"
	"strings"
	"testing"

	"pactum.org/internal/inventory"
	"pactum.org/internal/lifecycle"
)

func seedItem(t *testing.T, store *inventory.MemStore, id, typ, group, status string, mandatory bool) {
	t.Helper()
	err := store.PutItem(context.Background(), inventory.Item{
		ID:         id,
		ContractID: "c-1",
		Type:       typ,
		Group:      group,
		Mandatory:  mandatory,
		Status:     status,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestTerminalStateNeverAdvances(t *testing.T) {
	g := New(inventory.NewMemStore())
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateDone, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.CanAdvance {
		t.Fatal("DONE must report canAdvance=false unconditionally")
	}
	if len(result.BlockingReasons) == 0 || !strings.Contains(result.BlockingReasons[0], "terminal") {
		t.Fatalf("reasons = %v", result.BlockingReasons)
	}
}

func TestMinValidatedShortfallOnEmptyInventory(t *testing.T) {
	g := New(inventory.NewMemStore(), Rule{
		From:         lifecycle.StateNotary,
		To:           lifecycle.StateDone,
		MinValidated: 3,
	})
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateNotary, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.CanAdvance {
		t.Fatal("empty inventory cannot satisfy minValidated=3")
	}
	found := false
	for _, reason := range result.BlockingReasons {
		if strings.Contains(reason, "0 of 3") {
			found = true
		}
	}
	if !found {
		t.Fatalf("no reason references the shortfall: %v", result.BlockingReasons)
	}
}

func TestAllConditionsCollectedNotShortCircuited(t *testing.T) {
	store := inventory.NewMemStore()
	seedItem(t, store, "itm_1", "SIGNED_CONTRACT", "contract", inventory.StatusSubmitted, true)
	seedItem(t, store, "itm_2", "ID_PROOF_BUYER", "identity", inventory.StatusPending, true)

	g := New(store, Rule{
		From:                   lifecycle.StateDraft,
		To:                     lifecycle.StateSigned,
		RequireGroupsValidated: []string{"contract", "identity"},
		RequireTypes:           []string{"SIGNED_CONTRACT", "NOTARY_DEED"},
		MinValidated:           1,
	})
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateDraft, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.CanAdvance {
		t.Fatal("expected blocked")
	}
	// two failing groups + one not-validated type + one missing type + min shortfall
	if len(result.BlockingReasons) != 5 {
		t.Fatalf("expected all 5 failing conditions collected, got %d: %v",
			len(result.BlockingReasons), result.BlockingReasons)
	}
	if len(result.PendingItems) != 2 {
		t.Fatalf("pending items = %+v", result.PendingItems)
	}
}

func TestEligibleWhenConditionsMet(t *testing.T) {
	store := inventory.NewMemStore()
	seedItem(t, store, "itm_1", "TERMS_SHEET", "contract", inventory.StatusValidated, true)
	seedItem(t, store, "itm_2", "SIGNED_CONTRACT", "contract", inventory.StatusValidated, true)

	g := New(store, Rule{
		From:                   lifecycle.StateDraft,
		To:                     lifecycle.StateSigned,
		RequireGroupsValidated: []string{"contract"},
		MinValidated:           2,
	})
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateDraft, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CanAdvance {
		t.Fatalf("expected eligible, blocked by %v", result.BlockingReasons)
	}
	if result.TargetState != lifecycle.StateSigned {
		t.Fatalf("target = %s", result.TargetState)
	}
}

func TestOptionalItemsDoNotBlockGroups(t *testing.T) {
	store := inventory.NewMemStore()
	seedItem(t, store, "itm_1", "ID_PROOF_BUYER", "identity", inventory.StatusValidated, true)
	seedItem(t, store, "itm_2", "POWER_OF_ATTORNEY", "identity", inventory.StatusPending, false)

	g := New(store, Rule{
		From:                   lifecycle.StateSigned,
		To:                     lifecycle.StateNotary,
		RequireGroupsValidated: []string{"identity"},
	})
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateSigned, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CanAdvance {
		t.Fatalf("optional pending item blocked the group: %v", result.BlockingReasons)
	}
}

func TestExplicitTargetSelectsRule(t *testing.T) {
	store := inventory.NewMemStore()
	g := New(store,
		Rule{From: lifecycle.StateSigned, To: lifecycle.StateNotary, RequireTypes: []string{"NOTARY_DEED"}},
		Rule{From: lifecycle.StateSigned, To: lifecycle.StateDone},
	)
	to := lifecycle.StateDone
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateSigned, &to)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CanAdvance || result.TargetState != lifecycle.StateDone {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUndeclaredTransitionHasNoConditions(t *testing.T) {
	g := New(inventory.NewMemStore(), Rule{From: lifecycle.StateInitiated, To: lifecycle.StateDraft})
	to := lifecycle.StateDone
	result, err := g.CheckEligibility(context.Background(), "c-1", lifecycle.StateInitiated, &to)
	if err != nil {
		t.Fatal(err)
	}
	if !result.CanAdvance {
		t.Fatalf("undeclared transition should carry no document conditions: %+v", result)
	}
}

func TestDefaultRulesCoverPrimaryPath(t *testing.T) {
	froms := map[lifecycle.State]bool{}
	for _, rule := range DefaultRules() {
		froms[rule.From] = true
		if !lifecycle.CanTransition(rule.From, rule.To) {
			t.Errorf("default rule %s -> %s is structurally illegal", rule.From, rule.To)
		}
	}
	for _, from := range []lifecycle.State{lifecycle.StateInitiated, lifecycle.StateDraft, lifecycle.StateSigned, lifecycle.StateNotary, lifecycle.StateDispute} {
		if !froms[from] {
			t.Errorf("no default rule declared for %s", from)
		}
	}
}
