package lifecycle

import (
	"context"
	"errors"
	"sync"

	"pactum.org/internal/ledger"
)

// StateStore holds the scalar lifecycle state per contract.
type StateStore interface {
	ContractState(ctx context.Context, contractID string) (State, error)
	SetContractState(ctx context.Context, contractID string, state State) error
}

// ErrContractNotFound is returned for contracts without a stored state.
var ErrContractNotFound = errors.New("contract not found")

// Recorder appends a ledger event; satisfied by ledger.Appender.
type Recorder interface {
	Append(ctx context.Context, contractID string, kind ledger.Kind, payload any) (ledger.Receipt, error)
}

// EligibilityChecker answers whether document completeness permits the
// transition; satisfied by gate.Gate.
type EligibilityChecker interface {
	Eligible(ctx context.Context, contractID string, from, to State) (bool, []string, error)
}

// Manager executes validated, gated, ledgered state transitions. State is
// never mutated silently: every successful transition appends a
// STATE_TRANSITIONED event before the new state is stored.
type Manager struct {
	states   StateStore
	gate     EligibilityChecker
	recorder Recorder

	// Transition serialization per contract, mirroring the appender's
	// per-contract critical section.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager constructs a Manager.
func NewManager(states StateStore, gate EligibilityChecker, recorder Recorder) *Manager {
	return &Manager{
		states:   states,
		gate:     gate,
		recorder: recorder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ErrContractExists rejects initialising a contract that already has a state.
var ErrContractExists = errors.New("contract already initialised")

// InitContract registers a new contract in its starting state.
func (m *Manager) InitContract(ctx context.Context, contractID string) error {
	mu := m.contractLock(contractID)
	mu.Lock()
	defer mu.Unlock()

	_, err := m.states.ContractState(ctx, contractID)
	if err == nil {
		return ErrContractExists
	}
	if !errors.Is(err, ErrContractNotFound) {
		return err
	}
	return m.states.SetContractState(ctx, contractID, StateInitiated)
}

// CurrentState reads the stored lifecycle state of a contract.
func (m *Manager) CurrentState(ctx context.Context, contractID string) (State, error) {
	return m.states.ContractState(ctx, contractID)
}

func (m *Manager) contractLock(contractID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.locks[contractID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[contractID] = mu
	}
	return mu
}

// Transition moves the contract from `from` to `to`. Order of checks:
// structural legality (transition table), stored-state freshness,
// eligibility gate. A failed check produces no side effect.
func (m *Manager) Transition(ctx context.Context, contractID string, from, to State) (ledger.Receipt, error) {
	if !from.Valid() {
		return ledger.Receipt{}, ErrUnknownState
	}
	if !to.Valid() {
		return ledger.Receipt{}, ErrUnknownState
	}
	if !CanTransition(from, to) {
		return ledger.Receipt{}, &InvalidTransitionError{From: from, To: to, Allowed: AllowedTargets(from)}
	}

	mu := m.contractLock(contractID)
	mu.Lock()
	defer mu.Unlock()

	current, err := m.states.ContractState(ctx, contractID)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if current != from {
		return ledger.Receipt{}, &StaleStateError{ContractID: contractID, Expected: from, Actual: current}
	}

	ok, reasons, err := m.gate.Eligible(ctx, contractID, from, to)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if !ok {
		return ledger.Receipt{}, &NotEligibleError{ContractID: contractID, From: from, To: to, Reasons: reasons}
	}

	receipt, err := m.recorder.Append(ctx, contractID, ledger.KindStateTransitioned, map[string]any{
		"from": string(from),
		"to":   string(to),
	})
	if err != nil {
		return ledger.Receipt{}, err
	}

	if err := m.states.SetContractState(ctx, contractID, to); err != nil {
		// The ledger already holds the transition fact; a failed state
		// write must surface so the caller reconciles, never be swallowed.
		return receipt, err
	}
	return receipt, nil
}

// MemStateStore is the in-memory StateStore used by tests and the stub
// deployment.
type MemStateStore struct {
	mu     sync.RWMutex
	states map[string]State
}

var _ StateStore = (*MemStateStore)(nil)

// NewMemStateStore creates an empty state store.
func NewMemStateStore() *MemStateStore {
	return &MemStateStore{states: make(map[string]State)}
}

func (s *MemStateStore) ContractState(ctx context.Context, contractID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[contractID]
	if !ok {
		return "", ErrContractNotFound
	}
	return st, nil
}

func (s *MemStateStore) SetContractState(ctx context.Context, contractID string, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[contractID] = state
	return nil
}
