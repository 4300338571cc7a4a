package inventory

import (
	"context"
	"fmt"

	"pactum.org/internal/ids"
	"pactum.org/internal/ledger"
)

// Recorder appends a ledger event; satisfied by ledger.Appender.
type Recorder interface {
	Append(ctx context.Context, contractID string, kind ledger.Kind, payload any) (ledger.Receipt, error)
}

// ContractAttrs are the contract attributes that decide which conditional
// document slots get seeded.
type ContractAttrs struct {
	Notarized bool `json:"notarized"`
	Financed  bool `json:"financed"`
}

// itemSpec declares one slot of the seeded inventory.
type itemSpec struct {
	Type            string
	Group           string
	ResponsibleRole string
	Mandatory       bool
}

var baseItems = []itemSpec{
	{Type: "TERMS_SHEET", Group: "contract", ResponsibleRole: "seller", Mandatory: true},
	{Type: "SIGNED_CONTRACT", Group: "contract", ResponsibleRole: "seller", Mandatory: true},
	{Type: "ID_PROOF_BUYER", Group: "identity", ResponsibleRole: "buyer", Mandatory: true},
	{Type: "ID_PROOF_SELLER", Group: "identity", ResponsibleRole: "seller", Mandatory: true},
	{Type: "POWER_OF_ATTORNEY", Group: "identity", ResponsibleRole: "buyer", Mandatory: false},
}

// Service mutates inventory state and records every mutation on the ledger.
type Service struct {
	store    Store
	recorder Recorder
}

// NewService constructs a Service.
func NewService(store Store, recorder Recorder) *Service {
	return &Service{store: store, recorder: recorder}
}

// InitContract seeds the fixed base set plus the conditional items implied
// by the contract attributes. All items start PENDING.
func (s *Service) InitContract(ctx context.Context, contractID string, attrs ContractAttrs) ([]Item, error) {
	specs := make([]itemSpec, len(baseItems))
	copy(specs, baseItems)
	if attrs.Notarized {
		specs = append(specs, itemSpec{Type: "NOTARY_DEED", Group: "notary", ResponsibleRole: "notary", Mandatory: true})
	}
	if attrs.Financed {
		specs = append(specs, itemSpec{Type: "LOAN_AGREEMENT", Group: "finance", ResponsibleRole: "buyer", Mandatory: true})
	}

	items := make([]Item, 0, len(specs))
	for _, spec := range specs {
		item := Item{
			ID:              ids.NewItem(),
			ContractID:      contractID,
			Type:            spec.Type,
			Group:           spec.Group,
			ResponsibleRole: spec.ResponsibleRole,
			Mandatory:       spec.Mandatory,
			Status:          StatusPending,
		}
		if err := s.store.PutItem(ctx, item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// List returns all items of a contract.
func (s *Service) List(ctx context.Context, contractID string) ([]Item, error) {
	return s.store.ListItems(ctx, contractID)
}

// Submit marks a pending or previously rejected item as submitted.
func (s *Service) Submit(ctx context.Context, contractID, itemID string, documentHash string) (Item, error) {
	return s.changeStatus(ctx, contractID, itemID, StatusSubmitted, ledger.KindDocumentSubmitted,
		map[string]any{"document_hash": documentHash},
		StatusPending, StatusRejected)
}

// Validate marks a submitted item as validated.
func (s *Service) Validate(ctx context.Context, contractID, itemID string, validatedBy string) (Item, error) {
	return s.changeStatus(ctx, contractID, itemID, StatusValidated, ledger.KindDocumentValidated,
		map[string]any{"validated_by": validatedBy},
		StatusSubmitted)
}

// Reject marks a submitted item as rejected with a reason.
func (s *Service) Reject(ctx context.Context, contractID, itemID string, reason string) (Item, error) {
	return s.changeStatus(ctx, contractID, itemID, StatusRejected, ledger.KindDocumentRejected,
		map[string]any{"reason": reason},
		StatusSubmitted)
}

// Remove deletes an item. Removal is an explicit administrative action and
// is itself ledgered before the item disappears.
func (s *Service) Remove(ctx context.Context, contractID, itemID string, removedBy string) error {
	item, err := s.store.GetItem(ctx, contractID, itemID)
	if err != nil {
		return err
	}
	_, err = s.recorder.Append(ctx, contractID, ledger.KindInventoryItemRemoved, map[string]any{
		"item_id":    item.ID,
		"type":       item.Type,
		"group":      item.Group,
		"status":     item.Status,
		"removed_by": removedBy,
	})
	if err != nil {
		return err
	}
	return s.store.DeleteItem(ctx, contractID, itemID)
}

func (s *Service) changeStatus(ctx context.Context, contractID, itemID, newStatus string, kind ledger.Kind, extra map[string]any, allowedFrom ...string) (Item, error) {
	item, err := s.store.GetItem(ctx, contractID, itemID)
	if err != nil {
		return Item{}, err
	}
	legal := false
	for _, from := range allowedFrom {
		if item.Status == from {
			legal = true
			break
		}
	}
	if !legal {
		return Item{}, fmt.Errorf("%w: %s -> %s for item %s", ErrInvalidStatusChange, item.Status, newStatus, itemID)
	}

	payload := map[string]any{
		"item_id": item.ID,
		"type":    item.Type,
		"group":   item.Group,
		"from":    item.Status,
		"to":      newStatus,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if _, err := s.recorder.Append(ctx, contractID, kind, payload); err != nil {
		return Item{}, err
	}

	item.Status = newStatus
	if err := s.store.PutItem(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}
