// Package inventory tracks the required and optional document slots of a
// contract. Every status change is recorded on the event ledger.
package inventory

import (
	"context"
	"errors"
)

// Item statuses.
const (
	StatusPending   = "PENDING"
	StatusSubmitted = "SUBMITTED"
	StatusValidated = "VALIDATED"
	StatusRejected  = "REJECTED"
)

// Item is one document slot for a contract.
type Item struct {
	ID              string `json:"id"`
	ContractID      string `json:"contract_id"`
	Type            string `json:"type"`
	Group           string `json:"group"`
	ResponsibleRole string `json:"responsible_role"`
	Mandatory       bool   `json:"mandatory"`
	Status          string `json:"status"`
}

var (
	// ErrItemNotFound is returned when the item does not exist for the contract.
	ErrItemNotFound = errors.New("inventory item not found")
	// ErrInvalidStatusChange rejects an illegal item status move.
	ErrInvalidStatusChange = errors.New("invalid inventory status change")
)

// Store persists inventory items.
type Store interface {
	ListItems(ctx context.Context, contractID string) ([]Item, error)
	GetItem(ctx context.Context, contractID, itemID string) (Item, error)
	PutItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, contractID, itemID string) error
}
