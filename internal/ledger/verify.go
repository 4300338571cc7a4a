package ledger

import (
	"context"
	"fmt"

	"pactum.org/internal/canonical"
	"pactum.org/internal/obs"
)

// Violation describes one integrity failure found during chain replay.
type Violation struct {
	EventID     string `json:"event_id"`
	Index       int    `json:"index"`
	Description string `json:"description"`
}

// VerificationResult is the outcome of a full-chain replay.
type VerificationResult struct {
	ContractID string      `json:"contract_id"`
	Length     int         `json:"length"`
	Valid      bool        `json:"valid"`
	Violations []Violation `json:"violations,omitempty"`
}

// Verifier replays event chains and detects tampering. It is read-only and
// safe to run concurrently with appends: the store hands it a consistent
// snapshot in creation order.
type Verifier struct {
	store Store
}

// NewVerifier constructs a Verifier over the given store.
func NewVerifier(store Store) *Verifier {
	return &Verifier{store: store}
}

// Verify recomputes every event's content hash from its stored payload and
// checks the prev-hash linkage. An empty chain is trivially valid. All
// violations are collected; nothing is auto-corrected.
func (v *Verifier) Verify(ctx context.Context, contractID string) (VerificationResult, error) {
	events, err := v.store.ListEvents(ctx, contractID)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{ContractID: contractID, Length: len(events), Valid: true}
	var prevContentHash *string
	for i, ev := range events {
		recomputed := canonical.Hash(ev.Payload)
		if recomputed != ev.ContentHash {
			result.Violations = append(result.Violations, Violation{
				EventID: ev.ID,
				Index:   i,
				Description: fmt.Sprintf("payload hash mismatch: stored %s, recomputed %s",
					ev.ContentHash, recomputed),
			})
		}

		switch {
		case i == 0 && ev.PrevHash != nil:
			result.Violations = append(result.Violations, Violation{
				EventID:     ev.ID,
				Index:       i,
				Description: fmt.Sprintf("genesis event has prev hash %s, want none", *ev.PrevHash),
			})
		case i > 0 && ev.PrevHash == nil:
			result.Violations = append(result.Violations, Violation{
				EventID:     ev.ID,
				Index:       i,
				Description: "missing prev hash on non-genesis event",
			})
		case i > 0 && prevContentHash != nil && *ev.PrevHash != *prevContentHash:
			result.Violations = append(result.Violations, Violation{
				EventID: ev.ID,
				Index:   i,
				Description: fmt.Sprintf("chain break: prev hash %s does not match predecessor hash %s",
					*ev.PrevHash, *prevContentHash),
			})
		}

		h := ev.ContentHash
		prevContentHash = &h
	}

	result.Valid = len(result.Violations) == 0
	if !result.Valid {
		obs.IncChainVerifyFailure()
	}
	return result, nil
}
