package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pactum.org/internal/canonical"
	"pactum.org/internal/ids"
	"pactum.org/internal/obs"
	"pactum.org/internal/seal"
)

const defaultConflictRetries = 3

// Appender serializes chain writes per contract and performs the
// canonicalize-hash-seal-persist sequence atomically.
type Appender struct {
	store   Store
	sealer  seal.Sealer
	retries int

	// Per-contract append locks. The storage-level compare-and-swap is the
	// authoritative guard (multiple processes may share one database); the
	// in-process lock only keeps local writers from burning retries
	// against each other.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewAppender constructs an Appender over the given store and sealer.
func NewAppender(store Store, sealer seal.Sealer) *Appender {
	return &Appender{
		store:   store,
		sealer:  sealer,
		retries: defaultConflictRetries,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (a *Appender) contractLock(contractID string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	mu, ok := a.locks[contractID]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[contractID] = mu
	}
	return mu
}

// Append records one event for the contract: canonicalize and hash the
// payload, obtain a seal for the hash, link to the current chain head and
// persist seal plus event atomically. Appends for different contracts run
// fully in parallel; appends for one contract are totally ordered.
func (a *Appender) Append(ctx context.Context, contractID string, kind Kind, payload any) (Receipt, error) {
	if contractID == "" {
		return Receipt{}, ErrContractIDRequired
	}
	if !kind.Valid() {
		return Receipt{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	contentHash, canonicalPayload, err := canonical.HashObject(payload)
	if err != nil {
		obs.IncChainAppend(string(kind), "canonicalization_error")
		return Receipt{}, err
	}

	mu := a.contractLock(contractID)
	mu.Lock()
	defer mu.Unlock()

	sl, err := a.requestSeal(ctx, contentHash)
	if err != nil {
		obs.IncChainAppend(string(kind), "seal_error")
		return Receipt{}, err
	}

	event := Event{
		ID:          ids.NewEvent(),
		ContractID:  contractID,
		Kind:        kind,
		Payload:     canonicalPayload,
		ContentHash: contentHash,
		SealID:      sl.ID,
	}

	for attempt := 0; ; attempt++ {
		prevHash, err := a.store.LastEventHash(ctx, contractID)
		if err != nil {
			obs.IncChainAppend(string(kind), "store_error")
			return Receipt{}, err
		}
		event.PrevHash = prevHash
		event.CreatedAt = time.Now().UTC()

		sequence, err := a.store.InsertSealAndEvent(ctx, sl, event)
		if errors.Is(err, ErrChainConflict) {
			obs.IncChainConflict()
			if attempt < a.retries {
				continue
			}
			obs.IncChainAppend(string(kind), "conflict")
			return Receipt{}, fmt.Errorf("append for contract %s: %w", contractID, err)
		}
		if err != nil {
			obs.IncChainAppend(string(kind), "store_error")
			return Receipt{}, err
		}

		obs.IncChainAppend(string(kind), "ok")
		return Receipt{
			EventID:     event.ID,
			SealID:      sl.ID,
			ContentHash: contentHash,
			PrevHash:    event.PrevHash,
			Sequence:    sequence,
			RecordedAt:  event.CreatedAt,
		}, nil
	}
}

func (a *Appender) requestSeal(ctx context.Context, contentHash string) (seal.Seal, error) {
	start := time.Now()
	sl, err := a.sealer.Seal(ctx, contentHash)
	obs.ObserveSealRequest(a.sealer.Provider(), sealOutcome(err), time.Since(start))
	if err != nil {
		return seal.Seal{}, err
	}
	if sl.Status != seal.StatusIssued {
		return seal.Seal{}, fmt.Errorf("sealer returned status %q for hash %s", sl.Status, contentHash)
	}
	return sl, nil
}

func sealOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, seal.ErrSealTimeout):
		return "timeout"
	default:
		return "error"
	}
}
