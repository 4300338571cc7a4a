package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"pactum.org/internal/seal"
)

var hexRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

func newTestAppender(t *testing.T) (*Appender, *MemStore) {
	t.Helper()
	sealer, err := seal.NewStub([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	store := NewMemStore()
	return NewAppender(store, sealer), store
}

func TestAppendGenesisAndLinkage(t *testing.T) {
	a, store := newTestAppender(t)
	ctx := context.Background()

	first, err := a.Append(ctx, "c-1", KindContractCreated, map[string]any{"price": 250000})
	if err != nil {
		t.Fatal(err)
	}
	if first.PrevHash != nil {
		t.Fatalf("genesis prev hash = %v, want nil", *first.PrevHash)
	}
	if !hexRe.MatchString(first.ContentHash) {
		t.Fatalf("content hash %q is not 64-char lowercase hex", first.ContentHash)
	}
	if first.SealID == "" || first.EventID == "" {
		t.Fatalf("incomplete receipt: %+v", first)
	}

	second, err := a.Append(ctx, "c-1", KindTermsAccepted, map[string]any{"accepted_by": "buyer"})
	if err != nil {
		t.Fatal(err)
	}
	if second.PrevHash == nil || *second.PrevHash != first.ContentHash {
		t.Fatalf("second event prev hash = %v, want %s", second.PrevHash, first.ContentHash)
	}
	if second.Sequence <= first.Sequence {
		t.Fatalf("sequences not monotonic: %d then %d", first.Sequence, second.Sequence)
	}

	events, err := store.ListEvents(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("chain length = %d, want 2", len(events))
	}
	if _, ok := store.GetSeal(ctx, first.SealID); !ok {
		t.Fatal("seal not persisted with event")
	}
}

func TestAppendRejectsUnknownKind(t *testing.T) {
	a, store := newTestAppender(t)
	_, err := a.Append(context.Background(), "c-1", Kind("SOMETHING_ELSE"), nil)
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	events, _ := store.ListEvents(context.Background(), "c-1")
	if len(events) != 0 {
		t.Fatal("event persisted despite invalid kind")
	}
}

func TestAppendRequiresContractID(t *testing.T) {
	a, _ := newTestAppender(t)
	if _, err := a.Append(context.Background(), "", KindContractCreated, nil); !errors.Is(err, ErrContractIDRequired) {
		t.Fatalf("expected ErrContractIDRequired, got %v", err)
	}
}

func TestAppendRejectsNonCanonicalizablePayload(t *testing.T) {
	a, store := newTestAppender(t)
	if _, err := a.Append(context.Background(), "c-1", KindContractCreated, make(chan int)); err == nil {
		t.Fatal("expected canonicalization error")
	}
	events, _ := store.ListEvents(context.Background(), "c-1")
	if len(events) != 0 {
		t.Fatal("event persisted despite canonicalization failure")
	}
}

type failingSealer struct{ err error }

func (f failingSealer) Seal(ctx context.Context, hash string) (seal.Seal, error) {
	return seal.Seal{}, f.err
}
func (f failingSealer) Provider() string { return "failing" }

func TestAppendFailsWholeWhenSealingFails(t *testing.T) {
	store := NewMemStore()
	a := NewAppender(store, failingSealer{err: seal.ErrSealTimeout})

	_, err := a.Append(context.Background(), "c-1", KindContractCreated, map[string]any{"x": 1})
	if !errors.Is(err, seal.ErrSealTimeout) {
		t.Fatalf("expected seal timeout to surface, got %v", err)
	}
	events, _ := store.ListEvents(context.Background(), "c-1")
	if len(events) != 0 {
		t.Fatal("event persisted without an issued seal")
	}
}

// conflictingStore forces ErrChainConflict for the first n inserts to
// exercise the appender's transparent retry.
type conflictingStore struct {
	Store
	mu        sync.Mutex
	remaining int
	attempts  int
}

func (c *conflictingStore) InsertSealAndEvent(ctx context.Context, sl seal.Seal, event Event) (uint64, error) {
	c.mu.Lock()
	c.attempts++
	force := c.remaining > 0
	if force {
		c.remaining--
	}
	c.mu.Unlock()
	if force {
		return 0, ErrChainConflict
	}
	return c.Store.InsertSealAndEvent(ctx, sl, event)
}

func TestAppendRetriesOnChainConflict(t *testing.T) {
	sealer, _ := seal.NewStub([]byte("test-secret"))
	inner := NewMemStore()
	store := &conflictingStore{Store: inner, remaining: 2}
	a := NewAppender(store, sealer)

	rcpt, err := a.Append(context.Background(), "c-1", KindContractCreated, map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("append should succeed after retries: %v", err)
	}
	if store.attempts != 3 {
		t.Fatalf("insert attempts = %d, want 3", store.attempts)
	}
	if rcpt.Sequence == 0 {
		t.Fatal("missing sequence in receipt")
	}
}

func TestAppendSurfacesConflictAfterBudget(t *testing.T) {
	sealer, _ := seal.NewStub([]byte("test-secret"))
	store := &conflictingStore{Store: NewMemStore(), remaining: 100}
	a := NewAppender(store, sealer)

	_, err := a.Append(context.Background(), "c-1", KindContractCreated, map[string]any{"x": 1})
	if !errors.Is(err, ErrChainConflict) {
		t.Fatalf("expected ErrChainConflict after retry budget, got %v", err)
	}
}

func TestConcurrentAppendsSingleChain(t *testing.T) {
	a, store := newTestAppender(t)
	ctx := context.Background()

	const K = 40
	var wg sync.WaitGroup
	errs := make(chan error, K)
	for i := 0; i < K; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Append(ctx, "c-1", KindSignatureRecorded, map[string]any{"signer": fmt.Sprintf("party-%d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append failed: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != K {
		t.Fatalf("chain length = %d, want %d", len(events), K)
	}
	result, err := NewVerifier(store).Verify(ctx, "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Fatalf("forked chain after concurrent appends: %+v", result.Violations)
	}
}

func TestAppendsToDifferentContractsDoNotShareChains(t *testing.T) {
	a, store := newTestAppender(t)
	ctx := context.Background()

	r1, err := a.Append(ctx, "c-1", KindContractCreated, map[string]any{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	r2, err := a.Append(ctx, "c-2", KindContractCreated, map[string]any{"n": 2})
	if err != nil {
		t.Fatal(err)
	}
	if r1.PrevHash != nil || r2.PrevHash != nil {
		t.Fatal("each contract chain must start at genesis")
	}
	for _, id := range []string{"c-1", "c-2"} {
		events, _ := store.ListEvents(ctx, id)
		if len(events) != 1 {
			t.Fatalf("contract %s chain length = %d, want 1", id, len(events))
		}
	}
}
