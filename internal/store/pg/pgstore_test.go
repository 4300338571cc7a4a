package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"pactum.org/internal/inventory"
	"pactum.org/internal/ledger"
	"pactum.org/internal/lifecycle"
	"pactum.org/internal/seal"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func testSeal() seal.Seal {
	return seal.Seal{
		ID:        "seal_1",
		Provider:  "stub",
		Qualified: false,
		IssuedAt:  time.Now().UTC(),
		Token:     []byte("tok"),
		Status:    seal.StatusIssued,
	}
}

func testEvent(prev *string) ledger.Event {
	return ledger.Event{
		ID:          "evt_1",
		ContractID:  "c-1",
		Kind:        ledger.KindContractCreated,
		Payload:     []byte(`{"price":250000}`),
		ContentHash: "deadbeef",
		PrevHash:    prev,
		SealID:      "seal_1",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsertSealAndEventHappyPath(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into seals`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`insert into events`).
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(7))
	mock.ExpectCommit()

	sequence, err := store.InsertSealAndEvent(context.Background(), testSeal(), testEvent(nil))
	if err != nil {
		t.Fatal(err)
	}
	if sequence != 7 {
		t.Fatalf("sequence = %d, want 7", sequence)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertSealAndEventMapsUniqueViolationToConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into seals`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`insert into events`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "events_chain_head"})
	mock.ExpectRollback()

	_, err := store.InsertSealAndEvent(context.Background(), testSeal(), testEvent(nil))
	if !errors.Is(err, ledger.ErrChainConflict) {
		t.Fatalf("expected ErrChainConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertSealAndEventRollsBackOnSealFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`insert into seals`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.InsertSealAndEvent(context.Background(), testSeal(), testEvent(nil))
	if err == nil || errors.Is(err, ledger.ErrChainConflict) {
		t.Fatalf("expected plain storage error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLastEventHashEmptyChain(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select content_hash from events`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))

	hash, err := store.LastEventHash(context.Background(), "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if hash != nil {
		t.Fatalf("hash = %v, want nil for empty chain", *hash)
	}
}

func TestLastEventHashReturnsHead(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select content_hash from events`).
		WithArgs("c-1").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}).AddRow("cafe"))

	hash, err := store.LastEventHash(context.Background(), "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if hash == nil || *hash != "cafe" {
		t.Fatalf("hash = %v", hash)
	}
}

func TestListEventsScans(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "contract_id", "kind", "payload", "content_hash", "prev_hash", "seal_id", "sequence", "created_at"}).
		AddRow("evt_1", "c-1", "CONTRACT_CREATED", `{"price":250000}`, "aaaa", nil, "seal_1", 1, now).
		AddRow("evt_2", "c-1", "TERMS_ACCEPTED", `{"ok":true}`, "bbbb", "aaaa", "seal_2", 2, now)
	mock.ExpectQuery(`select id, contract_id, kind`).
		WithArgs("c-1").
		WillReturnRows(rows)

	events, err := store.ListEvents(context.Background(), "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].PrevHash != nil {
		t.Fatal("genesis prev hash should scan as nil")
	}
	if events[1].PrevHash == nil || *events[1].PrevHash != "aaaa" {
		t.Fatalf("second prev hash = %v", events[1].PrevHash)
	}
	if events[1].Kind != ledger.KindTermsAccepted {
		t.Fatalf("kind = %s", events[1].Kind)
	}
}

func TestGetItemNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select id, contract_id, item_type`).
		WithArgs("c-1", "itm_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetItem(context.Background(), "c-1", "itm_missing")
	if !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestDeleteItemNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`delete from inventory_items`).
		WithArgs("c-1", "itm_missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteItem(context.Background(), "c-1", "itm_missing"); !errors.Is(err, inventory.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestContractStateNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select state from contract_states`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"state"}))

	_, err := store.ContractState(context.Background(), "ghost")
	if !errors.Is(err, lifecycle.ErrContractNotFound) {
		t.Fatalf("expected ErrContractNotFound, got %v", err)
	}
}

func TestSetContractStateUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`insert into contract_states`).
		WithArgs("c-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SetContractState(context.Background(), "c-1", lifecycle.StateDraft); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
