// Package pg persists the event chain, document inventory and contract
// states in PostgreSQL. Chain appends rely on unique indexes over
// (contract_id, prev_hash) for compare-and-swap semantics, so concurrent
// writers across processes can never fork a chain.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pactum.org/internal/inventory"
	"pactum.org/internal/ledger"
	"pactum.org/internal/lifecycle"
	"pactum.org/internal/seal"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var (
	_ ledger.Store         = (*Store)(nil)
	_ inventory.Store      = (*Store)(nil)
	_ lifecycle.StateStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- ledger.Store ---

func (s *Store) LastEventHash(ctx context.Context, contractID string) (*string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		select content_hash from events
		where contract_id=$1
		order by sequence desc
		limit 1
	`, contractID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hash, nil
}

func (s *Store) InsertSealAndEvent(ctx context.Context, sl seal.Seal, event ledger.Event) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into seals(id, provider, qualified, issued_at, token, status)
		values ($1,$2,$3,$4,$5,$6)
	`, sl.ID, sl.Provider, sl.Qualified, sl.IssuedAt, sl.Token, sl.Status); err != nil {
		return 0, err
	}

	// The unique indexes on (contract_id, prev_hash) and on the genesis row
	// turn this insert into a compare-and-swap: a concurrent writer that
	// linked to the same head already consumed the slot.
	var sequence uint64
	err = tx.QueryRowContext(ctx, `
		insert into events(id, contract_id, kind, payload, content_hash, prev_hash, seal_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8) returning sequence
	`, event.ID, event.ContractID, string(event.Kind), string(event.Payload),
		event.ContentHash, event.PrevHash, event.SealID, event.CreatedAt,
	).Scan(&sequence)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ledger.ErrChainConflict
		}
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return sequence, nil
}

func (s *Store) ListEvents(ctx context.Context, contractID string) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, contract_id, kind, payload, content_hash, prev_hash, seal_id, sequence, created_at
		from events
		where contract_id=$1
		order by sequence asc
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var ev ledger.Event
		var kind, payload string
		if err := rows.Scan(&ev.ID, &ev.ContractID, &kind, &payload, &ev.ContentHash,
			&ev.PrevHash, &ev.SealID, &ev.Sequence, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Kind = ledger.Kind(kind)
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetSeal loads one seal by id.
func (s *Store) GetSeal(ctx context.Context, id string) (seal.Seal, error) {
	var sl seal.Seal
	err := s.db.QueryRowContext(ctx, `
		select id, provider, qualified, issued_at, token, status
		from seals where id=$1
	`, id).Scan(&sl.ID, &sl.Provider, &sl.Qualified, &sl.IssuedAt, &sl.Token, &sl.Status)
	if err != nil {
		return seal.Seal{}, err
	}
	return sl, nil
}

// --- inventory.Store ---

func (s *Store) ListItems(ctx context.Context, contractID string) ([]inventory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, contract_id, item_type, item_group, responsible_role, mandatory, status
		from inventory_items
		where contract_id=$1
		order by id asc
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		var item inventory.Item
		if err := rows.Scan(&item.ID, &item.ContractID, &item.Type, &item.Group,
			&item.ResponsibleRole, &item.Mandatory, &item.Status); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, contractID, itemID string) (inventory.Item, error) {
	var item inventory.Item
	err := s.db.QueryRowContext(ctx, `
		select id, contract_id, item_type, item_group, responsible_role, mandatory, status
		from inventory_items
		where contract_id=$1 and id=$2
	`, contractID, itemID).Scan(&item.ID, &item.ContractID, &item.Type, &item.Group,
		&item.ResponsibleRole, &item.Mandatory, &item.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	if err != nil {
		return inventory.Item{}, err
	}
	return item, nil
}

func (s *Store) PutItem(ctx context.Context, item inventory.Item) error {
	_, err := s.db.ExecContext(ctx, `
		insert into inventory_items(id, contract_id, item_type, item_group, responsible_role, mandatory, status)
		values ($1,$2,$3,$4,$5,$6,$7)
		on conflict (id) do update set status = excluded.status
	`, item.ID, item.ContractID, item.Type, item.Group, item.ResponsibleRole, item.Mandatory, item.Status)
	return err
}

func (s *Store) DeleteItem(ctx context.Context, contractID, itemID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from inventory_items where contract_id=$1 and id=$2
	`, contractID, itemID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return inventory.ErrItemNotFound
	}
	return nil
}

// --- lifecycle.StateStore ---

func (s *Store) ContractState(ctx context.Context, contractID string) (lifecycle.State, error) {
	var state string
	err := s.db.QueryRowContext(ctx, `
		select state from contract_states where contract_id=$1
	`, contractID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", lifecycle.ErrContractNotFound
	}
	if err != nil {
		return "", err
	}
	return lifecycle.State(state), nil
}

func (s *Store) SetContractState(ctx context.Context, contractID string, state lifecycle.State) error {
	_, err := s.db.ExecContext(ctx, `
		insert into contract_states(contract_id, state, updated_at)
		values ($1,$2,now())
		on conflict (contract_id) do update
		set state = excluded.state, updated_at = now()
	`, contractID, string(state))
	return err
}

// --- helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
