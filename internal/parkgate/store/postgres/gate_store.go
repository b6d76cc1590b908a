// Package postgres implements the gate stores on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// SQLSTATE codes that mean "run the transaction again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// GateStore serializes decisions per card by locking the card row before the
// session lookup.  Decisions for different cards run in parallel.
type GateStore struct {
	db *sql.DB
}

func NewGateStore(db *sql.DB) *GateStore {
	return &GateStore{db: db}
}

func (s *GateStore) InTx(ctx context.Context, fn store.TxFn) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	if err := fn(ctx, &gateTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *GateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
	}
	return err
}

type gateTx struct {
	tx *sql.Tx
}

func (t *gateTx) ReaderByID(ctx context.Context, id string) (store.Reader, error) {
	return readerByID(ctx, t.tx, id)
}

func readerByID(ctx context.Context, tx *sql.Tx, id string) (store.Reader, error) {
	var (
		r        store.Reader
		lastSeen sql.NullTime
	)
	err := tx.QueryRowContext(ctx, `
SELECT reader_id, name, direction, status, last_seen_at
FROM readers
WHERE reader_id = $1`, id).Scan(&r.ID, &r.Name, &r.Direction, &r.Status, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Reader{}, store.ErrNotFound
	}
	if err != nil {
		return store.Reader{}, fmt.Errorf("ReaderByID: %w", err)
	}
	if lastSeen.Valid {
		ts := lastSeen.Time.UTC()
		r.LastSeenAt = &ts
	}
	return r, nil
}

// CardByUID locks the card row for the rest of the transaction.
func (t *gateTx) CardByUID(ctx context.Context, uid string) (store.Card, error) {
	var (
		c       store.Card
		expires sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT card_id, card_uid, owner_name, vehicle_plate, status, expires_at
FROM cards
WHERE card_uid = $1
FOR UPDATE`, uid).Scan(&c.ID, &c.UID, &c.OwnerName, &c.VehiclePlate, &c.Status, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Card{}, store.ErrNotFound
	}
	if err != nil {
		return store.Card{}, fmt.Errorf("CardByUID: %w", err)
	}
	if expires.Valid {
		ts := expires.Time.UTC()
		c.ExpiresAt = &ts
	}
	return c, nil
}

func (t *gateTx) MarkExpired(ctx context.Context, cardID int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE cards
SET status = 'expired', updated_at = $1
WHERE card_id = $2`, at.UTC(), cardID)
	if err != nil {
		return fmt.Errorf("MarkExpired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *gateTx) OpenEntry(ctx context.Context, cardID int64) (store.LogEntry, bool, error) {
	var (
		e    store.LogEntry
		card sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT log_id, card_id, card_uid, reader_id, action, result, decided_at
FROM access_logs
WHERE card_id = $1 AND result = 'granted'
ORDER BY log_id DESC
LIMIT 1`, cardID).Scan(&e.ID, &card, &e.CardUID, &e.ReaderID, &e.Action, &e.Result, &e.DecidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.LogEntry{}, false, nil
	}
	if err != nil {
		return store.LogEntry{}, false, fmt.Errorf("OpenEntry: %w", err)
	}
	if e.Action != store.ActionEnter {
		return store.LogEntry{}, false, nil
	}
	if card.Valid {
		id := card.Int64
		e.CardID = &id
	}
	e.DecidedAt = e.DecidedAt.UTC()
	return e, true, nil
}

func (t *gateTx) Append(ctx context.Context, e *store.LogEntry) error {
	if e.DecidedAt.IsZero() {
		e.DecidedAt = time.Now().UTC()
	}

	err := t.tx.QueryRowContext(ctx, `
INSERT INTO access_logs(
  card_id, card_uid, reader_id, action, result, reason,
  duration_minutes, fee, decided_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING log_id`,
		nullable(e.CardID), e.CardUID, e.ReaderID, string(e.Action), string(e.Result),
		nullable(e.Reason), nullable(e.DurationMinutes), nullable(e.Fee), e.DecidedAt.UTC(),
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	return nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
