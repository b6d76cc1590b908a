package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/BrandonDHaskell/parkgate/internal/db"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// GateStore runs decision transactions on the single-writer worker.  All
// decisions are therefore serialized, which is what keeps two exits for the
// same card from both closing one session.
type GateStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewGateStore(db *sql.DB, writer *dbpkg.Worker) *GateStore {
	return &GateStore{db: db, writer: writer}
}

func (s *GateStore) InTx(ctx context.Context, fn store.TxFn) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &gateTx{tx: tx})
	})
	return classify(err)
}

func (s *GateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classify maps a locked database to store.ErrConflict so the caller
// re-runs the transaction.
func classify(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", store.ErrConflict, err)
		}
	}
	return err
}

type gateTx struct {
	tx *sql.Tx
}

func (t *gateTx) ReaderByID(ctx context.Context, id string) (store.Reader, error) {
	var (
		r        store.Reader
		lastSeen sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT reader_id, name, direction, status, last_seen_at_ms
FROM readers
WHERE reader_id = ?;
`, id).Scan(&r.ID, &r.Name, &r.Direction, &r.Status, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Reader{}, store.ErrNotFound
	}
	if err != nil {
		return store.Reader{}, fmt.Errorf("ReaderByID: %w", err)
	}
	r.LastSeenAt = fromMillis(lastSeen)
	return r, nil
}

func (t *gateTx) CardByUID(ctx context.Context, uid string) (store.Card, error) {
	var (
		c       store.Card
		expires sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT card_id, card_uid, owner_name, vehicle_plate, status, expires_at_ms
FROM cards
WHERE card_uid = ?;
`, uid).Scan(&c.ID, &c.UID, &c.OwnerName, &c.VehiclePlate, &c.Status, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Card{}, store.ErrNotFound
	}
	if err != nil {
		return store.Card{}, fmt.Errorf("CardByUID: %w", err)
	}
	c.ExpiresAt = fromMillis(expires)
	return c, nil
}

func (t *gateTx) MarkExpired(ctx context.Context, cardID int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE cards
SET status = 'expired',
    updated_at_ms = ?
WHERE card_id = ?;
`, at.UTC().UnixMilli(), cardID)
	if err != nil {
		return fmt.Errorf("MarkExpired: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// OpenEntry reads the card's latest granted entry; a session is open only
// when that entry is an enter.  log_id order is append order.
func (t *gateTx) OpenEntry(ctx context.Context, cardID int64) (store.LogEntry, bool, error) {
	var (
		e         store.LogEntry
		card      sql.NullInt64
		decidedMs int64
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT log_id, card_id, card_uid, reader_id, action, result, decided_at_ms
FROM access_logs
WHERE card_id = ? AND result = 'granted'
ORDER BY log_id DESC
LIMIT 1;
`, cardID).Scan(&e.ID, &card, &e.CardUID, &e.ReaderID, &e.Action, &e.Result, &decidedMs)
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
	e.DecidedAt = time.UnixMilli(decidedMs).UTC()
	return e, true, nil
}

func (t *gateTx) Append(ctx context.Context, e *store.LogEntry) error {
	if e.DecidedAt.IsZero() {
		e.DecidedAt = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx, `
INSERT INTO access_logs(
  card_id, card_uid, reader_id, action, result, reason,
  duration_minutes, fee, decided_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		nullable(e.CardID), e.CardUID, e.ReaderID, string(e.Action), string(e.Result),
		nullable(e.Reason), nullable(e.DurationMinutes), nullable(e.Fee),
		e.DecidedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("Append last id: %w", err)
	}
	e.ID = id
	return nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
