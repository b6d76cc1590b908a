package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// InTx runs fn with staged writes.  Writes become visible only if fn
// returns nil and ctx is still live.
func (s *Store) InTx(ctx context.Context, fn store.TxFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, expired: make(map[int64]time.Time)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id := range tx.expired {
		c := s.cards[id]
		c.Status = store.CardExpired
		s.cards[id] = c
	}
	s.entries = append(s.entries, tx.appended...)
	return nil
}

type memTx struct {
	s        *Store
	expired  map[int64]time.Time
	appended []store.LogEntry
}

func (t *memTx) ReaderByID(_ context.Context, id string) (store.Reader, error) {
	r, ok := t.s.readers[id]
	if !ok {
		return store.Reader{}, store.ErrNotFound
	}
	return r, nil
}

func (t *memTx) CardByUID(_ context.Context, uid string) (store.Card, error) {
	id, ok := t.s.cardsByUID[uid]
	if !ok {
		return store.Card{}, store.ErrNotFound
	}
	c := t.s.cards[id]
	if _, ok := t.expired[id]; ok {
		c.Status = store.CardExpired
	}
	return c, nil
}

func (t *memTx) MarkExpired(_ context.Context, cardID int64, at time.Time) error {
	if _, ok := t.s.cards[cardID]; !ok {
		return store.ErrNotFound
	}
	t.expired[cardID] = at
	return nil
}

// OpenEntry walks the ledger backwards; the card's latest granted entry
// decides whether a session is open.
func (t *memTx) OpenEntry(_ context.Context, cardID int64) (store.LogEntry, bool, error) {
	all := append(append([]store.LogEntry(nil), t.s.entries...), t.appended...)
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		if e.CardID == nil || *e.CardID != cardID || e.Result != store.ResultGranted {
			continue
		}
		if e.Action != store.ActionEnter {
			return store.LogEntry{}, false, nil
		}
		return e, true, nil
	}
	return store.LogEntry{}, false, nil
}

func (t *memTx) Append(_ context.Context, e *store.LogEntry) error {
	e.ID = int64(len(t.s.entries)+len(t.appended)) + 1
	t.appended = append(t.appended, *e)
	return nil
}
