package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// Store is an in-memory gate store for tests and dev runs.  A decision
// transaction holds the store lock for its whole duration, so decisions
// are fully serialized.
type Store struct {
	mu sync.Mutex

	readers    map[string]store.Reader
	cards      map[int64]store.Card
	cardsByUID map[string]int64
	entries    []store.LogEntry
	heartbeats []heartbeat

	nextCardID int64
}

type heartbeat struct {
	readerID string
	rec      store.HeartbeatRecord
}

func New() *Store {
	return &Store{
		readers:    make(map[string]store.Reader),
		cards:      make(map[int64]store.Card),
		cardsByUID: make(map[string]int64),
	}
}

// PutReader registers or replaces a reader.  The direction of an existing
// reader is kept.
func (s *Store) PutReader(r store.Reader) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = strings.TrimSpace(r.ID)
	if prev, ok := s.readers[r.ID]; ok {
		r.Direction = prev.Direction
	}
	if r.Status == "" {
		r.Status = store.ReaderActive
	}
	s.readers[r.ID] = r
}

// PutCard registers a card and returns it with its assigned ID.
func (s *Store) PutCard(c store.Card) store.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.cardsByUID[c.UID]; ok {
		c.ID = id
	} else {
		s.nextCardID++
		c.ID = s.nextCardID
	}
	if c.Status == "" {
		c.Status = store.CardActive
	}
	s.cards[c.ID] = c
	s.cardsByUID[c.UID] = c.ID
	return c
}

// Card returns the stored card for uid.  Test-only helper.
func (s *Store) Card(uid string) (store.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.cardsByUID[uid]
	if !ok {
		return store.Card{}, false
	}
	return s.cards[id], true
}

// Reader returns the stored reader.  Test-only helper.
func (s *Store) Reader(id string) (store.Reader, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[id]
	return r, ok
}

// Entries returns a copy of the ledger in append order.  Test-only helper.
func (s *Store) Entries() []store.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// HeartbeatCount returns how many heartbeat records are retained.
// Test-only helper.
func (s *Store) HeartbeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.heartbeats)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) RecordHeartbeat(_ context.Context, readerID string, rec store.HeartbeatRecord) (store.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.readers[readerID]
	if !ok {
		return store.Reader{}, store.ErrNotFound
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	seen := rec.ReceivedAt
	r.LastSeenAt = &seen
	r.Status = store.ReaderActive
	s.readers[readerID] = r
	s.heartbeats = append(s.heartbeats, heartbeat{readerID: readerID, rec: rec})
	return r, nil
}

func (s *Store) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.heartbeats[:0]
	var deleted int64
	for _, hb := range s.heartbeats {
		if hb.rec.ReceivedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, hb)
	}
	s.heartbeats = kept
	return deleted, nil
}

// MarkOfflineSince flips active readers whose last heartbeat is older than
// cutoff.  Readers that never sent a heartbeat are left alone.
func (s *Store) MarkOfflineSince(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.readers))
	for id := range s.readers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var n int64
	for _, id := range ids {
		r := s.readers[id]
		if r.Status != store.ReaderActive || r.LastSeenAt == nil || !r.LastSeenAt.Before(cutoff) {
			continue
		}
		r.Status = store.ReaderOffline
		s.readers[id] = r
		n++
	}
	return n, nil
}
