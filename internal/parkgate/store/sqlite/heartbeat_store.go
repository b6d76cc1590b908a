package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/parkgate/internal/db"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

type HeartbeatStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *sql.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

// RecordHeartbeat appends a heartbeat row and refreshes the reader's
// snapshot columns.  Unknown readers are rejected; readers are only
// created by the management side.
func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, readerID string, rec store.HeartbeatRecord) (store.Reader, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return store.Reader{}, store.ErrNotFound
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	fw := strings.TrimSpace(rec.Request.FirmwareVersion)
	ip := strings.TrimSpace(rec.Request.IP)

	var rssi any
	if rec.Request.RSSIDbm != nil {
		rssi = *rec.Request.RSSIDbm
	}

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	var reader store.Reader
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		r, err := (&gateTx{tx: tx}).ReaderByID(ctx, readerID)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO reader_heartbeats(
  reader_id, received_at_ms, uptime_ms, fw_version, wifi_rssi, ip
) VALUES (?, ?, ?, ?, ?, ?);
`, readerID, recvMs, uptimeMs, fw, rssi, ip); err != nil {
			return fmt.Errorf("RecordHeartbeat insert heartbeat: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE readers
SET status = 'active',
    last_seen_at_ms = ?,
    last_ip = ?,
    last_fw_version = ?,
    updated_at_ms = ?
WHERE reader_id = ?;
`, recvMs, ip, fw, recvMs, readerID); err != nil {
			return fmt.Errorf("RecordHeartbeat update reader snapshot: %w", err)
		}

		seen := time.UnixMilli(recvMs).UTC()
		r.Status = store.ReaderActive
		r.LastSeenAt = &seen
		reader = r
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		err = classify(err)
	}
	return reader, err
}

// PruneOlderThan deletes heartbeat rows received before cutoff and returns
// the number of rows deleted.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM reader_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}

// MarkOfflineSince flips active readers last seen before cutoff to
// offline.  Readers that never reported are left alone.
func (s *HeartbeatStore) MarkOfflineSince(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var n int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE readers
SET status = 'offline',
    updated_at_ms = ?
WHERE status = 'active'
  AND last_seen_at_ms IS NOT NULL
  AND last_seen_at_ms < ?;
`, time.Now().UTC().UnixMilli(), cutoffMs)
		if err != nil {
			return fmt.Errorf("MarkOfflineSince: %w", err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return n, err
}
