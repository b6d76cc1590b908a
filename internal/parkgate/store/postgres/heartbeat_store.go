package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

type HeartbeatStore struct {
	db *sql.DB
}

func NewHeartbeatStore(db *sql.DB) *HeartbeatStore {
	return &HeartbeatStore{db: db}
}

func (s *HeartbeatStore) RecordHeartbeat(ctx context.Context, readerID string, rec store.HeartbeatRecord) (store.Reader, error) {
	readerID = strings.TrimSpace(readerID)
	if readerID == "" {
		return store.Reader{}, store.ErrNotFound
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	at := rec.ReceivedAt.UTC()
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Reader{}, fmt.Errorf("RecordHeartbeat begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	r, err := readerByID(ctx, tx, readerID)
	if err != nil {
		return store.Reader{}, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO reader_heartbeats(reader_id, received_at, uptime_ms, fw_version, wifi_rssi, ip)
VALUES ($1, $2, $3, $4, $5, $6)`, readerID, at, uptimeMs, fw, rssi, ip); err != nil {
		return store.Reader{}, fmt.Errorf("RecordHeartbeat insert heartbeat: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE readers
SET status = 'active', last_seen_at = $1, last_ip = $2, last_fw_version = $3, updated_at = $1
WHERE reader_id = $4`, at, ip, fw, readerID); err != nil {
		return store.Reader{}, fmt.Errorf("RecordHeartbeat update reader snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return store.Reader{}, classify(fmt.Errorf("RecordHeartbeat commit: %w", err))
	}

	r.Status = store.ReaderActive
	r.LastSeenAt = &at
	return r, nil
}

func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reader_heartbeats WHERE received_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("PruneOlderThan: %w", err)
	}
	return res.RowsAffected()
}

func (s *HeartbeatStore) MarkOfflineSince(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE readers
SET status = 'offline', updated_at = now()
WHERE status = 'active'
  AND last_seen_at IS NOT NULL
  AND last_seen_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("MarkOfflineSince: %w", err)
	}
	return res.RowsAffected()
}
