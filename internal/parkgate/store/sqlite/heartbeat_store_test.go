package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	sqlitestore "github.com/BrandonDHaskell/parkgate/internal/parkgate/store/sqlite"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

// ═══════════════════════════════════════════════════════════════════════════
// RecordHeartbeat
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeatStore_RecordHeartbeat_InsertsRowAndSnapshot(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	seedReader(t, conn, "gate-in-1", "entry")

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	rssi := -55

	r, err := hs.RecordHeartbeat(context.Background(), "gate-in-1", store.HeartbeatRecord{
		ReceivedAt: now,
		Request: types.HeartbeatRequest{
			FirmwareVersion: "1.4.2",
			UptimeSeconds:   300,
			RSSIDbm:         &rssi,
			IP:              "192.168.1.50",
		},
	})
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if r.ID != "gate-in-1" || r.Direction != store.DirectionEntry {
		t.Errorf("unexpected reader returned: %+v", r)
	}
	if r.LastSeenAt == nil || !r.LastSeenAt.Equal(now) {
		t.Errorf("expected LastSeenAt=%v, got %v", now, r.LastSeenAt)
	}

	var (
		fw       string
		ip       string
		uptimeMs int64
		wifiRSSI sql.NullInt64
	)
	err = conn.QueryRow(
		`SELECT fw_version, ip, uptime_ms, wifi_rssi FROM reader_heartbeats WHERE reader_id = ?`, "gate-in-1",
	).Scan(&fw, &ip, &uptimeMs, &wifiRSSI)
	if err != nil {
		t.Fatalf("query heartbeat: %v", err)
	}
	if fw != "1.4.2" || ip != "192.168.1.50" || uptimeMs != 300000 {
		t.Errorf("unexpected heartbeat row: fw=%q ip=%q uptime_ms=%d", fw, ip, uptimeMs)
	}
	if !wifiRSSI.Valid || wifiRSSI.Int64 != -55 {
		t.Errorf("expected wifi_rssi=-55, got %v", wifiRSSI)
	}

	var (
		lastSeen int64
		lastIP   string
	)
	err = conn.QueryRow(
		`SELECT last_seen_at_ms, last_ip FROM readers WHERE reader_id = ?`, "gate-in-1",
	).Scan(&lastSeen, &lastIP)
	if err != nil {
		t.Fatalf("query reader: %v", err)
	}
	if lastSeen != now.UnixMilli() || lastIP != "192.168.1.50" {
		t.Errorf("snapshot not updated: last_seen=%d last_ip=%q", lastSeen, lastIP)
	}
}

func TestHeartbeatStore_RecordHeartbeat_AppendOnly(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	seedReader(t, conn, "gate-out-1", "exit")
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := hs.RecordHeartbeat(ctx, "gate-out-1", store.HeartbeatRecord{
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
			Request:    types.HeartbeatRequest{UptimeSeconds: uint64(60 * (i + 1))},
		})
		if err != nil {
			t.Fatalf("heartbeat %d: %v", i, err)
		}
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM reader_heartbeats`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 heartbeat rows, got %d", count)
	}
}

func TestHeartbeatStore_RecordHeartbeat_UnknownReader(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)

	_, err := hs.RecordHeartbeat(context.Background(), "ghost", store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM reader_heartbeats`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no rows for unknown reader, got %d", count)
	}
}

func TestHeartbeatStore_RecordHeartbeat_BringsReaderBackOnline(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	seedReader(t, conn, "gate-in-1", "entry")

	if _, err := conn.Exec(`UPDATE readers SET status = 'offline' WHERE reader_id = 'gate-in-1'`); err != nil {
		t.Fatalf("set offline: %v", err)
	}

	r, err := hs.RecordHeartbeat(context.Background(), "gate-in-1", store.HeartbeatRecord{
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("RecordHeartbeat: %v", err)
	}
	if r.Status != store.ReaderActive {
		t.Errorf("expected active, got %q", r.Status)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// PruneOlderThan
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeatStore_PruneOlderThan_DeletesOldRows(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	seedReader(t, conn, "gate-in-1", "entry")
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for _, daysAgo := range []int{30, 15, 1} {
		_, err := hs.RecordHeartbeat(ctx, "gate-in-1", store.HeartbeatRecord{
			ReceivedAt: now.AddDate(0, 0, -daysAgo),
		})
		if err != nil {
			t.Fatalf("insert heartbeat (-%dd): %v", daysAgo, err)
		}
	}

	deleted, err := hs.PruneOlderThan(ctx, now.AddDate(0, 0, -20))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 row deleted, got %d", deleted)
	}

	var count int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM reader_heartbeats`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 remaining rows, got %d", count)
	}
}

func TestHeartbeatStore_PruneOlderThan_EmptyTable(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)

	deleted, err := hs.PruneOlderThan(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 on empty table, got %d", deleted)
	}
}

func TestHeartbeatStore_PruneOlderThan_PreservesReaderSnapshot(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	seedReader(t, conn, "gate-in-1", "entry")
	ctx := context.Background()

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	_, err := hs.RecordHeartbeat(ctx, "gate-in-1", store.HeartbeatRecord{
		ReceivedAt: now.AddDate(0, 0, -60),
		Request:    types.HeartbeatRequest{IP: "10.0.0.1"},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := hs.PruneOlderThan(ctx, now); err != nil {
		t.Fatalf("prune: %v", err)
	}

	var lastIP string
	if err := conn.QueryRow(`SELECT last_ip FROM readers WHERE reader_id = 'gate-in-1'`).Scan(&lastIP); err != nil {
		t.Fatalf("query reader: %v", err)
	}
	if lastIP != "10.0.0.1" {
		t.Errorf("expected reader snapshot preserved, got last_ip=%q", lastIP)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// MarkOfflineSince
// ═══════════════════════════════════════════════════════════════════════════

func TestHeartbeatStore_MarkOfflineSince(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	hs := sqlitestore.NewHeartbeatStore(conn, w)
	ctx := context.Background()

	seedReader(t, conn, "stale", "entry")
	seedReader(t, conn, "fresh", "exit")
	seedReader(t, conn, "never", "entry")

	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	if _, err := hs.RecordHeartbeat(ctx, "stale", store.HeartbeatRecord{ReceivedAt: now.Add(-10 * time.Minute)}); err != nil {
		t.Fatalf("stale heartbeat: %v", err)
	}
	if _, err := hs.RecordHeartbeat(ctx, "fresh", store.HeartbeatRecord{ReceivedAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("fresh heartbeat: %v", err)
	}

	n, err := hs.MarkOfflineSince(ctx, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("MarkOfflineSince: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 reader marked offline, got %d", n)
	}

	want := map[string]string{"stale": "offline", "fresh": "active", "never": "active"}
	for id, status := range want {
		var got string
		if err := conn.QueryRow(`SELECT status FROM readers WHERE reader_id = ?`, id).Scan(&got); err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if got != status {
			t.Errorf("%s: expected %s, got %s", id, status, got)
		}
	}
}
