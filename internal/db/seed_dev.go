package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a demo gate into an empty dev database: one entry reader,
// one exit reader and a handful of cards covering each card status.  Rows
// that already exist are left untouched.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	readers := []struct{ id, name, direction string }{
		{"gate-in-1", "Main Gate Entry", "entry"},
		{"gate-out-1", "Main Gate Exit", "exit"},
	}
	for _, r := range readers {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO readers(reader_id, name, direction, status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, 'active', ?, ?);`, r.id, r.name, r.direction, nowMs, nowMs); err != nil {
			return fmt.Errorf("seed reader %s: %w", r.id, err)
		}
	}

	lastMonth := now.AddDate(0, -1, 0).UnixMilli()
	cards := []struct {
		uid, owner, plate, status string
		expiresAtMs               any
	}{
		{"04A1B2C3", "Dev Driver", "B 1234 XYZ", "active", nil},
		{"04D4E5F6", "Blocked Driver", "B 5678 XYZ", "blocked", nil},
		{"04AA0001", "Lost Card", "D 1111 AB", "lost", nil},
		{"04AA0002", "Lapsed Subscriber", "D 2222 AB", "active", lastMonth},
	}
	for _, c := range cards {
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO cards(card_uid, owner_name, vehicle_plate, status, expires_at_ms, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);`, c.uid, c.owner, c.plate, c.status, c.expiresAtMs, nowMs, nowMs); err != nil {
			return fmt.Errorf("seed card %s: %w", c.uid, err)
		}
	}

	return nil
}
