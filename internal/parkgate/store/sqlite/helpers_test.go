package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/parkgate/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets its own named in-memory database.  Shared cache keeps
	// it alive while the pool holds a connection.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn.  The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func seedReader(t *testing.T, conn *sql.DB, id, direction string) {
	t.Helper()

	now := time.Now().UTC().UnixMilli()
	if _, err := conn.Exec(`
INSERT INTO readers(reader_id, name, direction, status, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, 'active', ?, ?);`, id, "Reader "+id, direction, now, now); err != nil {
		t.Fatalf("seedReader %s: %v", id, err)
	}
}

// seedCard inserts a card and returns its id.  expiresAt may be nil.
func seedCard(t *testing.T, conn *sql.DB, uid, owner, status string, expiresAt *time.Time) int64 {
	t.Helper()

	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC().UnixMilli()
	}
	now := time.Now().UTC().UnixMilli()
	res, err := conn.Exec(`
INSERT INTO cards(card_uid, owner_name, vehicle_plate, status, expires_at_ms, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?);`, uid, owner, "B 1 TEST", status, exp, now, now)
	if err != nil {
		t.Fatalf("seedCard %s: %v", uid, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seedCard %s last id: %v", uid, err)
	}
	return id
}
