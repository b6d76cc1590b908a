package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a transaction the backend aborted because it raced
	// another one (serialization failure, deadlock).  Re-running the whole
	// transaction is safe.
	ErrConflict = errors.New("transaction conflict")
)

// DecisionTx is everything one gate decision may read or write.  All calls
// made through it commit or roll back together.
type DecisionTx interface {
	ReaderRegistry
	CardRegistry
	Ledger
}

// TxFn runs inside a decision transaction.  Returning an error rolls back.
type TxFn func(ctx context.Context, tx DecisionTx) error

// GateStore opens decision transactions.
type GateStore interface {
	InTx(ctx context.Context, fn TxFn) error
}

type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

// HeartbeatStore keeps reader liveness.
type HeartbeatStore interface {
	// RecordHeartbeat returns ErrNotFound for an unregistered reader.
	RecordHeartbeat(ctx context.Context, readerID string, rec HeartbeatRecord) (Reader, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	MarkOfflineSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pinger reports whether a backend can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}
