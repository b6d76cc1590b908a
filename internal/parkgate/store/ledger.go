package store

import (
	"context"
	"time"
)

type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

func (a Action) Valid() bool { return a == ActionEnter || a == ActionExit }

type Result string

const (
	ResultGranted Result = "granted"
	ResultDenied  Result = "denied"
)

// LogEntry is one row of the access ledger.  Entries are append-only; no
// backend exposes an update or delete path for them.
//
// CardID is nil when the scanned UID matched no card.  DurationMinutes and
// Fee are only set on a granted exit that closed an open session.
type LogEntry struct {
	ID              int64
	CardID          *int64
	CardUID         string
	ReaderID        string
	Action          Action
	Result          Result
	Reason          *string
	DurationMinutes *int64
	Fee             *int64
	DecidedAt       time.Time
}

// Ledger is the transactional view of the access log used by the decision
// engine.
type Ledger interface {
	// OpenEntry returns the most recent granted enter entry for the card that
	// has no granted exit after it.  ok is false when the card has no open
	// session.
	OpenEntry(ctx context.Context, cardID int64) (entry LogEntry, ok bool, err error)

	// Append writes e and sets e.ID.
	Append(ctx context.Context, e *LogEntry) error
}
