package store

import (
	"context"
	"time"
)

type CardStatus string

const (
	CardActive  CardStatus = "active"
	CardBlocked CardStatus = "blocked"
	CardLost    CardStatus = "lost"
	CardExpired CardStatus = "expired"
)

// Card is owned by the management side; the gate only reads it, except for
// flipping an overdue card to expired.
type Card struct {
	ID           int64
	UID          string
	OwnerName    string
	VehiclePlate string
	Status       CardStatus
	ExpiresAt    *time.Time
}

type CardRegistry interface {
	// CardByUID returns ErrNotFound when no card carries uid.  Backends that
	// support row locks lock the card for the rest of the transaction.
	CardByUID(ctx context.Context, uid string) (Card, error)

	// MarkExpired persists the lazily materialized expiry of a card.
	MarkExpired(ctx context.Context, cardID int64, at time.Time) error
}
