package store

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

// Action maps a reader's physical direction to the scan action it implies.
func (d Direction) Action() Action {
	if d == DirectionExit {
		return ActionExit
	}
	return ActionEnter
}

type ReaderStatus string

const (
	ReaderActive  ReaderStatus = "active"
	ReaderOffline ReaderStatus = "offline"
)

// Reader is a physical access point.  Direction never changes after the
// reader is created.
type Reader struct {
	ID         string
	Name       string
	Direction  Direction
	Status     ReaderStatus
	LastSeenAt *time.Time
}

type ReaderRegistry interface {
	// ReaderByID returns ErrNotFound for an unknown reader.
	ReaderByID(ctx context.Context, id string) (Reader, error)
}
