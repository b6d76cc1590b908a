package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
)

// DirectionPolicy decides how the action claimed by a reader's payload is
// reconciled with the reader's configured direction.
type DirectionPolicy string

const (
	// DirectionFromPayload uses the payload's action verbatim.
	DirectionFromPayload DirectionPolicy = "payload"
	// DirectionValidate denies scans whose action disagrees with the reader.
	DirectionValidate DirectionPolicy = "validate"
	// DirectionFromReader replaces the payload's action with the reader's.
	DirectionFromReader DirectionPolicy = "reader"
)

func ParseDirectionPolicy(s string) (DirectionPolicy, error) {
	switch p := DirectionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DirectionFromPayload, nil
	case DirectionFromPayload, DirectionValidate, DirectionFromReader:
		return p, nil
	default:
		return "", fmt.Errorf("unknown direction policy %q", s)
	}
}

// resolveAction returns the action to record and whether the scan must be
// denied for a direction mismatch.
func (p DirectionPolicy) resolveAction(reader store.Reader, claimed store.Action) (store.Action, bool) {
	switch p {
	case DirectionFromReader:
		return reader.Direction.Action(), false
	case DirectionValidate:
		return claimed, reader.Direction.Action() != claimed
	default:
		return claimed, false
	}
}

// Denial reasons written to the ledger.
const (
	ReasonNotFound          = "not_found"
	ReasonBlocked           = "blocked"
	ReasonLost              = "lost"
	ReasonExpired           = "expired"
	ReasonInvalid           = "invalid"
	ReasonDirectionMismatch = "direction_mismatch"
)

// denialReason evaluates status before expiry, so a blocked card past its
// expiry is still reported as blocked.
func denialReason(card store.Card, now time.Time) (string, bool) {
	switch card.Status {
	case store.CardActive:
		if card.ExpiresAt != nil && card.ExpiresAt.Before(now) {
			return ReasonExpired, true
		}
		return "", false
	case store.CardBlocked:
		return ReasonBlocked, true
	case store.CardLost:
		return ReasonLost, true
	case store.CardExpired:
		return ReasonExpired, true
	default:
		return ReasonInvalid, true
	}
}
