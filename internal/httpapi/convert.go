package httpapi

import (
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/service"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/store"
	"github.com/BrandonDHaskell/parkgate/internal/parkgate/types"
)

// eventResponse shapes a decision for the reader.  Reason is only sent on a
// denial; owner and vehicle only when the scan matched a card.
func eventResponse(d service.Decision) types.EventResponse {
	resp := types.EventResponse{
		Result:          string(d.Result),
		Message:         d.Message,
		DurationMinutes: d.DurationMinutes,
		Fee:             d.Fee,
	}
	if d.Result == store.ResultDenied {
		reason := d.Reason
		resp.Reason = &reason
	}
	if d.CardMatched {
		owner, plate := d.OwnerName, d.VehiclePlate
		resp.OwnerName = &owner
		resp.VehiclePlate = &plate
	}
	return resp
}
