package types

// EventRequest is the body a reader posts for one card scan.  The reader ID
// travels in the URL path.
type EventRequest struct {
	CardUID string `json:"card_uid"`
	Action  string `json:"action"`
}

// EventResponse is returned for every decision, granted or denied.
type EventResponse struct {
	Result          string  `json:"result"`
	Reason          *string `json:"reason"`
	Message         string  `json:"message"`
	OwnerName       *string `json:"owner_name"`
	VehiclePlate    *string `json:"vehicle_plate"`
	DurationMinutes *int64  `json:"duration_minutes"`
	Fee             *int64  `json:"fee"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
