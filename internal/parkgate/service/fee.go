package service

import "time"

// sessionCharge returns the whole minutes parked and the fee for a session.
// Every started hour is billed, and a session always bills at least one
// hour, including a same-instant exit.
func sessionCharge(enteredAt, exitedAt time.Time, ratePerHour int64) (minutes, fee int64) {
	elapsed := exitedAt.Sub(enteredAt)
	if elapsed < 0 {
		// Clock skew between the enter and exit decisions.
		elapsed = 0
	}

	minutes = int64(elapsed / time.Minute)

	hours := int64(elapsed / time.Hour)
	if hours == 0 || elapsed%time.Hour != 0 {
		hours++
	}
	return minutes, hours * ratePerHour
}
