package booking

import (
	"time"

	"montevecchio/internal/models"
)

// SweepLaundry keeps the reservations whose 48h window has not ended.
// Reservations with an unreadable start are dropped.
func SweepLaundry(list []models.LaundryReservation, now time.Time) []models.LaundryReservation {
	out := make([]models.LaundryReservation, 0, len(list))
	for _, r := range list {
		if r.StartTime.IsZero() {
			continue
		}
		if now.Before(r.EndTime()) {
			out = append(out, r)
		}
	}
	return out
}

// SweepShowers keeps the bookings whose 90 minute slot has not ended.
func SweepShowers(list []models.ShowerBooking, now time.Time) []models.ShowerBooking {
	out := make([]models.ShowerBooking, 0, len(list))
	for _, b := range list {
		if b.StartTime.IsZero() {
			continue
		}
		if now.Before(b.EndTime()) {
			out = append(out, b)
		}
	}
	return out
}

// Sweep drops expired laundry and shower entries from the state and reports
// whether anything was removed.
func Sweep(state *models.GroupState, now time.Time) bool {
	laundry := SweepLaundry(state.LaundryReservations, now)
	showers := SweepShowers(state.ShowerBookings, now)
	changed := len(laundry) != len(state.LaundryReservations) || len(showers) != len(state.ShowerBookings)
	state.LaundryReservations = laundry
	state.ShowerBookings = showers
	return changed
}
