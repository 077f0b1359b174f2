package booking

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"montevecchio/internal/models"
)

// RequestShowerBooking books a 90 minute slot. An overlap with a live booking
// is rejected unless acceptConflict is set, in which case the booking is
// stored and every overlapping booking is flagged.
func RequestShowerBooking(state *models.GroupState, userName string, start, now time.Time, acceptConflict bool) (*models.ShowerBooking, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, ErrEmptyUserName
	}
	if start.IsZero() {
		return nil, ErrInvalidStartTime
	}

	state.ShowerBookings = SweepShowers(state.ShowerBookings, now)

	conflicts := Overlapping(state.ShowerBookings, start)
	if len(conflicts) > 0 && !acceptConflict {
		return nil, &ShowerConflictError{Conflicts: conflicts}
	}

	booking := models.ShowerBooking{
		ID:          uuid.NewString(),
		UserName:    userName,
		StartTime:   start,
		HasConflict: len(conflicts) > 0,
	}
	state.ShowerBookings = RecomputeConflicts(append(state.ShowerBookings, booking))

	for _, b := range state.ShowerBookings {
		if b.ID == booking.ID {
			booking = b
			break
		}
	}
	return &booking, nil
}

// Upcoming returns the n soonest bookings ordered by start. n <= 0 returns all.
func Upcoming(list []models.ShowerBooking, n int) []models.ShowerBooking {
	out := append([]models.ShowerBooking{}, list...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
