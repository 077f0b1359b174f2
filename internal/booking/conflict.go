package booking

import (
	"time"

	"montevecchio/internal/clock"
	"montevecchio/internal/models"
)

func showerWindow(start time.Time) clock.Interval {
	return clock.Window(start, models.ShowerWindow)
}

// RecomputeConflicts clears every conflict flag and sets it again on both
// members of each overlapping pair.
func RecomputeConflicts(list []models.ShowerBooking) []models.ShowerBooking {
	for i := range list {
		list[i].HasConflict = false
	}
	for i := 0; i < len(list); i++ {
		wi := showerWindow(list[i].StartTime)
		for j := i + 1; j < len(list); j++ {
			if wi.Overlaps(showerWindow(list[j].StartTime)) {
				list[i].HasConflict = true
				list[j].HasConflict = true
			}
		}
	}
	return list
}

// Overlapping returns the bookings whose slot overlaps a slot starting at start.
func Overlapping(list []models.ShowerBooking, start time.Time) []models.ShowerBooking {
	candidate := showerWindow(start)
	var out []models.ShowerBooking
	for _, b := range list {
		if candidate.Overlaps(showerWindow(b.StartTime)) {
			out = append(out, b)
		}
	}
	return out
}
