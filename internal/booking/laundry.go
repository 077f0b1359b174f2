package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"montevecchio/internal/models"
)

// RequestLaundryBooking reserves a drying rack for 48 hours from start.
// Expired reservations are swept first; with both racks live the request is
// rejected with the earliest time a rack frees up. Starts in the past are
// accepted.
func RequestLaundryBooking(state *models.GroupState, userName string, start, now time.Time) (*models.LaundryReservation, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return nil, ErrEmptyUserName
	}
	if start.IsZero() {
		return nil, ErrInvalidStartTime
	}

	live := SweepLaundry(state.LaundryReservations, now)
	state.LaundryReservations = live

	if len(live) >= len(models.Racks) {
		earliest := live[0]
		for _, r := range live[1:] {
			if r.EndTime().Before(earliest.EndTime()) {
				earliest = r
			}
		}
		return nil, &NoRackAvailableError{
			EarliestFreeAt:   earliest.EndTime(),
			BlockingUserName: earliest.UserName,
		}
	}

	reservation := models.LaundryReservation{
		ID:        uuid.NewString(),
		UserName:  userName,
		StartTime: start,
		RackLabel: freeRack(live),
	}
	state.LaundryReservations = append(state.LaundryReservations, reservation)
	return &reservation, nil
}

func freeRack(live []models.LaundryReservation) models.RackLabel {
	held := make(map[models.RackLabel]bool, len(live))
	for _, r := range live {
		held[r.RackLabel] = true
	}
	for _, rack := range models.Racks {
		if !held[rack] {
			return rack
		}
	}
	return models.Racks[len(models.Racks)-1]
}
