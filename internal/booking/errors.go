package booking

import (
	"errors"
	"fmt"
	"time"

	"montevecchio/internal/models"
)

var (
	ErrConflictRequiresConfirmation = errors.New("shower slot overlaps an existing booking")
	ErrInvalidStartTime             = errors.New("invalid start time")
	ErrUnknownZone                  = errors.New("unknown cleaning zone")
	ErrReleaseRequiresConfirmation  = errors.New("releasing your own zone requires confirmation")
	ErrEmptyUserName                = errors.New("user name is required")
	ErrEmptyLabel                   = errors.New("item label is required")
	ErrEmptyMessage                 = errors.New("message text is required")
	ErrItemNotFound                 = errors.New("shopping item not found")
)

// NoRackAvailableError is returned when both racks hold live reservations.
type NoRackAvailableError struct {
	EarliestFreeAt   time.Time
	BlockingUserName string
}

func (e *NoRackAvailableError) Error() string {
	return fmt.Sprintf("no drying rack available until %s (held by %s)",
		e.EarliestFreeAt.Format(time.RFC3339), e.BlockingUserName)
}

// ShowerConflictError carries the bookings a requested slot overlaps.
// It matches ErrConflictRequiresConfirmation with errors.Is.
type ShowerConflictError struct {
	Conflicts []models.ShowerBooking
}

func (e *ShowerConflictError) Error() string {
	return fmt.Sprintf("%s (%d overlapping)", ErrConflictRequiresConfirmation, len(e.Conflicts))
}

func (e *ShowerConflictError) Is(target error) bool {
	return target == ErrConflictRequiresConfirmation
}

// ZoneClaimedError is returned when another person holds the zone and the
// takeover was not confirmed.
type ZoneClaimedError struct {
	Zone   models.Zone
	Holder string
}

func (e *ZoneClaimedError) Error() string {
	return fmt.Sprintf("zone %s is already taken by %s", e.Zone, e.Holder)
}

// RejectionCode maps a business rejection to a stable code. It returns an
// empty string for anything that is not a rejection.
func RejectionCode(err error) string {
	var noRack *NoRackAvailableError
	var claimed *ZoneClaimedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &noRack):
		return "no_rack_available"
	case errors.As(err, &claimed):
		return "zone_claimed"
	case errors.Is(err, ErrConflictRequiresConfirmation):
		return "conflict_requires_confirmation"
	case errors.Is(err, ErrInvalidStartTime):
		return "invalid_start_time"
	case errors.Is(err, ErrUnknownZone):
		return "unknown_zone"
	case errors.Is(err, ErrReleaseRequiresConfirmation):
		return "release_requires_confirmation"
	case errors.Is(err, ErrEmptyUserName):
		return "empty_user_name"
	case errors.Is(err, ErrEmptyLabel):
		return "empty_label"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	}
	return ""
}

// IsRejection reports whether err is a business outcome rather than an
// infrastructure failure.
func IsRejection(err error) bool {
	return RejectionCode(err) != ""
}
