package booking

import (
	"strings"
	"time"

	"montevecchio/internal/clock"
	"montevecchio/internal/models"
)

// RotateIfNewWeek archives every current assignment when the week has changed
// since the last rotation. The first run only records the week. It reports
// whether assignments were archived.
func RotateIfNewWeek(state *models.GroupState, now time.Time) bool {
	key := clock.WeekKey(now)
	if state.CleaningWeekKey == key {
		return false
	}
	first := state.CleaningWeekKey == ""
	state.CleaningWeekKey = key
	if first {
		return false
	}

	ensureZones(state)
	for _, z := range models.Zones {
		a := state.CleaningAssignments[z]
		if a == nil {
			continue
		}
		entry := models.CleaningHistoryEntry{
			UserName:       a.UserName,
			PhotoReference: a.PhotoReference,
			Timestamp:      a.Timestamp,
		}
		state.CleaningHistory[z] = append([]models.CleaningHistoryEntry{entry}, state.CleaningHistory[z]...)
		state.CleaningAssignments[z] = nil
	}
	return true
}

// TrimHistory keeps at most limit entries per zone. A non-positive limit
// keeps everything.
func TrimHistory(state *models.GroupState, limit int) {
	if limit <= 0 {
		return
	}
	for z, h := range state.CleaningHistory {
		if len(h) > limit {
			state.CleaningHistory[z] = h[:limit]
		}
	}
}

// ClaimResult describes the outcome of a claim toggle.
type ClaimResult struct {
	Assignment *models.CleaningAssignment
	Released   bool
	// Previous is set when a confirmed takeover replaced another holder.
	Previous string
}

// ClaimZone toggles a zone for userName. A free zone is assigned; the
// holder's own zone is released and another holder is replaced, both only
// when confirmed.
func ClaimZone(state *models.GroupState, zone models.Zone, userName, photoRef string, now time.Time, confirmed bool) (ClaimResult, error) {
	if !zone.Valid() {
		return ClaimResult{}, ErrUnknownZone
	}
	userName = strings.TrimSpace(userName)
	if userName == "" {
		return ClaimResult{}, ErrEmptyUserName
	}
	ensureZones(state)

	var previous string
	if holder := state.CleaningAssignments[zone]; holder != nil {
		if holder.UserName == userName {
			if !confirmed {
				return ClaimResult{}, ErrReleaseRequiresConfirmation
			}
			state.CleaningAssignments[zone] = nil
			return ClaimResult{Released: true}, nil
		}
		if !confirmed {
			return ClaimResult{}, &ZoneClaimedError{Zone: zone, Holder: holder.UserName}
		}
		previous = holder.UserName
	}

	assignment := &models.CleaningAssignment{
		UserName:       userName,
		PhotoReference: photoRef,
		Timestamp:      now,
	}
	state.CleaningAssignments[zone] = assignment
	cp := *assignment
	return ClaimResult{Assignment: &cp, Previous: previous}, nil
}

func ensureZones(state *models.GroupState) {
	if state.CleaningAssignments == nil {
		state.CleaningAssignments = make(map[models.Zone]*models.CleaningAssignment, len(models.Zones))
	}
	if state.CleaningHistory == nil {
		state.CleaningHistory = make(map[models.Zone][]models.CleaningHistoryEntry, len(models.Zones))
	}
	for _, z := range models.Zones {
		if _, ok := state.CleaningAssignments[z]; !ok {
			state.CleaningAssignments[z] = nil
		}
		if state.CleaningHistory[z] == nil {
			state.CleaningHistory[z] = []models.CleaningHistoryEntry{}
		}
	}
}
