package report

import (
	"fmt"
	"io"
	"time"

	"montevecchio/internal/models"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04"

// WriteCleaningHistory writes a workbook with an overview sheet and one
// sheet per zone listing the current assignment followed by its history.
func WriteCleaningHistory(out io.Writer, state *models.GroupState, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	w, err := newSheetWriter()
	if err != nil {
		return err
	}
	defer w.close()

	if err := w.addSheet("Overview"); err != nil {
		return err
	}
	if err := w.writeHeader("Zone", "Current", "Past weeks"); err != nil {
		return err
	}
	for _, z := range models.Zones {
		current := ""
		if a := state.CleaningAssignments[z]; a != nil {
			current = a.UserName
		}
		if err := w.writeRow(string(z), current, len(state.CleaningHistory[z])); err != nil {
			return err
		}
	}
	if state.CleaningWeekKey != "" {
		if err := w.writeRow("Week", state.CleaningWeekKey); err != nil {
			return err
		}
	}

	for _, z := range models.Zones {
		if err := w.addSheet(string(z)); err != nil {
			return err
		}
		if err := w.writeHeader("User", "Photo", "Assigned at"); err != nil {
			return err
		}
		if a := state.CleaningAssignments[z]; a != nil {
			if err := w.writeRow(a.UserName, a.PhotoReference, formatTime(a.Timestamp, loc)); err != nil {
				return err
			}
		}
		for _, h := range state.CleaningHistory[z] {
			if err := w.writeRow(h.UserName, h.PhotoReference, formatTime(h.Timestamp, loc)); err != nil {
				return err
			}
		}
	}

	if err := w.save(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(timeLayout)
}
