package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"montevecchio/internal/models"
)

func TestWriteCleaningHistory(t *testing.T) {
	state := models.NewGroupState("")
	state.CleaningWeekKey = "2024-W11"
	assigned := time.Date(2024, 3, 11, 8, 30, 0, 0, time.UTC)
	state.CleaningAssignments[models.ZoneKitchen] = &models.CleaningAssignment{UserName: "Marco", PhotoReference: "photos/marco/1.jpg", Timestamp: assigned}
	state.CleaningHistory[models.ZoneKitchen] = []models.CleaningHistoryEntry{
		{UserName: "Anna", Timestamp: assigned.AddDate(0, 0, -7)},
		{UserName: "Giulia", Timestamp: assigned.AddDate(0, 0, -14)},
	}

	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCleaningHistory(&buf, state, rome))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Overview", "bathroom-small", "bathroom-large", "living-room", "kitchen"}, f.GetSheetList())

	overview, err := f.GetRows("Overview")
	require.NoError(t, err)
	assert.Equal(t, []string{"Zone", "Current", "Past weeks"}, overview[0])
	assert.Equal(t, []string{"kitchen", "Marco", "2"}, overview[4])
	assert.Equal(t, []string{"Week", "2024-W11"}, overview[5])

	rows, err := f.GetRows("kitchen")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Marco", "photos/marco/1.jpg", "2024-03-11 09:30"}, rows[1])
	assert.Equal(t, "Anna", rows[2][0])
	assert.Equal(t, "Giulia", rows[3][0])

	empty, err := f.GetRows("living-room")
	require.NoError(t, err)
	assert.Len(t, empty, 1)
}
