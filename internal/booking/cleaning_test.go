package booking

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"montevecchio/internal/models"
)

func TestRotateIfNewWeek_ArchivesPreviousWeek(t *testing.T) {
	state := models.NewGroupState("")
	week10 := time.Date(2024, 3, 6, 18, 0, 0, 0, time.UTC)

	assert.False(t, RotateIfNewWeek(state, week10))
	assert.Equal(t, "2024-W10", state.CleaningWeekKey)

	_, err := ClaimZone(state, models.ZoneKitchen, "Anna", "photos/anna.jpg", week10, false)
	require.NoError(t, err)

	week11 := week10.AddDate(0, 0, 7)
	assert.True(t, RotateIfNewWeek(state, week11))

	assert.Equal(t, "2024-W11", state.CleaningWeekKey)
	assert.Nil(t, state.CleaningAssignments[models.ZoneKitchen])
	require.Len(t, state.CleaningHistory[models.ZoneKitchen], 1)
	entry := state.CleaningHistory[models.ZoneKitchen][0]
	assert.Equal(t, "Anna", entry.UserName)
	assert.Equal(t, "photos/anna.jpg", entry.PhotoReference)
	assert.True(t, entry.Timestamp.Equal(week10))
	assert.Empty(t, state.CleaningHistory[models.ZoneLivingRoom])
}

func TestRotateIfNewWeek_Idempotent(t *testing.T) {
	state := models.NewGroupState("")
	state.CleaningWeekKey = "2024-W09"
	state.CleaningAssignments[models.ZoneLivingRoom] = &models.CleaningAssignment{UserName: "Marco", Timestamp: t0}
	now := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)

	require.True(t, RotateIfNewWeek(state, now))
	snapshot := state.Clone()

	assert.False(t, RotateIfNewWeek(state, now))
	assert.Equal(t, snapshot, state)
}

func TestRotateIfNewWeek_HistoryMostRecentFirst(t *testing.T) {
	state := models.NewGroupState("")
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	RotateIfNewWeek(state, now)

	for _, name := range []string{"Anna", "Marco", "Giulia"} {
		_, err := ClaimZone(state, models.ZoneBathroomSmall, name, "", now, false)
		require.NoError(t, err)
		now = now.AddDate(0, 0, 7)
		require.True(t, RotateIfNewWeek(state, now))
	}

	history := state.CleaningHistory[models.ZoneBathroomSmall]
	require.Len(t, history, 3)
	assert.Equal(t, "Giulia", history[0].UserName)
	assert.Equal(t, "Anna", history[2].UserName)

	TrimHistory(state, 2)
	assert.Len(t, state.CleaningHistory[models.ZoneBathroomSmall], 2)
	TrimHistory(state, 0)
	assert.Len(t, state.CleaningHistory[models.ZoneBathroomSmall], 2)
}

func TestClaimZone_Toggle(t *testing.T) {
	state := models.NewGroupState("")

	res, err := ClaimZone(state, models.ZoneKitchen, "Anna", "", t0, false)
	require.NoError(t, err)
	require.NotNil(t, res.Assignment)
	assert.Equal(t, "Anna", res.Assignment.UserName)

	t.Run("OwnZoneNeedsConfirmation", func(t *testing.T) {
		_, err := ClaimZone(state, models.ZoneKitchen, "Anna", "", t0, false)
		assert.ErrorIs(t, err, ErrReleaseRequiresConfirmation)
		assert.NotNil(t, state.CleaningAssignments[models.ZoneKitchen])
	})

	t.Run("OtherHolderNeedsConfirmation", func(t *testing.T) {
		_, err := ClaimZone(state, models.ZoneKitchen, "Marco", "", t0, false)
		var claimed *ZoneClaimedError
		require.True(t, errors.As(err, &claimed))
		assert.Equal(t, "Anna", claimed.Holder)
		assert.Equal(t, "zone_claimed", RejectionCode(err))
	})

	t.Run("ConfirmedTakeoverIsNotArchived", func(t *testing.T) {
		res, err := ClaimZone(state, models.ZoneKitchen, "Marco", "", t0.Add(time.Hour), true)
		require.NoError(t, err)
		assert.Equal(t, "Anna", res.Previous)
		assert.Equal(t, "Marco", state.CleaningAssignments[models.ZoneKitchen].UserName)
		assert.Empty(t, state.CleaningHistory[models.ZoneKitchen])
	})

	t.Run("ConfirmedRelease", func(t *testing.T) {
		res, err := ClaimZone(state, models.ZoneKitchen, "Marco", "", t0, true)
		require.NoError(t, err)
		assert.True(t, res.Released)
		assert.Nil(t, state.CleaningAssignments[models.ZoneKitchen])
	})
}

func TestClaimZone_UnknownZone(t *testing.T) {
	state := models.NewGroupState("")
	_, err := ClaimZone(state, models.Zone("garage"), "Anna", "", t0, false)
	assert.ErrorIs(t, err, ErrUnknownZone)
	assert.True(t, IsRejection(err))
}

func TestShoppingAndBoard(t *testing.T) {
	state := models.NewGroupState("")
	seeded := len(state.ShoppingChecklist)

	item, err := AddShoppingItem(state, "  Coffee ")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", item.Label)
	assert.Len(t, state.ShoppingChecklist, seeded+1)

	_, err = AddShoppingItem(state, " ")
	assert.ErrorIs(t, err, ErrEmptyLabel)

	checked, err := SetShoppingItemChecked(state, item.ID, true)
	require.NoError(t, err)
	assert.True(t, checked.Checked)

	_, err = SetShoppingItemChecked(state, "missing", true)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = RemoveShoppingItem(state, item.ID)
	require.NoError(t, err)
	assert.Len(t, state.ShoppingChecklist, seeded)

	assert.Nil(t, LatestBoardMessage(state))
	_, err = PostBoardMessage(state, "Anna", "first", t0)
	require.NoError(t, err)
	_, err = PostBoardMessage(state, "Marco", "second", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "second", LatestBoardMessage(state).Text)

	_, err = PostBoardMessage(state, "Marco", "   ", t0)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRejectionCode_Infrastructure(t *testing.T) {
	assert.Empty(t, RejectionCode(nil))
	assert.False(t, IsRejection(errors.New("disk full")))
}
