package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datetime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, time.UTC)
}

func TestParseInstant(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		loc     *time.Location
		want    time.Time
		wantErr bool
	}{
		{"rfc3339 utc", "2024-03-04T09:00:00Z", nil, datetime(2024, 3, 4, 9, 0), false},
		{"rfc3339 millis", "2024-03-04T09:00:00.000Z", nil, datetime(2024, 3, 4, 9, 0), false},
		{"rfc3339 offset", "2024-03-04T10:00:00+01:00", nil, datetime(2024, 3, 4, 9, 0), false},
		{"local minutes in utc", "2024-03-04T09:00", nil, datetime(2024, 3, 4, 9, 0), false},
		{"local minutes in rome", "2024-03-04T10:00", rome, datetime(2024, 3, 4, 9, 0), false},
		{"local seconds", "2024-03-04T09:00:30", nil, datetime(2024, 3, 4, 9, 0).Add(30 * time.Second), false},
		{"empty", "", nil, time.Time{}, true},
		{"garbage", "next tuesday", nil, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstant(tt.input, tt.loc)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInstant)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestInterval_Overlaps(t *testing.T) {
	base := Window(datetime(2024, 3, 4, 9, 0), 90*time.Minute)

	assert.True(t, base.Overlaps(Window(datetime(2024, 3, 4, 10, 0), 90*time.Minute)))
	assert.True(t, base.Overlaps(Window(datetime(2024, 3, 4, 8, 0), 90*time.Minute)))
	assert.True(t, base.Overlaps(base))

	// Touching windows do not overlap.
	assert.False(t, base.Overlaps(Window(datetime(2024, 3, 4, 10, 30), 90*time.Minute)))
	assert.False(t, base.Overlaps(Window(datetime(2024, 3, 4, 7, 30), 90*time.Minute)))
	assert.False(t, base.Overlaps(Window(datetime(2024, 3, 4, 11, 0), 90*time.Minute)))
}

func TestInterval_OverlapsIsSymmetric(t *testing.T) {
	starts := []time.Time{
		datetime(2024, 3, 4, 8, 0),
		datetime(2024, 3, 4, 9, 0),
		datetime(2024, 3, 4, 9, 45),
		datetime(2024, 3, 4, 10, 30),
		datetime(2024, 3, 4, 12, 0),
	}
	for _, a := range starts {
		for _, b := range starts {
			x, y := Window(a, 90*time.Minute), Window(b, 90*time.Minute)
			assert.Equal(t, x.Overlaps(y), y.Overlaps(x))
		}
	}
}

func TestInterval_Contains(t *testing.T) {
	w := Window(datetime(2024, 3, 4, 9, 0), 48*time.Hour)

	assert.True(t, w.Contains(datetime(2024, 3, 4, 9, 0)))
	assert.True(t, w.Contains(datetime(2024, 3, 6, 8, 59)))
	assert.False(t, w.Contains(datetime(2024, 3, 6, 9, 0)))
	assert.False(t, w.Contains(datetime(2024, 3, 4, 8, 59)))
}

func TestWeekKey(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{datetime(2024, 3, 4, 0, 0), "2024-W10"},    // Monday
		{datetime(2024, 3, 10, 23, 59), "2024-W10"}, // Sunday
		{datetime(2024, 3, 11, 0, 0), "2024-W11"},
		{datetime(2024, 12, 30, 12, 0), "2025-W1"}, // ISO year rolls over early
		{datetime(2021, 1, 3, 12, 0), "2020-W53"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekKey(tt.at))
		})
	}
}

func TestManual(t *testing.T) {
	start := datetime(2024, 3, 4, 9, 0)
	m := NewManual(start)
	assert.Equal(t, start, m.Now())

	m.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), m.Now())

	m.Set(start)
	assert.Equal(t, start, m.Now())
}
