package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay(t *testing.T) {
	ict := time.FixedZone("ICT", 7*3600)
	// 03:00 local on the 2nd is 20:00 UTC on the 1st.
	assert.Equal(t, time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC), Day(time.Date(2020, 10, 2, 3, 0, 0, 0, ict)))
	assert.Equal(t, time.Date(2020, 10, 2, 0, 0, 0, 0, time.UTC), Day(time.Date(2020, 10, 2, 23, 59, 59, 0, time.UTC)))
}

func TestTrailingWindow(t *testing.T) {
	day := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("three days spans a leap day", func(t *testing.T) {
		w := TrailingWindow(day, 3)
		assert.Equal(t, time.Date(2020, 2, 28, 0, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC), w.End)
	})

	t.Run("single day", func(t *testing.T) {
		assert.Equal(t, Window{
			Start: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC),
		}, DayWindow(day))
	})
}

func TestWindow_Contains(t *testing.T) {
	w := DayWindow(time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC))

	assert.True(t, w.Contains(w.Start), "start is inclusive")
	assert.True(t, w.Contains(w.Start.Add(21*time.Hour)))
	assert.False(t, w.Contains(w.End), "end is exclusive")
	assert.False(t, w.Contains(w.Start.Add(-time.Nanosecond)))
}

func TestWindow_Valid(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, Window{Start: start, End: start.Add(time.Hour)}.Valid())
	assert.False(t, Window{Start: start, End: start}.Valid())
	assert.False(t, Window{Start: start, End: start.Add(-time.Hour)}.Valid())
}

func TestWindow_String(t *testing.T) {
	w := DayWindow(time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "[2020-10-28T00:00:00Z, 2020-10-29T00:00:00Z)", w.String())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2020-10-28")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("28/10/2020")
	assert.Error(t, err)
}
