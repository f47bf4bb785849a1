package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySeries(t *testing.T) {
	day := time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC)
	s := NewMemorySeries(
		frameWith(t, day.Add(21*time.Hour), 1, 1),
		frameWith(t, day.Add(-3*time.Hour), 1, 1),
		frameWith(t, day, 1, 1),
		frameWith(t, day.Add(24*time.Hour), 1, 1),
	)

	t.Run("half-open window, oldest first", func(t *testing.T) {
		frames, err := s.Query(context.Background(), DayWindow(day))
		require.NoError(t, err)
		require.Len(t, frames, 2)
		assert.Equal(t, day, frames[0].Time)
		assert.Equal(t, day.Add(21*time.Hour), frames[1].Time)
	})

	t.Run("timestamps", func(t *testing.T) {
		ts, err := s.Timestamps(context.Background(), TrailingWindow(day.AddDate(0, 0, 1), 2))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{day, day.Add(21 * time.Hour), day.Add(24 * time.Hour)}, ts)
	})

	t.Run("empty window is not an error", func(t *testing.T) {
		frames, err := s.Query(context.Background(), DayWindow(day.AddDate(1, 0, 0)))
		require.NoError(t, err)
		assert.Empty(t, frames)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Query(ctx, DayWindow(day))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRenameBands(t *testing.T) {
	day := time.Date(2020, 10, 28, 0, 0, 0, 0, time.UTC)
	inner := NewMemorySeries(RasterFrame{Time: day, Bands: map[string]Grid{
		"Qs_acc":    mustGrid(t, 1, 1, 1),
		"untouched": mustGrid(t, 1, 1, 2),
	}})

	s := RenameBands(inner, map[string]string{"Qs_acc": BandSurfaceRunoff})
	frames, err := s.Query(context.Background(), DayWindow(day))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	_, err = frames[0].Band(BandSurfaceRunoff)
	require.NoError(t, err)
	_, err = frames[0].Band("untouched")
	require.NoError(t, err)
	_, err = frames[0].Band("Qs_acc")
	assert.ErrorIs(t, err, ErrBandMissing)

	ts, err := s.Timestamps(context.Background(), DayWindow(day))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day}, ts)

	assert.Same(t, inner, RenameBands(inner, nil))
}
