package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseResolution(t *testing.T) {
	for _, s := range []string{"minute", "hour", "day"} {
		res, err := ParseResolution(s)
		require.NoError(t, err)
		require.True(t, res.Valid())
	}

	for _, s := range []string{"", "week", "1m", "Day"} {
		_, err := ParseResolution(s)
		require.ErrorIs(t, err, ErrInvalidRequest, "resolution %q", s)
	}
}

func TestResolutionStep(t *testing.T) {
	require.Equal(t, time.Minute, ResolutionMinute.Step())
	require.Equal(t, time.Hour, ResolutionHour.Step())
	require.Equal(t, 24*time.Hour, ResolutionDay.Step())
}

func TestRangeValid(t *testing.T) {
	now := time.Now()
	require.True(t, Range{Start: now.Add(-time.Hour), End: now}.Valid())
	require.False(t, Range{Start: now, End: now}.Valid(), "zero-width range is invalid")
	require.False(t, Range{Start: now, End: now.Add(-time.Hour)}.Valid())
}

func TestRangeContains(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Range{Start: start, End: start.Add(time.Hour)}
	require.True(t, r.Contains(start), "range is inclusive of both ends")
	require.True(t, r.Contains(start.Add(time.Hour)))
	require.True(t, r.Contains(start.Add(30*time.Minute)))
	require.False(t, r.Contains(start.Add(-time.Second)))
	require.False(t, r.Contains(start.Add(time.Hour+time.Second)))
}
