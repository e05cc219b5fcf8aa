package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeConfiguredLayout(t *testing.T) {
	ts, ok := ParseTime("2026-02-01 12:23", DefaultTimeFormat)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 1, 12, 23, 0, 0, time.UTC), ts)
}

func TestParseTimeFallbackLayouts(t *testing.T) {
	for _, in := range []string{
		"2026-02-01 12:23:45",
		"2026-02-01T12:23:45",
		"2026-02-01T12:23",
		"2026-02-01T12:23:45Z",
	} {
		_, ok := ParseTime(in, DefaultTimeFormat)
		assert.True(t, ok, in)
	}
}

func TestParseTimeEpochSeconds(t *testing.T) {
	ts, ok := ParseTime("1767225600", DefaultTimeFormat)
	require.True(t, ok)
	assert.Equal(t, int64(1767225600), ts.Unix())

	ts, ok = ParseTime("10.5", DefaultTimeFormat)
	require.True(t, ok)
	assert.Equal(t, int64(10500), ts.UnixMilli())
}

func TestParseTimeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "yesterday", "12 o'clock", "NaN"} {
		_, ok := ParseTime(in, DefaultTimeFormat)
		assert.False(t, ok, in)
	}
}

func TestBucketMillisRoundsToNearest(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.UnixMilli(), BucketMillis(base, 60000))
	assert.Equal(t, base.UnixMilli(), BucketMillis(base.Add(29*time.Second), 60000))
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), BucketMillis(base.Add(31*time.Second), 60000))
}

func TestBucketMillisGuardsZeroTolerance(t *testing.T) {
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.UnixMilli(), BucketMillis(base, 0))
}

func TestRounding(t *testing.T) {
	assert.Equal(t, 455.12, Round2(455.119))
	assert.Equal(t, 193.0, Round2(193.0043))
	assert.Equal(t, 0.762, Round3(16.0/21.0))
	assert.Equal(t, 0.048, Round3(1.0/21.0))
}
