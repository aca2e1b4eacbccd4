package tz_test

import (
	"testing"
	"time"

	"nlcal/src-server/tz"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizeHonoursDST(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	summer := tz.Localize(ny, 2024, time.August, 15, 19, 30, 0)
	assert.Equal(t, time.Date(2024, time.August, 15, 23, 30, 0, 0, time.UTC), summer.UTC())

	winter := tz.Localize(ny, 2024, time.January, 15, 19, 30, 0)
	assert.Equal(t, time.Date(2024, time.January, 16, 0, 30, 0, 0, time.UTC), winter.UTC())
}

func TestLocalizeAmbiguousPicksEarlier(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:30 happens twice on 2024-11-03; the EDT reading comes first
	got := tz.Localize(ny, 2024, time.November, 3, 1, 30, 0)
	assert.Equal(t, time.Date(2024, time.November, 3, 5, 30, 0, 0, time.UTC), got.UTC())
	name, _ := got.Zone()
	assert.Equal(t, "EDT", name)

	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	got = tz.Localize(london, 2024, time.October, 27, 1, 15, 0)
	assert.Equal(t, time.Date(2024, time.October, 27, 0, 15, 0, 0, time.UTC), got.UTC())
}

func TestLocalizeGapIsNormalized(t *testing.T) {
	t.Parallel()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:30 does not exist on 2024-03-10; whatever comes back must be a real
	// instant on that day in the zone
	got := tz.Localize(ny, 2024, time.March, 10, 2, 30, 0)
	y, m, d := got.Date()
	assert.Equal(t, 2024, y)
	assert.Equal(t, time.March, m)
	assert.Equal(t, 10, d)
}

func TestLocalizeFixedZone(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+05:30", 5*3600+30*60)
	got := tz.Localize(loc, 2024, time.May, 1, 9, 0, 0)
	assert.Equal(t, time.Date(2024, time.May, 1, 3, 30, 0, 0, time.UTC), got.UTC())
}
