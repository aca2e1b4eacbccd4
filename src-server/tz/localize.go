package tz

import "time"

// Localize attaches loc to a wall-clock time. When the wall time happens twice
// (DST fall-back) the earlier instant is returned. A wall time inside a
// spring-forward gap is normalized the way time.Date does it.
func Localize(loc *time.Location, year int, month time.Month, day, hour, min, sec int) time.Time {
	result := time.Date(year, month, day, hour, min, sec, 0, loc)
	wall := time.Date(year, month, day, hour, min, sec, 0, time.UTC)

	// the offsets in effect a day either side cover both readings of an
	// ambiguous wall time
	for _, shift := range []time.Duration{-24 * time.Hour, 24 * time.Hour} {
		_, offset := wall.Add(shift).In(loc).Zone()
		candidate := wall.Add(-time.Duration(offset) * time.Second)
		if sameWallClock(candidate.In(loc), wall) && candidate.Before(result) {
			result = candidate
		}
	}
	return result.In(loc)
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}
