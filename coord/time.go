// Package coord converts between horizontal (azimuth/altitude) and
// equatorial (right ascension/declination) coordinates for a given
// observer location and instant, following the classical formulas used
// by the original mount-control firmware this package replaces.
package coord

import "time"

const unixEpochJD = 2440587.5

// JulianDate returns the Julian Date of t.
func JulianDate(t time.Time) float64 {
	return unixEpochJD + float64(t.UnixNano())/1e9/86400.0
}

// MeanSiderealTime returns the Greenwich mean sidereal time, in hours,
// for the given Julian Date. Nutation correction (turning this into
// "apparent" sidereal time) is not applied: this package targets a
// straightforward present-instant transform, not high-accuracy
// astrometry.
func MeanSiderealTime(jd float64) float64 {
	t := (jd - 2451545.0) / 36525.0
	deg := 280.46061837 + 360.98564736629*(jd-2451545.0) + 0.000387933*t*t - t*t*t/38710000.0
	return foldHours(deg / 15.0)
}

func foldHours(h float64) float64 {
	h = mod(h, 24.0)
	if h < 0 {
		h += 24.0
	}
	return h
}

func mod(a, b float64) float64 {
	m := a - b*float64(int(a/b))
	return m
}
