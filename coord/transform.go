package coord

import (
	"math"
	"time"
)

// Location is an observer's position on Earth.
type Location struct {
	LatDeg float64
	LonDeg float64 // positive east, wrapped to [-180, 180)
}

// Horizontal is an azimuth/altitude pair, in degrees. Azimuth 0 is
// south, increasing as in the original firmware's convention (the
// classical north-referenced formulation would need a 180 degree
// offset applied on top of this package's formulas; here it falls out
// directly from the south-based hour-angle identity below).
type Horizontal struct {
	AzDeg  float64
	AltDeg float64
}

// Equatorial is a right-ascension/declination pair. RA is in hours
// [0, 24), Dec in degrees [-90, 90].
type Equatorial struct {
	RAHours float64
	DecDeg  float64
}

const degToRad = math.Pi / 180.0
const radToDeg = 180.0 / math.Pi

// zenithEpsilon is the sine-of-zenith-distance threshold below which
// the azimuth formula is singular; see EquToHor.
const zenithEpsilon = 1e-5

// EquToHor converts equatorial coordinates to horizontal coordinates
// for the given instant and observer location.
func EquToHor(equ Equatorial, t time.Time, loc Location) Horizontal {
	lst := MeanSiderealTime(JulianDate(t)) * 15.0 * degToRad // hours -> radians
	ra := equ.RAHours * 15.0 * degToRad
	lon := loc.LonDeg * degToRad
	lat := loc.LatDeg * degToRad
	dec := equ.DecDeg * degToRad

	h := lst + lon - ra

	a := math.Sin(lat)*math.Sin(dec) + math.Cos(lat)*math.Cos(dec)*math.Cos(h)
	alt := math.Asin(clampUnit(a))
	z := math.Acos(clampUnit(a))
	zs := math.Sin(z)

	if zs < zenithEpsilon {
		az := 0.0
		if foldSigned(lat) > 0 {
			az = 180.0
		}
		return Horizontal{AzDeg: az, AltDeg: alt * radToDeg}
	}

	as := (math.Cos(dec) * math.Sin(h)) / zs
	if math.Abs(as) < zenithEpsilon {
		return Horizontal{AzDeg: 0, AltDeg: alt * radToDeg}
	}
	ac := (math.Sin(lat)*math.Cos(dec)*math.Cos(h) - math.Cos(lat)*math.Sin(dec)) / zs

	az := math.Atan2(as, ac)
	return Horizontal{AzDeg: fold360(az * radToDeg), AltDeg: alt * radToDeg}
}

// HorToEqu converts horizontal coordinates to equatorial coordinates
// for the given instant and observer location. It is EquToHor's
// approximate inverse.
func HorToEqu(hor Horizontal, t time.Time, loc Location) Equatorial {
	lst := MeanSiderealTime(JulianDate(t)) * 15.0 * degToRad
	lon := loc.LonDeg * degToRad
	lat := loc.LatDeg * degToRad
	a := hor.AzDeg * degToRad
	h := hor.AltDeg * degToRad

	ha := math.Atan2(math.Sin(a), math.Cos(a)*math.Sin(lat)+math.Tan(h)*math.Cos(lat))
	dec := math.Asin(clampUnit(math.Sin(lat)*math.Sin(h) - math.Cos(lat)*math.Cos(h)*math.Cos(a)))

	ra := fold360((lst - ha + lon) * radToDeg)
	return Equatorial{RAHours: ra / 15.0, DecDeg: dec * radToDeg}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// fold360 reduces a degree value into [0, 360).
func fold360(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}

// foldSigned reduces a radian value into (-pi, pi].
func foldSigned(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad > math.Pi {
		rad -= 2 * math.Pi
	} else if rad <= -math.Pi {
		rad += 2 * math.Pi
	}
	return rad
}
