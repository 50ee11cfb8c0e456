package coord

import (
	"math"
	"testing"
	"time"
)

func TestJulianDateUnixEpoch(t *testing.T) {
	got := JulianDate(time.Unix(0, 0).UTC())
	want := 2440587.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestMeanSiderealTimeInRange(t *testing.T) {
	jd := JulianDate(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))
	st := MeanSiderealTime(jd)
	if st < 0 || st >= 24 {
		t.Errorf("sidereal time %v out of [0,24) range", st)
	}
}

func TestEquToHorAzimuthInRange(t *testing.T) {
	loc := Location{LatDeg: 50.0, LonDeg: 8.0}
	now := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC)
	hor := EquToHor(Equatorial{RAHours: 12.0, DecDeg: 30.0}, now, loc)
	if hor.AzDeg < 0 || hor.AzDeg >= 360 {
		t.Errorf("azimuth %v out of [0,360) range", hor.AzDeg)
	}
	if hor.AltDeg < -90 || hor.AltDeg > 90 {
		t.Errorf("altitude %v out of [-90,90] range", hor.AltDeg)
	}
}

func TestHorEquRoundTrip(t *testing.T) {
	loc := Location{LatDeg: 50.0, LonDeg: 8.0}
	now := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC)
	want := Equatorial{RAHours: 10.0, DecDeg: 45.0}

	hor := EquToHor(want, now, loc)
	got := HorToEqu(hor, now, loc)

	if math.Abs(got.DecDeg-want.DecDeg) > 1e-6 {
		t.Errorf("Dec round trip: got %v want %v", got.DecDeg, want.DecDeg)
	}
	raDelta := math.Mod(got.RAHours-want.RAHours+24, 24)
	if raDelta > 1e-5 && raDelta < 24-1e-5 {
		t.Errorf("RA round trip: got %v want %v", got.RAHours, want.RAHours)
	}
}

func TestEquToHorNearZenithDoesNotPanic(t *testing.T) {
	loc := Location{LatDeg: 50.0, LonDeg: 8.0}
	now := time.Date(2026, 7, 31, 22, 0, 0, 0, time.UTC)
	lst := MeanSiderealTime(JulianDate(now))
	// place the object's hour angle at zero (RA equal to the local
	// sidereal time, i.e. GMST plus the east longitude) and declination
	// equal to latitude so it transits at the zenith
	hor := EquToHor(Equatorial{RAHours: lst + loc.LonDeg/15.0, DecDeg: loc.LatDeg}, now, loc)
	if hor.AltDeg < 89.9 {
		t.Errorf("expected near-zenith altitude, got %v", hor.AltDeg)
	}
}
