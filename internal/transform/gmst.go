// Package transform converts SGP4 output (TEME, km) into quantities the scene
// and API need: sidereal angle for Earth orientation and geodetic coordinates.
package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// SiderealDaySeconds is the length of one Earth rotation relative to the stars.
const SiderealDaySeconds = 86164.0

// JulianDate converts a time.Time to Julian Date (UTC).
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a given UTC time.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t) - j2000) / 36525.0

	// 876600h = 3155760000 seconds.
	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}

// RotationDelta returns the Earth rotation angle in radians over d, using the
// given sidereal day length in seconds.
func RotationDelta(d time.Duration, siderealDay float64) float64 {
	return 2 * math.Pi * d.Seconds() / siderealDay
}
