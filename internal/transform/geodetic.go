package transform

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Geodetic is a sub-satellite point on the WGS-84 ellipsoid.
type Geodetic struct {
	LatitudeDeg  float64
	LongitudeDeg float64 // [-180, 180)
	AltitudeKm   float64
}

// TEMEToGeodetic converts a TEME position (km) at time t into latitude,
// longitude and altitude.
func TEMEToGeodetic(pos [3]float64, t time.Time) Geodetic {
	alt, _, ll := satellite.ECIToLLA(satellite.Vector3{X: pos[0], Y: pos[1], Z: pos[2]}, GMST(t))

	return Geodetic{
		LatitudeDeg:  ll.Latitude * 180 / math.Pi,
		LongitudeDeg: normalizeDeg(ll.Longitude * 180 / math.Pi),
		AltitudeKm:   alt,
	}
}

// normalizeDeg wraps an angle into [-180, 180).
func normalizeDeg(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	return deg - 180
}
