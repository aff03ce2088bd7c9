package propagation

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/orbitscope/internal/tle"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO), TEME output, includes ECIToLLA for geodetic conversion.
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible to
// the caller. Failures are detected from the output: NaN/Inf or an
// unreasonable position magnitude.

const (
	minRadiusKm = 6200.0
	maxRadiusKm = 50000.0
)

// SGP4Propagator wraps the go-satellite library for a single satellite.
type SGP4Propagator struct {
	sat     satellite.Satellite
	noradID int
	epoch   time.Time
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines. epoch is the
// reference time minutes-since-epoch are measured from.
//
// Every column the library reads is checked first: go-satellite calls
// log.Fatal on a value it cannot parse.
func NewSGP4Propagator(line1, line2 string, noradID int, epoch time.Time) (*SGP4Propagator, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := tle.CheckFields(line1, line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", noradID, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", noradID, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat, noradID: noradID, epoch: epoch.UTC()}, nil
}

// Propagate computes the TEME position and velocity (km, km/s) at the given
// number of minutes after the epoch. The library resolves time to whole seconds.
func (p *SGP4Propagator) Propagate(minutesSinceEpoch float64) Result {
	if math.IsNaN(minutesSinceEpoch) || math.IsInf(minutesSinceEpoch, 0) {
		return Failed(fmt.Errorf("sgp4 propagation failed for NORAD %d: invalid time offset", p.noradID))
	}

	t := p.epoch.Add(time.Duration(minutesSinceEpoch * float64(time.Minute)))
	pos, vel := satellite.Propagate(p.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return Failed(fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", p.noradID))
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < minRadiusKm || mag > maxRadiusKm {
		return Failed(fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", p.noradID, mag))
	}

	return Result{
		Position: [3]float64{pos.X, pos.Y, pos.Z},
		Velocity: [3]float64{vel.X, vel.Y, vel.Z},
	}
}
