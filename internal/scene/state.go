package scene

import (
	"time"

	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/transform"
)

// Vec3 is a position in Earth radii.
type Vec3 [3]float64

// State is the mutable frame state for one set of tracked objects. It is not
// safe for concurrent use; the Animator serializes access.
type State struct {
	Objects       []propagation.Object
	Positions     []Vec3      // marker positions, Earth radii
	LastUpdated   []time.Time // zero until the first successful propagation
	LastErr       []error     // error from the latest propagation, nil on success
	EarthRotation float64     // radians
	Seq           uint64      // frames applied

	earthRadiusKm float64
	siderealDay   float64
}

// Failure records one object whose propagation failed in a frame.
type Failure struct {
	Index   int
	NORADID int
	Name    string
	Err     error
}

// Report summarizes one Update.
type Report struct {
	Updated  int
	Failed   int
	Failures []Failure
}

// NewState creates frame state for objects. Markers start at the origin.
func NewState(objects []propagation.Object, cfg Config) *State {
	if cfg.EarthRadiusKm <= 0 {
		cfg.EarthRadiusKm = DefaultConfig().EarthRadiusKm
	}
	if cfg.SiderealDaySeconds <= 0 {
		cfg.SiderealDaySeconds = transform.SiderealDaySeconds
	}
	return &State{
		Objects:       objects,
		Positions:     make([]Vec3, len(objects)),
		LastUpdated:   make([]time.Time, len(objects)),
		LastErr:       make([]error, len(objects)),
		earthRadiusKm: cfg.EarthRadiusKm,
		siderealDay:   cfg.SiderealDaySeconds,
	}
}

// Update advances the state to now. Each object is propagated to now; on
// success its marker moves to the propagated position scaled to Earth radii,
// on failure the marker keeps its previous position and the failure is
// reported. The Earth rotation advances by delta.
func (s *State) Update(now time.Time, delta time.Duration) Report {
	var report Report

	for i, obj := range s.Objects {
		res := obj.At(now)
		if !res.OK() {
			s.LastErr[i] = res.Err
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				Index:   i,
				NORADID: obj.NORADID,
				Name:    obj.Name,
				Err:     res.Err,
			})
			continue
		}

		s.Positions[i] = Vec3{
			res.Position[0] / s.earthRadiusKm,
			res.Position[1] / s.earthRadiusKm,
			res.Position[2] / s.earthRadiusKm,
		}
		s.LastUpdated[i] = now
		s.LastErr[i] = nil
		report.Updated++
	}

	s.EarthRotation += transform.RotationDelta(delta, s.siderealDay)
	s.Seq++

	return report
}

// Frame is an immutable snapshot of State handed to readers.
type Frame struct {
	Seq           uint64        `json:"seq"`
	Time          time.Time     `json:"t"`
	Dataset       time.Time     `json:"dataset"` // fetch time of the dataset the objects come from
	EarthRotation float64       `json:"earth_rotation"`
	Objects       []ObjectFrame `json:"objects"`
}

// ObjectFrame is one marker in a Frame.
type ObjectFrame struct {
	ID    int     `json:"id"`
	P     Vec3    `json:"p"`
	Valid bool    `json:"valid"`           // at least one successful propagation
	Age   float64 `json:"age,omitempty"`   // seconds since the last successful propagation
	Error string  `json:"error,omitempty"` // latest propagation failure
}

// Snapshot copies the state into a Frame taken at now.
func (s *State) Snapshot(now time.Time) *Frame {
	objects := make([]ObjectFrame, len(s.Objects))
	for i, obj := range s.Objects {
		of := ObjectFrame{ID: obj.NORADID, P: s.Positions[i]}
		if !s.LastUpdated[i].IsZero() {
			of.Valid = true
			of.Age = now.Sub(s.LastUpdated[i]).Seconds()
		}
		if s.LastErr[i] != nil {
			of.Error = s.LastErr[i].Error()
		}
		objects[i] = of
	}

	return &Frame{
		Seq:           s.Seq,
		Time:          now.UTC(),
		EarthRotation: s.EarthRotation,
		Objects:       objects,
	}
}
