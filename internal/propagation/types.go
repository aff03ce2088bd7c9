package propagation

import (
	"errors"
	"time"
)

// ErrNoDataset is returned when no catalog has been loaded yet.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// Handle advances one object's orbit. Implementations must be safe for
// concurrent use.
type Handle interface {
	Propagate(minutesSinceEpoch float64) Result
}

// Result is the outcome of a single propagation. Err is nil on success.
type Result struct {
	Position [3]float64 // km, TEME
	Velocity [3]float64 // km/s, TEME
	Err      error
}

// OK reports whether the propagation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Failed builds a failed Result.
func Failed(err error) Result {
	return Result{Err: err}
}

// Object is a tracked object: a catalog entry bound to its propagation handle.
// Immutable after construction.
type Object struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Handle  Handle
}

// MinutesSinceEpoch returns the elapsed minutes between the object's epoch and t.
func (o Object) MinutesSinceEpoch(t time.Time) float64 {
	return t.Sub(o.Epoch).Minutes()
}

// At propagates the object to t.
func (o Object) At(t time.Time) Result {
	return o.Handle.Propagate(o.MinutesSinceEpoch(t))
}

// Snapshot holds all objects propagated to one instant.
type Snapshot struct {
	Timestamp time.Time
	Positions []Position
}

// Position is a single object's propagated state in a Snapshot.
type Position struct {
	NORADID  int
	Name     string
	Position [3]float64 // km, TEME
	Velocity [3]float64 // km/s, TEME
}

// PropConfig holds worker pool configuration.
type PropConfig struct {
	Workers int // Worker pool size (default: runtime.NumCPU())
}
