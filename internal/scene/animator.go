package scene

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitscope/internal/metrics"
	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/transform"
)

// ObjectSource supplies the tracked objects for the current dataset.
// fetchedAt changes whenever a new dataset replaces the old one.
type ObjectSource interface {
	Objects() (objects []propagation.Object, fetchedAt time.Time, err error)
}

// Animator runs the frame loop: it owns one State, applies Update once per
// tick and publishes immutable Frame snapshots to readers and subscribers.
// Subscribers that fall behind miss frames; the loop never blocks on them.
type Animator struct {
	source ObjectSource
	config Config
	logger *slog.Logger

	mu        sync.Mutex // guards state, fetchedAt, lastStep, history
	state     *State
	fetchedAt time.Time
	lastStep  time.Time
	history   []*Frame

	scene  atomic.Pointer[Scene]
	latest atomic.Pointer[Frame]

	subsMu sync.Mutex
	subs   map[chan *Frame]struct{}
}

// NewAnimator creates an animator over source.
func NewAnimator(source ObjectSource, config Config, logger *slog.Logger) *Animator {
	def := DefaultConfig()
	if config.FrameRate <= 0 {
		config.FrameRate = def.FrameRate
	}
	if config.EarthRadiusKm <= 0 {
		config.EarthRadiusKm = def.EarthRadiusKm
	}
	if config.SiderealDaySeconds <= 0 {
		config.SiderealDaySeconds = def.SiderealDaySeconds
	}
	if config.HistorySize < 0 {
		config.HistorySize = 0
	}

	logger.Info("animator initialized",
		"frame_rate", config.FrameRate,
		"earth_radius_km", config.EarthRadiusKm,
		"sidereal_day_seconds", config.SiderealDaySeconds,
		"history_size", config.HistorySize,
	)

	return &Animator{
		source: source,
		config: config,
		logger: logger,
		subs:   make(map[chan *Frame]struct{}),
	}
}

// Start runs the frame loop until ctx is cancelled. It waits for the first
// dataset before ticking. Subscriber channels are closed on return.
func (a *Animator) Start(ctx context.Context) {
	defer a.closeSubscribers()
	if !a.waitForObjects(ctx) {
		a.logger.Info("animator stopped before first dataset")
		return
	}

	interval := time.Duration(float64(time.Second) / a.config.FrameRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("animator stopped")
			return
		case now := <-ticker.C:
			if _, _, err := a.Step(now); err != nil {
				a.logger.Warn("frame step failed", "error", err)
			}
		}
	}
}

// waitForObjects blocks until the source has a dataset, checking every
// second. Returns false if ctx is cancelled.
func (a *Animator) waitForObjects(ctx context.Context) bool {
	if _, _, err := a.source.Objects(); err == nil {
		return true
	}

	a.logger.Info("animator waiting for TLE data...")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if _, _, err := a.source.Objects(); err == nil {
				a.logger.Info("TLE data available, starting frame loop")
				return true
			}
		}
	}
}

// Step applies one frame at now and publishes it. The elapsed time since the
// previous step drives the Earth rotation; the first step rotates nothing.
func (a *Animator) Step(now time.Time) (*Frame, Report, error) {
	objects, fetchedAt, err := a.source.Objects()
	if err != nil {
		if errors.Is(err, propagation.ErrNoDataset) {
			return nil, Report{}, nil
		}
		return nil, Report{}, err
	}

	a.mu.Lock()

	if a.state == nil || !fetchedAt.Equal(a.fetchedAt) {
		a.rebuild(objects, fetchedAt, now)
	}

	var delta time.Duration
	if !a.lastStep.IsZero() {
		delta = now.Sub(a.lastStep)
		if delta < 0 {
			delta = 0
		}
	}
	a.lastStep = now

	start := time.Now()
	report := a.state.Update(now, delta)
	frame := a.state.Snapshot(now)
	frame.Dataset = a.fetchedAt.UTC()

	if a.config.HistorySize > 0 {
		a.history = append(a.history, frame)
		if len(a.history) > a.config.HistorySize {
			a.history = a.history[len(a.history)-a.config.HistorySize:]
		}
	}

	a.mu.Unlock()

	metrics.RecordFrame(time.Since(start), report.Updated, report.Failed)
	for _, f := range report.Failures {
		a.logger.Debug("propagation failed, keeping last position",
			"norad_id", f.NORADID,
			"name", f.Name,
			"error", f.Err,
		)
	}

	a.latest.Store(frame)
	a.publish(frame)

	return frame, report, nil
}

// rebuild replaces the state for a new dataset. The Earth rotation angle
// carries over. Caller holds mu.
func (a *Animator) rebuild(objects []propagation.Object, fetchedAt, now time.Time) {
	rotation := 0.0
	if a.state != nil {
		rotation = a.state.EarthRotation
	} else if a.config.AlignEarthRotation {
		rotation = transform.GMST(now)
	}

	var seq uint64
	if a.state != nil {
		seq = a.state.Seq
	}

	a.state = NewState(objects, a.config)
	a.state.EarthRotation = rotation
	a.state.Seq = seq
	a.fetchedAt = fetchedAt
	a.history = nil
	sc := Build(objects, a.config)
	sc.Dataset = fetchedAt.UTC()
	a.scene.Store(sc)

	metrics.SetTrackedObjects(len(objects))
	a.logger.Info("scene rebuilt",
		"objects", len(objects),
		"dataset_fetched_at", fetchedAt.UTC().Format(time.RFC3339),
	)
}

// Scene returns the scene for the current objects, or nil before the first frame.
func (a *Animator) Scene() *Scene {
	return a.scene.Load()
}

// Latest returns the most recent frame, or nil before the first frame.
func (a *Animator) Latest() *Frame {
	return a.latest.Load()
}

// Recent returns up to n of the most recent frames, oldest first.
func (a *Animator) Recent(n int) []*Frame {
	if n <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n > len(a.history) {
		n = len(a.history)
	}
	out := make([]*Frame, n)
	copy(out, a.history[len(a.history)-n:])
	return out
}

// Subscribe registers a frame channel with the given buffer size. The returned
// function unsubscribes and closes the channel.
func (a *Animator) Subscribe(buffer int) (<-chan *Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Frame, buffer)

	a.subsMu.Lock()
	a.subs[ch] = struct{}{}
	a.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subsMu.Lock()
			if _, ok := a.subs[ch]; ok {
				delete(a.subs, ch)
				close(ch)
			}
			a.subsMu.Unlock()
		})
	}
}

// publish delivers frame to every subscriber without blocking.
func (a *Animator) publish(frame *Frame) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	for ch := range a.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (a *Animator) closeSubscribers() {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()

	for ch := range a.subs {
		delete(a.subs, ch)
		close(ch)
	}
}
