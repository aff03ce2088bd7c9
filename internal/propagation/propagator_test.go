package propagation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/star/orbitscope/internal/tle"
)

// ISS TLE (epoch 2024-04-09T12:00:00Z). Real ISS orbital elements.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// Starlink TLE (typical LEO constellation satellite).
const (
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

var issEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testEntries() []tle.TLEEntry {
	return []tle.TLEEntry{
		{NORADID: 25544, Name: "ISS", Epoch: issEpoch, Line1: issLine1, Line2: issLine2},
		{NORADID: 44713, Name: "STARLINK-1007", Epoch: issEpoch, Line1: starlinkLine1, Line2: starlinkLine2},
	}
}

func magnitude(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// TestPropagateSingle verifies that the ISS propagates to a reasonable orbit.
func TestPropagateSingle(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544, issEpoch)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	// One day after epoch.
	res := prop.Propagate(24 * 60)
	if !res.OK() {
		t.Fatalf("Propagate failed: %v", res.Err)
	}

	// ISS orbit radius ~6371 + 420 km.
	if mag := magnitude(res.Position); mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km", mag)
	}
	// LEO speed ~7.66 km/s.
	if speed := magnitude(res.Velocity); speed < 7 || speed > 8.2 {
		t.Errorf("TEME speed = %.3f km/s, expected ~7.66 km/s", speed)
	}
}

// TestPropagateMatchesObjectAt verifies Object.At measures minutes from the object's epoch.
func TestPropagateMatchesObjectAt(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544, issEpoch)
	if err != nil {
		t.Fatal(err)
	}
	obj := Object{NORADID: 25544, Name: "ISS", Epoch: issEpoch, Handle: prop}

	target := issEpoch.Add(90 * time.Minute)
	if got := obj.MinutesSinceEpoch(target); got != 90 {
		t.Errorf("MinutesSinceEpoch = %v, want 90", got)
	}

	a := obj.At(target)
	b := prop.Propagate(90)
	if !a.OK() || !b.OK() {
		t.Fatalf("propagation failed: %v / %v", a.Err, b.Err)
	}
	if a.Position != b.Position {
		t.Errorf("Object.At = %v, Propagate(90) = %v", a.Position, b.Position)
	}
}

// TestPropagateInvalidTLE verifies that an invalid TLE returns an error.
func TestPropagateInvalidTLE(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"garbage", "invalid line 1", "invalid line 2"},
		{"swapped lines", issLine2, issLine1},
		{"truncated line2", issLine1, issLine2[:60]},
		{"non-numeric inclination", issLine1, issLine2[:8] + "  XX.XXX" + issLine2[16:]},
		{"non-numeric bstar", issLine1[:54] + "1O27O" + issLine1[59:], issLine2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSGP4Propagator(tt.line1, tt.line2, 99999, issEpoch); err == nil {
				t.Fatal("expected error for invalid TLE, got nil")
			}
		})
	}
}

// TestPropagateInvalidOffset verifies NaN offsets fail instead of reaching the library.
func TestPropagateInvalidOffset(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544, issEpoch)
	if err != nil {
		t.Fatal(err)
	}
	if res := prop.Propagate(math.NaN()); res.OK() {
		t.Error("expected failure for NaN offset")
	}
}

func TestBuildObjectsSkipsInvalid(t *testing.T) {
	entries := append(testEntries(),
		tle.TLEEntry{NORADID: 1, Name: "BAD", Line1: "1 x", Line2: "2 y"},
		tle.TLEEntry{NORADID: 2, Name: "BAD COLUMNS", Line1: issLine1, Line2: issLine2[:8] + "  XX.XXX" + issLine2[16:]},
	)
	objects := BuildObjects(entries, testLogger())

	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}
	if objects[0].NORADID != 25544 || objects[1].NORADID != 44713 {
		t.Errorf("order not preserved: %d, %d", objects[0].NORADID, objects[1].NORADID)
	}
	if !objects[0].Epoch.Equal(issEpoch) {
		t.Errorf("epoch = %v, want %v", objects[0].Epoch, issEpoch)
	}
}

// TestWorkerPoolBatch verifies the worker pool processes multiple objects in order.
func TestWorkerPoolBatch(t *testing.T) {
	pool := NewWorkerPool(4, testLogger())
	objects := BuildObjects(testEntries(), testLogger())

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	positions, successCount, errorCount := pool.PropagateBatch(context.Background(), objects, target)
	if errorCount > 0 {
		t.Errorf("errors: %d", errorCount)
	}
	if successCount != 2 || len(positions) != 2 {
		t.Fatalf("success = %d, positions = %d, want 2", successCount, len(positions))
	}
	if positions[0].NORADID != 25544 || positions[1].NORADID != 44713 {
		t.Errorf("positions out of order: %d, %d", positions[0].NORADID, positions[1].NORADID)
	}
	for _, pos := range positions {
		if mag := magnitude(pos.Position); mag < minRadiusKm || mag > maxRadiusKm {
			t.Errorf("NORAD %d: magnitude %.1f km out of range", pos.NORADID, mag)
		}
	}
}

// TestWorkerPoolCancellation verifies the worker pool respects context cancellation.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())

	base := BuildObjects(testEntries()[:1], testLogger())
	objects := make([]Object, 100)
	for i := range objects {
		objects[i] = base[0]
		objects[i].NORADID = 25544 + i
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	positions, _, _ := pool.PropagateBatch(ctx, objects, target)

	if len(positions) >= len(objects) {
		t.Errorf("expected fewer results with cancelled context, got %d/%d", len(positions), len(objects))
	}
}

func TestPropagatorObjectsCached(t *testing.T) {
	store := tle.NewStore()
	fetchedAt := time.Now()
	store.Set(tle.NewDataset("test", fetchedAt, testEntries()))

	prop := NewPropagator(store, PropConfig{Workers: 2}, testLogger())

	first, ts, err := prop.Objects()
	if err != nil {
		t.Fatalf("Objects: %v", err)
	}
	if !ts.Equal(fetchedAt) {
		t.Errorf("fetchedAt = %v, want %v", ts, fetchedAt)
	}
	second, _, _ := prop.Objects()
	if &first[0] != &second[0] {
		t.Error("objects rebuilt without a dataset change")
	}

	store.Set(tle.NewDataset("test", fetchedAt.Add(time.Hour), testEntries()[:1]))
	third, _, _ := prop.Objects()
	if len(third) != 1 {
		t.Errorf("got %d objects after dataset change, want 1", len(third))
	}

	obj, ok, err := prop.Object(25544)
	if err != nil || !ok {
		t.Fatalf("Object(25544) = %v, %v", ok, err)
	}
	if obj.Name != "ISS" {
		t.Errorf("name = %q, want ISS", obj.Name)
	}
	if _, ok, _ := prop.Object(44713); ok {
		t.Error("44713 should be gone after dataset change")
	}
}

func TestPropagatorPropagateToTime(t *testing.T) {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), testEntries()))
	prop := NewPropagator(store, PropConfig{Workers: 2}, testLogger())

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	snap, err := prop.PropagateToTime(context.Background(), target)
	if err != nil {
		t.Fatalf("PropagateToTime: %v", err)
	}
	if !snap.Timestamp.Equal(target) {
		t.Errorf("timestamp = %v, want %v", snap.Timestamp, target)
	}
	if len(snap.Positions) != 2 {
		t.Errorf("got %d positions, want 2", len(snap.Positions))
	}
}

// TestPropagatorNoDataset verifies error when no TLE data is loaded.
func TestPropagatorNoDataset(t *testing.T) {
	prop := NewPropagator(tle.NewStore(), PropConfig{Workers: 2}, testLogger())

	if _, err := prop.PropagateToTime(context.Background(), time.Now()); !errors.Is(err, ErrNoDataset) {
		t.Errorf("err = %v, want ErrNoDataset", err)
	}
	if _, _, err := prop.Objects(); !errors.Is(err, ErrNoDataset) {
		t.Errorf("err = %v, want ErrNoDataset", err)
	}
}

// BenchmarkPropagate1000 benchmarks propagating 1000 objects.
func BenchmarkPropagate1000(b *testing.B) {
	logger := testLogger()
	base := testEntries()[0]
	entries := make([]tle.TLEEntry, 1000)
	for i := range entries {
		entries[i] = base
		entries[i].NORADID = 25544 + i
	}

	store := tle.NewStore()
	store.Set(tle.NewDataset("bench", time.Now(), entries))

	prop := NewPropagator(store, PropConfig{Workers: 4}, logger)
	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := prop.PropagateToTime(ctx, target); err != nil {
			b.Fatal(err)
		}
	}
}
