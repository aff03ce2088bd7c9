package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// propagateJob is a unit of work for the worker pool.
type propagateJob struct {
	index  int
	object Object
}

// propagateResult is the output of a single object propagation.
type propagateResult struct {
	index  int
	result Result
}

// WorkerPool manages a fixed number of goroutines for parallel SGP4 propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// PropagateBatch propagates all objects to the target time using the worker pool.
// Returns positions for the objects that succeeded, in input order. Failed
// objects are logged and skipped.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, objects []Object, targetTime time.Time) ([]Position, int, int) {
	if len(objects) == 0 {
		return nil, 0, 0
	}

	jobs := make(chan propagateJob, wp.workers*2)
	results := make(chan propagateResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				r := propagateResult{index: job.index, result: job.object.At(targetTime)}
				select {
				case results <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, obj := range objects {
			select {
			case jobs <- propagateJob{index: i, object: obj}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// Slot per input keeps output order stable regardless of worker scheduling.
	slots := make([]*Result, len(objects))
	var successCount, errorCount int

	for r := range results {
		if !r.result.OK() {
			errorCount++
			wp.logger.Warn("propagation failed",
				"norad_id", objects[r.index].NORADID,
				"error", r.result.Err,
			)
			continue
		}
		successCount++
		res := r.result
		slots[r.index] = &res
	}

	positions := make([]Position, 0, successCount)
	for i, res := range slots {
		if res == nil {
			continue
		}
		positions = append(positions, Position{
			NORADID:  objects[i].NORADID,
			Name:     objects[i].Name,
			Position: res.Position,
			Velocity: res.Velocity,
		})
	}

	return positions, successCount, errorCount
}
