package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Summary is a point-in-time view of a BatchRun.
type Summary struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Running    bool       `json:"running"`
	Scheduled  int64      `json:"scheduled"`
	Processed  int64      `json:"processed"`
	Failed     int64      `json:"failed"`
	Skipped    int64      `json:"skipped"`
	Error      string     `json:"error,omitempty"`
}

// BatchRun is the handle of one convert-all invocation. It owns its counters,
// so overlapping runs never interfere with each other's progress.
type BatchRun struct {
	ID        string
	StartedAt time.Time

	counter   JobCounter
	scheduled atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	// written once before done is closed
	finishedAt time.Time
	err        error
}

func newBatchRun(cancel context.CancelFunc) *BatchRun {
	return &BatchRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (b *BatchRun) finish(err error) {
	b.finishedAt = time.Now().UTC()
	b.err = err
	close(b.done)
}

// Done is closed once every scheduled item has completed or the listing failed.
func (b *BatchRun) Done() <-chan struct{} {
	return b.done
}

// Cancel stops listing and cancels every in-flight item.
func (b *BatchRun) Cancel() {
	b.cancel()
}

// Err is the batch outcome: nil, a *ListingError or the context error.
// It is only meaningful after Done is closed.
func (b *BatchRun) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

// Wait blocks until the batch finishes or ctx ends. Waiting does not
// affect the batch itself.
func (b *BatchRun) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-b.done:
		return b.Snapshot(), b.err
	case <-ctx.Done():
		return b.Snapshot(), ctx.Err()
	}
}

func (b *BatchRun) Snapshot() Summary {
	s := Summary{
		ID:        b.ID,
		StartedAt: b.StartedAt,
		Running:   true,
		Scheduled: b.scheduled.Load(),
		Processed: b.counter.Load(),
		Failed:    b.failed.Load(),
		Skipped:   b.skipped.Load(),
	}

	select {
	case <-b.done:
		finished := b.finishedAt
		s.FinishedAt = &finished
		s.Running = false
		if b.err != nil {
			s.Error = b.err.Error()
		}
	default:
	}

	return s
}
