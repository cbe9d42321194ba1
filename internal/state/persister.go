package state

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coachpo/orderdesk/errs"
	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
)

const defaultQueueCapacity = 64

// SnapshotWriter persists a full order snapshot.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, orders []model.Order) error
}

// Persister mirrors store snapshots to durable storage without blocking the
// caller. Submissions land in a bounded queue; when the queue is full the
// oldest snapshot is dropped, since only the newest state matters. A single
// worker drains the queue to the latest entry before each write, so bursts
// collapse into one write.
type Persister struct {
	writer   SnapshotWriter
	queue    chan []model.Order
	stop     chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	writeTmo time.Duration
}

// NewPersister constructs a Persister backed by writer. Start must be called
// before Submit.
func NewPersister(writer SnapshotWriter) *Persister {
	return &Persister{
		writer:   writer,
		queue:    make(chan []model.Order, defaultQueueCapacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		writeTmo: 10 * time.Second,
	}
}

// Start launches the background writer.
func (p *Persister) Start() {
	go p.run()
}

// Submit enqueues a snapshot. It never blocks; under sustained pressure the
// oldest queued snapshot is discarded to make room. Once Shutdown has begun
// no new snapshots are accepted.
func (p *Persister) Submit(orders []model.Order) {
	if p.closed.Load() {
		observability.Log().Debug("persister shutting down, snapshot rejected")
		return
	}
	for {
		select {
		case p.queue <- orders:
			return
		default:
		}
		select {
		case <-p.queue:
			observability.Log().Warn("persist queue full, dropping oldest snapshot")
			observability.Telemetry().IncCounter(observability.MetricPersistDrops, 1, nil)
		default:
		}
	}
}

func (p *Persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case snapshot := <-p.queue:
			p.write(p.drainToLatest(snapshot))
		}
	}
}

// drainToLatest discards every queued snapshot except the newest.
func (p *Persister) drainToLatest(latest []model.Order) []model.Order {
	for {
		select {
		case next := <-p.queue:
			latest = next
		default:
			return latest
		}
	}
}

func (p *Persister) write(orders []model.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTmo)
	defer cancel()
	if err := p.writer.WriteSnapshot(ctx, orders); err != nil {
		observability.Log().Error("snapshot write failed",
			observability.F("orders", len(orders)),
			observability.F("error", err.Error()))
		observability.Telemetry().IncCounter(observability.MetricPersistWriteFails, 1, nil)
		return
	}
	observability.Telemetry().IncCounter(observability.MetricPersistWrites, 1, nil)
}

// Shutdown stops the worker and flushes the newest pending snapshot, if any.
// The ctx bounds how long the final flush may take.
func (p *Persister) Shutdown(ctx context.Context) error {
	p.closed.Store(true)
	close(p.stop)
	select {
	case <-p.done:
	case <-ctx.Done():
		return errs.New("state", errs.CodeUnavailable,
			errs.WithMessage("persister worker did not stop in time"),
			errs.WithCause(ctx.Err()))
	}

	select {
	case snapshot := <-p.queue:
		snapshot = p.drainToLatest(snapshot)
		if err := p.writer.WriteSnapshot(ctx, snapshot); err != nil {
			return errs.New("state", errs.CodeUnavailable,
				errs.WithMessage("final snapshot flush failed"),
				errs.WithCause(err))
		}
	default:
	}
	return nil
}
