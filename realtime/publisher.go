package realtime

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.viam.com/utils"

	"go.viam.com/jtc/logging"
)

// Sink receives messages from a Publisher on a background goroutine. It may block. The message is
// only valid for the duration of the call; sinks must copy anything they keep.
type Sink[T any] interface {
	Publish(ctx context.Context, msg *T) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc[T any] func(ctx context.Context, msg *T) error

// Publish calls f.
func (f SinkFunc[T]) Publish(ctx context.Context, msg *T) error {
	return f(ctx, msg)
}

type turn int

const (
	realtimeTurn turn = iota
	nonRealtimeTurn
)

// Publisher lets a real-time context publish messages without ever waiting on the sink. The
// real-time side fills a preallocated message between TryLock and UnlockAndPublish. If the
// previous message is still being delivered, TryLock fails and the caller skips this cycle.
type Publisher[T any] struct {
	mu   sync.Mutex
	msg  T
	turn turn

	sink    Sink[T]
	pending chan struct{}
	logger  logging.Logger

	published atomic.Uint64
	dropped   atomic.Uint64

	cancelCtx               context.Context
	cancel                  func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewPublisher starts a publisher that delivers msg to sink. msg should already be sized for the
// data the real-time side will write into it.
func NewPublisher[T any](msg T, sink Sink[T], logger logging.Logger) *Publisher[T] {
	cancelCtx, cancel := context.WithCancel(context.Background())
	p := &Publisher[T]{
		msg:       msg,
		sink:      sink,
		pending:   make(chan struct{}, 1),
		logger:    logger,
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
	p.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(p.publishLoop, p.activeBackgroundWorkers.Done)
	return p
}

// TryLock returns the message for the real-time side to fill. It returns false, and counts a
// dropped publish, when the message is locked or still waiting to be delivered.
func (p *Publisher[T]) TryLock() (*T, bool) {
	if !p.mu.TryLock() {
		p.dropped.Inc()
		return nil, false
	}
	if p.turn != realtimeTurn {
		p.mu.Unlock()
		p.dropped.Inc()
		return nil, false
	}
	return &p.msg, true
}

// Unlock releases the message without publishing it.
func (p *Publisher[T]) Unlock() {
	p.mu.Unlock()
}

// UnlockAndPublish releases the message and schedules its delivery.
func (p *Publisher[T]) UnlockAndPublish() {
	p.turn = nonRealtimeTurn
	p.mu.Unlock()
	select {
	case p.pending <- struct{}{}:
	default:
	}
}

func (p *Publisher[T]) publishLoop() {
	for {
		select {
		case <-p.cancelCtx.Done():
			return
		case <-p.pending:
		}
		p.mu.Lock()
		if p.turn != nonRealtimeTurn {
			p.mu.Unlock()
			continue
		}
		err := p.sink.Publish(p.cancelCtx, &p.msg)
		p.turn = realtimeTurn
		p.mu.Unlock()
		// published only counts messages that have been released back to the real-time side.
		if err != nil {
			p.logger.Debugw("failed to publish", "error", err)
		} else {
			p.published.Inc()
		}
	}
}

// Stats returns how many messages were delivered and how many publishes were skipped.
func (p *Publisher[T]) Stats() (published, dropped uint64) {
	return p.published.Load(), p.dropped.Load()
}

// Close stops delivering messages. Messages not yet delivered are discarded.
func (p *Publisher[T]) Close() {
	p.cancel()
	p.activeBackgroundWorkers.Wait()
}
