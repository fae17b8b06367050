package web

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"go.viam.com/jtc/logging"
	"go.viam.com/jtc/ros"
)

// subscriberBuffer is how many states a slow stream subscriber may fall behind before states are
// skipped for it.
const subscriberBuffer = 8

type subscriber struct {
	states chan *ros.JointTrajectoryControllerState
}

// StateHub receives controller state messages, keeps the latest one and fans them out to stream
// subscribers. It is the sink of the controller's state publisher.
type StateHub struct {
	logger logging.Logger

	mu          sync.Mutex
	latest      *ros.JointTrajectoryControllerState
	subscribers map[*subscriber]struct{}

	skipped atomic.Uint64
}

// NewStateHub returns an empty hub.
func NewStateHub(logger logging.Logger) *StateHub {
	return &StateHub{logger: logger, subscribers: map[*subscriber]struct{}{}}
}

// Publish stores a copy of msg and forwards it to every subscriber without waiting on any.
func (h *StateHub) Publish(ctx context.Context, msg *ros.JointTrajectoryControllerState) error {
	state := msg.Clone()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = state
	for sub := range h.subscribers {
		select {
		case sub.states <- state:
		default:
			h.skipped.Inc()
		}
	}
	return nil
}

// Latest returns the most recent state, or nil if none has been published. Callers must not
// modify it.
func (h *StateHub) Latest() *ros.JointTrajectoryControllerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Skipped returns how many states were not delivered to slow subscribers.
func (h *StateHub) Skipped() uint64 {
	return h.skipped.Load()
}

// Subscribers returns the number of active subscribers.
func (h *StateHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *StateHub) subscribe() *subscriber {
	sub := &subscriber{states: make(chan *ros.JointTrajectoryControllerState, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = struct{}{}
	return sub
}

func (h *StateHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
	h.logger.Debugw("state subscriber left", "remaining", len(h.subscribers))
}
