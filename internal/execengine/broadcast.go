// Package execengine implements the executor pipeline and the
// active-execution managers (TaskManager, ChatManager, MissionManager)
// described by the platform's execution engine: one registry per
// execution kind, each tracking a cancellation handle, a bounded
// broadcast channel, and a ring-buffered replay log per execution.
package execengine

import (
	"sync"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// RingBufferCapacity is the maximum number of buffered events retained per
// execution for catch-up subscribers.
const RingBufferCapacity = 400

// BroadcastCapacity is the buffered channel depth handed to each live
// subscriber.
const BroadcastCapacity = 512

// StampedEvent pairs a monotonically increasing sequence id with the
// AgentEvent it stamps, as stored in the ring buffer and delivered over
// SSE/WS.
type StampedEvent struct {
	ID    uint64
	Event models.AgentEvent
}

// ringBuffer is a fixed-capacity FIFO of StampedEvent, dropping the oldest
// entry on overflow. Grounded on the two-lane drop discipline of the
// teacher's BackpressureSink, generalized here into an explicit bounded
// history rather than a live-only channel.
type ringBuffer struct {
	mu   sync.Mutex
	buf  []StampedEvent
	next uint64
}

func newRingBuffer() *ringBuffer {
	return &ringBuffer{buf: make([]StampedEvent, 0, RingBufferCapacity), next: 1}
}

// append stamps and stores ev, evicting the oldest entry if full, and
// returns the stamped event.
func (r *ringBuffer) append(ev models.AgentEvent) StampedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	se := StampedEvent{ID: r.next, Event: ev}
	r.next++
	if len(r.buf) >= RingBufferCapacity {
		r.buf = append(r.buf[1:], se)
	} else {
		r.buf = append(r.buf, se)
	}
	return se
}

// since returns buffered events with ID > afterID, oldest first.
func (r *ringBuffer) since(afterID uint64) []StampedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StampedEvent, 0, len(r.buf))
	for _, se := range r.buf {
		if se.ID > afterID {
			out = append(out, se)
		}
	}
	return out
}

// Broadcaster is the minimal capability a manager exposes to the executor
// pipeline for publishing events under a given execution (context) id, per
// the spec's "execute_via_bridge" design note.
type Broadcaster interface {
	Broadcast(executionID string, ev models.AgentEvent)
}

// Subscription is a live event feed plus the replayed backlog requested at
// subscribe time.
type Subscription struct {
	Backlog []StampedEvent
	Events  <-chan StampedEvent
	cancel  func()
}

// Close detaches the subscription from its execution's fan-out.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// ActiveExecution is the transient record backing one live execution: its
// cancel handle, ring buffer, and fan-out subscriber set. Presence of this
// record in a Manager is the single source of truth for "execution is
// live" (spec §3 invariant).
type ActiveExecution struct {
	ID         string
	mu         sync.Mutex
	ring       *ringBuffer
	subs       map[int]chan StampedEvent
	nextSubID  int
	cancelFn   func(reason string)
	cancelled  bool
	startedAt  time.Time
	lastActive time.Time
}

func newActiveExecution(id string, cancelFn func(reason string)) *ActiveExecution {
	now := time.Now()
	return &ActiveExecution{
		ID:         id,
		ring:       newRingBuffer(),
		subs:       make(map[int]chan StampedEvent),
		cancelFn:   cancelFn,
		startedAt:  now,
		lastActive: now,
	}
}

// publish stamps ev, stores it in the ring buffer, and fans it out
// non-blocking to every live subscriber; a subscriber whose channel is
// full simply misses the live delivery and must resynchronize via the
// ring buffer (spec §4.2 "Broadcast" semantics).
func (a *ActiveExecution) publish(ev models.AgentEvent) StampedEvent {
	a.mu.Lock()
	a.lastActive = time.Now()
	se := a.ring.append(ev)
	subs := make([]chan StampedEvent, 0, len(a.subs))
	for _, ch := range a.subs {
		subs = append(subs, ch)
	}
	a.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- se:
		default:
		}
	}
	return se
}

// subscribeWithHistory returns the backlog after afterID plus a live
// channel for subsequent events (spec §4.2 "Subscribe with history").
func (a *ActiveExecution) subscribeWithHistory(afterID uint64) *Subscription {
	a.mu.Lock()
	backlog := a.ring.since(afterID)
	id := a.nextSubID
	a.nextSubID++
	ch := make(chan StampedEvent, BroadcastCapacity)
	a.subs[id] = ch
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if c, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(c)
		}
		a.mu.Unlock()
	}
	return &Subscription{Backlog: backlog, Events: ch, cancel: cancel}
}

// cancel flips the cancellation handle; it does not remove the record from
// its owning Manager (the caller does that under the manager's write lock).
func (a *ActiveExecution) cancel(reason string) {
	a.mu.Lock()
	already := a.cancelled
	a.cancelled = true
	fn := a.cancelFn
	a.mu.Unlock()
	if !already && fn != nil {
		fn(reason)
	}
}

func (a *ActiveExecution) isCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

func (a *ActiveExecution) idleSince() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActive
}
