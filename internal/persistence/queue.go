// Package persistence serializes delivered/seen acknowledgements so that
// concurrent forwarders never interleave a read-modify-write on the same
// message row. Each message gets a FIFO of pending updates; an update may
// only touch the store while it sits at the front of its queue.
package persistence

import (
	"context"
	"errors"
	"sync"

	"github.com/avelasqz/multichat-back/internal/metrics"
	"github.com/avelasqz/multichat-back/internal/models"
)

// ErrNotQueued means the update is no longer in its message's queue; it was
// popped or removed by a cleanup pass.
var ErrNotQueued = errors.New("persistence: update not in queue")

// UpdateKind selects which acknowledgement list an update appends to.
type UpdateKind int

const (
	UpdateDelivered UpdateKind = iota
	UpdateSeen
)

func (k UpdateKind) String() string {
	if k == UpdateSeen {
		return "seen"
	}
	return "delivered"
}

// Update is one pending acknowledgement. Values are compared as a whole;
// the timestamp makes two updates by the same user distinguishable.
type Update struct {
	Kind   UpdateKind
	Action models.TimeSensitiveAction
}

type messageQueue struct {
	mu      sync.Mutex
	entries []Update
	// changed is closed and replaced whenever the front of the queue can
	// have moved; waiters in Await re-check after it fires.
	changed chan struct{}
}

func (q *messageQueue) signal() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Queue is the per-message FIFO map. The outer lock guards the map, each
// queue carries its own inner lock; the inner lock is always taken after
// the outer one and never held across a store call.
type Queue struct {
	mu     sync.Mutex
	queues map[uint32]*messageQueue
}

func NewQueue() *Queue {
	return &Queue{queues: make(map[uint32]*messageQueue)}
}

// HasPending reports whether any update is queued for the message.
func (m *Queue) HasPending(msgID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queues[msgID]
	return ok
}

// Enqueue appends the update, creating the message's queue if absent.
func (m *Queue) Enqueue(msgID uint32, u Update) {
	m.mu.Lock()
	q, ok := m.queues[msgID]
	if !ok {
		q = &messageQueue{changed: make(chan struct{})}
		m.queues[msgID] = q
	}
	q.mu.Lock()
	m.mu.Unlock()
	q.entries = append(q.entries, u)
	q.mu.Unlock()
	metrics.UpdateQueueDepth.Inc()
}

// IsFirst reports whether u is at the front of the message's queue. An
// empty queue is removed and reported as false.
func (m *Queue) IsFirst(msgID uint32, u Update) bool {
	m.mu.Lock()
	q, ok := m.queues[msgID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	q.mu.Lock()
	if len(q.entries) == 0 {
		delete(m.queues, msgID)
		q.mu.Unlock()
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	first := q.entries[0] == u
	q.mu.Unlock()
	return first
}

// PopFirst removes and returns the front update. Draining the queue removes
// it from the map.
func (m *Queue) PopFirst(msgID uint32) (Update, bool) {
	m.mu.Lock()
	q, ok := m.queues[msgID]
	if !ok {
		m.mu.Unlock()
		return Update{}, false
	}
	q.mu.Lock()
	if len(q.entries) == 0 {
		delete(m.queues, msgID)
		q.mu.Unlock()
		m.mu.Unlock()
		return Update{}, false
	}
	u := q.entries[0]
	q.entries = q.entries[1:]
	if len(q.entries) == 0 {
		delete(m.queues, msgID)
	}
	m.mu.Unlock()
	q.signal()
	q.mu.Unlock()
	metrics.UpdateQueueDepth.Dec()
	return u, true
}

// Remove deletes u from wherever it sits in the message's queue. It is the
// cleanup hook for a cancelled writer: the slot is released whether or not
// the update ever reached the front. Removing the last entry drops the
// queue.
func (m *Queue) Remove(msgID uint32, u Update) bool {
	m.mu.Lock()
	q, ok := m.queues[msgID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	q.mu.Lock()
	removed := false
	for i, e := range q.entries {
		if e == u {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			removed = true
			break
		}
	}
	if len(q.entries) == 0 {
		delete(m.queues, msgID)
	}
	m.mu.Unlock()
	if removed {
		q.signal()
	}
	q.mu.Unlock()
	if removed {
		metrics.UpdateQueueDepth.Dec()
	}
	return removed
}

// Await blocks until u reaches the front of the message's queue. It returns
// ErrNotQueued if u was removed in the meantime and the context error on
// cancellation. No polling: waiters are woken whenever the queue changes.
func (m *Queue) Await(ctx context.Context, msgID uint32, u Update) error {
	for {
		m.mu.Lock()
		q, ok := m.queues[msgID]
		if !ok {
			m.mu.Unlock()
			return ErrNotQueued
		}
		q.mu.Lock()
		m.mu.Unlock()

		idx := -1
		for i, e := range q.entries {
			if e == u {
				idx = i
				break
			}
		}
		if idx < 0 {
			q.mu.Unlock()
			return ErrNotQueued
		}
		if idx == 0 {
			q.mu.Unlock()
			return nil
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
