// Package registry holds the in-memory side of the chat server: the active
// room map with its per-room broadcast fabric, and the presence maps that
// bind connections to users and users to rooms. Everything here exists only
// while at least one participant is connected; durable state lives in the
// store.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/avelasqz/multichat-back/internal/models"
)

// FabricCapacity is the per-subscriber backlog. A subscriber that falls more
// than this many events behind is cut off rather than slowing the room.
const FabricCapacity = 150

var (
	// ErrSlowSubscriber means the subscriber's backlog overflowed and it was
	// detached from the fabric.
	ErrSlowSubscriber = errors.New("registry: subscriber backlog overflowed")
	// ErrFabricClosed means the room was torn down; the stream has ended.
	ErrFabricClosed = errors.New("registry: fabric closed")
)

// EventKind discriminates fabric events.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventDeliveredUpdate
	EventSeenUpdate
)

// BroadcastEvent is one typed event on a room's fabric. Message is the full
// row as of the moment of publication.
type BroadcastEvent struct {
	Kind    EventKind
	Message models.ChatMessage
}

// Fabric is a multi-producer broadcast channel: every subscriber observes
// every published event in publication order, each through its own bounded
// backlog.
type Fabric struct {
	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// Subscriber is one attached consumer. Receive from a single goroutine.
type Subscriber struct {
	fabric *Fabric
	ch     chan BroadcastEvent
	err    error // set before ch is closed
}

func newFabric() *Fabric {
	return &Fabric{subs: make(map[*Subscriber]struct{})}
}

// subscribe attaches a new consumer with an empty backlog.
func (f *Fabric) subscribe() (*Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFabricClosed
	}
	s := &Subscriber{fabric: f, ch: make(chan BroadcastEvent, FabricCapacity)}
	f.subs[s] = struct{}{}
	return s, nil
}

// Publish fans the event out to every live subscriber. A subscriber whose
// backlog is full is detached and sees ErrSlowSubscriber on its next
// receive; the publish itself never blocks on a slow consumer.
func (f *Fabric) Publish(ev BroadcastEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFabricClosed
	}
	for s := range f.subs {
		select {
		case s.ch <- ev:
		default:
			delete(f.subs, s)
			s.err = ErrSlowSubscriber
			close(s.ch)
		}
	}
	return nil
}

// close ends the stream for every remaining subscriber.
func (f *Fabric) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		delete(f.subs, s)
		s.err = ErrFabricClosed
		close(s.ch)
	}
}

// Recv blocks for the next event. It returns ErrSlowSubscriber or
// ErrFabricClosed once the stream has ended, or the context error on
// cancellation.
func (s *Subscriber) Recv(ctx context.Context) (BroadcastEvent, error) {
	select {
	case <-ctx.Done():
		return BroadcastEvent{}, ctx.Err()
	case ev, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return BroadcastEvent{}, s.err
			}
			return BroadcastEvent{}, ErrFabricClosed
		}
		return ev, nil
	}
}

// Close detaches the subscriber. Safe to call after the fabric already
// dropped it.
func (s *Subscriber) Close() {
	f := s.fabric
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		s.err = ErrFabricClosed
		close(s.ch)
	}
}
