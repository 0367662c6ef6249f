package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/metrics"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

// MessageStore is the slice of the store gateway the applier needs.
type MessageStore interface {
	GetMessage(ctx context.Context, messageID uint32) (*models.ChatMessage, error)
	UpdateMessage(ctx context.Context, msg *models.ChatMessage) error
}

// PublishFunc hands the updated message back to the caller for fan-out on
// the room's fabric. It runs only after the store write succeeded.
type PublishFunc func(kind UpdateKind, msg models.ChatMessage) error

// Applier runs the queue discipline for one acknowledgement at a time:
// enqueue, wait for the front, read-append-write, publish, pop. The queue
// slot is released on every exit path, including cancellation mid-wait.
type Applier struct {
	store  MessageStore
	queue  *Queue
	logger *utils.Logger
}

func NewApplier(store MessageStore, queue *Queue, logger *utils.Logger) *Applier {
	return &Applier{store: store, queue: queue, logger: logger}
}

// Queue exposes the underlying update queue for observation.
func (a *Applier) Queue() *Queue {
	return a.queue
}

// Apply appends u to the message's acknowledgement list identified by
// u.Kind, with at most one entry per user. An already-acknowledged user is
// a no-op, not an error. Publish fires only for updates actually written.
func (a *Applier) Apply(ctx context.Context, msgID uint32, u Update, publish PublishFunc) error {
	a.queue.Enqueue(msgID, u)
	popped := false
	// Cancellation or a store error must not leave the slot behind: later
	// updates on this message would wait forever behind it.
	defer func() {
		if !popped {
			a.queue.Remove(msgID, u)
		}
	}()

	if err := a.queue.Await(ctx, msgID, u); err != nil {
		return err
	}

	msg, err := a.store.GetMessage(ctx, msgID)
	if errors.Is(err, db.ErrNotFound) {
		// The id came off a fabric event, so the row once existed. Drop the
		// update rather than failing the session.
		a.logger.Error(ctx, "dropping %s update for missing message %d", u.Kind, msgID)
		a.pop(msgID, &popped)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load message %d: %w", msgID, err)
	}

	if alreadyApplied(msg, u) {
		a.pop(msgID, &popped)
		return nil
	}

	switch u.Kind {
	case UpdateSeen:
		msg.TimeSeen = append(msg.TimeSeen, u.Action)
	default:
		msg.TimeDelivered = append(msg.TimeDelivered, u.Action)
	}
	if err := a.store.UpdateMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to update message %d: %w", msgID, err)
	}
	metrics.StateUpdatesApplied.WithLabelValues(u.Kind.String()).Inc()

	if publish != nil {
		if err := publish(u.Kind, *msg); err != nil {
			a.logger.Error(ctx, "failed to publish %s update for message %d: %v", u.Kind, msgID, err)
		}
	}

	a.pop(msgID, &popped)
	return nil
}

func (a *Applier) pop(msgID uint32, popped *bool) {
	a.queue.PopFirst(msgID)
	*popped = true
}

func alreadyApplied(msg *models.ChatMessage, u Update) bool {
	if u.Kind == UpdateSeen {
		return msg.SeenBy(u.Action.By)
	}
	return msg.DeliveredBy(u.Action.By)
}
