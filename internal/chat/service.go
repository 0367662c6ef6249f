// Package chat implements the three message pipelines: send, delivered and
// seen. Persist happens before publish in all of them, so no subscriber
// ever observes an event for state the store does not hold.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avelasqz/multichat-back/internal/metrics"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/persistence"
	"github.com/avelasqz/multichat-back/internal/registry"
	"github.com/avelasqz/multichat-back/internal/utils"
)

// Error strings here travel inside ERROR frames; clients match on them.
var (
	ErrNoRooms         = errors.New("User doesn't have any rooms.")
	ErrNotAMember      = errors.New("User is not a member of that chat room.")
	ErrNoMessageIDs    = errors.New("No message ids to mark as seen.")
	ErrUnknownMessages = errors.New("Not all message ids could be found.")
	ErrMixedRooms      = errors.New("All Messages don't have the same roomId")
)

// Store is the slice of the store gateway the pipelines need.
type Store interface {
	persistence.MessageStore
	InsertMessage(ctx context.Context, msg *models.ChatMessage) (uint32, error)
	FetchMessagesWithIds(ctx context.Context, messageIDs []uint32) ([]models.ChatMessage, error)
}

// Service wires the pipelines to the registries and the update applier.
type Service struct {
	store    Store
	rooms    *registry.Rooms
	presence *registry.Presence
	applier  *persistence.Applier
	logger   *utils.Logger

	// Tracks the async per-id workers the seen pipeline spawns, so
	// shutdown and tests can wait for them.
	wg sync.WaitGroup
}

func NewService(store Store, rooms *registry.Rooms, presence *registry.Presence, applier *persistence.Applier, logger *utils.Logger) *Service {
	return &Service{
		store:    store,
		rooms:    rooms,
		presence: presence,
		applier:  applier,
		logger:   logger,
	}
}

// Wait blocks until all in-flight seen workers have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// SendMessage runs the send pipeline: membership check, persist, publish.
// Nothing is published when the insert fails.
func (s *Service) SendMessage(ctx context.Context, userID uint32, sender models.ChatMessageSender) (models.ChatMessage, error) {
	roomIDs, ok := s.presence.RoomsOf(userID)
	if !ok || len(roomIDs) == 0 {
		return models.ChatMessage{}, ErrNoRooms
	}
	if !s.presence.InRoom(userID, sender.To) {
		return models.ChatMessage{}, ErrNotAMember
	}

	pub, err := s.rooms.Publisher(sender.To)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("no active session for room %d: %w", sender.To, err)
	}

	msg := models.NewChatMessage(userID, sender)
	if _, err := s.store.InsertMessage(ctx, &msg); err != nil {
		return models.ChatMessage{}, fmt.Errorf("failed to persist message: %w", err)
	}
	metrics.MessagesSent.Inc()

	if err := pub.Publish(registry.BroadcastEvent{Kind: registry.EventNewMessage, Message: msg}); err != nil {
		// Persisted but the room went down between the check and the
		// publish; the message survives in the store.
		return msg, fmt.Errorf("message %d persisted but not broadcast: %w", msg.ID, err)
	}
	return msg, nil
}

// MarkDelivered runs the delivered pipeline for one recipient of one
// message. The roomID is the fabric the resulting DeliveredUpdate is
// published on; callers pass the room their forwarder is bound to.
func (s *Service) MarkDelivered(ctx context.Context, userID, roomID, msgID uint32) error {
	u := persistence.Update{Kind: persistence.UpdateDelivered, Action: models.NewTimeSensitiveAction(userID)}
	return s.applier.Apply(ctx, msgID, u, s.publishUpdate(roomID))
}

// SeeMessages runs the seen pipeline. Validation is synchronous and
// all-or-nothing; the per-id store updates then run asynchronously, and a
// failure on one id does not stop the others.
func (s *Service) SeeMessages(ctx context.Context, userID uint32, msgIDs []uint32) error {
	if len(msgIDs) == 0 {
		return ErrNoMessageIDs
	}

	msgs, err := s.store.FetchMessagesWithIds(ctx, msgIDs)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(msgs) != len(msgIDs) {
		return ErrUnknownMessages
	}

	roomID := msgs[0].ToID
	for _, m := range msgs[1:] {
		if m.ToID != roomID {
			return ErrMixedRooms
		}
	}
	if !s.presence.InRoom(userID, roomID) {
		return ErrNotAMember
	}

	for _, m := range msgs {
		// One already-seen id must not short-circuit the rest of the set;
		// each id is applied independently and skips itself if stale.
		s.wg.Add(1)
		go func(msgID uint32) {
			defer s.wg.Done()
			u := persistence.Update{Kind: persistence.UpdateSeen, Action: models.NewTimeSensitiveAction(userID)}
			if err := s.applier.Apply(ctx, msgID, u, s.publishUpdate(roomID)); err != nil {
				s.logger.Error(ctx, "seen update for message %d failed: %v", msgID, err)
			}
		}(m.ID)
	}
	return nil
}

// publishUpdate routes an applied update back onto the room's fabric as the
// matching event kind.
func (s *Service) publishUpdate(roomID uint32) persistence.PublishFunc {
	return func(kind persistence.UpdateKind, msg models.ChatMessage) error {
		pub, err := s.rooms.Publisher(roomID)
		if err != nil {
			return err
		}
		eventKind := registry.EventDeliveredUpdate
		if kind == persistence.UpdateSeen {
			eventKind = registry.EventSeenUpdate
		}
		return pub.Publish(registry.BroadcastEvent{Kind: eventKind, Message: msg})
	}
}
