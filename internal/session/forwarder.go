package session

import (
	"context"
	"errors"

	"github.com/avelasqz/multichat-back/internal/protocol"
	"github.com/avelasqz/multichat-back/internal/registry"
)

// forward relays one room's fabric events to this session's socket. It runs
// until the session is cancelled, the fabric is torn down, or this
// subscriber falls too far behind. A single forwarder dying leaves the
// session live for its other rooms.
func (s *Session) forward(ctx context.Context, roomID uint32, sub *registry.Subscriber) {
	defer s.forwarders.Done()
	defer sub.Close()

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			switch {
			case errors.Is(err, registry.ErrSlowSubscriber):
				s.logger.Error(ctx, "user %d fell behind in room %d, dropping its forwarder", s.userID, roomID)
			case errors.Is(err, registry.ErrFabricClosed):
				// Room torn down: last participant left.
			}
			return
		}

		switch ev.Kind {
		case registry.EventNewMessage:
			// The sender already got MESSAGE SENT; its own forwarder is
			// not a recipient and must not credit a delivery.
			if ev.Message.FromID == s.userID {
				continue
			}
			env, err := protocol.MessageRecieved(ev.Message)
			if err != nil {
				s.logger.Error(ctx, "failed to encode message %d: %v", ev.Message.ID, err)
				continue
			}
			s.send(ctx, env)

			// Receipt acknowledged on this recipient's behalf; the
			// resulting DeliveredUpdate comes back through this same
			// fabric and is forwarded below.
			if err := s.chat.MarkDelivered(ctx, s.userID, roomID, ev.Message.ID); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error(ctx, "delivered update for message %d by user %d failed: %v", ev.Message.ID, s.userID, err)
			}

		case registry.EventDeliveredUpdate:
			action, ok := ev.Message.LastDelivered()
			if !ok {
				continue
			}
			env, err := protocol.MessageDelivered(protocol.MessageTimeUpdate{TimeUpdate: action, ChatMessageID: ev.Message.ID})
			if err != nil {
				s.logger.Error(ctx, "failed to encode delivered update for message %d: %v", ev.Message.ID, err)
				continue
			}
			s.send(ctx, env)

		case registry.EventSeenUpdate:
			action, ok := ev.Message.LastSeen()
			if !ok {
				continue
			}
			env, err := protocol.MessageSeen(protocol.MessageTimeUpdate{TimeUpdate: action, ChatMessageID: ev.Message.ID})
			if err != nil {
				s.logger.Error(ctx, "failed to encode seen update for message %d: %v", ev.Message.ID, err)
				continue
			}
			s.send(ctx, env)

		default:
			// Nothing else is legal on a fabric.
			s.logger.Error(ctx, "unexpected event kind %d in room %d, terminating forwarder", ev.Kind, roomID)
			return
		}
	}
}
