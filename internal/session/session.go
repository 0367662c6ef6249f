// Package session drives one WebSocket connection: the inbound dispatch
// loop with its login state machine, the single writer pump all outbound
// frames funnel through, and the per-room forwarder fleet.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelasqz/multichat-back/internal/cache"
	"github.com/avelasqz/multichat-back/internal/identity"
	"github.com/avelasqz/multichat-back/internal/metrics"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/protocol"
	"github.com/avelasqz/multichat-back/internal/registry"
	"github.com/avelasqz/multichat-back/internal/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Media travels inline as
	// integer arrays, so frames can get large.
	maxMessageSize = 4 << 20

	// Outbound frames buffered between the pipelines and the writer pump.
	outboundBuffer = 256
)

// Authenticator resolves login credentials to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, creds models.AuthCredentials) (*models.User, error)
}

// RoomStore loads the user's durable room memberships at login.
type RoomStore interface {
	FetchAllUserChatRooms(ctx context.Context, userID uint32) ([]models.ChatRoom, error)
}

// Messenger is the slice of the chat pipelines a session drives.
type Messenger interface {
	SendMessage(ctx context.Context, userID uint32, sender models.ChatMessageSender) (models.ChatMessage, error)
	MarkDelivered(ctx context.Context, userID, roomID, msgID uint32) error
	SeeMessages(ctx context.Context, userID uint32, msgIDs []uint32) error
}

// PresenceCache mirrors session presence into Redis for other services.
type PresenceCache interface {
	SetUserPresence(ctx context.Context, userID uint32, state cache.PresenceState) error
	DeleteUserPresence(ctx context.Context, userID uint32) error
}

// Session is the per-connection state machine. One goroutine runs the
// dispatch loop, one runs the writer pump, and each subscribed room gets a
// forwarder goroutine.
type Session struct {
	conn     *websocket.Conn
	addr     string
	auth     Authenticator
	store    RoomStore
	chat     Messenger
	rooms    *registry.Rooms
	presence *registry.Presence
	cache    PresenceCache // optional
	logger   *utils.Logger

	out chan protocol.Envelope

	authenticated bool
	userID        uint32
	roomIDs       []uint32

	forwarders sync.WaitGroup
}

// Config collects a session's collaborators.
type Config struct {
	Auth     Authenticator
	Store    RoomStore
	Chat     Messenger
	Rooms    *registry.Rooms
	Presence *registry.Presence
	Cache    PresenceCache
	Logger   *utils.Logger
}

func New(conn *websocket.Conn, cfg Config) *Session {
	return &Session{
		conn:     conn,
		addr:     conn.RemoteAddr().String(),
		auth:     cfg.Auth,
		store:    cfg.Store,
		chat:     cfg.Chat,
		rooms:    cfg.Rooms,
		presence: cfg.Presence,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		out:      make(chan protocol.Envelope, outboundBuffer),
	}
}

// Run blocks until the connection ends, then tears everything down:
// forwarders first, then presence, then the room attachments.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	metrics.ActiveSessions.Inc()

	writerDone := make(chan struct{})
	go s.writePump(writerDone)

	s.readLoop(ctx)

	// Teardown. Cancel aborts every forwarder at its next suspension
	// point, including mid-wait inside an update queue.
	cancel()
	s.forwarders.Wait()
	s.disconnect(context.Background())
	close(s.out)
	<-writerDone
	s.conn.Close()
	metrics.ActiveSessions.Dec()
}

// readLoop dispatches inbound frames until the socket closes or a fatal
// protocol/auth error ends the session.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error(ctx, "socket read failed for %s: %v", s.addr, err)
			}
			return
		}

		in, err := protocol.DecodeInbound(raw)
		if err != nil {
			metrics.InboundFrames.WithLabelValues("unknown", "undecodable").Inc()
			s.send(ctx, protocol.ErrorFrame(err.Error()))
			if !s.authenticated {
				// Garbage before login ends the session.
				return
			}
			continue
		}

		if !s.dispatch(ctx, in) {
			return
		}
	}
}

// dispatch handles one decoded frame. It returns false when the session
// must terminate.
func (s *Session) dispatch(ctx context.Context, in protocol.Inbound) bool {
	if !s.authenticated {
		if in.Kind != protocol.InboundLogin {
			metrics.InboundFrames.WithLabelValues(headOf(in.Kind), "before_login").Inc()
			s.send(ctx, protocol.ErrorFrame("Not logged in."))
			return false
		}
		if err := s.login(ctx, *in.Login); err != nil {
			metrics.InboundFrames.WithLabelValues(protocol.HeadLogin, "rejected").Inc()
			s.send(ctx, protocol.ErrorFrame(err.Error()))
			return false
		}
		metrics.InboundFrames.WithLabelValues(protocol.HeadLogin, "ok").Inc()
		return true
	}

	switch in.Kind {
	case protocol.InboundLogin:
		metrics.InboundFrames.WithLabelValues(protocol.HeadLogin, "duplicate").Inc()
		s.send(ctx, protocol.ErrorFrame("Already Logged in!"))
		return true

	case protocol.InboundSendMessage:
		if _, err := s.chat.SendMessage(ctx, s.userID, *in.Send); err != nil {
			metrics.InboundFrames.WithLabelValues(protocol.HeadSendMessage, "error").Inc()
			s.logger.Error(ctx, "send message failed for user %d: %v", s.userID, err)
			s.send(ctx, protocol.ErrorFrame(err.Error()))
			return true
		}
		metrics.InboundFrames.WithLabelValues(protocol.HeadSendMessage, "ok").Inc()
		s.send(ctx, protocol.MessageSent())
		return true

	case protocol.InboundSeeMessages:
		if err := s.chat.SeeMessages(ctx, s.userID, in.SeeMessages); err != nil {
			metrics.InboundFrames.WithLabelValues(protocol.HeadSeeMessages, "error").Inc()
			s.logger.Error(ctx, "see messages failed for user %d: %v", s.userID, err)
			s.send(ctx, protocol.ErrorFrame(err.Error()))
			return true
		}
		metrics.InboundFrames.WithLabelValues(protocol.HeadSeeMessages, "ok").Inc()
		return true

	case protocol.InboundLogout, protocol.InboundJoinGroup, protocol.InboundLeaveGroup, protocol.InboundFetchMessages:
		// Reserved: group membership changes go through the REST surface.
		metrics.InboundFrames.WithLabelValues(headOf(in.Kind), "acknowledged").Inc()
		s.send(ctx, protocol.Acknowledge())
		return true

	default:
		s.send(ctx, protocol.ErrorFrame("Unrecognized message."))
		return true
	}
}

// login runs the full authenticated-state transition: resolve the user,
// claim presence, load rooms, attach and spawn a forwarder per room.
func (s *Session) login(ctx context.Context, creds models.AuthCredentials) error {
	user, err := s.auth.Authenticate(ctx, creds)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return errors.New("Authentication failed.")
		}
		return err
	}

	if err := s.presence.RegisterConnection(s.addr, user.ID); err != nil {
		s.logger.Error(ctx, "FATAL: address %s already bound: %v", s.addr, err)
		return errors.New("Already Logged in!")
	}

	chatRooms, err := s.store.FetchAllUserChatRooms(ctx, user.ID)
	if err != nil {
		s.presence.Disconnect(s.addr)
		return err
	}
	roomIDs := make([]uint32, len(chatRooms))
	for i, r := range chatRooms {
		roomIDs[i] = r.ID
	}

	if err := s.presence.RegisterRooms(user.ID, roomIDs); err != nil {
		s.logger.Error(ctx, "FATAL: user %d rooms already registered: %v", user.ID, err)
		s.presence.Disconnect(s.addr)
		return errors.New("Already Logged in!")
	}

	s.authenticated = true
	s.userID = user.ID
	s.roomIDs = roomIDs
	s.send(ctx, protocol.LoggedIn())

	for _, roomID := range roomIDs {
		sub, err := s.rooms.Attach(roomID, user.ID)
		if err != nil {
			s.logger.Error(ctx, "failed to attach user %d to room %d: %v", user.ID, roomID, err)
			continue
		}
		s.forwarders.Add(1)
		go s.forward(ctx, roomID, sub)
	}

	if s.cache != nil {
		if err := s.cache.SetUserPresence(ctx, user.ID, cache.PresenceState{
			Status:   "online",
			LastSeen: time.Now().UTC(),
			RoomIDs:  roomIDs,
		}); err != nil {
			s.logger.Error(ctx, "failed to mirror presence for user %d: %v", user.ID, err)
		}
	}

	s.logger.Info(ctx, "user %d logged in from %s with %d rooms", user.ID, s.addr, len(roomIDs))
	return nil
}

// disconnect unwinds the presence and room state this session claimed.
func (s *Session) disconnect(ctx context.Context) {
	userID, roomIDs, ok := s.presence.Disconnect(s.addr)
	if !ok {
		return
	}
	for _, roomID := range roomIDs {
		s.rooms.Detach(roomID, userID)
	}
	if s.cache != nil {
		if err := s.cache.DeleteUserPresence(ctx, userID); err != nil {
			s.logger.Error(ctx, "failed to clear presence for user %d: %v", userID, err)
		}
	}
	s.logger.Info(ctx, "user %d disconnected from %s", userID, s.addr)
}

// send queues an outbound frame for the writer pump. It drops the frame if
// the session is shutting down.
func (s *Session) send(ctx context.Context, env protocol.Envelope) {
	select {
	case s.out <- env:
	case <-ctx.Done():
	}
}

// writePump is the single writer: every outbound frame, from the dispatch
// loop and from every forwarder, funnels through s.out onto the socket.
func (s *Session) writePump(done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				// Drain without writing so senders never block on a dead
				// socket; the read loop notices the closure and unwinds.
				for range s.out {
				}
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				for range s.out {
				}
				return
			}
		}
	}
}

func headOf(kind protocol.InboundKind) string {
	switch kind {
	case protocol.InboundLogin:
		return protocol.HeadLogin
	case protocol.InboundLogout:
		return protocol.HeadLogout
	case protocol.InboundSeeMessages:
		return protocol.HeadSeeMessages
	case protocol.InboundSendMessage:
		return protocol.HeadSendMessage
	case protocol.InboundJoinGroup:
		return protocol.HeadJoinGroup
	case protocol.InboundLeaveGroup:
		return protocol.HeadLeaveGroup
	case protocol.InboundFetchMessages:
		return protocol.HeadFetchMessages
	default:
		return "unknown"
	}
}
