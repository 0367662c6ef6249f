package models

import (
	"time"
)

// User is an account owned by the external identity service. The chat
// backend never mutates users, it only resolves them from credentials.
type User struct {
	ID       uint32 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// AuthCredentials is the opaque credential a client presents on LOGIN or on
// the REST session exchange. It is forwarded verbatim to the identity service.
type AuthCredentials struct {
	ID    uint32 `json:"id,omitempty"`
	Token string `json:"token"`
}

// ChatRoom is a named recipient set. Messages are addressed to a room id,
// never to a user id.
type ChatRoom struct {
	ID          uint32    `json:"id"`
	Title       string    `json:"title"`
	OwnerID     uint32    `json:"ownerId"`
	TimeCreated time.Time `json:"timeCreated"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Participant is a user's durable enrollment in a room.
type Participant struct {
	ChatRoomID uint32    `json:"chatRoomId"`
	UserID     uint32    `json:"userId"`
	TimeJoined time.Time `json:"timeJoined"`
}

// TimeSensitiveAction records one recipient's delivered- or seen-
// acknowledgement of one message. A room can have many participants and the
// backend needs to tell when each of them has received or viewed a message.
type TimeSensitiveAction struct {
	Time time.Time `json:"time"`
	By   uint32    `json:"by"`
}

// NewTimeSensitiveAction stamps an acknowledgement by the given user at the
// current UTC time.
func NewTimeSensitiveAction(by uint32) TimeSensitiveAction {
	return TimeSensitiveAction{Time: time.Now().UTC(), By: by}
}

// ChatMessage is the authoritative message record. ToID names a chat room,
// not a user; the field name is historical.
type ChatMessage struct {
	// ID is 0 until the store assigns one on insert.
	ID       uint32             `json:"id"`
	FromID   uint32             `json:"fromId"`
	ToID     uint32             `json:"toId"`
	Message  ChatMessageContent `json:"message"`
	TimeSent time.Time          `json:"timeSent"`
	// One entry per recipient that has received the message.
	TimeDelivered []TimeSensitiveAction `json:"timeDelivered"`
	// One entry per recipient that has viewed the message.
	TimeSeen []TimeSensitiveAction `json:"timeSeen"`
}

// NewChatMessage builds an unpersisted message from a sender payload,
// stamping the send time with the current UTC time.
func NewChatMessage(from uint32, sender ChatMessageSender) ChatMessage {
	return ChatMessage{
		FromID:        from,
		ToID:          sender.To,
		Message:       sender.Message,
		TimeSent:      time.Now().UTC(),
		TimeDelivered: []TimeSensitiveAction{},
		TimeSeen:      []TimeSensitiveAction{},
	}
}

// DeliveredBy reports whether the given user already has a delivered entry.
func (m *ChatMessage) DeliveredBy(userID uint32) bool {
	for _, a := range m.TimeDelivered {
		if a.By == userID {
			return true
		}
	}
	return false
}

// SeenBy reports whether the given user already has a seen entry.
func (m *ChatMessage) SeenBy(userID uint32) bool {
	for _, a := range m.TimeSeen {
		if a.By == userID {
			return true
		}
	}
	return false
}

// LastDelivered returns the most recently appended delivered entry.
func (m *ChatMessage) LastDelivered() (TimeSensitiveAction, bool) {
	if len(m.TimeDelivered) == 0 {
		return TimeSensitiveAction{}, false
	}
	return m.TimeDelivered[len(m.TimeDelivered)-1], true
}

// LastSeen returns the most recently appended seen entry.
func (m *ChatMessage) LastSeen() (TimeSensitiveAction, bool) {
	if len(m.TimeSeen) == 0 {
		return TimeSensitiveAction{}, false
	}
	return m.TimeSeen[len(m.TimeSeen)-1], true
}

// ChatMessageSender is the client payload of a SEND MESSAGE frame.
type ChatMessageSender struct {
	To      uint32             `json:"to"`
	Message ChatMessageContent `json:"message"`
}
