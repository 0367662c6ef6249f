// Package protocol implements the tagged {head, body} frame exchanged with
// socket clients. The head string drives dispatch; bodies are JSON and are
// omitted when empty.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/avelasqz/multichat-back/internal/models"
)

// Inbound heads. Compared as literal ASCII, spaces included.
const (
	HeadLogin         = "LOGIN"
	HeadLogout        = "LOGOUT"
	HeadSeeMessages   = "SEE MESSAGES"
	HeadSendMessage   = "SEND MESSAGE"
	HeadJoinGroup     = "JOIN GROUP"
	HeadLeaveGroup    = "LEAVE GROUP"
	HeadFetchMessages = "FETCH MESSAGES"
)

// Outbound heads. "MESSAGE RECIEVED" keeps its spelling: it is part of the
// wire protocol and clients match on the literal string.
const (
	HeadAcknowledge      = "ACKNOWLEDGE"
	HeadLoggedIn         = "LOGGED IN"
	HeadMessageSent      = "MESSAGE SENT"
	HeadMessageRecieved  = "MESSAGE RECIEVED"
	HeadMessageDelivered = "MESSAGE DELIVERED"
	HeadMessageSeen      = "MESSAGE SEEN"
	HeadError            = "ERROR"
)

// Envelope is the frame shape on the wire, for both directions.
type Envelope struct {
	Head string          `json:"head"`
	Body json.RawMessage `json:"body,omitempty"`
}

// DecodeError reports an undecodable frame or an unrecognized head.
type DecodeError struct {
	Head string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("frame with head %q could not be decoded: %v", e.Head, e.Err)
	}
	return fmt.Sprintf("frame head %q is not recognized by the server", e.Head)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InboundKind discriminates decoded client frames.
type InboundKind int

const (
	InboundLogin InboundKind = iota
	InboundLogout
	InboundSeeMessages
	InboundSendMessage
	InboundJoinGroup
	InboundLeaveGroup
	InboundFetchMessages
)

// Inbound is a decoded client frame. Exactly the payload field matching Kind
// is populated.
type Inbound struct {
	Kind        InboundKind
	Login       *models.AuthCredentials
	SeeMessages []uint32
	Send        *models.ChatMessageSender
}

// DecodeInbound parses one text frame into a typed inbound message.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, &DecodeError{Err: err}
	}

	switch env.Head {
	case HeadLogin:
		var creds models.AuthCredentials
		if err := json.Unmarshal(env.Body, &creds); err != nil {
			return Inbound{}, &DecodeError{Head: env.Head, Err: err}
		}
		return Inbound{Kind: InboundLogin, Login: &creds}, nil
	case HeadLogout:
		return Inbound{Kind: InboundLogout}, nil
	case HeadSeeMessages:
		var ids []uint32
		if err := json.Unmarshal(env.Body, &ids); err != nil {
			return Inbound{}, &DecodeError{Head: env.Head, Err: err}
		}
		return Inbound{Kind: InboundSeeMessages, SeeMessages: ids}, nil
	case HeadSendMessage:
		var sender models.ChatMessageSender
		if err := json.Unmarshal(env.Body, &sender); err != nil {
			return Inbound{}, &DecodeError{Head: env.Head, Err: err}
		}
		return Inbound{Kind: InboundSendMessage, Send: &sender}, nil
	case HeadJoinGroup:
		return Inbound{Kind: InboundJoinGroup}, nil
	case HeadLeaveGroup:
		return Inbound{Kind: InboundLeaveGroup}, nil
	case HeadFetchMessages:
		return Inbound{Kind: InboundFetchMessages}, nil
	default:
		return Inbound{}, &DecodeError{Head: env.Head}
	}
}

// EncodeInbound builds the client-side frame for a typed inbound message.
// The server only decodes these; tests and embedded clients encode them.
func EncodeInbound(in Inbound) (Envelope, error) {
	switch in.Kind {
	case InboundLogin:
		return envelopeWithBody(HeadLogin, in.Login)
	case InboundLogout:
		return Envelope{Head: HeadLogout}, nil
	case InboundSeeMessages:
		return envelopeWithBody(HeadSeeMessages, in.SeeMessages)
	case InboundSendMessage:
		return envelopeWithBody(HeadSendMessage, in.Send)
	case InboundJoinGroup:
		return Envelope{Head: HeadJoinGroup}, nil
	case InboundLeaveGroup:
		return Envelope{Head: HeadLeaveGroup}, nil
	case InboundFetchMessages:
		return Envelope{Head: HeadFetchMessages}, nil
	default:
		return Envelope{}, fmt.Errorf("unknown inbound kind %d", in.Kind)
	}
}

// MessageTimeUpdate notifies a client that a specific message has been
// delivered or seen.
type MessageTimeUpdate struct {
	TimeUpdate    models.TimeSensitiveAction `json:"timeUpdate"`
	ChatMessageID uint32                     `json:"chatMessageId"`
}

// Acknowledge builds the bare ACKNOWLEDGE frame.
func Acknowledge() Envelope {
	return Envelope{Head: HeadAcknowledge}
}

// LoggedIn builds the bare LOGGED IN frame.
func LoggedIn() Envelope {
	return Envelope{Head: HeadLoggedIn}
}

// MessageSent builds the bare MESSAGE SENT frame.
func MessageSent() Envelope {
	return Envelope{Head: HeadMessageSent}
}

// MessageRecieved builds the frame carrying a full persisted message to a
// recipient.
func MessageRecieved(m models.ChatMessage) (Envelope, error) {
	return envelopeWithBody(HeadMessageRecieved, m)
}

// MessageDelivered builds the delivered-notification frame.
func MessageDelivered(u MessageTimeUpdate) (Envelope, error) {
	return envelopeWithBody(HeadMessageDelivered, u)
}

// MessageSeen builds the seen-notification frame.
func MessageSeen(u MessageTimeUpdate) (Envelope, error) {
	return envelopeWithBody(HeadMessageSeen, u)
}

// ErrorFrame builds an ERROR frame carrying a message string.
func ErrorFrame(message string) Envelope {
	body, _ := json.Marshal(message)
	return Envelope{Head: HeadError, Body: body}
}

func envelopeWithBody(head string, body interface{}) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s body: %w", head, err)
	}
	return Envelope{Head: head, Body: raw}, nil
}
