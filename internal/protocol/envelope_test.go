package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelasqz/multichat-back/internal/models"
)

func TestDecodeInbound_Login(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"head":"LOGIN","body":{"id":7,"token":"abc"}}`))
	require.NoError(t, err)

	assert.Equal(t, InboundLogin, in.Kind)
	require.NotNil(t, in.Login)
	assert.Equal(t, uint32(7), in.Login.ID)
	assert.Equal(t, "abc", in.Login.Token)
}

func TestDecodeInbound_SeeMessages(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"head":"SEE MESSAGES","body":[3,1,2]}`))
	require.NoError(t, err)

	assert.Equal(t, InboundSeeMessages, in.Kind)
	assert.Equal(t, []uint32{3, 1, 2}, in.SeeMessages)
}

func TestDecodeInbound_SendMessageText(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"head":"SEND MESSAGE","body":{"to":10,"message":{"Text":"hi"}}}`))
	require.NoError(t, err)

	assert.Equal(t, InboundSendMessage, in.Kind)
	require.NotNil(t, in.Send)
	assert.Equal(t, uint32(10), in.Send.To)
	require.NotNil(t, in.Send.Message.Text)
	assert.Equal(t, "hi", *in.Send.Message.Text)
}

func TestDecodeInbound_ReservedHeadsHaveNoBody(t *testing.T) {
	for head, kind := range map[string]InboundKind{
		"LOGOUT":         InboundLogout,
		"JOIN GROUP":     InboundJoinGroup,
		"LEAVE GROUP":    InboundLeaveGroup,
		"FETCH MESSAGES": InboundFetchMessages,
	} {
		in, err := DecodeInbound([]byte(`{"head":"` + head + `"}`))
		require.NoError(t, err, head)
		assert.Equal(t, kind, in.Kind, head)
	}
}

func TestDecodeInbound_UnknownHead(t *testing.T) {
	_, err := DecodeInbound([]byte(`{"head":"SHOUT"}`))
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "SHOUT", decodeErr.Head)
}

func TestDecodeInbound_Garbage(t *testing.T) {
	_, err := DecodeInbound([]byte(`not even json`))
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestHeadsAreLiteral(t *testing.T) {
	// Spaces and the RECIEVED spelling are load-bearing.
	assert.Equal(t, "SEE MESSAGES", HeadSeeMessages)
	assert.Equal(t, "MESSAGE RECIEVED", HeadMessageRecieved)
}

func TestBareFramesOmitBody(t *testing.T) {
	for _, env := range []Envelope{Acknowledge(), LoggedIn(), MessageSent()} {
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "body")
	}
}

func TestMessageRecieved_RoundTrip(t *testing.T) {
	sent := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	msg := models.ChatMessage{
		ID:       42,
		FromID:   1,
		ToID:     10,
		Message:  models.ImageContent([]byte{0, 127, 255}),
		TimeSent: sent,
		TimeDelivered: []models.TimeSensitiveAction{
			{Time: sent.Add(time.Second), By: 2},
		},
		TimeSeen: []models.TimeSensitiveAction{},
	}

	env, err := MessageRecieved(msg)
	require.NoError(t, err)
	assert.Equal(t, HeadMessageRecieved, env.Head)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	// Media bytes travel as integer arrays, not base64.
	assert.Contains(t, string(raw), `"Image":[0,127,255]`)

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	var decoded models.ChatMessage
	require.NoError(t, json.Unmarshal(back.Body, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestMessageDelivered_RoundTrip(t *testing.T) {
	update := MessageTimeUpdate{
		TimeUpdate:    models.TimeSensitiveAction{Time: time.Date(2024, 5, 1, 10, 31, 0, 0, time.UTC), By: 2},
		ChatMessageID: 42,
	}

	env, err := MessageDelivered(update)
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"chatMessageId":42`)

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	var decoded MessageTimeUpdate
	require.NoError(t, json.Unmarshal(back.Body, &decoded))
	assert.Equal(t, update, decoded)
}

func TestErrorFrame(t *testing.T) {
	env := ErrorFrame("Already Logged in!")
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"head":"ERROR","body":"Already Logged in!"}`, string(raw))
}

func TestEncodeInbound_MatchesDecode(t *testing.T) {
	cases := []Inbound{
		{Kind: InboundLogin, Login: &models.AuthCredentials{ID: 1, Token: "t"}},
		{Kind: InboundSeeMessages, SeeMessages: []uint32{5, 6}},
		{Kind: InboundSendMessage, Send: &models.ChatMessageSender{To: 10, Message: models.TextContent("yo")}},
		{Kind: InboundLogout},
	}
	for _, want := range cases {
		env, err := EncodeInbound(want)
		require.NoError(t, err)
		raw, err := json.Marshal(env)
		require.NoError(t, err)
		got, err := DecodeInbound(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestContentVariant_ExactlyOne(t *testing.T) {
	var c models.ChatMessageContent
	err := json.Unmarshal([]byte(`{"Text":"a","Image":[1]}`), &c)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{}`), &c)
	assert.Error(t, err)
}
