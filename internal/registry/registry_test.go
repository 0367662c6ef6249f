package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/avelasqz/multichat-back/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newMessage(id uint32) models.ChatMessage {
	m := models.NewChatMessage(1, models.ChatMessageSender{To: 10, Message: models.TextContent("hi")})
	m.ID = id
	return m
}

func recvOne(t *testing.T, sub *Subscriber) BroadcastEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Recv(ctx)
	require.NoError(t, err)
	return ev
}

func TestAttachPublishFanOut(t *testing.T) {
	rooms := NewRooms()

	subA, err := rooms.Attach(10, 1)
	require.NoError(t, err)
	subB, err := rooms.Attach(10, 2)
	require.NoError(t, err)

	pub, err := rooms.Publisher(10)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(BroadcastEvent{Kind: EventNewMessage, Message: newMessage(42)}))

	for _, sub := range []*Subscriber{subA, subB} {
		ev := recvOne(t, sub)
		assert.Equal(t, EventNewMessage, ev.Kind)
		assert.Equal(t, uint32(42), ev.Message.ID)
	}
}

func TestPublishOrderPerSubscriber(t *testing.T) {
	rooms := NewRooms()
	sub, err := rooms.Attach(10, 1)
	require.NoError(t, err)

	pub, err := rooms.Publisher(10)
	require.NoError(t, err)
	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, pub.Publish(BroadcastEvent{Kind: EventNewMessage, Message: newMessage(i)}))
	}

	for i := uint32(1); i <= 5; i++ {
		assert.Equal(t, i, recvOne(t, sub).Message.ID)
	}
}

func TestSlowSubscriberIsCutOff(t *testing.T) {
	rooms := NewRooms()
	slow, err := rooms.Attach(10, 1)
	require.NoError(t, err)
	live, err := rooms.Attach(10, 2)
	require.NoError(t, err)

	pub, err := rooms.Publisher(10)
	require.NoError(t, err)

	// One past the backlog without a single receive.
	for i := 0; i <= FabricCapacity; i++ {
		require.NoError(t, pub.Publish(BroadcastEvent{Kind: EventNewMessage, Message: newMessage(uint32(i))}))
	}

	// The slow subscriber still drains its backlog, then sees the overflow.
	ctx := context.Background()
	for i := 0; i < FabricCapacity; i++ {
		_, err := slow.Recv(ctx)
		require.NoError(t, err)
	}
	_, err = slow.Recv(ctx)
	assert.ErrorIs(t, err, ErrSlowSubscriber)

	// The keeping-up subscriber is unaffected by its neighbor's overflow.
	for i := 0; i < FabricCapacity; i++ {
		recvOne(t, live)
	}
	require.NoError(t, pub.Publish(BroadcastEvent{Kind: EventNewMessage, Message: newMessage(999)}))
	assert.Equal(t, uint32(999), recvOne(t, live).Message.ID)
}

func TestRecvHonorsContext(t *testing.T) {
	rooms := NewRooms()
	sub, err := rooms.Attach(10, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sub.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLastDetachTearsRoomDown(t *testing.T) {
	rooms := NewRooms()
	subA, err := rooms.Attach(10, 1)
	require.NoError(t, err)
	_, err = rooms.Attach(10, 2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uint32{1, 2}, rooms.ParticipantsOf(10))

	rooms.Detach(10, 1)
	assert.ElementsMatch(t, []uint32{2}, rooms.ParticipantsOf(10))
	_, err = rooms.Publisher(10)
	require.NoError(t, err)

	rooms.Detach(10, 2)
	assert.Empty(t, rooms.ParticipantsOf(10))

	// Publishing on a torn-down room fails.
	_, err = rooms.Publisher(10)
	assert.ErrorIs(t, err, ErrRoomNotActive)

	// Remaining subscriptions observe end-of-stream.
	_, err = subA.Recv(context.Background())
	assert.ErrorIs(t, err, ErrFabricClosed)
}

func TestReattachAfterTeardownGetsFreshFabric(t *testing.T) {
	rooms := NewRooms()
	_, err := rooms.Attach(10, 1)
	require.NoError(t, err)
	rooms.Detach(10, 1)

	sub, err := rooms.Attach(10, 1)
	require.NoError(t, err)
	pub, err := rooms.Publisher(10)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(BroadcastEvent{Kind: EventNewMessage, Message: newMessage(7)}))
	assert.Equal(t, uint32(7), recvOne(t, sub).Message.ID)
}

func TestPresenceConflicts(t *testing.T) {
	p := NewPresence()

	require.NoError(t, p.RegisterConnection("10.0.0.1:5000", 1))
	assert.True(t, p.IsAddrRegistered("10.0.0.1:5000"))
	assert.ErrorIs(t, p.RegisterConnection("10.0.0.1:5000", 2), ErrAddrInUse)

	require.NoError(t, p.RegisterRooms(1, []uint32{10, 11}))
	assert.ErrorIs(t, p.RegisterRooms(1, []uint32{10}), ErrDuplicateLogin)

	rooms, ok := p.RoomsOf(1)
	require.True(t, ok)
	assert.Equal(t, []uint32{10, 11}, rooms)
	assert.True(t, p.InRoom(1, 10))
	assert.False(t, p.InRoom(1, 99))
}

func TestPresenceDisconnect(t *testing.T) {
	p := NewPresence()
	require.NoError(t, p.RegisterConnection("10.0.0.1:5000", 1))
	require.NoError(t, p.RegisterRooms(1, []uint32{10}))

	userID, roomIDs, ok := p.Disconnect("10.0.0.1:5000")
	require.True(t, ok)
	assert.Equal(t, uint32(1), userID)
	assert.Equal(t, []uint32{10}, roomIDs)

	assert.False(t, p.IsAddrRegistered("10.0.0.1:5000"))
	_, ok = p.RoomsOf(1)
	assert.False(t, ok)

	// A second login for the same user is clean after disconnect.
	require.NoError(t, p.RegisterRooms(1, []uint32{10}))

	_, _, ok = p.Disconnect("never-seen")
	assert.False(t, ok)
}
