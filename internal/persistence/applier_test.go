package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelasqz/multichat-back/internal/db"
	"github.com/avelasqz/multichat-back/internal/models"
	"github.com/avelasqz/multichat-back/internal/utils"
)

type memStore struct {
	mu        sync.Mutex
	messages  map[uint32]models.ChatMessage
	updateErr error
}

func newMemStore(msgs ...models.ChatMessage) *memStore {
	s := &memStore{messages: make(map[uint32]models.ChatMessage)}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *memStore) GetMessage(_ context.Context, id uint32) (*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := m
	cp.TimeDelivered = append([]models.TimeSensitiveAction(nil), m.TimeDelivered...)
	cp.TimeSeen = append([]models.TimeSensitiveAction(nil), m.TimeSeen...)
	return &cp, nil
}

func (s *memStore) UpdateMessage(_ context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.messages[msg.ID] = *msg
	return nil
}

func (s *memStore) get(id uint32) models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func testMessage(id uint32) models.ChatMessage {
	m := models.NewChatMessage(1, models.ChatMessageSender{To: 10, Message: models.TextContent("hi")})
	m.ID = id
	return m
}

func newTestApplier(store MessageStore) *Applier {
	return NewApplier(store, NewQueue(), utils.NewLogger("error"))
}

func TestApply_AppendsAndPublishes(t *testing.T) {
	store := newMemStore(testMessage(42))
	a := newTestApplier(store)

	var published []models.ChatMessage
	u := upd(UpdateDelivered, 2, 0)
	err := a.Apply(context.Background(), 42, u, func(kind UpdateKind, msg models.ChatMessage) error {
		assert.Equal(t, UpdateDelivered, kind)
		published = append(published, msg)
		return nil
	})
	require.NoError(t, err)

	got := store.get(42)
	require.Len(t, got.TimeDelivered, 1)
	assert.Equal(t, uint32(2), got.TimeDelivered[0].By)
	assert.Empty(t, got.TimeSeen)

	require.Len(t, published, 1)
	assert.Equal(t, got.TimeDelivered, published[0].TimeDelivered)
	assert.False(t, a.Queue().HasPending(42))
}

func TestApply_SeenKindTargetsSeenList(t *testing.T) {
	store := newMemStore(testMessage(42))
	a := newTestApplier(store)

	require.NoError(t, a.Apply(context.Background(), 42, upd(UpdateSeen, 3, 0), nil))

	got := store.get(42)
	assert.Empty(t, got.TimeDelivered)
	require.Len(t, got.TimeSeen, 1)
	assert.Equal(t, uint32(3), got.TimeSeen[0].By)
}

func TestApply_IdempotentPerUser(t *testing.T) {
	store := newMemStore(testMessage(42))
	a := newTestApplier(store)

	published := 0
	publish := func(UpdateKind, models.ChatMessage) error {
		published++
		return nil
	}
	require.NoError(t, a.Apply(context.Background(), 42, upd(UpdateDelivered, 2, 0), publish))
	require.NoError(t, a.Apply(context.Background(), 42, upd(UpdateDelivered, 2, 5), publish))

	got := store.get(42)
	assert.Len(t, got.TimeDelivered, 1)
	// The duplicate is skipped silently: no second write, no second publish.
	assert.Equal(t, 1, published)
	assert.False(t, a.Queue().HasPending(42))
}

func TestApply_MissingMessageDropped(t *testing.T) {
	store := newMemStore()
	a := newTestApplier(store)

	err := a.Apply(context.Background(), 99, upd(UpdateDelivered, 2, 0), func(UpdateKind, models.ChatMessage) error {
		t.Fatal("publish must not fire for a missing message")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, a.Queue().HasPending(99))
}

func TestApply_StoreErrorReleasesSlot(t *testing.T) {
	store := newMemStore(testMessage(42))
	store.updateErr = errors.New("write failed")
	a := newTestApplier(store)

	err := a.Apply(context.Background(), 42, upd(UpdateDelivered, 2, 0), nil)
	require.Error(t, err)

	// The failed writer must not leave its slot blocking the queue.
	assert.False(t, a.Queue().HasPending(42))
	store.updateErr = nil
	require.NoError(t, a.Apply(context.Background(), 42, upd(UpdateDelivered, 3, 1), nil))
	assert.Len(t, store.get(42).TimeDelivered, 1)
}

func TestApply_CancelledWhileWaitingReleasesSlot(t *testing.T) {
	store := newMemStore(testMessage(42))
	a := newTestApplier(store)

	// Occupy the front so the second writer has to wait.
	blocker := upd(UpdateDelivered, 1, 0)
	a.Queue().Enqueue(42, blocker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	waiting := upd(UpdateDelivered, 2, 1)
	go func() {
		done <- a.Apply(ctx, 42, waiting, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Apply did not observe cancellation")
	}

	// The abandoned update is gone; only the blocker remains.
	assert.False(t, a.Queue().IsFirst(42, waiting))
	assert.True(t, a.Queue().IsFirst(42, blocker))
}

func TestApply_ConcurrentDeliveredBothRecorded(t *testing.T) {
	store := newMemStore(testMessage(42))
	a := newTestApplier(store)

	var wg sync.WaitGroup
	for i := uint32(2); i <= 3; i++ {
		wg.Add(1)
		go func(by uint32) {
			defer wg.Done()
			assert.NoError(t, a.Apply(context.Background(), 42, upd(UpdateDelivered, by, int(by)), nil))
		}(i)
	}
	wg.Wait()

	got := store.get(42)
	require.Len(t, got.TimeDelivered, 2)
	bys := []uint32{got.TimeDelivered[0].By, got.TimeDelivered[1].By}
	assert.ElementsMatch(t, []uint32{2, 3}, bys)
	assert.False(t, a.Queue().HasPending(42))
}
