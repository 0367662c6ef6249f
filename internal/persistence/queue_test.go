package persistence

import (
	"context"
	"sync"
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

func upd(kind UpdateKind, by uint32, sec int) Update {
	return Update{
		Kind:   kind,
		Action: models.TimeSensitiveAction{Time: time.Date(2024, 5, 1, 10, 0, sec, 0, time.UTC), By: by},
	}
}

func TestQueueLifecycle(t *testing.T) {
	q := NewQueue()
	u1 := upd(UpdateDelivered, 1, 0)
	u2 := upd(UpdateDelivered, 2, 1)

	assert.False(t, q.HasPending(5))

	q.Enqueue(5, u1)
	q.Enqueue(5, u2)
	assert.True(t, q.HasPending(5))
	assert.True(t, q.IsFirst(5, u1))
	assert.False(t, q.IsFirst(5, u2))

	got, ok := q.PopFirst(5)
	require.True(t, ok)
	assert.Equal(t, u1, got)
	assert.True(t, q.IsFirst(5, u2))

	got, ok = q.PopFirst(5)
	require.True(t, ok)
	assert.Equal(t, u2, got)

	// Draining the queue removes the map entry.
	assert.False(t, q.HasPending(5))
	_, ok = q.PopFirst(5)
	assert.False(t, ok)
}

func TestIsFirstOnMissingQueue(t *testing.T) {
	q := NewQueue()
	assert.False(t, q.IsFirst(5, upd(UpdateDelivered, 1, 0)))
}

func TestAwaitImmediateWhenFirst(t *testing.T) {
	q := NewQueue()
	u := upd(UpdateSeen, 1, 0)
	q.Enqueue(5, u)
	require.NoError(t, q.Await(context.Background(), 5, u))
}

func TestAwaitWakesOnPop(t *testing.T) {
	q := NewQueue()
	u1 := upd(UpdateDelivered, 1, 0)
	u2 := upd(UpdateDelivered, 2, 1)
	q.Enqueue(5, u1)
	q.Enqueue(5, u2)

	done := make(chan error, 1)
	go func() {
		done <- q.Await(context.Background(), 5, u2)
	}()

	// u2 must still be waiting while u1 holds the front.
	select {
	case err := <-done:
		t.Fatalf("Await returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	q.PopFirst(5)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Await did not wake after pop")
	}
}

func TestAwaitCancelled(t *testing.T) {
	q := NewQueue()
	u1 := upd(UpdateDelivered, 1, 0)
	u2 := upd(UpdateDelivered, 2, 1)
	q.Enqueue(5, u1)
	q.Enqueue(5, u2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- q.Await(ctx, 5, u2)
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Await did not observe cancellation")
	}
}

func TestRemoveReleasesWaiters(t *testing.T) {
	q := NewQueue()
	u1 := upd(UpdateDelivered, 1, 0)
	u2 := upd(UpdateDelivered, 2, 1)
	q.Enqueue(5, u1)
	q.Enqueue(5, u2)

	done := make(chan error, 1)
	go func() {
		done <- q.Await(context.Background(), 5, u2)
	}()

	// Abandoning the front entry must promote the waiter.
	assert.True(t, q.Remove(5, u1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Await did not wake after front removal")
	}

	// Removing the last entry drops the queue.
	assert.True(t, q.Remove(5, u2))
	assert.False(t, q.HasPending(5))
	assert.False(t, q.Remove(5, u2))
}

func TestAwaitAfterRemoval(t *testing.T) {
	q := NewQueue()
	u1 := upd(UpdateDelivered, 1, 0)
	u2 := upd(UpdateDelivered, 2, 1)
	q.Enqueue(5, u1)
	q.Enqueue(5, u2)
	q.Remove(5, u2)

	err := q.Await(context.Background(), 5, u2)
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestQueuesAreIndependentPerMessage(t *testing.T) {
	q := NewQueue()
	u := upd(UpdateSeen, 1, 0)
	q.Enqueue(5, u)
	q.Enqueue(6, u)

	q.PopFirst(5)
	assert.False(t, q.HasPending(5))
	assert.True(t, q.HasPending(6))
}

func TestConcurrentWritersSerialize(t *testing.T) {
	q := NewQueue()
	const writers = 8

	var mu sync.Mutex
	var order []uint32
	inCritical := false

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		u := upd(UpdateDelivered, uint32(i+1), i)
		q.Enqueue(7, u)
		wg.Add(1)
		go func(u Update) {
			defer wg.Done()
			require.NoError(t, q.Await(context.Background(), 7, u))

			mu.Lock()
			assert.False(t, inCritical, "two writers inside the guarded section")
			inCritical = true
			order = append(order, u.Action.By)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical = false
			mu.Unlock()
			q.PopFirst(7)
		}(u)
	}
	wg.Wait()

	// FIFO: writers complete in enqueue order.
	want := make([]uint32, writers)
	for i := range want {
		want[i] = uint32(i + 1)
	}
	assert.Equal(t, want, order)
	assert.False(t, q.HasPending(7))
}
