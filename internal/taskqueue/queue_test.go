package taskqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsInOrder(t *testing.T) {
	q := New()
	defer q.Close()

	var mu sync.Mutex
	var order []int
	var events []*Event
	for i := range 10 {
		events = append(events, q.Enqueue(func() {
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, events[len(events)-1].Wait())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestEventWaitIsRepeatable(t *testing.T) {
	q := New()
	defer q.Close()

	ev := q.Enqueue(func() {})
	require.NoError(t, ev.Wait())
	require.NoError(t, ev.Wait())

	select {
	case <-ev.Done():
	default:
		t.Fatal("done channel not closed")
	}

	var nilEvent *Event
	assert.NoError(t, nilEvent.Wait())
}

func TestCloseDrainsPending(t *testing.T) {
	q := New()
	ran := make(chan struct{}, 3)
	for range 3 {
		q.Enqueue(func() { ran <- struct{}{} })
	}
	q.Close()
	assert.Len(t, ran, 3)

	ev := q.Enqueue(func() { t.Error("task ran after close") })
	assert.ErrorIs(t, ev.Wait(), ErrClosed)

	q.Close()
}

func TestCloseWithoutTasks(t *testing.T) {
	q := New()
	q.Close()
}

func TestQueuePanicIsReportedByEvent(t *testing.T) {
	q := New()
	defer q.Close()

	bad := q.Enqueue(func() { panic("kaput") })
	ran := false
	good := q.Enqueue(func() { ran = true })

	err := bad.Wait()
	require.ErrorIs(t, err, ErrPanic)
	assert.Contains(t, err.Error(), "kaput")
	require.NoError(t, good.Wait())
	assert.True(t, ran, "the worker survives a panicking task")
}
