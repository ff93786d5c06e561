package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, PriorityHigh, []byte("task-1")))

	priority, payload, err := s.Dequeue(ctx, []Priority{PriorityHigh, PriorityDefault, PriorityLow}, time.Second)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, priority)
	require.Equal(t, "task-1", string(payload))
}

func TestDequeuePrefersEarlierPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, PriorityLow, []byte("low-task")))
	require.NoError(t, s.Enqueue(ctx, PriorityHigh, []byte("high-task")))

	priority, payload, err := s.Dequeue(ctx, []Priority{PriorityHigh, PriorityDefault, PriorityLow}, time.Second)
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, priority)
	require.Equal(t, "high-task", string(payload))
}

func TestQueueDepth(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Enqueue(ctx, PriorityDefault, []byte("a")))
	require.NoError(t, s.Enqueue(ctx, PriorityDefault, []byte("b")))

	depth, err := s.QueueDepth(ctx, PriorityDefault)
	require.NoError(t, err)
	require.Equal(t, int64(2), depth)
}

func TestInFlightMarkAckAndExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.MarkInFlight(ctx, "task-1", time.Now().Add(-time.Minute)))
	require.NoError(t, s.MarkInFlight(ctx, "task-2", time.Now().Add(time.Hour)))

	expired, err := s.ExpiredInFlight(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"task-1"}, expired)

	require.NoError(t, s.Ack(ctx, "task-1"))
	expired, err = s.ExpiredInFlight(ctx, time.Now())
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestSessionCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	type payload struct {
		TopicsCovered []string
	}
	require.NoError(t, s.PutSession(ctx, "sess-1", payload{TopicsCovered: []string{"ml"}}, time.Minute))

	var got payload
	found, err := s.GetSession(ctx, "sess-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"ml"}, got.TopicsCovered)

	var miss payload
	found, err = s.GetSession(ctx, "missing", &miss)
	require.NoError(t, err)
	require.False(t, found)
}

func TestCacheKeyIsStablePerInput(t *testing.T) {
	a := CacheKey("embedding", "model-x", "hello world")
	b := CacheKey("embedding", "model-x", "hello world")
	c := CacheKey("embedding", "model-x", "different")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestCacheSetGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	key := CacheKey("embedding", "model-x", "hello")
	require.NoError(t, s.CacheSet(ctx, key, []byte{1, 2, 3}, time.Minute))

	got, found, err := s.CacheGet(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestSimpleQueueRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SimplePush(ctx, "notify", []byte("hello")))

	got, found, err := s.SimplePop(ctx, "notify")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(got))

	_, found, err = s.SimplePop(ctx, "notify")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSimpleBlockingPopTimesOutOnEmptyQueue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.SimpleBlockingPop(ctx, "empty", 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, found)
}
