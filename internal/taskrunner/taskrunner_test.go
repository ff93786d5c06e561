package taskrunner

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"secondbrain/internal/config"
	"secondbrain/internal/kv"
)

// TestMain verifies worker/reaper goroutines spawned by Runner.Run don't
// outlive their test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openTestStore(t *testing.T) *kv.Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	s, err := kv.Open(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCfg() config.TaskRunnerConfig {
	return config.TaskRunnerConfig{
		SoftTimeLimit:       5 * time.Minute,
		HardTimeLimit:       10 * time.Minute,
		BookSoftTimeLimit:   30 * time.Minute,
		BookHardTimeLimit:   60 * time.Minute,
		RetryInitialBackoff: 10 * time.Millisecond,
		RetryMaxAttempts:    3,
		WorkersPerQueue:     1,
	}
}

func TestEnqueueRoundTripsThroughQueue(t *testing.T) {
	store := openTestStore(t)
	runner := New(store, testCfg())
	ctx := context.Background()

	task := Task{ID: "t1", Type: TaskProcessContent, Payload: json.RawMessage(`{"uuid":"abc"}`)}
	require.NoError(t, runner.Enqueue(ctx, kv.PriorityHigh, task))

	_, payload, err := store.Dequeue(ctx, queueOrder, time.Second)
	require.NoError(t, err)

	var got Task
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, "t1", got.ID)
	require.Equal(t, TaskProcessContent, got.Type)
}

func TestLimitsForUsesBookOverridesForProcessBook(t *testing.T) {
	runner := New(nil, testCfg())
	lim := runner.limitsFor(TaskProcessBook)
	require.Equal(t, 30*time.Minute, lim.soft)
	require.Equal(t, 60*time.Minute, lim.hard)

	lim = runner.limitsFor(TaskProcessContent)
	require.Equal(t, 5*time.Minute, lim.soft)
	require.Equal(t, 10*time.Minute, lim.hard)
}

func TestExecuteAcksOnSuccess(t *testing.T) {
	store := openTestStore(t)
	runner := New(store, testCfg())
	ctx := context.Background()

	var calls int32
	runner.Register(TaskProcessContent, func(ctx context.Context, task Task) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	task := Task{ID: "t2", Type: TaskProcessContent}
	runner.execute(ctx, task)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	expired, err := store.ExpiredInFlight(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotContains(t, expired, "t2")
}

func TestExecuteRequeuesOnFailureUnderMaxAttempts(t *testing.T) {
	store := openTestStore(t)
	cfg := testCfg()
	runner := New(store, cfg)
	ctx := context.Background()

	runner.Register(TaskProcessContent, func(ctx context.Context, task Task) error {
		return errors.New("transient failure")
	})

	task := Task{ID: "t3", Type: TaskProcessContent, Attempt: 0}
	runner.execute(ctx, task)

	require.Eventually(t, func() bool {
		_, payload, err := store.Dequeue(ctx, queueOrder, 50*time.Millisecond)
		if err != nil || payload == nil {
			return false
		}
		var requeued Task
		_ = json.Unmarshal(payload, &requeued)
		return requeued.ID == "t3" && requeued.Attempt == 1
	}, time.Second, 10*time.Millisecond)
}

func TestExecuteDropsTaskAfterExhaustingRetries(t *testing.T) {
	store := openTestStore(t)
	cfg := testCfg()
	runner := New(store, cfg)
	ctx := context.Background()

	var calls int32
	runner.Register(TaskProcessContent, func(ctx context.Context, task Task) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always fails")
	})

	task := Task{ID: "t4", Type: TaskProcessContent, Attempt: cfg.RetryMaxAttempts - 1}
	runner.execute(ctx, task)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	_, payload, err := store.Dequeue(ctx, queueOrder, 100*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, payload)
}

func TestExecuteLogsWhenNoHandlerRegistered(t *testing.T) {
	store := openTestStore(t)
	runner := New(store, testCfg())
	ctx := context.Background()

	task := Task{ID: "t5", Type: "unregistered_type"}
	require.NotPanics(t, func() { runner.execute(ctx, task) })
}

func TestPushAndPopSimpleRoundTrip(t *testing.T) {
	store := openTestStore(t)
	runner := New(store, testCfg())
	ctx := context.Background()

	task := Task{ID: "s1", Type: TaskSyncBookmarks}
	require.NoError(t, runner.PushSimple(ctx, "bookmarks", task))

	got, ok, err := runner.PopSimple(ctx, "bookmarks")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s1", got.ID)
}

func TestReapExpiredClearsStaleInFlightEntries(t *testing.T) {
	store := openTestStore(t)
	runner := New(store, testCfg())
	ctx := context.Background()

	require.NoError(t, store.MarkInFlight(ctx, "stuck-task", time.Now().Add(-time.Minute)))

	runner.reapExpired(ctx)

	expired, err := store.ExpiredInFlight(ctx, time.Now())
	require.NoError(t, err)
	require.NotContains(t, expired, "stuck-task")
}
