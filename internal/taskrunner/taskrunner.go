// Package taskrunner implements C15: three priority queues over the
// key-value store, with late-ack, reject-on-worker-lost, per-task-type
// time limits, and exponential-backoff retry. Grounded on spec.md
// §4.15 and evalgo-org-eve's queue/redis/queue.go, whose client-per-store
// and key-prefix conventions internal/kv follows (its priority queues
// use LPush/BRPop); worker concurrency uses
// golang.org/x/sync/errgroup the way the teacher's server bootstrap
// fans out goroutines.
package taskrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"secondbrain/internal/config"
	"secondbrain/internal/kv"
	"secondbrain/internal/logging"
)

var log = logging.Get(logging.CategoryTaskRunner)

// TaskType is the closed set of job shapes the runner dispatches.
type TaskType string

const (
	TaskProcessContent TaskType = "process_content"
	TaskProcessBook    TaskType = "process_book"
	TaskSyncBookmarks  TaskType = "sync_bookmarks"
	TaskSyncRepo       TaskType = "sync_repo"
)

// Task is one unit of work, JSON-only per spec.md §4.15 ("payloads
// never carry binary blobs").
type Task struct {
	ID         string          `json:"id"`
	Type       TaskType        `json:"task_type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler processes one task's payload.
type Handler func(ctx context.Context, task Task) error

// limits bundles a task type's soft/hard time limits.
type limits struct {
	soft, hard time.Duration
}

// Runner dequeues and executes tasks across the three priority queues.
type Runner struct {
	KV       *kv.Store
	Cfg      config.TaskRunnerConfig
	handlers map[TaskType]Handler
}

// New builds a Runner over cfg's time limits and retry policy.
func New(store *kv.Store, cfg config.TaskRunnerConfig) *Runner {
	return &Runner{KV: store, Cfg: cfg, handlers: make(map[TaskType]Handler)}
}

// Register binds a Handler to a TaskType. A task whose type has no
// registered Handler is not run; execute only logs an error for it.
func (r *Runner) Register(t TaskType, h Handler) {
	r.handlers[t] = h
}

// Enqueue serializes task and pushes it onto priority's queue.
func (r *Runner) Enqueue(ctx context.Context, priority kv.Priority, task Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskrunner: marshal task %s: %w", task.ID, err)
	}
	return r.KV.Enqueue(ctx, priority, data)
}

func (r *Runner) limitsFor(t TaskType) limits {
	if t == TaskProcessBook {
		return limits{soft: r.Cfg.BookSoftTimeLimit, hard: r.Cfg.BookHardTimeLimit}
	}
	return limits{soft: r.Cfg.SoftTimeLimit, hard: r.Cfg.HardTimeLimit}
}

// queueOrder lists queues high-to-low so Dequeue drains higher
// priorities first without ever starving lower ones outright: BRPOP
// polls in this order every iteration (spec.md §4.15 "higher-priority
// jobs preempt low-priority dequeuing order but never cancel running
// jobs").
var queueOrder = []kv.Priority{kv.PriorityHigh, kv.PriorityDefault, kv.PriorityLow}

// Run starts WorkersPerQueue worker goroutines in total, each polling
// all three priority queues in queueOrder and looping
// dequeue-execute-ack until ctx is cancelled, plus one reaper goroutine.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	workers := r.Cfg.WorkersPerQueue
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error { return r.workerLoop(ctx) })
	}
	g.Go(func() error { return r.reaperLoop(ctx) })
	return g.Wait()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, payload, err := r.KV.Dequeue(ctx, queueOrder, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("dequeue: %v", err)
			continue
		}
		if payload == nil {
			continue
		}

		var task Task
		if err := json.Unmarshal(payload, &task); err != nil {
			log.Error("unmarshal task payload: %v", err)
			continue
		}
		r.execute(ctx, task)
	}
}

// execute runs one task under its type's hard time limit, retrying on
// failure with exponential backoff up to RetryMaxAttempts. Ack only
// happens after success (late-ack); a task that exhausts retries is
// dropped with an error log rather than requeued forever.
func (r *Runner) execute(ctx context.Context, task Task) {
	lim := r.limitsFor(task.Type)
	deadline := time.Now().Add(lim.hard)
	if err := r.KV.MarkInFlight(ctx, task.ID, deadline); err != nil {
		log.Warn("mark in-flight %s: %v", task.ID, err)
	}
	if raw, err := json.Marshal(task); err == nil {
		if err := r.KV.CacheSet(ctx, inFlightPayloadKey(task.ID), raw, lim.hard+time.Minute); err != nil {
			log.Warn("cache in-flight payload %s: %v", task.ID, err)
		}
	}

	handler, ok := r.handlers[task.Type]
	if !ok {
		log.Error("no handler registered for task type %s", task.Type)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, lim.hard)
	defer cancel()

	start := time.Now()
	err := handler(runCtx, task)
	elapsed := time.Since(start)
	if elapsed > lim.soft {
		log.Warn("task %s (%s) exceeded soft time limit: %v", task.ID, task.Type, elapsed)
	}

	if err == nil {
		if ackErr := r.KV.Ack(ctx, task.ID); ackErr != nil {
			log.Error("ack %s: %v", task.ID, ackErr)
		}
		return
	}

	log.Error("task %s (%s) attempt %d failed: %v", task.ID, task.Type, task.Attempt+1, err)
	if task.Attempt+1 >= r.Cfg.RetryMaxAttempts {
		log.Error("task %s exhausted retries, dropping", task.ID)
		if ackErr := r.KV.Ack(ctx, task.ID); ackErr != nil {
			log.Error("ack exhausted task %s: %v", task.ID, ackErr)
		}
		return
	}

	task.Attempt++
	backoff := r.Cfg.RetryInitialBackoff << uint(task.Attempt-1)
	go r.requeueAfter(task, backoff)
}

func (r *Runner) requeueAfter(task Task, backoff time.Duration) {
	timer := time.NewTimer(backoff)
	<-timer.C
	ctx := context.Background()
	if err := r.Enqueue(ctx, kv.PriorityDefault, task); err != nil {
		log.Error("requeue task %s after backoff: %v", task.ID, err)
	}
	if err := r.KV.Ack(ctx, task.ID); err != nil {
		log.Error("ack stale in-flight entry for requeued task %s: %v", task.ID, err)
	}
}

// reaperLoop periodically requeues tasks whose in-flight deadline has
// passed without an ack — reject-on-worker-lost (spec.md §4.15).
func (r *Runner) reaperLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.reapExpired(ctx)
		}
	}
}

func inFlightPayloadKey(taskID string) string { return "taskrunner:inflight-payload:" + taskID }

func (r *Runner) reapExpired(ctx context.Context) {
	expired, err := r.KV.ExpiredInFlight(ctx, time.Now())
	if err != nil {
		log.Error("list expired in-flight tasks: %v", err)
		return
	}
	for _, id := range expired {
		log.Warn("worker lost for task %s; requeueing at high priority", id)
		if raw, found, err := r.KV.CacheGet(ctx, inFlightPayloadKey(id)); err == nil && found {
			var task Task
			if err := json.Unmarshal(raw, &task); err == nil {
				if err := r.Enqueue(ctx, kv.PriorityHigh, task); err != nil {
					log.Error("requeue lost task %s: %v", id, err)
				}
			}
		} else {
			log.Warn("no cached payload for lost task %s, dropping", id)
		}
		if err := r.KV.Ack(ctx, id); err != nil {
			log.Error("clear in-flight entry for lost task %s: %v", id, err)
		}
	}
}

// --- Simple fire-and-forget queue wrapper (spec.md §4.15's ---
// --- "supplementary queue" for lightweight tasks) ---

// PushSimple pushes a fire-and-forget task with no priority, retry, or
// late-ack guarantees.
func (r *Runner) PushSimple(ctx context.Context, queueName string, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("taskrunner: marshal simple task %s: %w", task.ID, err)
	}
	return r.KV.SimplePush(ctx, queueName, data)
}

// PopSimple pops and decodes one fire-and-forget task, if any.
func (r *Runner) PopSimple(ctx context.Context, queueName string) (Task, bool, error) {
	data, ok, err := r.KV.SimplePop(ctx, queueName)
	if err != nil || !ok {
		return Task{}, ok, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return Task{}, false, fmt.Errorf("taskrunner: unmarshal simple task: %w", err)
	}
	return task, true, nil
}
