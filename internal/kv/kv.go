// Package kv wraps Redis primitives used across the platform: the task
// runner's priority queues, the session cache, a generic hashed-key
// cache, and a simple fire-and-forget queue. Grounded on
// evalgo-org-eve's queue/redis/queue.go (client-per-store,
// RPush/BLPop, key-prefix convention); every call here takes its
// context from the caller instead of storing one on the struct.
package kv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a single Redis client shared by every kv primitive below.
type Store struct {
	client *redis.Client
}

// Open parses addr as a redis:// URL and verifies connectivity.
func Open(ctx context.Context, addr string) (*Store, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("kv: connect to %s: %w", addr, err)
	}
	return &Store{client: client}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.client.Close() }

// --- Priority queues (spec.md §6.3, consumed by internal/taskrunner) ---

// Priority is the closed set of task-runner queue names.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

func priorityQueueKey(p Priority) string {
	return "taskrunner:queue:" + string(p)
}

// Enqueue pushes a task payload onto the named priority queue.
func (s *Store) Enqueue(ctx context.Context, priority Priority, payload []byte) error {
	if err := s.client.LPush(ctx, priorityQueueKey(priority), payload).Err(); err != nil {
		return fmt.Errorf("kv: enqueue to %s: %w", priority, err)
	}
	return nil
}

// Dequeue blocks up to timeout for a task on any of queues, in the
// given priority order (the task runner lists high before default
// before low so BRPOP drains higher priorities first).
func (s *Store) Dequeue(ctx context.Context, queues []Priority, timeout time.Duration) (Priority, []byte, error) {
	result, err := s.client.BRPop(ctx, timeout, keysOnly(queues)...).Result()
	if err == redis.Nil {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("kv: dequeue: %w", err)
	}
	if len(result) < 2 {
		return "", nil, nil
	}
	return priorityFromKey(result[0]), []byte(result[1]), nil
}

func keysOnly(queues []Priority) []string {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = priorityQueueKey(q)
	}
	return keys
}

func priorityFromKey(key string) Priority {
	const prefix = "taskrunner:queue:"
	if len(key) > len(prefix) {
		return Priority(key[len(prefix):])
	}
	return ""
}

// QueueDepth reports how many tasks are pending in priority's queue.
func (s *Store) QueueDepth(ctx context.Context, priority Priority) (int64, error) {
	n, err := s.client.LLen(ctx, priorityQueueKey(priority)).Result()
	if err != nil {
		return 0, fmt.Errorf("kv: queue depth %s: %w", priority, err)
	}
	return n, nil
}

// --- Late-ack in-flight tracking (spec.md §6.3, taskrunner) ---

const inFlightKey = "taskrunner:inflight"

// MarkInFlight records a task as claimed, with a deadline used to
// detect a lost worker (spec.md §4.15's reject-on-worker-lost rule).
func (s *Store) MarkInFlight(ctx context.Context, taskID string, deadline time.Time) error {
	if err := s.client.ZAdd(ctx, inFlightKey, redis.Z{Score: float64(deadline.Unix()), Member: taskID}).Err(); err != nil {
		return fmt.Errorf("kv: mark in-flight %s: %w", taskID, err)
	}
	return nil
}

// Ack removes a task from the in-flight set on successful completion.
func (s *Store) Ack(ctx context.Context, taskID string) error {
	if err := s.client.ZRem(ctx, inFlightKey, taskID).Err(); err != nil {
		return fmt.Errorf("kv: ack %s: %w", taskID, err)
	}
	return nil
}

// ExpiredInFlight returns task IDs whose deadline is at or before asOf —
// candidates for reject-on-worker-lost requeue.
func (s *Store) ExpiredInFlight(ctx context.Context, asOf time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, inFlightKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", asOf.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("kv: expired in-flight: %w", err)
	}
	return ids, nil
}

// --- Session cache (spec.md §6.3) ---

func sessionKey(id string) string { return "session:" + id }

// PutSession stores a JSON-encoded session value with a TTL.
func (s *Store) PutSession(ctx context.Context, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: marshal session %s: %w", id, err)
	}
	if err := s.client.Set(ctx, sessionKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("kv: put session %s: %w", id, err)
	}
	return nil
}

// GetSession loads and unmarshals a session value. found is false on a
// cache miss (not an error).
func (s *Store) GetSession(ctx context.Context, id string, dest any) (found bool, err error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("kv: get session %s: %w", id, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("kv: unmarshal session %s: %w", id, err)
	}
	return true, nil
}

// --- Generic hashed-argument cache (spec.md §6.3) ---

// CacheKey hashes namespace + args into a stable Redis key, used for
// caching expensive derived values (e.g. an LLM embedding) keyed by
// their inputs rather than a hand-assembled string.
func CacheKey(namespace string, args ...string) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, a := range args {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return "cache:" + namespace + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}

// CacheSet stores raw bytes under key with a TTL (0 means no expiry).
func (s *Store) CacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv: cache set %s: %w", key, err)
	}
	return nil
}

// CacheGet reads raw bytes for key. found is false on a cache miss.
func (s *Store) CacheGet(ctx context.Context, key string) (value []byte, found bool, err error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: cache get %s: %w", key, err)
	}
	return data, true, nil
}

// --- Simple fire-and-forget queue (spec.md §6.3, distinct from the ---
// --- priority task runner: no late-ack, no priority ordering) ---

// SimplePush appends payload to a plain FIFO queue.
func (s *Store) SimplePush(ctx context.Context, queueName string, payload []byte) error {
	if err := s.client.RPush(ctx, "queue:"+queueName, payload).Err(); err != nil {
		return fmt.Errorf("kv: simple push %s: %w", queueName, err)
	}
	return nil
}

// SimplePop removes and returns the oldest payload, or (nil, false) if
// the queue is empty.
func (s *Store) SimplePop(ctx context.Context, queueName string) ([]byte, bool, error) {
	data, err := s.client.LPop(ctx, "queue:"+queueName).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: simple pop %s: %w", queueName, err)
	}
	return data, true, nil
}

// SimpleBlockingPop blocks up to timeout for a payload.
func (s *Store) SimpleBlockingPop(ctx context.Context, queueName string, timeout time.Duration) ([]byte, bool, error) {
	result, err := s.client.BLPop(ctx, timeout, "queue:"+queueName).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: simple blocking pop %s: %w", queueName, err)
	}
	if len(result) < 2 {
		return nil, false, nil
	}
	return []byte(result[1]), true, nil
}

// --- Taxonomy invalidation pub/sub (spec.md §6.3; internal/taxonomy does not subscribe) ---

const taxonomyInvalidationChannel = "taxonomy:invalidate"

// PublishTaxonomyInvalidation notifies other processes that the tag
// taxonomy file changed on disk.
func (s *Store) PublishTaxonomyInvalidation(ctx context.Context) error {
	if err := s.client.Publish(ctx, taxonomyInvalidationChannel, "invalidate").Err(); err != nil {
		return fmt.Errorf("kv: publish taxonomy invalidation: %w", err)
	}
	return nil
}

// SubscribeTaxonomyInvalidation returns a channel that receives a
// message each time another process invalidates the taxonomy cache.
func (s *Store) SubscribeTaxonomyInvalidation(ctx context.Context) <-chan *redis.Message {
	return s.client.Subscribe(ctx, taxonomyInvalidationChannel).Channel()
}
