// Package queue layers a Redis-backed notification and retry-delay
// mechanism on top of internal/store's Postgres lease columns, so
// workers can block on "a task is ready" instead of polling the
// database in a tight loop, and so a task that needs to wait before
// its next attempt doesn't tie up a worker doing so.
//
// Postgres (via internal/store) remains the single source of truth
// for task state and leasing: this package never hands out a task
// that store.LeaseNextTask wouldn't also hand out. It is grounded on
// the teacher's main.go BRPOP consumer loop and its ZSET-based
// RetryMonitor, generalized from one hardcoded email-status queue to
// an opaque job/task reference plus a configurable retry delay.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	readyList  = "rch:tasks:ready"
	retrySet   = "rch:tasks:retry"
	dequeueWait = 5 * time.Second
)

// TaskRef is the ready-list entry for one enqueued address. TaskID is
// the address's 1-based position within its job, not the store's task
// id: a worker that dequeues a TaskRef leases whichever task
// store.LeaseNextTask returns next.
type TaskRef struct {
	JobID   int64  `json:"job_id"`
	TaskID  int64  `json:"task_id"`
	Address string `json:"address"`
}

// Queue wraps a Redis client with the doorbell/retry operations
// workers and the API layer need (spec §4.7 "task queue").
type Queue struct {
	rdb *redis.Client
}

// New wires a Queue to an already-configured Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Dial connects to Redis using the given address/credentials and
// verifies the connection with a PING (spec §6 REDIS_ADDR et al.),
// mirroring the teacher's startup check in main.go.
func Dial(ctx context.Context, addr, password string, db int) (*Queue, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("queue: connecting to redis: %w", err)
	}
	return New(rdb), nil
}

func (q *Queue) Close() error {
	return q.rdb.Close()
}

// Enqueue makes a task immediately available to the next worker that
// calls Dequeue.
func (q *Queue) Enqueue(ctx context.Context, ref TaskRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("queue: marshal task ref: %w", err)
	}
	return q.rdb.LPush(ctx, readyList, data).Err()
}

// ErrEmpty is returned by Dequeue when no task became ready before
// the wait window elapsed; callers should loop and try again.
var ErrEmpty = errors.New("queue: empty")

// Dequeue blocks up to its internal wait window for a ready task.
// Workers are expected to call this in a loop (spec §4.7 worker
// pool); a context cancellation unblocks it immediately.
func (q *Queue) Dequeue(ctx context.Context) (TaskRef, error) {
	result, err := q.rdb.BRPop(ctx, dequeueWait, readyList).Result()
	if errors.Is(err, redis.Nil) {
		return TaskRef{}, ErrEmpty
	}
	if err != nil {
		return TaskRef{}, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(result) < 2 {
		return TaskRef{}, fmt.Errorf("queue: dequeue: malformed BRPOP reply %v", result)
	}
	var ref TaskRef
	if err := json.Unmarshal([]byte(result[1]), &ref); err != nil {
		return TaskRef{}, fmt.Errorf("queue: unmarshal task ref: %w", err)
	}
	return ref, nil
}

// ScheduleRetry parks a task in the delayed-retry set, to be promoted
// back onto the ready list once delay has elapsed (spec §4.5/§4.7
// retry cycles for transient/greylist errors).
func (q *Queue) ScheduleRetry(ctx context.Context, ref TaskRef, delay time.Duration) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("queue: marshal task ref: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).Unix())
	return q.rdb.ZAdd(ctx, retrySet, redis.Z{Score: readyAt, Member: data}).Err()
}

// PromoteReadyRetries moves every retry-scheduled task whose delay has
// elapsed back onto the ready list, and returns how many were
// promoted. It generalizes the teacher's RetryMonitor goroutine; the
// caller is expected to run this on a ticker (spec §4.7).
func (q *Queue) PromoteReadyRetries(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	items, err := q.rdb.ZRangeByScore(ctx, retrySet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scanning retry set: %w", err)
	}

	promoted := 0
	for _, item := range items {
		removed, err := q.rdb.ZRem(ctx, retrySet, item).Result()
		if err != nil || removed == 0 {
			// Another promoter already claimed it; skip.
			continue
		}
		if err := q.rdb.LPush(ctx, readyList, item).Err(); err != nil {
			// Put it back so it isn't lost; it will be retried next tick.
			q.rdb.ZAdd(ctx, retrySet, redis.Z{Score: float64(now), Member: item})
			continue
		}
		promoted++
	}
	return promoted, nil
}

// NewLeaseToken generates an opaque, unguessable lease token for a
// worker to present to internal/store when leasing and completing a
// task (spec §3 "opaque token").
func NewLeaseToken() string {
	return uuid.NewString()
}
