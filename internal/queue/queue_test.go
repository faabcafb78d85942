package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/reacherhq/rch/internal/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return queue.New(rdb)
}

func TestEnqueueDequeue(t *testing.T) {
	q := newTestQueue(t)
	ref := queue.TaskRef{JobID: 1, TaskID: 2, Address: "a@b.com"}

	require.NoError(t, q.Enqueue(context.Background(), ref))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestDequeue_EmptyTimesOut(t *testing.T) {
	q := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.Error(t, err)
}

func TestScheduleRetry_NotReadyYet(t *testing.T) {
	q := newTestQueue(t)
	ref := queue.TaskRef{JobID: 1, TaskID: 2, Address: "a@b.com"}
	require.NoError(t, q.ScheduleRetry(context.Background(), ref, time.Hour))

	n, err := q.PromoteReadyRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScheduleRetry_PromotesWhenDue(t *testing.T) {
	q := newTestQueue(t)
	ref := queue.TaskRef{JobID: 1, TaskID: 2, Address: "a@b.com"}
	require.NoError(t, q.ScheduleRetry(context.Background(), ref, -time.Second))

	n, err := q.PromoteReadyRetries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestNewLeaseToken_Unique(t *testing.T) {
	a := queue.NewLeaseToken()
	b := queue.NewLeaseToken()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}
