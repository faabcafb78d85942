package worker_test

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/reacherhq/rch/internal/queue"
	"github.com/reacherhq/rch/internal/ratelimit"
	"github.com/reacherhq/rch/internal/store"
	"github.com/reacherhq/rch/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestProcess_InvalidSyntaxCompletesWithoutRetry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := store.New(db)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.New(rdb)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT tasks.id, tasks.job_id, tasks.address, tasks.attempts, tasks.smtp_port, jobs.config`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "address", "attempts", "smtp_port", "config"}).
			AddRow(int64(1), int64(7), "not-an-email", 0, nil, nil))
	mock.ExpectExec(`UPDATE tasks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO results`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE jobs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec(`UPDATE tasks SET done`).WillReturnResult(sqlmock.NewResult(0, 1))

	p := &worker.Pool{
		Queue:       q,
		Store:       s,
		RateLimiter: ratelimit.New(1000, 100, nil),
		MinConcurrency:  1,
		MaxConcurrency:  1,
		FromEmail:   "user@example.org",
		HelloName:   "gmail.com",
		SMTPPort:    25,
		SMTPTimeout: 2 * time.Second,
	}

	ref := queue.TaskRef{JobID: 7, TaskID: 1, Address: "not-an-email"}
	done := make(chan struct{})
	go func() {
		p.ProcessForTest(context.Background(), 0, ref)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not complete in time")
	}

	require.NoError(t, mock.ExpectationsWereMet())
}
