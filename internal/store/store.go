// Package store persists jobs, their tasks, and per-address results to
// Postgres with plain SQL (no ORM), following the teacher's main.go
// query style. The jobs/tasks/results table shape is grounded on
// original_source/src/routes/manage_job/{post,get}.rs's blk_vrfy_job
// schema, generalized to the task-queue model of spec §4.7/§4.8 (the
// original stores one row per job with running counters; this adds a
// tasks table so work can be leased and retried independently).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Status is a job's derived run state (spec §3 "Job status is
// derived, not stored" — never written to the database, only computed
// by GetJobStatus from total_processed vs total_records).
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Job is one bulk-verification job (spec §4.8 "Job").
type Job struct {
	ID              int64
	CreatedAt       time.Time
	TotalRecords    int
	TotalProcessed  int
	SummarySafe     int
	SummaryInvalid  int
	SummaryRisky    int
	SummaryUnknown  int
	Status          Status
}

// Task is one leasable unit of work within a job: a single address to
// verify (spec §4.7's queue item).
type Task struct {
	ID         int64
	JobID      int64
	Address    string
	LeaseToken string
	LeaseUntil *time.Time
	Attempts   int
	Done       bool
	// SMTPPort overrides the pool's default port for this task alone,
	// assigned round-robin from the bulk request's smtp_ports (spec §6
	// "smtp_ports":[25,587]). Nil means "use the caller's default".
	SMTPPort *int
	// Config carries the parent job's per-job overrides (spec §6 bulk
	// "proxy?, hello_name?, from_email?"), serialized JobConfig JSON.
	// Empty means the job was created with no overrides.
	Config []byte
}

// ProxyConfig is the store's wire shape for a SOCKS5 proxy override,
// kept independent of internal/smtpprobe so this package has no
// network-layer dependency; callers convert at the boundary.
type ProxyConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// JobConfig is the optional per-job overrides recorded at job creation
// time (spec §6 bulk body: "proxy?, hello_name?, from_email?"),
// consulted by workers in place of their pool-wide defaults.
type JobConfig struct {
	FromEmail string       `json:"from_email,omitempty"`
	HelloName string       `json:"hello_name,omitempty"`
	Proxy     *ProxyConfig `json:"proxy,omitempty"`
}

// Result is one completed verification outcome, stored as the raw
// JSON payload returned by the orchestrator (spec §6), so the store
// never needs to know the shape of a verification output.
type Result struct {
	JobID       int64
	Address     string
	IsReachable string
	Payload     []byte
}

var ErrNotFound = errors.New("store: not found")

// Store wraps a *sql.DB with the queries spec §4.7/§4.8 need.
type Store struct {
	db *sql.DB
}

// Open opens a Postgres connection pool, applies the configured
// max-connections limit (spec §6 RCH_DATABASE_MAX_CONNECTIONS), and
// applies Schema so a fresh database is ready to serve on first boot
// (spec §6 "schema migrations applied at startup").
func Open(databaseURL string, maxConns uint32) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(int(maxConns))
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, letting callers (and tests) wire
// their own connection, including a sqlmock-backed one.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job row with its addresses as pending tasks,
// both within one transaction so a job is never visible half-seeded
// (spec §4.8 "atomic job creation"). config is the optional serialized
// JobConfig (nil/empty for none); smtpPorts, if non-empty, is assigned
// round-robin across the enqueued tasks (spec §6 "smtp_ports":[25,587]).
func (s *Store) CreateJob(ctx context.Context, addresses []string, config []byte, smtpPorts []int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var jobID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO jobs (total_records, config)
		VALUES ($1, $2)
		RETURNING id
	`, len(addresses), nullableJSON(config)).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("store: insert job: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tasks (job_id, address, smtp_port)
		VALUES ($1, $2, $3)
	`)
	if err != nil {
		return 0, fmt.Errorf("store: prepare task insert: %w", err)
	}
	defer stmt.Close()

	for i, addr := range addresses {
		var port any
		if len(smtpPorts) > 0 {
			port = smtpPorts[i%len(smtpPorts)]
		}
		if _, err := stmt.ExecContext(ctx, jobID, addr, port); err != nil {
			return 0, fmt.Errorf("store: insert task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return jobID, nil
}

// nullableJSON turns an empty config slice into a SQL NULL instead of
// an empty byte string, so a job created without overrides stores a
// true NULL config column.
func nullableJSON(config []byte) any {
	if len(config) == 0 {
		return nil
	}
	return config
}

// LeaseNextTask atomically claims one undone, unleased (or
// lease-expired) task under leaseToken, locking the row with FOR UPDATE
// SKIP LOCKED so concurrent workers never double-claim the same task
// (spec §4.7 "at-least-once, no double-processing under normal
// operation"). It returns ErrNotFound when no task is available.
func (s *Store) LeaseNextTask(ctx context.Context, leaseToken string, leaseFor time.Duration) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var t Task
	var smtpPort sql.NullInt64
	var config []byte
	err = tx.QueryRowContext(ctx, `
		SELECT tasks.id, tasks.job_id, tasks.address, tasks.attempts, tasks.smtp_port, jobs.config
		FROM tasks
		JOIN jobs ON jobs.id = tasks.job_id
		WHERE tasks.done = false
		  AND (tasks.lease_until IS NULL OR tasks.lease_until < now())
		ORDER BY tasks.id
		LIMIT 1
		FOR UPDATE OF tasks SKIP LOCKED
	`).Scan(&t.ID, &t.JobID, &t.Address, &t.Attempts, &smtpPort, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("store: lease select: %w", err)
	}
	if smtpPort.Valid {
		port := int(smtpPort.Int64)
		t.SMTPPort = &port
	}
	t.Config = config

	leaseUntil := time.Now().Add(leaseFor)
	_, err = tx.ExecContext(ctx, `
		UPDATE tasks
		SET lease_token = $1, lease_until = $2, attempts = attempts + 1
		WHERE id = $3
	`, leaseToken, leaseUntil, t.ID)
	if err != nil {
		return Task{}, fmt.Errorf("store: lease update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("store: commit: %w", err)
	}

	t.LeaseToken = leaseToken
	t.LeaseUntil = &leaseUntil
	t.Attempts++
	return t, nil
}

// CompleteTask marks a leased task done, provided leaseToken still
// matches: a worker whose lease expired and was reclaimed by another
// worker loses the race here instead of silently double-writing a
// result (spec §4.7 "stale lease cannot complete its task").
func (s *Store) CompleteTask(ctx context.Context, taskID int64, leaseToken string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET done = true
		WHERE id = $1 AND lease_token = $2
	`, taskID, leaseToken)
	if err != nil {
		return fmt.Errorf("store: complete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: complete task %d: %w", taskID, ErrNotFound)
	}
	return nil
}

// InsertResult stores one verification outcome and bumps the parent
// job's processed/summary counters in the same transaction, so
// GetJobStatus never observes a result without its counter update
// (spec §4.8 "processed count is exact").
func (s *Store) InsertResult(ctx context.Context, r Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO results (job_id, address, is_reachable, payload)
		VALUES ($1, $2, $3, $4)
	`, r.JobID, r.Address, r.IsReachable, r.Payload); err != nil {
		return fmt.Errorf("store: insert result: %w", err)
	}

	column, ok := summaryColumn(r.IsReachable)
	if !ok {
		return fmt.Errorf("store: insert result: unknown is_reachable %q", r.IsReachable)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE jobs
		SET total_processed = total_processed + 1, %s = %s + 1
		WHERE id = $1
	`, column, column), r.JobID); err != nil {
		return fmt.Errorf("store: bump job counters: %w", err)
	}

	return tx.Commit()
}

func summaryColumn(isReachable string) (string, bool) {
	switch isReachable {
	case "safe":
		return "summary_total_safe", true
	case "invalid":
		return "summary_total_invalid", true
	case "risky":
		return "summary_total_risky", true
	case "unknown":
		return "summary_total_unknown", true
	default:
		return "", false
	}
}

// GetJobStatus returns the current counters for a job and derives its
// status from them (spec §3 "running while count(results) <
// total_records, otherwise completed"; §9 "the derived form ... has no
// write-skew window and no need for reconciliation after a crash").
func (s *Store) GetJobStatus(ctx context.Context, jobID int64) (Job, error) {
	var j Job
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, total_records, total_processed,
		       summary_total_safe, summary_total_invalid,
		       summary_total_risky, summary_total_unknown
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&j.ID, &j.CreatedAt, &j.TotalRecords, &j.TotalProcessed,
		&j.SummarySafe, &j.SummaryInvalid, &j.SummaryRisky, &j.SummaryUnknown,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("store: get job status: %w", err)
	}
	if j.TotalProcessed >= j.TotalRecords {
		j.Status = StatusCompleted
	} else {
		j.Status = StatusRunning
	}
	return j, nil
}

// ListResults returns every stored result for a job, in insertion
// order, for the JSON download endpoint (spec §4.9 "download").
// Results are not deduplicated on (job_id, address): spec §9 open
// question resolved in favor of simple append semantics.
func (s *Store) ListResults(ctx context.Context, jobID int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, address, is_reachable, payload
		FROM results
		WHERE job_id = $1
		ORDER BY id
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.JobID, &r.Address, &r.IsReachable, &r.Payload); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Schema is the DDL applied by Open at startup (spec §6 "schema
// migrations applied at startup"). Every statement is idempotent
// (CREATE TABLE IF NOT EXISTS), so re-running it against an
// already-migrated database is a no-op.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                    SERIAL PRIMARY KEY,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	total_records         INT NOT NULL,
	total_processed       INT NOT NULL DEFAULT 0,
	summary_total_safe    INT NOT NULL DEFAULT 0,
	summary_total_invalid INT NOT NULL DEFAULT 0,
	summary_total_risky   INT NOT NULL DEFAULT 0,
	summary_total_unknown INT NOT NULL DEFAULT 0,
	config                JSONB
);

CREATE TABLE IF NOT EXISTS tasks (
	id          SERIAL PRIMARY KEY,
	job_id      INT NOT NULL REFERENCES jobs(id),
	address     TEXT NOT NULL,
	lease_token TEXT,
	lease_until TIMESTAMPTZ,
	attempts    INT NOT NULL DEFAULT 0,
	done        BOOLEAN NOT NULL DEFAULT false,
	smtp_port   INT
);

CREATE TABLE IF NOT EXISTS results (
	id           SERIAL PRIMARY KEY,
	job_id       INT NOT NULL REFERENCES jobs(id),
	address      TEXT NOT NULL,
	is_reachable TEXT NOT NULL,
	payload      JSONB NOT NULL
);
`
