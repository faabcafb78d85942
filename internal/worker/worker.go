// Package worker runs the bounded-concurrency pool that drains
// internal/queue, invokes internal/orchestrator for each address, and
// persists outcomes through internal/store, respecting
// internal/ratelimit along the way. It is adapted from the teacher's
// main.go worker pool (one BRPOP consumer loop feeding N goroutines)
// generalized from a single hardcoded job shape to the lease-based
// task model of spec §4.7.
package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/reacherhq/rch/internal/orchestrator"
	"github.com/reacherhq/rch/internal/queue"
	"github.com/reacherhq/rch/internal/ratelimit"
	"github.com/reacherhq/rch/internal/smtpprobe"
	"github.com/reacherhq/rch/internal/store"
)

// greylistRetryDelay mirrors the teacher's 15-minute retryDelay
// constant for transient/greylisted addresses (spec §4.7).
const greylistRetryDelay = 15 * time.Minute

// Pool runs a fixed number of worker goroutines, the larger of
// MinConcurrency and MaxConcurrency (at least one), that pull tasks
// from Queue, verify them, and write results to Store
// (spec §6 RCH_MINIMUM_TASK_CONCURRENCY / RCH_MAXIMUM_CONCURRENT_TASK_FETCH).
type Pool struct {
	Queue       *queue.Queue
	Store       *store.Store
	RateLimiter *ratelimit.Manager

	MinConcurrency  int
	MaxConcurrency  int

	// FromEmail/HelloName/SMTPPort/SMTPTimeout seed each orchestrator.Input.
	FromEmail   string
	HelloName   string
	SMTPPort    int
	SMTPTimeout time.Duration

	// Proxy, if set, is raced against the direct connection for every
	// probe (spec §4.4 "SOCKS5 proxy leg").
	Proxy *smtpprobe.ProxyConfig
}

// Run starts the pool and blocks until ctx is cancelled, at which
// point all worker goroutines drain and Run returns. It also starts
// the retry-promotion ticker, generalizing the teacher's RetryMonitor
// goroutine.
func (p *Pool) Run(ctx context.Context) {
	n := p.MaxConcurrency
	if n < p.MinConcurrency {
		n = p.MinConcurrency
	}
	if n <= 0 {
		n = 1
	}

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func(id int) {
			p.runOne(ctx, id)
			done <- struct{}{}
		}(i)
	}

	go p.retryPromoter(ctx)

	for i := 0; i < n; i++ {
		<-done
	}
}

func (p *Pool) retryPromoter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n, err := p.Queue.PromoteReadyRetries(ctx); err != nil {
				log.Printf("worker: promoting retries: %v", err)
			} else if n > 0 {
				log.Printf("worker: promoted %d task(s) from retry queue", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) runOne(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ref, err := p.Queue.Dequeue(ctx)
		if err != nil {
			continue
		}

		p.process(ctx, id, ref)
	}
}

// ProcessForTest exposes process for package worker_test, which needs
// to drive a single task through the pipeline without running the
// full Dequeue loop.
func (p *Pool) ProcessForTest(ctx context.Context, workerID int, ref queue.TaskRef) {
	p.process(ctx, workerID, ref)
}

func (p *Pool) process(ctx context.Context, workerID int, ref queue.TaskRef) {
	if err := p.RateLimiter.Wait(ctx, domainOf(ref.Address)); err != nil {
		return
	}

	leaseToken := queue.NewLeaseToken()
	task, err := p.Store.LeaseNextTask(ctx, leaseToken, 60*time.Second)
	if err != nil {
		// No task is leasable: every task is done or held under a live
		// lease by another worker.
		return
	}

	in := orchestrator.Input{
		ToEmail:     task.Address,
		FromEmail:   p.FromEmail,
		HelloName:   p.HelloName,
		SMTPPort:    p.SMTPPort,
		SMTPTimeout: p.SMTPTimeout,
		Proxy:       p.Proxy,
	}
	applyJobOverrides(&in, task)

	out := orchestrator.Run(ctx, in)

	if out.IsReachable == orchestrator.Unknown && task.Attempts < 3 {
		if err := p.Queue.ScheduleRetry(ctx, ref, greylistRetryDelay); err != nil {
			log.Printf("worker[%d]: scheduling retry for %s: %v", workerID, task.Address, err)
		}
		return
	}

	payload, err := json.Marshal(out)
	if err != nil {
		log.Printf("worker[%d]: marshaling result for %s: %v", workerID, task.Address, err)
		return
	}

	if err := p.Store.InsertResult(ctx, store.Result{
		JobID:       task.JobID,
		Address:     task.Address,
		IsReachable: string(out.IsReachable),
		Payload:     payload,
	}); err != nil {
		log.Printf("worker[%d]: inserting result for %s: %v", workerID, task.Address, err)
		return
	}

	if err := p.Store.CompleteTask(ctx, task.ID, leaseToken); err != nil {
		log.Printf("worker[%d]: completing task %d: %v", workerID, task.ID, err)
	}
}

// applyJobOverrides layers a task's per-job config (spec §6 bulk's
// optional "proxy", "hello_name", "from_email", "smtp_ports") on top of
// the pool's defaults. A job created without overrides leaves in
// untouched.
func applyJobOverrides(in *orchestrator.Input, task store.Task) {
	if task.SMTPPort != nil {
		in.SMTPPort = *task.SMTPPort
	}
	if len(task.Config) == 0 {
		return
	}
	var cfg store.JobConfig
	if err := json.Unmarshal(task.Config, &cfg); err != nil {
		log.Printf("worker: ignoring malformed job config for task %d: %v", task.ID, err)
		return
	}
	if cfg.FromEmail != "" {
		in.FromEmail = cfg.FromEmail
	}
	if cfg.HelloName != "" {
		in.HelloName = cfg.HelloName
	}
	if cfg.Proxy != nil {
		in.Proxy = &smtpprobe.ProxyConfig{
			Host:     cfg.Proxy.Host,
			Port:     cfg.Proxy.Port,
			Username: cfg.Proxy.Username,
			Password: cfg.Proxy.Password,
		}
	}
}

func domainOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			return address[i+1:]
		}
	}
	return address
}
