// Command rch runs the email-reachability verification service: an
// HTTP API for single and bulk checks backed by a Postgres job store,
// a Redis task queue, and a worker pool. Startup sequencing (load
// config, connect to Redis, connect to Postgres, start workers, serve
// HTTP, wait for a shutdown signal) follows the teacher's main.go.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reacherhq/rch/internal/api"
	"github.com/reacherhq/rch/internal/config"
	"github.com/reacherhq/rch/internal/queue"
	"github.com/reacherhq/rch/internal/ratelimit"
	"github.com/reacherhq/rch/internal/smtpprobe"
	"github.com/reacherhq/rch/internal/store"
	"github.com/reacherhq/rch/internal/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("RCH_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("rch: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("rch: connecting to redis: %v", err)
	}
	defer q.Close()
	log.Println("connected to redis")

	st, err := store.Open(cfg.DatabaseURL, cfg.DatabaseMaxConnections)
	if err != nil {
		log.Fatalf("rch: connecting to postgres: %v", err)
	}
	defer st.Close()
	log.Println("connected to postgres")

	var proxy *smtpprobe.ProxyConfig
	if cfg.ProxyHost != "" {
		proxy = &smtpprobe.ProxyConfig{Host: cfg.ProxyHost, Port: cfg.ProxyPort}
		log.Printf("socks5 proxy configured: %s:%d", cfg.ProxyHost, cfg.ProxyPort)
	}

	pool := &worker.Pool{
		Queue:           q,
		Store:           st,
		RateLimiter:     ratelimit.NewDefault(),
		MinConcurrency:  cfg.MinTaskConcurrency,
		MaxConcurrency:  cfg.MaxFetchConcurrency,
		FromEmail:       cfg.FromEmail,
		HelloName:       "gmail.com",
		SMTPPort:        25,
		SMTPTimeout:     10 * time.Second,
		Proxy:           proxy,
	}
	go pool.Run(ctx)
	log.Printf("worker pool started (min=%d max=%d)", cfg.MinTaskConcurrency, cfg.MaxFetchConcurrency)

	srv := api.NewServer(&api.Server{
		Store:           st,
		Queue:           q,
		SaasifySecret:   cfg.SaasifySecret,
		BulkEnabled:     cfg.BulkEnabled,
		BulkMaxItems:    cfg.BulkMaxItems,
		BulkMaxBodySize: cfg.BulkMaxBodySize,
		FromEmail:       cfg.FromEmail,
		HelloName:       "gmail.com",
		SMTPPort:        25,
		SMTPTimeout:     10 * time.Second,
		Proxy:           proxy,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort),
		Handler:      srv.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("rch listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("rch: http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("rch: graceful shutdown failed: %v", err)
	}
}
