// Package api exposes the public HTTP surface (spec §4.10) on top of
// gorilla/mux, following the router/handler/middleware shape of
// forgedlabs-mail_sorter's verifier service (routes under a version
// prefix, a logging+auth middleware chain, graceful shutdown left to
// the caller in cmd/rch).
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/reacherhq/rch/internal/orchestrator"
	"github.com/reacherhq/rch/internal/proxyauth"
	"github.com/reacherhq/rch/internal/queue"
	"github.com/reacherhq/rch/internal/smtpprobe"
	"github.com/reacherhq/rch/internal/store"
)

// Version is reported by GET /version (spec §4.10 "liveness probe").
const Version = "0.1.0"

// Server wires the HTTP layer to the job store, task queue, and the
// proxyauth secret it must enforce on every request.
type Server struct {
	Store         *store.Store
	Queue         *queue.Queue
	Router        *mux.Router
	SaasifySecret string

	BulkEnabled     bool
	BulkMaxItems    int
	BulkMaxBodySize int64

	FromEmail   string
	HelloName   string
	SMTPPort    int
	SMTPTimeout time.Duration
	Proxy       *smtpprobe.ProxyConfig
}

// NewServer builds a Server with its routes and middleware installed.
func NewServer(s *Server) *Server {
	s.Router = mux.NewRouter()
	v0 := s.Router.PathPrefix("/v0").Subrouter()
	v0.HandleFunc("/check_email", s.handleCheckEmail).Methods(http.MethodPost)
	v0.HandleFunc("/bulk", s.handleCreateBulk).Methods(http.MethodPost)
	v0.HandleFunc("/bulk/{id}", s.handleBulkStatus).Methods(http.MethodGet)
	v0.HandleFunc("/bulk/{id}/download", s.handleBulkDownload).Methods(http.MethodGet)
	s.Router.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	s.Router.Use(loggingMiddleware)
	s.Router.Use(s.authMiddleware)
	return s
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// authMiddleware enforces the shared-secret header on every route
// except /version, which doubles as an unauthenticated liveness probe
// (spec §4.10). Missing header -> 400, wrong value -> 401 (spec §7
// "auth error" mapping).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get(proxyauth.Header)
		if got == "" {
			writeError(w, http.StatusBadRequest, "missing "+proxyauth.Header+" header")
			return
		}
		if !proxyauth.Check(got, s.SaasifySecret) {
			writeError(w, http.StatusUnauthorized, "invalid "+proxyauth.Header)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type proxyRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

func (p *proxyRequest) toProbeConfig() *smtpprobe.ProxyConfig {
	if p == nil {
		return nil
	}
	return &smtpprobe.ProxyConfig{Host: p.Host, Port: p.Port, Username: p.Username, Password: p.Password}
}

func (p *proxyRequest) toStoreConfig() *store.ProxyConfig {
	if p == nil {
		return nil
	}
	return &store.ProxyConfig{Host: p.Host, Port: p.Port, Username: p.Username, Password: p.Password}
}

type checkEmailRequest struct {
	ToEmail   string        `json:"to_email"`
	FromEmail *string       `json:"from_email,omitempty"`
	HelloName *string       `json:"hello_name,omitempty"`
	Proxy     *proxyRequest `json:"proxy,omitempty"`
	SMTPPort  *int          `json:"smtp_port,omitempty"`
}

func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ToEmail == "" {
		writeError(w, http.StatusBadRequest, "to_email is required")
		return
	}

	in := orchestrator.Input{
		ToEmail:     req.ToEmail,
		FromEmail:   s.FromEmail,
		HelloName:   s.HelloName,
		SMTPPort:    s.SMTPPort,
		SMTPTimeout: s.SMTPTimeout,
		Proxy:       s.Proxy,
	}
	if req.FromEmail != nil {
		in.FromEmail = *req.FromEmail
	}
	if req.HelloName != nil {
		in.HelloName = *req.HelloName
	}
	if req.SMTPPort != nil {
		in.SMTPPort = *req.SMTPPort
	}
	if req.Proxy != nil {
		in.Proxy = req.Proxy.toProbeConfig()
	}

	out := orchestrator.Run(r.Context(), in)
	writeJSON(w, http.StatusOK, out)
}

type createBulkRequest struct {
	InputType string        `json:"input_type"`
	Input     []string      `json:"input"`
	Proxy     *proxyRequest `json:"proxy,omitempty"`
	HelloName *string       `json:"hello_name,omitempty"`
	FromEmail *string       `json:"from_email,omitempty"`
	SMTPPorts []int         `json:"smtp_ports,omitempty"`
}

// jobConfig builds the per-job override blob for internal/store (spec
// §6 bulk body: "proxy?, hello_name?, from_email?"), or nil if the
// request named no overrides at all.
func (req createBulkRequest) jobConfig() ([]byte, error) {
	cfg := store.JobConfig{Proxy: req.Proxy.toStoreConfig()}
	if req.HelloName != nil {
		cfg.HelloName = *req.HelloName
	}
	if req.FromEmail != nil {
		cfg.FromEmail = *req.FromEmail
	}
	if cfg.Proxy == nil && cfg.HelloName == "" && cfg.FromEmail == "" {
		return nil, nil
	}
	return json.Marshal(cfg)
}

func (s *Server) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	if !s.BulkEnabled {
		writeError(w, http.StatusNotFound, "bulk verification is disabled")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.BulkMaxBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.BulkMaxBodySize {
		writeError(w, http.StatusBadRequest, "request body exceeds the configured size limit")
		return
	}

	var req createBulkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Input) == 0 {
		writeError(w, http.StatusBadRequest, "empty input")
		return
	}
	if len(req.Input) > s.BulkMaxItems {
		writeError(w, http.StatusBadRequest, "input exceeds the configured item limit")
		return
	}

	config, err := req.jobConfig()
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed proxy/hello_name/from_email overrides")
		return
	}

	jobID, err := s.Store.CreateJob(r.Context(), req.Input, config, req.SMTPPorts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	for i, addr := range req.Input {
		ref := queue.TaskRef{JobID: jobID, TaskID: int64(i) + 1, Address: addr}
		if err := s.Queue.Enqueue(r.Context(), ref); err != nil {
			log.Printf("api: enqueueing task for job %d: %v", jobID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]int64{"job_id": jobID})
}

func (s *Server) handleBulkStatus(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := s.Store.GetJobStatus(r.Context(), jobID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load job status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":          job.ID,
		"created_at":      job.CreatedAt,
		"total_records":   job.TotalRecords,
		"total_processed": job.TotalProcessed,
		"summary": map[string]int{
			"total_safe":    job.SummarySafe,
			"total_invalid": job.SummaryInvalid,
			"total_risky":   job.SummaryRisky,
			"total_unknown": job.SummaryUnknown,
		},
		"job_status": job.Status,
	})
}

func (s *Server) handleBulkDownload(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseJobID(w, r)
	if !ok {
		return
	}

	results, err := s.Store.ListResults(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}

	limit, offset := parseLimitOffset(r)
	if offset > len(results) {
		offset = len(results)
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	page := results[offset:end]

	outputs := make([]json.RawMessage, 0, len(page))
	for _, res := range page {
		outputs = append(outputs, json.RawMessage(res.Payload))
	}
	writeJSON(w, http.StatusOK, outputs)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": Version})
}

func parseJobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func parseLimitOffset(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		offset = v
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
