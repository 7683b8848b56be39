// Package api serves the local admin surface of a knowledge base client:
// health, metrics, the declared interactions, the event journal and
// operator-driven ASK and POST calls.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BlueBird-project/ke-client-go/pkg/bindings"
	"github.com/BlueBird-project/ke-client-go/pkg/client"
	kerrors "github.com/BlueBird-project/ke-client-go/pkg/errors"
	"github.com/BlueBird-project/ke-client-go/pkg/registry"
	"github.com/BlueBird-project/ke-client-go/pkg/store"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// DefaultAddr is used when NewServer gets an empty address.
const DefaultAddr = "127.0.0.1:8091"

// RuntimeInterface is the part of client.Runtime the server uses.
type RuntimeInterface interface {
	KnowledgeBaseID() string
	Connected() bool
	Running() bool
	Registry() *registry.Registry
	Register(ctx context.Context) error
	Interaction(kind registry.Kind, name string) (*registry.Interaction, error)
	Ask(ctx context.Context, ki *registry.Interaction, values any) (*client.AskResult, error)
	Post(ctx context.Context, ki *registry.Interaction, values any) (*client.PostResult, error)
}

// ElectionManagerInterface reports handle-loop ownership.
type ElectionManagerInterface interface {
	IsLeader() bool
	Epoch() int64
	HolderID() string
}

// Server encapsulates the HTTP admin server.
type Server struct {
	runtime  RuntimeInterface
	journal  store.Journal
	election ElectionManagerInterface
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates a server for rt. journal may be nil, in which case
// /v1/events answers 404.
func NewServer(rt RuntimeInterface, journal store.Journal, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		runtime: rt,
		journal: journal,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/interactions", s.handleInteractions)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/ask", s.handleAsk)
	mux.HandleFunc("/v1/post", s.handlePost)
	mux.HandleFunc("/v1/register", s.withLeaderCheck(s.handleRegister))

	// Middleware: Logging, Panic Recovery, Security Headers
	handler := s.withLogging(s.withRecovery(withSecureHeaders(mux)))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * client.DefaultPollDelay,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// SetElectionManager enables leader checks on write endpoints.
func (s *Server) SetElectionManager(em ElectionManagerInterface) {
	s.election = em
}

// Handler returns the wrapped mux, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	resp := HealthResponse{
		Status:          "ok",
		KnowledgeBaseID: s.runtime.KnowledgeBaseID(),
		Connected:       s.runtime.Connected(),
		Running:         s.runtime.Running(),
		Leader:          true,
	}
	if s.election != nil {
		resp.Leader = s.election.IsLeader()
		resp.Epoch = s.election.Epoch()
	}
	// A leader that lost the broker is degraded; followers are expected idle.
	if resp.Leader && !resp.Connected {
		resp.Status = "degraded"
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	kis := s.runtime.Registry().Interactions()
	views := make([]InteractionView, 0, len(kis))
	for _, ki := range kis {
		id := ki.ID()
		view := InteractionView{
			Name:       ki.Name,
			Type:       ki.Kind.Role(),
			ID:         id,
			Vars:       ki.Vars(),
			Registered: id != "",
		}
		if ki.Pattern.HasResultPattern() {
			view.ResultVars = ki.ResultVars()
		}
		views = append(views, view)
	}
	s.writeJSON(w, r, http.StatusOK, views)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal_disabled", "")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	events, err := s.journal.ReadRecentEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read events", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_server_error", "")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	s.writeJSON(w, r, http.StatusOK, events)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.handleExchange(w, r, registry.KindAsk)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	s.handleExchange(w, r, registry.KindPost)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request, kind registry.Kind) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err.Error())
		return
	}
	if req.Interaction == "" {
		writeError(w, http.StatusBadRequest, "missing_interaction", "")
		return
	}

	ki, err := s.runtime.Interaction(kind, req.Interaction)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var values any
	if req.Bindings != nil {
		values = req.Bindings
	}

	resp := ExchangeResponse{Interaction: ki.Name}
	switch kind {
	case registry.KindAsk:
		res, err := s.runtime.Ask(r.Context(), ki, values)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		resp.Bindings, resp.Exchanges = res.BindingSet, len(res.ExchangeInfo)
	default:
		res, err := s.runtime.Post(r.Context(), ki, values)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		resp.Bindings, resp.Exchanges = res.ResultBindingSet, len(res.ExchangeInfo)
	}
	if resp.Bindings == nil {
		resp.Bindings = bindings.Set{}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	if err := s.runtime.Register(r.Context()); err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"connected": s.runtime.Connected()})
}

// statusFor maps an error class to the reply status.
func statusFor(err error) (int, string) {
	class, ok := kerrors.ClassOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal_server_error"
	}
	switch class {
	case kerrors.ClassConfig:
		return http.StatusNotFound, "unknown_interaction"
	case kerrors.ClassContract:
		return http.StatusBadRequest, "invalid_bindings"
	case kerrors.ClassBroker:
		return http.StatusBadGateway, "broker_error"
	case kerrors.ClassTransport, kerrors.ClassDrift:
		return http.StatusServiceUnavailable, "broker_unavailable"
	}
	return http.StatusInternalServerError, "internal_server_error"
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "trace_id", getTraceID(r.Context()), "path", r.URL.Path, "error", err)
	}
	writeError(w, status, code, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Reason: reason})
}

// Middleware: Panic Recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "internal_server_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: Request Logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		r = r.WithContext(context.WithValue(r.Context(), traceIDKey, traceID))

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures HTTP status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware: Secure Headers
func withSecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// Middleware: Leader Check. Only the instance owning the handle loop may
// change broker registration.
func (s *Server) withLeaderCheck(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.election == nil || r.Method == http.MethodGet || s.election.IsLeader() {
			next(w, r)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "not_leader", "this instance does not own the handle loop")
	}
}
