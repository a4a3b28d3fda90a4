// Package server provides an HTTP REST API in front of pkg/memory.Service:
// add/get/update/delete/list/search/relationships/system-info, each a
// thin JSON adapter over the façade.
//
// Built on net/http.Server + http.ServeMux + graceful
// Start/Stop/Stats shape (pkg/server/server.go's Server type), stripped
// of the Neo4j Bolt-discovery/transaction-endpoint surface that doesn't
// apply to this domain.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/memg/memg-core/pkg/auth"
	"github.com/memg/memg-core/pkg/memerr"
	"github.com/memg/memg-core/pkg/memory"
)

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns sensible timeout defaults, re-homed on this
// service's default port.
func DefaultConfig() *Config {
	return &Config{
		Address:      "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server fronts a memory.Service with an HTTP API. Bearer-token
// authentication is applied to every route except /health when an
// Authenticator is supplied.
type Server struct {
	config *Config
	svc    *memory.Service
	auth   *auth.Authenticator

	httpServer *http.Server
	listener   net.Listener
	started    time.Time
	closed     atomic.Bool

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// New builds a Server. authenticator may be nil to disable auth (local/dev).
func New(svc *memory.Service, authenticator *auth.Authenticator, config *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("memory service required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Server{config: config, svc: svc, auth: authenticator}, nil
}

// Start begins listening for HTTP connections in the background.
func (s *Server) Start() error {
	if s.closed.Load() {
		return fmt.Errorf("server closed")
	}
	addr := fmt.Sprintf("%s:%d", s.config.Address, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = time.Now()

	s.httpServer = &http.Server{
		Handler:      s.buildRouter(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("http server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats reports basic request counters.
type Stats struct {
	Uptime       time.Duration `json:"uptime"`
	RequestCount int64         `json:"request_count"`
	ErrorCount   int64         `json:"error_count"`
}

// Stats returns current server counters.
func (s *Server) Stats() Stats {
	return Stats{
		Uptime:       time.Since(s.started),
		RequestCount: s.requestCount.Load(),
		ErrorCount:   s.errorCount.Load(),
	}
}

func (s *Server) buildRouter() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/system-info", s.withAuth(s.handleSystemInfo))
	mux.HandleFunc("/memories", s.withAuth(s.handleMemoriesCollection))
	mux.HandleFunc("/memories/", s.withAuth(s.handleMemoryItem))
	mux.HandleFunc("/search", s.withAuth(s.handleSearch))
	mux.HandleFunc("/relationships", s.withAuth(s.handleRelationships))
	return s.countRequests(mux)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestCount.Add(1)
		next.ServeHTTP(w, r)
	})
}

// withAuth extracts a bearer token and a X-User-Id header, verifying the
// token against that user when an Authenticator is configured; with no
// Authenticator, the handler trusts X-User-Id as-is (local/dev mode).
func (s *Server) withAuth(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("X-User-Id header required"))
			return
		}
		if s.auth != nil {
			token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
			if err != nil {
				s.writeError(w, http.StatusUnauthorized, err)
				return
			}
			if err := s.auth.Verify(userID, token); err != nil {
				s.writeError(w, http.StatusUnauthorized, err)
				return
			}
		}
		next(w, r, userID)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request, userID string) {
	info, err := s.svc.SystemInfo(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMemoriesCollection(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodPost:
		var req memory.AddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		mem, err := s.svc.Add(r.Context(), userID, req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, mem)
	case http.MethodGet:
		req := memory.ListRequest{
			MemoType: r.URL.Query().Get("memo_type"),
			Limit:    queryInt(r, "limit", 20),
			Offset:   queryInt(r, "offset", 0),
		}
		mems, err := s.svc.List(r.Context(), userID, req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mems)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleMemoryItem(w http.ResponseWriter, r *http.Request, userID string) {
	hrid := strings.TrimPrefix(r.URL.Path, "/memories/")
	if hrid == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("hrid required"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		mem, err := s.svc.Get(r.Context(), userID, hrid)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mem)
	case http.MethodPatch, http.MethodPut:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		mem, err := s.svc.Update(r.Context(), userID, hrid, patch)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, mem)
	case http.MethodDelete:
		if err := s.svc.Delete(r.Context(), userID, hrid); err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req memory.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	results, err := s.svc.Search(r.Context(), userID, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

type relationshipRequest struct {
	SourceHRID string `json:"source_hrid"`
	TargetHRID string `json:"target_hrid"`
	Predicate  string `json:"predicate"`
	SourceType string `json:"source_type"`
	TargetType string `json:"target_type"`
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request, userID string) {
	var req relationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	switch r.Method {
	case http.MethodPost:
		err := s.svc.AddRelationship(r.Context(), userID, req.SourceHRID, req.TargetHRID, req.Predicate, req.SourceType, req.TargetType)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		err := s.svc.DeleteRelationship(r.Context(), userID, req.SourceHRID, req.TargetHRID, req.Predicate, req.SourceType, req.TargetType)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.errorCount.Add(1)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps a memerr.Kind onto an HTTP status code.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var merr *memerr.Error
	if errors.As(err, &merr) {
		switch merr.Kind {
		case memerr.KindNotFound:
			s.writeError(w, http.StatusNotFound, err)
		case memerr.KindInvalidInput, memerr.KindValidation:
			s.writeError(w, http.StatusBadRequest, err)
		case memerr.KindResourceExhausted:
			s.writeError(w, http.StatusTooManyRequests, err)
		default:
			s.writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
