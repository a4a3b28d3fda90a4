package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/memg/memg-core/pkg/auth"
	"github.com/memg/memg-core/pkg/memory"
)

// ToolHandler executes one MCP tool call against a memory.Service.
type ToolHandler func(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error)

// Server implements the MCP JSON-RPC protocol in front of a memory.Service.
type Server struct {
	svc  *memory.Service
	auth *auth.Authenticator

	maxRequestSize int64

	httpServer *http.Server
	mu         sync.RWMutex
	started    time.Time
	closed     bool

	handlers map[string]ToolHandler
}

// NewServer builds an MCP server fronting svc. authenticator may be nil
// to disable bearer-token checks (local/dev).
func NewServer(svc *memory.Service, authenticator *auth.Authenticator) *Server {
	s := &Server{
		svc:            svc,
		auth:           authenticator,
		maxRequestSize: 10 * 1024 * 1024,
		handlers:       make(map[string]ToolHandler),
	}
	s.registerHandlers()
	return s
}

func (s *Server) registerHandlers() {
	s.handlers[ToolAddMemory] = s.handleAddMemory
	s.handlers[ToolGetMemory] = s.handleGetMemory
	s.handlers[ToolUpdateMemory] = s.handleUpdateMemory
	s.handlers[ToolDeleteMemory] = s.handleDeleteMemory
	s.handlers[ToolListMemories] = s.handleListMemories
	s.handlers[ToolSearchMemories] = s.handleSearchMemories
	s.handlers[ToolRelateMemories] = s.handleRelateMemories
	s.handlers[ToolUnrelateMemories] = s.handleUnrelateMemories
	s.handlers[ToolSystemInfo] = s.handleSystemInfo
}

// RegisterRoutes mounts the MCP endpoints on an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.started = time.Now()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/mcp/health", s.handleHealth)
}

// Start runs the MCP server standalone on addr.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("server already closed")
	}
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.httpServer = &http.Server{Addr: addr, Handler: mux, ReadTimeout: 30 * time.Second, WriteTimeout: 60 * time.Second}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("mcp server error: %v\n", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).String(),
	})
}

// handleMCP is the single JSON-RPC endpoint: initialize, tools/list, tools/call.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	userID, authErr := s.authenticate(r)
	if authErr != nil {
		s.writeJSONRPCError(w, nil, -32001, "Unauthorized", authErr.Error())
		return
	}

	var req struct {
		JSONRPC string                 `json:"jsonrpc"`
		ID      interface{}            `json:"id"`
		Method  string                 `json:"method"`
		Params  map[string]interface{} `json:"params"`
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxRequestSize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Parse error", err.Error())
		return
	}

	var result interface{}
	switch req.Method {
	case "initialize":
		result = s.doInitialize()
	case "tools/list":
		result = ListToolsResponse{Tools: GetToolDefinitions()}
	case "tools/call":
		name, _ := req.Params["name"].(string)
		args, _ := req.Params["arguments"].(map[string]interface{})
		result = s.doCallTool(r.Context(), userID, name, args)
	default:
		s.writeJSONRPCError(w, req.ID, -32601, "Method not found", req.Method)
		return
	}
	s.writeJSONRPCResult(w, req.ID, result)
}

// authenticate reads X-User-Id and, if an Authenticator is configured,
// verifies the Authorization bearer token against it.
func (s *Server) authenticate(r *http.Request) (string, error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return "", fmt.Errorf("X-User-Id header required")
	}
	if s.auth == nil {
		return userID, nil
	}
	token, err := auth.ExtractBearer(r.Header.Get("Authorization"))
	if err != nil {
		return "", err
	}
	if err := s.auth.Verify(userID, token); err != nil {
		return "", err
	}
	return userID, nil
}

func (s *Server) doInitialize() InitResponse {
	return InitResponse{
		ProtocolVersion: "2024-11-05",
		Capabilities:    map[string]interface{}{"tools": map[string]interface{}{"listChanged": false}},
		ServerInfo:      ServerInfo{Name: "memg-core MCP server", Version: "1.0.0"},
	}
}

func (s *Server) doCallTool(ctx context.Context, userID, name string, args map[string]interface{}) CallToolResponse {
	handler, ok := s.handlers[name]
	if !ok {
		return errorContent(fmt.Errorf("unknown tool: %s", name))
	}
	result, err := handler(ctx, userID, args)
	if err != nil {
		return errorContent(err)
	}
	return jsonContent(result)
}

// --- tool handlers ---

func (s *Server) handleAddMemory(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	memType := getString(args, "memory_type")
	if memType == "" {
		return nil, fmt.Errorf("memory_type is required")
	}
	payload := getMap(args, "payload")
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}
	mem, err := s.svc.Add(ctx, userID, memory.AddRequest{
		MemoryType: memType, Payload: payload, Tags: getStringSlice(args, "tags"),
	})
	if err != nil {
		return nil, err
	}
	return mem, nil
}

func (s *Server) handleGetMemory(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	hrid := getString(args, "hrid")
	if hrid == "" {
		return nil, fmt.Errorf("hrid is required")
	}
	return s.svc.Get(ctx, userID, hrid)
}

func (s *Server) handleUpdateMemory(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	hrid := getString(args, "hrid")
	if hrid == "" {
		return nil, fmt.Errorf("hrid is required")
	}
	patch := getMap(args, "patch")
	return s.svc.Update(ctx, userID, hrid, patch)
}

func (s *Server) handleDeleteMemory(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	hrid := getString(args, "hrid")
	if hrid == "" {
		return nil, fmt.Errorf("hrid is required")
	}
	if err := s.svc.Delete(ctx, userID, hrid); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

func (s *Server) handleListMemories(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	req := memory.ListRequest{
		MemoType:           getString(args, "memory_type"),
		ModifiedWithinDays: getInt(args, "modified_within_days", 0),
		Limit:              getInt(args, "limit", 20),
		Offset:             getInt(args, "offset", 0),
	}
	return s.svc.List(ctx, userID, req)
}

func (s *Server) handleSearchMemories(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	req := memory.SearchRequest{
		Query:       getString(args, "query"),
		MemoType:    getString(args, "memory_type"),
		Limit:       getInt(args, "limit", 10),
		NeighborCap: getInt(args, "expand_neighbors", 0),
	}
	return s.svc.Search(ctx, userID, req)
}

func (s *Server) handleRelateMemories(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	source, target, predicate := getString(args, "source_hrid"), getString(args, "target_hrid"), getString(args, "predicate")
	if source == "" || target == "" || predicate == "" {
		return nil, fmt.Errorf("source_hrid, target_hrid, and predicate are required")
	}
	if err := s.svc.AddRelationship(ctx, userID, source, target, predicate, "", ""); err != nil {
		return nil, err
	}
	return map[string]bool{"related": true}, nil
}

func (s *Server) handleUnrelateMemories(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	source, target, predicate := getString(args, "source_hrid"), getString(args, "target_hrid"), getString(args, "predicate")
	if source == "" || target == "" || predicate == "" {
		return nil, fmt.Errorf("source_hrid, target_hrid, and predicate are required")
	}
	if err := s.svc.DeleteRelationship(ctx, userID, source, target, predicate, "", ""); err != nil {
		return nil, err
	}
	return map[string]bool{"unrelated": true}, nil
}

func (s *Server) handleSystemInfo(ctx context.Context, userID string, args map[string]interface{}) (interface{}, error) {
	return s.svc.SystemInfo(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id interface{}, result interface{}) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0", "id": id, "result": result,
	})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id interface{}, code int, message, data string) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0", "id": id,
		"error": map[string]interface{}{"code": code, "message": message, "data": data},
	})
}
