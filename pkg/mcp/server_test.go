package mcp_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore/badgerstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/mcp"
	"github.com/memg/memg-core/pkg/memory"
	"github.com/memg/memg-core/pkg/retrieval"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/vectorstore/memstore"
	"github.com/stretchr/testify/require"
)

const registryYAML = `
version: v1
id_policy: {kind: uuid, field: id}
defaults:
  vector: {metric: cosine, normalize: true, dim: 8}
  timestamps: {auto_create: true, auto_update: true}
entities:
  - name: note
    anchor: statement
    fields:
      statement: {type: string, required: true}
`

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(registryYAML), 0o644))
	tr := schema.New()
	require.NoError(t, tr.Load(path))

	graph, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })
	vecs := memstore.New()
	embedder := embed.NewStub(8)
	allocator := hrid.New(graph)
	ix := indexer.New(tr, allocator, embedder, vecs, graph)
	pipe := retrieval.New(tr, embedder, vecs, graph)
	svc := memory.New(tr, allocator, ix, pipe, graph)

	srv := mcp.NewServer(svc, nil)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return mux
}

func rpcCall(t *testing.T, mux *http.ServeMux, method string, params map[string]interface{}) map[string]interface{} {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set("X-User-Id", "u1")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestInitializeAndListTools(t *testing.T) {
	mux := newTestMux(t)

	initResp := rpcCall(t, mux, "initialize", nil)
	require.NotContains(t, initResp, "error")

	listResp := rpcCall(t, mux, "tools/list", nil)
	result, ok := listResp["result"].(map[string]interface{})
	require.True(t, ok)
	tools, ok := result["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, len(mcp.AllTools()))
}

func TestAddAndGetMemoryViaToolsCall(t *testing.T) {
	mux := newTestMux(t)

	addResp := rpcCall(t, mux, "tools/call", map[string]interface{}{
		"name": mcp.ToolAddMemory,
		"arguments": map[string]interface{}{
			"memory_type": "note",
			"payload":     map[string]interface{}{"statement": "buy milk"},
		},
	})
	result, ok := addResp["result"].(map[string]interface{})
	require.True(t, ok)
	require.False(t, result["isError"] == true)

	content, ok := result["content"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, content)
	text := content[0].(map[string]interface{})["text"].(string)
	var mem map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &mem))
	hridVal, ok := mem["HRID"].(string)
	require.True(t, ok)
	require.NotEmpty(t, hridVal)

	getResp := rpcCall(t, mux, "tools/call", map[string]interface{}{
		"name":      mcp.ToolGetMemory,
		"arguments": map[string]interface{}{"hrid": hridVal},
	})
	getResult := getResp["result"].(map[string]interface{})
	require.False(t, getResult["isError"] == true)
}

func TestCallingUnknownToolReturnsIsError(t *testing.T) {
	mux := newTestMux(t)

	resp := rpcCall(t, mux, "tools/call", map[string]interface{}{"name": "not_a_tool", "arguments": map[string]interface{}{}})
	result := resp["result"].(map[string]interface{})
	require.True(t, result["isError"].(bool))
}

func TestMissingUserHeaderRejected(t *testing.T) {
	mux := newTestMux(t)
	body, _ := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "initialize"})
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp, "error")
}
