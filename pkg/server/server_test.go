package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore/badgerstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/memory"
	"github.com/memg/memg-core/pkg/retrieval"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/server"
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

// newTestServer starts a Server bound to an OS-assigned port (":0") and
// returns its base URL, e.g. "http://127.0.0.1:54321".
func newTestServer(t *testing.T) string {
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

	cfg := server.DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Port = 0

	srv, err := server.New(svc, nil, cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	return "http://" + srv.Addr()
}

func TestHealthEndpoint(t *testing.T) {
	base := newTestServer(t)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddAndGetMemoryOverHTTP(t *testing.T) {
	base := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"MemoryType": "note",
		"Payload":    map[string]any{"statement": "remember milk"},
	})
	req, err := http.NewRequest(http.MethodPost, base+"/memories", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-User-Id", "u1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var mem memory.Memory
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&mem))
	require.NotEmpty(t, mem.HRID)

	getReq, err := http.NewRequest(http.MethodGet, base+"/memories/"+mem.HRID, nil)
	require.NoError(t, err)
	getReq.Header.Set("X-User-Id", "u1")
	getResp, err := http.DefaultClient.Do(getReq)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestMissingUserHeaderRejected(t *testing.T) {
	base := newTestServer(t)

	resp, err := http.Get(base + "/system-info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
