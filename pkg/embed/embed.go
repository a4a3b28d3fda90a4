// Package embed provides the Embedder collaborator interface used by
// pkg/indexer and pkg/retrieval, plus two HTTP-backed implementations
// (Ollama, OpenAI) and the deterministic StubEmbedder in stub.go. The
// embedding model is an external collaborator specified only by
// interface (text -> fixed-dimension vector); memg-core never trains
// or hosts one.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memg/memg-core/pkg/config"
)

// Embedder generates vector embeddings from text. Implementations
// must be safe for concurrent use from multiple goroutines.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// Config holds embedding provider configuration for the two
// HTTP-backed providers.
type Config struct {
	Provider   string // ollama, openai
	APIURL     string // e.g. http://localhost:11434
	APIPath    string // e.g. /api/embeddings or /v1/embeddings
	APIKey     string // OpenAI only
	Model      string // e.g. mxbai-embed-large
	Dimensions int    // expected vector width, for validation
	Timeout    time.Duration
}

// DefaultOllamaConfig targets a local Ollama instance running
// mxbai-embed-large (1024 dimensions).
func DefaultOllamaConfig() *Config {
	return &Config{
		Provider:   "ollama",
		APIURL:     "http://localhost:11434",
		APIPath:    "/api/embeddings",
		Model:      "mxbai-embed-large",
		Dimensions: 1024,
		Timeout:    30 * time.Second,
	}
}

// DefaultOpenAIConfig targets OpenAI's text-embedding-3-small (1536
// dimensions) with apiKey.
func DefaultOpenAIConfig(apiKey string) *Config {
	return &Config{
		Provider:   "openai",
		APIURL:     "https://api.openai.com",
		APIPath:    "/v1/embeddings",
		APIKey:     apiKey,
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings
// endpoint, one request per text.
type OllamaEmbedder struct {
	config *Config
	client *http.Client
}

// NewOllama builds an OllamaEmbedder. A nil config uses
// DefaultOllamaConfig.
func NewOllama(config *Config) *OllamaEmbedder {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	return &OllamaEmbedder{config: config, client: &http.Client{Timeout: config.Timeout}}
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := ollamaRequest{Model: e.config.Model, Prompt: text}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.APIURL + e.config.APIPath
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return ollamaResp.Embedding, nil
}

// EmbedBatch issues one Embed call per text: Ollama's HTTP API has no
// native batch endpoint.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = embedding
	}
	return results, nil
}

func (e *OllamaEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OllamaEmbedder) Model() string { return e.config.Model }

// OpenAIEmbedder calls OpenAI's /v1/embeddings endpoint, which
// batches natively.
type OpenAIEmbedder struct {
	config *Config
	client *http.Client
}

// NewOpenAI builds an OpenAIEmbedder. A nil config uses
// DefaultOpenAIConfig(""), which fails at request time without an
// API key.
func NewOpenAI(config *Config) *OpenAIEmbedder {
	if config == nil {
		config = DefaultOpenAIConfig("")
	}
	return &OpenAIEmbedder{config: config, client: &http.Client{Timeout: config.Timeout}}
}

type openaiRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed delegates to EmbedBatch with a single-element slice.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openaiRequest{Model: e.config.Model, Input: texts}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.APIURL + e.config.APIPath
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var openaiResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([][]float32, len(openaiResp.Data))
	for _, data := range openaiResp.Data {
		results[data.Index] = data.Embedding
	}
	return results, nil
}

func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

func (e *OpenAIEmbedder) Model() string { return e.config.Model }

// NewEmbedder builds an Embedder from config.Provider ("ollama" or
// "openai"). OpenAI requires config.APIKey.
func NewEmbedder(config *Config) (Embedder, error) {
	switch config.Provider {
	case "ollama":
		return NewOllama(config), nil
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI requires an API key")
		}
		return NewOpenAI(config), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", config.Provider)
	}
}

// NewFromConfig builds the embedder named by cfg.Provider and, for
// the two HTTP-backed providers, wraps it in a CachedEmbedder sized
// by cfg.CacheSize. Provider "" or "stub" returns a bare StubEmbedder
// (deterministic, uncached — there is nothing to cache).
func NewFromConfig(cfg config.EmbeddingConfig) (Embedder, error) {
	if cfg.Provider == "" || cfg.Provider == "stub" {
		return NewStub(cfg.Dimensions), nil
	}
	base, err := NewEmbedder(&Config{
		Provider:   cfg.Provider,
		APIURL:     defaultAPIURL(cfg.Provider, cfg.APIURL),
		APIPath:    defaultAPIPath(cfg.Provider),
		APIKey:     cfg.APIKey,
		Model:      defaultModel(cfg.Provider, cfg.Model),
		Dimensions: cfg.Dimensions,
		Timeout:    30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("building %s embedder: %w", cfg.Provider, err)
	}
	return NewCachedEmbedder(base, cfg.CacheSize), nil
}

func defaultAPIURL(provider, url string) string {
	if url != "" {
		return url
	}
	if provider == "openai" {
		return "https://api.openai.com"
	}
	return "http://localhost:11434"
}

func defaultAPIPath(provider string) string {
	if provider == "openai" {
		return "/v1/embeddings"
	}
	return "/api/embeddings"
}

func defaultModel(provider, model string) string {
	if model != "" {
		return model
	}
	if provider == "openai" {
		return "text-embedding-3-small"
	}
	return "mxbai-embed-large"
}
