// Package config loads runtime settings from environment variables,
// following the same MEMG_-prefixed (formerly NORNICDB_-prefixed)
// getEnv*-with-defaults style: no config files, no viper, just
// os.Getenv read once at startup into a typed Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the schema translator, the two stores, the
// retrieval pipeline, and the transports need at startup.
type Config struct {
	Schema    SchemaConfig
	Store     StoreConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	HTTP      HTTPConfig
}

// SchemaConfig locates the entity/relation registry file.
type SchemaConfig struct {
	// RegistryPath is the YAML file pkg/schema.Translator.Load reads.
	RegistryPath string
}

// StoreConfig controls the two backing stores.
type StoreConfig struct {
	// DataDir is the BadgerDB directory for the graph store.
	DataDir string
	// InMemory runs the graph store as an ephemeral in-memory Badger
	// instance instead of opening DataDir (useful for tests/demos).
	InMemory bool
	// SyncWrites forces an fsync on every Badger write.
	SyncWrites bool
	// VectorCollection is loaded from the environment but not read by the
	// store wiring: every memory type's points go into the fixed
	// indexer.VectorCollection collection.
	VectorCollection string
}

// EmbeddingConfig selects and sizes the embedder.
type EmbeddingConfig struct {
	// Provider is "stub" (deterministic, hash-based, for tests and
	// offline use), "ollama", or "openai" (HTTP-backed embedding
	// services).
	Provider string
	// Dimensions is the embedder's vector width. It is not compared with
	// the schema's vector.dim.
	Dimensions int
	// APIURL is the embedding service endpoint, used only when
	// Provider is "ollama" or "openai".
	APIURL string
	// APIKey authenticates against Provider "openai"; ignored by "stub"
	// and "ollama".
	APIKey string
	// Model names the embedding model to request from Provider "ollama"
	// or "openai".
	Model string
	// CacheSize bounds the LRU embedding cache embed.NewFromConfig wraps
	// the provider in (0 falls back to embed.NewCachedEmbedder's own
	// default).
	CacheSize int
}

// RetrievalConfig holds GraphRAG tuning values. They are loaded and
// validated here only; pkg/retrieval does not read them.
type RetrievalConfig struct {
	// NeighborDecay is a neighbor score multiplier; pkg/retrieval applies
	// its own retrieval.NeighborDecay constant instead.
	NeighborDecay float64
	// DefaultLimit is a default search limit; no search path applies it.
	DefaultLimit int
	// MaxLimit is a search limit cap; no search path applies it.
	MaxLimit int
}

// LoggingConfig holds log settings. They are loaded only; the binaries
// print status lines with fmt and no logger reads them.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string
	// Format is "json" or "console".
	Format string
}

// AuthConfig controls bearer-token authentication on the HTTP and MCP
// transports. Disabled by default for local/dev use.
type AuthConfig struct {
	Enabled bool
	// TokenHashes maps a user_id to its bcrypt-hashed bearer token,
	// loaded from MEMG_AUTH_TOKENS as "user:hash,user:hash".
	TokenHashes map[string]string
}

// HTTPConfig controls the HTTP transport.
type HTTPConfig struct {
	Address string
	Port    int
}

// LoadFromEnv reads all MEMG_-prefixed environment variables into a
// Config, applying defaults for anything unset.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Schema.RegistryPath = getEnv("MEMG_SCHEMA_REGISTRY", "./schema.yaml")

	cfg.Store.DataDir = getEnv("MEMG_STORE_DATA_DIR", "./data")
	cfg.Store.InMemory = getEnvBool("MEMG_STORE_IN_MEMORY", false)
	cfg.Store.SyncWrites = getEnvBool("MEMG_STORE_SYNC_WRITES", false)
	cfg.Store.VectorCollection = getEnv("MEMG_STORE_VECTOR_COLLECTION", "memories")

	cfg.Embedding.Provider = getEnv("MEMG_EMBEDDING_PROVIDER", "stub")
	cfg.Embedding.Dimensions = getEnvInt("MEMG_EMBEDDING_DIMENSIONS", 256)
	cfg.Embedding.APIURL = getEnv("MEMG_EMBEDDING_API_URL", "")
	cfg.Embedding.APIKey = getEnv("MEMG_EMBEDDING_API_KEY", "")
	cfg.Embedding.Model = getEnv("MEMG_EMBEDDING_MODEL", "")
	cfg.Embedding.CacheSize = getEnvInt("MEMG_EMBEDDING_CACHE_SIZE", 1024)

	cfg.Retrieval.NeighborDecay = getEnvFloat("MEMG_RETRIEVAL_NEIGHBOR_DECAY", 0.9)
	cfg.Retrieval.DefaultLimit = getEnvInt("MEMG_RETRIEVAL_DEFAULT_LIMIT", 20)
	cfg.Retrieval.MaxLimit = getEnvInt("MEMG_RETRIEVAL_MAX_LIMIT", 200)

	cfg.Logging.Level = getEnv("MEMG_LOG_LEVEL", "info")
	cfg.Logging.Format = getEnv("MEMG_LOG_FORMAT", "console")

	cfg.Auth.TokenHashes = getEnvTokenMap("MEMG_AUTH_TOKENS")
	cfg.Auth.Enabled = getEnvBool("MEMG_AUTH_ENABLED", len(cfg.Auth.TokenHashes) > 0)

	cfg.HTTP.Address = getEnv("MEMG_HTTP_ADDRESS", "0.0.0.0")
	cfg.HTTP.Port = getEnvInt("MEMG_HTTP_PORT", 8080)

	return cfg
}

// Validate checks the configuration for logical errors before startup
// proceeds.
func (c *Config) Validate() error {
	if c.Schema.RegistryPath == "" {
		return fmt.Errorf("schema registry path must be set")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", c.Embedding.Dimensions)
	}
	if c.Retrieval.NeighborDecay < 0 || c.Retrieval.NeighborDecay > 1 {
		return fmt.Errorf("neighbor decay must be in [0,1]: got %v", c.Retrieval.NeighborDecay)
	}
	if c.Retrieval.MaxLimit > 0 && c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("default limit %d exceeds max limit %d", c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	if c.HTTP.Port <= 0 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.Auth.Enabled && len(c.Auth.TokenHashes) == 0 {
		return fmt.Errorf("auth enabled but no tokens configured (MEMG_AUTH_TOKENS)")
	}
	return nil
}

// String renders a safe, loggable summary (no token hashes).
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{registry: %s, dataDir: %s, embedding: %s/%dd, http: %s:%d, auth: %v}",
		c.Schema.RegistryPath, c.Store.DataDir, c.Embedding.Provider, c.Embedding.Dimensions,
		c.HTTP.Address, c.HTTP.Port, c.Auth.Enabled,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

// getEnvTokenMap parses "user1:hash1,user2:hash2" into a map.
func getEnvTokenMap(key string) map[string]string {
	out := map[string]string{}
	val := os.Getenv(key)
	if val == "" {
		return out
	}
	for _, pair := range strings.Split(val, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}
