// Package main provides the memgctl CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memg/memg-core/pkg/auth"
	"github.com/memg/memg-core/pkg/config"
	"github.com/memg/memg-core/pkg/embed"
	"github.com/memg/memg-core/pkg/graphstore/badgerstore"
	"github.com/memg/memg-core/pkg/hrid"
	"github.com/memg/memg-core/pkg/indexer"
	"github.com/memg/memg-core/pkg/mcp"
	"github.com/memg/memg-core/pkg/memory"
	"github.com/memg/memg-core/pkg/retrieval"
	"github.com/memg/memg-core/pkg/schema"
	"github.com/memg/memg-core/pkg/server"
	"github.com/memg/memg-core/pkg/vectorstore/memstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "memgctl",
		Short: "memg-core - schema-driven dual-store memory engine for AI agents",
		Long: `memgctl opens a memg-core memory store (a schema registry plus a
vector store and a property graph store kept consistent under a single
writer) and either serves it over HTTP/MCP or runs one-shot operations
against it directly from the command line.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("memgctl v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newRelateCmd())
	rootCmd.AddCommand(newUnrelateCmd())
	rootCmd.AddCommand(newSystemInfoCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newInitCmd scaffolds a data directory and a starter schema registry,
// mirroring cmd/nornicdb's "init" shape but with no Bolt/Cypher concerns.
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a data directory and starter schema registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			registryPath, _ := cmd.Flags().GetString("schema")

			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
			if _, err := os.Stat(registryPath); err == nil {
				fmt.Printf("schema registry already exists at %s, leaving it in place\n", registryPath)
				return nil
			}
			if err := os.WriteFile(registryPath, []byte(starterRegistryYAML), 0o644); err != nil {
				return fmt.Errorf("writing starter schema: %w", err)
			}
			fmt.Printf("initialized data directory %s and schema registry %s\n", dataDir, registryPath)
			return nil
		},
	}
	cmd.Flags().String("data-dir", "./data", "Data directory for the graph store")
	cmd.Flags().String("schema", "./schema.yaml", "Path to write the starter schema registry")
	return cmd
}

const starterRegistryYAML = `version: v1
id_policy: {kind: uuid, field: id}
defaults:
  vector: {metric: cosine, normalize: true, dim: 256}
  timestamps: {auto_create: true, auto_update: true}
entities:
  - name: note
    anchor: statement
    fields:
      statement: {type: string, required: true}
      tags: {type: tags}
relations:
  - name: relates_to
    predicates: [RELATES_TO]
    source: note
    target: note
    directed: false
`

// newServeCmd starts the HTTP REST transport and the MCP JSON-RPC
// transport, the latter on its own listener at the HTTP port + 1.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve memg-core over HTTP and MCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			noAuth, _ := cmd.Flags().GetBool("no-auth")
			if noAuth {
				cfg.Auth.Enabled = false
			}

			fmt.Printf("starting memgctl v%s\n%s\n", version, cfg.String())

			svc, closeStore, err := openService(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			var authenticator *auth.Authenticator
			if cfg.Auth.Enabled {
				authenticator = auth.New(cfg.Auth.TokenHashes)
			}

			srvCfg := server.DefaultConfig()
			srvCfg.Address = cfg.HTTP.Address
			srvCfg.Port = cfg.HTTP.Port

			httpServer, err := server.New(svc, authenticator, srvCfg)
			if err != nil {
				return fmt.Errorf("creating HTTP server: %w", err)
			}
			if err := httpServer.Start(); err != nil {
				return fmt.Errorf("starting HTTP server: %w", err)
			}
			fmt.Printf("HTTP API listening on http://%s\n", httpServer.Addr())

			mcpServer := mcp.NewServer(svc, authenticator)
			mux := http.NewServeMux()
			mcpServer.RegisterRoutes(mux)
			mcpAddr := fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port+1)
			mcpHTTP := &http.Server{Addr: mcpAddr, Handler: mux}
			go func() {
				if err := mcpHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "mcp server error: %v\n", err)
				}
			}()
			fmt.Printf("MCP JSON-RPC listening on http://%s/mcp\n", mcpAddr)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			fmt.Println("shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = mcpHTTP.Shutdown(ctx)
			return httpServer.Stop(ctx)
		},
	}
	cmd.Flags().Bool("no-auth", false, "Disable bearer-token authentication regardless of MEMG_AUTH_TOKENS")
	return cmd
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			memType, _ := cmd.Flags().GetString("type")
			payloadJSON, _ := cmd.Flags().GetString("payload")
			var payload map[string]any
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				return fmt.Errorf("parsing --payload as JSON: %w", err)
			}

			return withService(func(svc *memory.Service) error {
				mem, err := svc.Add(context.Background(), userID, memory.AddRequest{MemoryType: memType, Payload: payload})
				if err != nil {
					return err
				}
				return printJSON(mem)
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	cmd.Flags().String("type", "", "Schema-declared entity name")
	cmd.Flags().String("payload", "{}", "JSON payload matching the entity's schema")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [hrid]",
		Short: "Get a memory by hrid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withService(func(svc *memory.Service) error {
				mem, err := svc.Get(context.Background(), userID, args[0])
				if err != nil {
					return err
				}
				return printJSON(mem)
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [hrid]",
		Short: "Patch-merge fields into an existing memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			patchJSON, _ := cmd.Flags().GetString("patch")
			var patch map[string]any
			if err := json.Unmarshal([]byte(patchJSON), &patch); err != nil {
				return fmt.Errorf("parsing --patch as JSON: %w", err)
			}
			return withService(func(svc *memory.Service) error {
				mem, err := svc.Update(context.Background(), userID, args[0], patch)
				if err != nil {
					return err
				}
				return printJSON(mem)
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	cmd.Flags().String("patch", "{}", "JSON fields to merge into the existing payload")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [hrid]",
		Short: "Delete a memory by hrid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withService(func(svc *memory.Service) error {
				if err := svc.Delete(context.Background(), userID, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted")
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, optionally filtered by type",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			memType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")
			return withService(func(svc *memory.Service) error {
				mems, err := svc.List(context.Background(), userID, memory.ListRequest{MemoType: memType, Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				return printJSON(mems)
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	cmd.Flags().String("type", "", "Schema-declared entity name filter")
	cmd.Flags().Int("limit", 20, "Maximum results")
	cmd.Flags().Int("offset", 0, "Result offset")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "GraphRAG search: semantic, structural, or hybrid",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			query, _ := cmd.Flags().GetString("query")
			memType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")
			neighborCap, _ := cmd.Flags().GetInt("expand-neighbors")
			return withService(func(svc *memory.Service) error {
				results, err := svc.Search(context.Background(), userID, memory.SearchRequest{
					Query: query, MemoType: memType, Limit: limit, NeighborCap: neighborCap,
				})
				if err != nil {
					return err
				}
				return printJSON(results)
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	cmd.Flags().String("query", "", "Natural-language query; omit for a pure filter-based search")
	cmd.Flags().String("type", "", "Schema-declared entity name filter")
	cmd.Flags().Int("limit", 10, "Maximum results")
	cmd.Flags().Int("expand-neighbors", 0, "How many top hits to expand one graph hop")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relate [source-hrid] [predicate] [target-hrid]",
		Short: "Create a schema-declared relationship edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withService(func(svc *memory.Service) error {
				if err := svc.AddRelationship(context.Background(), userID, args[0], args[2], args[1], "", ""); err != nil {
					return err
				}
				fmt.Println("related")
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUnrelateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unrelate [source-hrid] [predicate] [target-hrid]",
		Short: "Remove a relationship edge",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			return withService(func(svc *memory.Service) error {
				if err := svc.DeleteRelationship(context.Background(), userID, args[0], args[2], args[1], "", ""); err != nil {
					return err
				}
				fmt.Println("unrelated")
				return nil
			})
		},
	}
	cmd.Flags().String("user", "", "Owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSystemInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "system-info",
		Short: "Report the schema's known entity/relation names and store health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *memory.Service) error {
				info, err := svc.SystemInfo(context.Background())
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
}

// withService opens a Service from the environment configuration, runs
// fn against it, and closes the underlying graph store afterward. Each
// one-shot subcommand uses this rather than the long-lived serve path.
func withService(fn func(svc *memory.Service) error) error {
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	svc, closeStore, err := openService(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(svc)
}

// openService wires the schema translator, the two stores, the hrid
// allocator, the indexer, and the retrieval pipeline into one Service,
// per the MEMG_-prefixed configuration loaded from the environment.
func openService(cfg *config.Config) (*memory.Service, func(), error) {
	tr := schema.New()
	if err := tr.Load(cfg.Schema.RegistryPath); err != nil {
		return nil, nil, fmt.Errorf("loading schema registry: %w", err)
	}

	var graph *badgerstore.Store
	var err error
	if cfg.Store.InMemory {
		graph, err = badgerstore.OpenInMemory()
	} else {
		graph, err = badgerstore.Open(badgerstore.Options{
			DataDir:    cfg.Store.DataDir,
			SyncWrites: cfg.Store.SyncWrites,
		})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening graph store: %w", err)
	}

	embedder, err := embed.NewFromConfig(cfg.Embedding)
	if err != nil {
		_ = graph.Close()
		return nil, nil, fmt.Errorf("building embedder: %w", err)
	}

	vecs := memstore.New()
	allocator := hrid.New(graph)
	ix := indexer.New(tr, allocator, embedder, vecs, graph)
	pipe := retrieval.New(tr, embedder, vecs, graph)
	svc := memory.New(tr, allocator, ix, pipe, graph)

	return svc, func() { _ = graph.Close() }, nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
