package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/cache"
	"github.com/radarkb/retrieval-mcp/internal/chunker"
	"github.com/radarkb/retrieval-mcp/internal/collection"
	"github.com/radarkb/retrieval-mcp/internal/config"
	"github.com/radarkb/retrieval-mcp/internal/embedder"
	"github.com/radarkb/retrieval-mcp/internal/ingest"
	"github.com/radarkb/retrieval-mcp/internal/searcher"
	"github.com/radarkb/retrieval-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "retrieval-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	store        storage.Store
	collections  *collection.Manager
	engine       *embedder.Engine
	pipeline     *ingest.Pipeline
	queries      *cache.Cache
	queryTimeout time.Duration
	log          *zap.Logger
}

// NewServer builds the full engine from configuration: storage, embedding,
// collections reloaded from disk, query path and cache.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	provider, err := embedder.NewProvider(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.Model)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	engine := embedder.NewEngine(provider, embedder.Config{
		CacheSize:     cfg.Embedding.CacheSize,
		BatchSize:     cfg.Embedding.BatchSize,
		MaxConcurrent: cfg.Embedding.MaxConcurrent,
	}, log)

	collections := collection.NewManager(store, log)
	if err := collections.LoadFromStore(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("reload collections: %w", err)
	}

	search := searcher.New(collections, engine, log)

	var opts []cache.Option
	opts = append(opts, cache.WithTTL(cfg.Cache.TTL), cache.WithLogger(log))
	if cfg.Cache.RedisAddr != "" {
		backend, err := cache.NewRedisBackend(context.Background(),
			cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			// The shared tier is an optimization; run local-only without it.
			log.Warn("redis cache unavailable, using local cache only",
				zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			opts = append(opts, cache.WithBackend(backend))
		}
	}
	queries, err := cache.New(search, collections, cfg.Cache.Size, opts...)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	ck := chunker.New(cfg.Chunking.MaxSize, cfg.Chunking.Overlap)
	pipeline := ingest.New(collections, ck, engine, store, cfg.Embedding.BatchSize, log)

	s := &Server{
		mcp:          server.NewMCPServer(ServerName, ServerVersion),
		store:        store,
		collections:  collections,
		engine:       engine,
		pipeline:     pipeline,
		queries:      queries,
		queryTimeout: cfg.QueryTimeout,
		log:          log,
	}
	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("server started",
		zap.String("name", ServerName),
		zap.String("version", ServerVersion),
		zap.String("embedding_model", s.engine.Model()),
		zap.Strings("tenants", s.collections.Tenants()))
	defer s.Close()
	return server.ServeStdio(s.mcp)
}

// Close releases the embedding provider and the database.
func (s *Server) Close() {
	if err := s.engine.Close(); err != nil {
		s.log.Warn("close embedder", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn("close storage", zap.Error(err))
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestDocumentTool(), s.handleIngestDocument)
	s.mcp.AddTool(deleteBySourceTool(), s.handleDeleteBySource)
	s.mcp.AddTool(searchKnowledgeTool(), s.handleSearchKnowledge)
	s.mcp.AddTool(getStatisticsTool(), s.handleGetStatistics)
	s.mcp.AddTool(createTenantTool(), s.handleCreateTenant)
	s.mcp.AddTool(deleteTenantTool(), s.handleDeleteTenant)
}
