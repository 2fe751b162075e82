package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarkb/retrieval-mcp/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		DBPath:       filepath.Join(t.TempDir(), "retrieval.db"),
		LogLevel:     "error",
		QueryTimeout: 5 * time.Second,
		Embedding: config.EmbeddingConfig{
			Provider:      "local",
			CacheSize:     128,
			BatchSize:     8,
			MaxConcurrent: 2,
		},
		Chunking: config.ChunkingConfig{MaxSize: 128, Overlap: 32},
		Cache:    config.CacheConfig{Size: 64, TTL: time.Minute},
	}
	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func callTool(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "tool results are text content")
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func mcpCode(t *testing.T, err error) int {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	return mcpErr.Code
}

func TestIngestSearchRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleIngestDocument(ctx, callTool("ingest_document", map[string]interface{}{
		"tenant_id": "proj-a",
		"content":   "Machine learning models transform input features into predictions.\n\nGradient descent optimizes model parameters iteratively.",
		"source":    "ml-notes.md",
		"category":  "ml",
	}))
	require.NoError(t, err)
	ingested := resultJSON(t, result)
	assert.NotEmpty(t, ingested["document_id"])
	assert.Greater(t, ingested["chunk_count"].(float64), float64(0))
	assert.Equal(t, float64(1), ingested["version"])

	result, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a",
		"query":     "machine learning models",
		"mode":      "hybrid",
		"alpha":     0.5,
	}))
	require.NoError(t, err)
	found := resultJSON(t, result)
	require.Greater(t, found["count"].(float64), float64(0))
	results := found["results"].([]interface{})
	top := results[0].(map[string]interface{})
	assert.Equal(t, "ml-notes.md", top["source"])
	assert.Greater(t, top["score"].(float64), 0.5)
}

func TestSearchValidationErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a",
	}))
	assert.Equal(t, ErrorCodeEmptyQuery, mcpCode(t, err))

	_, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a", "query": "x", "mode": "fuzzy",
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a", "query": "x", "alpha": 1.5,
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a", "query": "x", "limit": 500,
	}))
	assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))

	_, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "ghost", "query": "x",
	}))
	assert.Equal(t, ErrorCodeTenantNotFound, mcpCode(t, err))
}

func TestDeleteBySourceTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIngestDocument(ctx, callTool("ingest_document", map[string]interface{}{
		"tenant_id": "proj-a",
		"content":   "Deployment uses rolling restarts behind the load balancer.",
		"source":    "deploy.md",
	}))
	require.NoError(t, err)

	result, err := s.handleDeleteBySource(ctx, callTool("delete_by_source", map[string]interface{}{
		"tenant_id": "proj-a",
		"source":    "deploy.md",
	}))
	require.NoError(t, err)
	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["deleted"])
	assert.Equal(t, float64(2), payload["version"])

	result, err = s.handleDeleteBySource(ctx, callTool("delete_by_source", map[string]interface{}{
		"tenant_id": "proj-a",
		"source":    "deploy.md",
	}))
	require.NoError(t, err)
	payload = resultJSON(t, result)
	assert.Equal(t, false, payload["deleted"])

	result, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-a", "query": "rolling restarts",
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), resultJSON(t, result)["count"])
}

func TestStatisticsTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleGetStatistics(ctx, callTool("get_statistics", map[string]interface{}{
		"tenant_id": "ghost",
	}))
	assert.Equal(t, ErrorCodeTenantNotFound, mcpCode(t, err))

	_, err = s.handleIngestDocument(ctx, callTool("ingest_document", map[string]interface{}{
		"tenant_id": "proj-a",
		"content":   "Alpha release notes cover the new query planner.",
		"source":    "notes.md",
		"category":  "release",
	}))
	require.NoError(t, err)

	result, err := s.handleGetStatistics(ctx, callTool("get_statistics", map[string]interface{}{
		"tenant_id": "proj-a",
	}))
	require.NoError(t, err)
	stats := resultJSON(t, result)
	assert.Equal(t, "proj-a", stats["tenant_id"])
	assert.Equal(t, float64(1), stats["document_count"])
	assert.Greater(t, stats["chunk_count"].(float64), float64(0))
	assert.Equal(t, "local-hash-embeddings", stats["embedding_model"])
	assert.Equal(t, float64(0), stats["cache_hit_rate"])
	breakdown := stats["category_breakdown"].(map[string]interface{})
	assert.Equal(t, stats["chunk_count"], breakdown["release"])

	// One miss then one hit; the hit rate must reflect live cache activity.
	for i := 0; i < 2; i++ {
		_, err = s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
			"tenant_id": "proj-a",
			"query":     "query planner",
		}))
		require.NoError(t, err)
	}
	result, err = s.handleGetStatistics(ctx, callTool("get_statistics", map[string]interface{}{
		"tenant_id": "proj-a",
	}))
	require.NoError(t, err)
	assert.Equal(t, 0.5, resultJSON(t, result)["cache_hit_rate"])
}

func TestTenantLifecycleTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleCreateTenant(ctx, callTool("create_tenant", map[string]interface{}{
		"tenant_id": "proj-b",
	}))
	require.NoError(t, err)
	created := resultJSON(t, result)
	assert.Equal(t, "proj-b", created["tenant_id"])
	assert.Equal(t, float64(0), created["version"])

	result, err = s.handleDeleteTenant(ctx, callTool("delete_tenant", map[string]interface{}{
		"tenant_id": "proj-b",
	}))
	require.NoError(t, err)
	assert.Equal(t, true, resultJSON(t, result)["deleted"])

	_, err = s.handleDeleteTenant(ctx, callTool("delete_tenant", map[string]interface{}{
		"tenant_id": "proj-b",
	}))
	assert.Equal(t, ErrorCodeTenantNotFound, mcpCode(t, err))
}

func TestTenantIsolationAcrossTools(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIngestDocument(ctx, callTool("ingest_document", map[string]interface{}{
		"tenant_id": "proj-a",
		"content":   "Secret billing rollout plan for quarter four.",
		"source":    "billing.md",
	}))
	require.NoError(t, err)

	_, err = s.handleIngestDocument(ctx, callTool("ingest_document", map[string]interface{}{
		"tenant_id": "proj-b",
		"content":   "Public changelog for the command line client.",
		"source":    "changelog.md",
	}))
	require.NoError(t, err)

	result, err := s.handleSearchKnowledge(ctx, callTool("search_knowledge", map[string]interface{}{
		"tenant_id": "proj-b",
		"query":     "billing rollout plan",
		"mode":      "keyword",
	}))
	require.NoError(t, err)
	payload := resultJSON(t, result)
	for _, raw := range payload["results"].([]interface{}) {
		item := raw.(map[string]interface{})
		assert.NotEqual(t, "billing.md", item["source"], "results must never cross tenants")
	}
}

func TestInvalidArgumentShapes(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	req := mcp.CallToolRequest{}
	req.Params.Arguments = "not a map"

	for _, handler := range []func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		s.handleIngestDocument,
		s.handleDeleteBySource,
		s.handleSearchKnowledge,
		s.handleGetStatistics,
		s.handleCreateTenant,
		s.handleDeleteTenant,
	} {
		_, err := handler(ctx, req)
		assert.Equal(t, ErrorCodeInvalidParams, mcpCode(t, err))
	}
}

func TestMCPErrorFormatting(t *testing.T) {
	err := newMCPError(ErrorCodeTenantNotFound, "tenant not found", nil)
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr))
	assert.Equal(t, "MCP error -32001: tenant not found", mcpErr.Error())
}
