package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/ingest"
	"github.com/radarkb/retrieval-mcp/internal/searcher"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeTenantNotFound  = -32001 // Tenant has no collection
	ErrorCodeEmbeddingFailed = -32002 // Embedding provider failure
	ErrorCodeQueryTimeout    = -32003 // Query exceeded its deadline
	ErrorCodeEmptyQuery      = -32004 // Query parameter is empty
)

// handleIngestDocument handles the ingest_document tool invocation
func (s *Server) handleIngestDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	content, err := requireString(args, "content")
	if err != nil {
		return nil, err
	}
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}

	res, err := s.pipeline.Ingest(ctx, ingest.Request{
		TenantID: tenantID,
		Content:  content,
		Source:   source,
		Category: getStringDefault(args, "category", ""),
		Metadata: getStringMap(args, "metadata"),
	})
	if err != nil {
		return nil, mapError(err, "ingestion failed")
	}

	response := map[string]interface{}{
		"document_id":   res.DocumentID,
		"chunk_count":   res.ChunkCount,
		"failed_chunks": res.FailedChunks,
		"version":       res.Version,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteBySource handles the delete_by_source tool invocation
func (s *Server) handleDeleteBySource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	source, err := requireString(args, "source")
	if err != nil {
		return nil, err
	}

	removed, err := s.pipeline.DeleteBySource(ctx, tenantID, source)
	if err != nil {
		return nil, mapError(err, "delete failed")
	}

	response := map[string]interface{}{
		"deleted": removed,
	}
	if version, verr := s.collections.Version(tenantID); verr == nil {
		response["version"] = version
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchKnowledge handles the search_knowledge tool invocation
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode := getStringDefault(args, "mode", "hybrid")
	if !types.QueryMode(mode).Valid() {
		return nil, newMCPError(ErrorCodeInvalidParams, "mode must be vector, keyword or hybrid", map[string]interface{}{
			"param": "mode",
			"value": mode,
		})
	}
	alpha := getFloatDefault(args, "alpha", 0.7)
	if alpha < 0 || alpha > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "alpha must be between 0.0 and 1.0", map[string]interface{}{
			"param": "alpha",
			"value": alpha,
		})
	}
	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	queryCtx := ctx
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	resp, err := s.queries.Search(queryCtx, searcher.Request{
		TenantID: tenantID,
		Query:    query,
		Mode:     types.QueryMode(mode),
		Alpha:    alpha,
		Limit:    limit,
		Category: getStringDefault(args, "category", ""),
	})
	if err != nil {
		return nil, mapError(err, "search failed")
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		item := map[string]interface{}{
			"chunk_id": r.ChunkID,
			"content":  r.Content,
			"source":   r.Source,
			"score":    r.Score,
		}
		if r.Category != "" {
			item["category"] = r.Category
		}
		if len(r.Metadata) > 0 {
			item["metadata"] = r.Metadata
		}
		results = append(results, item)
	}
	response := map[string]interface{}{
		"results": results,
		"count":   len(results),
		"version": resp.Version,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatistics handles the get_statistics tool invocation
func (s *Server) handleGetStatistics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}

	col, err := s.collections.Get(tenantID)
	if err != nil {
		return nil, mapError(err, "statistics failed")
	}
	stats := col.Stats()
	stats.CacheHitRate = s.queries.HitRate()
	stats.EmbeddingModel = s.engine.Model()

	response := map[string]interface{}{
		"tenant_id":          stats.TenantID,
		"document_count":     stats.DocumentCount,
		"chunk_count":        stats.ChunkCount,
		"category_breakdown": stats.CategoryBreakdown,
		"cache_hit_rate":     stats.CacheHitRate,
		"embedding_model":    stats.EmbeddingModel,
		"version":            stats.Version,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCreateTenant handles the create_tenant tool invocation
func (s *Server) handleCreateTenant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}

	col, err := s.collections.GetOrCreate(ctx, tenantID, s.engine.Dimension())
	if err != nil {
		return nil, mapError(err, "create tenant failed")
	}

	response := map[string]interface{}{
		"tenant_id": tenantID,
		"dimension": col.Dimension(),
		"version":   col.Version(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteTenant handles the delete_tenant tool invocation
func (s *Server) handleDeleteTenant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	tenantID, err := requireString(args, "tenant_id")
	if err != nil {
		return nil, err
	}

	if err := s.collections.Delete(ctx, tenantID); err != nil {
		return nil, mapError(err, "delete tenant failed")
	}
	// A recreated tenant restarts at version 0, so version keying alone
	// cannot fence off entries from the previous incarnation.
	s.queries.InvalidateTenant(ctx, tenantID)
	s.log.Info("tenant removed", zap.String("tenant", tenantID))

	response := map[string]interface{}{
		"tenant_id": tenantID,
		"deleted":   true,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// mapError translates engine sentinel errors into MCP protocol errors
func mapError(err error, message string) error {
	data := map[string]interface{}{"error": err.Error()}
	switch {
	case errors.Is(err, types.ErrTenantNotFound):
		return newMCPError(ErrorCodeTenantNotFound, "tenant not found", data)
	case errors.Is(err, types.ErrQueryTimeout):
		return newMCPError(ErrorCodeQueryTimeout, "query timed out", data)
	case errors.Is(err, types.ErrQueryEmbedding), errors.Is(err, types.ErrEmbedding):
		return newMCPError(ErrorCodeEmbeddingFailed, "embedding failed", data)
	case errors.Is(err, types.ErrEmptyContent),
		errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrDimensionMismatch):
		return newMCPError(ErrorCodeInvalidParams, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// newMCPError creates a structured MCP error response
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requireString extracts a mandatory, non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// formatJSON formats a response map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a float parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringMap extracts a map of string key/value pairs, dropping entries
// whose values are not strings
func getStringMap(args map[string]interface{}, key string) map[string]string {
	raw, ok := args[key].(map[string]interface{})
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
