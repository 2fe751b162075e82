package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestDocumentTool returns the tool definition for ingest_document
func ingestDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed and index a document into a tenant's knowledge collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant (project) that owns the document",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Raw document text to index",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Stable source identifier (e.g. file path or URL); re-ingesting the same source replaces the previous version",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Optional category label applied to every chunk",
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Optional string key/value pairs attached to every chunk",
				},
			},
			Required: []string{"tenant_id", "content", "source"},
		},
	}
}

// deleteBySourceTool returns the tool definition for delete_by_source
func deleteBySourceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_by_source",
		Description: "Remove the document indexed for a source from a tenant's collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant that owns the document",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Source identifier used at ingestion time",
				},
			},
			Required: []string{"tenant_id", "source"},
		},
	}
}

// searchKnowledgeTool returns the tool definition for search_knowledge
func searchKnowledgeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_knowledge",
		Description: "Search a tenant's knowledge collection with vector, keyword or hybrid retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant whose collection to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval mode",
					"enum":        []string{"vector", "keyword", "hybrid"},
					"default":     "hybrid",
				},
				"alpha": map[string]interface{}{
					"type":        "number",
					"description": "Hybrid blend weight for the vector side (0.0 = pure keyword, 1.0 = pure vector)",
					"default":     0.7,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to chunks with this category",
				},
			},
			Required: []string{"tenant_id", "query"},
		},
	}
}

// getStatisticsTool returns the tool definition for get_statistics
func getStatisticsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_statistics",
		Description: "Report document, chunk and cache statistics for a tenant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant to report on",
				},
			},
			Required: []string{"tenant_id"},
		},
	}
}

// createTenantTool returns the tool definition for create_tenant
func createTenantTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create_tenant",
		Description: "Create an empty knowledge collection for a tenant",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant to create; creating an existing tenant is a no-op",
				},
			},
			Required: []string{"tenant_id"},
		},
	}
}

// deleteTenantTool returns the tool definition for delete_tenant
func deleteTenantTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_tenant",
		Description: "Delete a tenant's collection, documents and cached queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tenant_id": map[string]interface{}{
					"type":        "string",
					"description": "Tenant to delete",
				},
			},
			Required: []string{"tenant_id"},
		},
	}
}
