// Package mcp implements the Model Context Protocol (MCP) server for the
// retrieval engine.
//
// The server exposes six tools to MCP clients:
//   - ingest_document: chunk, embed and index a document for a tenant
//   - delete_by_source: remove a document by its source identifier
//   - search_knowledge: vector, keyword or hybrid retrieval over a tenant's collection
//   - get_statistics: document, chunk and cache statistics for a tenant
//   - create_tenant: create an empty collection
//   - delete_tenant: drop a collection and everything in it
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. The server reads
// requests on stdin and writes responses to stdout; all logging goes to
// stderr so the protocol stream stays clean.
//
// Every tool call carries a tenant_id, and tenants are fully isolated from
// each other: a search can only ever return chunks ingested under the same
// tenant.
package mcp
