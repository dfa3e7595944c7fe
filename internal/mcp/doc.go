// Package mcp exposes ingestion and retrieval as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the ingest processor, the query handler and the vector store
// directly. It is served over stdio by "ragd mcp".
package mcp
