// Package mcp provides an MCP (Model Context Protocol) server adapter for insight-rag.
// It lets AI assistants search past reports, assemble grounded context and
// store newly generated reports.
package mcp

import "errors"

// ErrMissingRetrievalService is returned when the retrieval service is not provided.
var ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
