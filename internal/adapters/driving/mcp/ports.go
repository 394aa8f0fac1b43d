package mcp

import (
	"time"

	"github.com/insightpocket/insight-rag/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Retrieval ingests, searches and assembles context.
	Retrieval driving.RetrievalService

	// RecentDays is the window of the chat context preset.
	// Zero uses domain.DefaultRecentDays.
	RecentDays int

	// NewReportID generates ids for CUSTOM reports stored without one.
	NewReportID func(prefix string) string

	// Now returns the current time for the chat preset. Nil uses time.Now.
	Now func() time.Time
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Retrieval == nil {
		return ErrMissingRetrievalService
	}
	return nil
}

func (p *Ports) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
