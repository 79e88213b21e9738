// Package httpapi serves the dashboard backend-for-frontend: per-session
// filters, panels, rendered charts, chat and the live revenue feed.
package httpapi

import (
	"time"

	"findash/internal/dashboard"
	"findash/internal/domain"
)

// HealthJSON is the /api/healthz body.
type HealthJSON struct {
	Status          string    `json:"status"`
	Sessions        int       `json:"sessions"`
	CatalogLoadedAt time.Time `json:"catalogLoadedAt"`
	CatalogError    string    `json:"catalogError,omitempty"`
}

// SessionJSON describes a session's filters and, when fetched, its active
// panel.
type SessionJSON struct {
	ID      string             `json:"id"`
	Filters domain.FilterState `json:"filters"`
	Panel   *dashboard.Panel   `json:"panel,omitempty"`
}

// ChatRequestJSON is the body of POST /chat.
type ChatRequestJSON struct {
	Question string `json:"question"`
}

// ChatJSON is the transcript, with the newest reply when one was produced.
type ChatJSON struct {
	Reply    *domain.ChatMessage  `json:"reply,omitempty"`
	Messages []domain.ChatMessage `json:"messages"`
}

// SaveChartJSON is the body of POST /charts.
type SaveChartJSON struct {
	Title string `json:"title,omitempty"`
}

// SavedJSON reports a saved chart's ID.
type SavedJSON struct {
	ID string `json:"id"`
}
