// Package store persists the chat log in SQL and saved charts as Parquet
// files on disk.
package store

import (
	"context"
	"errors"
	"time"

	"findash/internal/domain"
)

// ErrNotFound is returned when a saved chart does not exist.
var ErrNotFound = errors.New("not found")

// ChatRecord is one answered question.
type ChatRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatLogStore persists answered questions.
type ChatLogStore interface {
	// Append records one question and its answer.
	Append(ctx context.Context, sessionID, question, answer string) error

	// Recent returns the latest records for a session, newest first. An empty
	// sessionID matches every session.
	Recent(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error)
}

// ChartMeta describes a saved chart without its rows.
type ChartMeta struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Tab       domain.Tab    `json:"tab"`
	Period    domain.Period `json:"period"`
	CreatedAt time.Time     `json:"createdAt"`
	HasImage  bool          `json:"hasImage"`
}

// SavedChart is a chart snapshot.
type SavedChart struct {
	ChartMeta
	Rows []domain.ChartRow `json:"rows"`
}

// ChartStore persists chart snapshots.
type ChartStore interface {
	// Save stores c with an optional rendered image and returns its ID.
	Save(ctx context.Context, c SavedChart, image []byte) (string, error)

	// Load returns the chart with the given ID.
	Load(ctx context.Context, id string) (*SavedChart, error)

	// Image returns the stored PNG for id.
	Image(ctx context.Context, id string) ([]byte, error)

	// List returns every saved chart, newest first.
	List(ctx context.Context) ([]ChartMeta, error)
}
