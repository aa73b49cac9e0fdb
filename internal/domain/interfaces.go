package domain

import (
	"context"
	"time"
)

// TimeTracker wraps the time-tracking vendor API. Every method issues a
// single request; errors carry the remote status via *TrackerError.
type TimeTracker interface {
	Clients(ctx context.Context) ([]TrackingClient, error)
	Projects(ctx context.Context, clientID int64) ([]Project, error)
	StartEntry(ctx context.Context, description string, projectID int64) (*TimeEntry, error)
	AddPastEntry(ctx context.Context, description string, projectID int64, duration time.Duration, start time.Time) (*TimeEntry, error)
	StopRunningEntry(ctx context.Context) (*TimeEntry, error)
	CurrentEntry(ctx context.Context) (*TimeEntry, error)
}

// Transcriber converts raw audio bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// IntentExtractor derives a structured Intent from free-form user text.
type IntentExtractor interface {
	ExtractIntent(ctx context.Context, text string) (Intent, error)
}

// SessionStore persists per-chat client/project selections across
// webhook deliveries.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (Session, error)
	SetClient(ctx context.Context, chatID, clientID int64) error
	SetProject(ctx context.Context, chatID, projectID int64) error
	Clear(ctx context.Context, chatID int64) error
	Close() error
}
