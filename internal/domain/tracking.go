package domain

import "time"

// TrackingClient mirrors a Toggl client entity.
type TrackingClient struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Project mirrors a Toggl project entity.
type Project struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ClientID int64  `json:"client_id"`
}

// TimeEntry mirrors a Toggl time entry. DurationSec is negative while the
// entry is running (Toggl API semantics).
type TimeEntry struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	ProjectID   int64      `json:"project_id"`
	WorkspaceID int64      `json:"workspace_id"`
	Start       time.Time  `json:"start"`
	Stop        *time.Time `json:"stop"`
	DurationSec int64      `json:"duration"`
}

// Running reports whether the entry is still being tracked.
func (e *TimeEntry) Running() bool {
	return e.DurationSec < 0
}

// Session is the per-chat selection state carried between webhook deliveries.
type Session struct {
	ChatID    int64
	ClientID  int64
	ProjectID int64
	UpdatedAt time.Time
}
