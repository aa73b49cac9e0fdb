// Package toggl wraps the Toggl Track v9 REST API: clients, projects, and
// time entries. Every operation issues a single HTTP request; non-success
// statuses surface as *domain.TrackerError.
package toggl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"togglbot/internal/domain"
	"togglbot/internal/httpclient"
)

const createdWith = "togglbot"

// Client talks to the Toggl Track API.
type Client struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger

	// Toggl scopes most endpoints by workspace; the default workspace is
	// discovered once via /me and reused for the client's lifetime.
	mu          sync.Mutex
	workspaceID int64
}

type Config struct {
	APIBase string // e.g. "https://api.track.toggl.com/api/v9"
	APIKey  string
	Logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.track.toggl.com/api/v9"
	}
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		client:  httpclient.New(30 * time.Second),
		logger:  cfg.Logger,
	}
}

// do issues one request with Basic auth (apiKey:api_token, Toggl convention)
// and decodes the JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, "api_token")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("toggl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.TrackerError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(respBody)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode toggl response: %w", err)
	}
	return nil
}

// workspace returns the default workspace ID, fetching it on first use.
func (c *Client) workspace(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspaceID != 0 {
		return c.workspaceID, nil
	}

	var me struct {
		DefaultWorkspaceID int64 `json:"default_workspace_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, &me); err != nil {
		return 0, err
	}
	if me.DefaultWorkspaceID == 0 {
		return 0, fmt.Errorf("toggl /me returned no default workspace")
	}
	c.workspaceID = me.DefaultWorkspaceID
	c.logger.Debug("toggl workspace resolved", "workspace_id", c.workspaceID)
	return c.workspaceID, nil
}

// Clients lists all clients in the default workspace.
func (c *Client) Clients(ctx context.Context) ([]domain.TrackingClient, error) {
	wid, err := c.workspace(ctx)
	if err != nil {
		return nil, err
	}
	var clients []domain.TrackingClient
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%d/clients", wid), nil, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// Projects lists projects in the default workspace. The v9 API has no
// server-side client filter, so a non-zero clientID is applied here.
func (c *Client) Projects(ctx context.Context, clientID int64) ([]domain.Project, error) {
	wid, err := c.workspace(ctx)
	if err != nil {
		return nil, err
	}
	var projects []domain.Project
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workspaces/%d/projects", wid), nil, &projects); err != nil {
		return nil, err
	}
	if clientID == 0 {
		return projects, nil
	}
	filtered := projects[:0]
	for _, p := range projects {
		if p.ClientID == clientID {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

type entryPayload struct {
	Billable    bool   `json:"billable"`
	Description string `json:"description"`
	ProjectID   int64  `json:"project_id,omitempty"`
	WorkspaceID int64  `json:"workspace_id"`
	CreatedWith string `json:"created_with"`
	Start       string `json:"start"`
	Stop        string `json:"stop,omitempty"`
	Duration    int64  `json:"duration"`
}

// StartEntry starts a running time entry now. Toggl marks running entries
// with duration -1.
func (c *Client) StartEntry(ctx context.Context, description string, projectID int64) (*domain.TimeEntry, error) {
	wid, err := c.workspace(ctx)
	if err != nil {
		return nil, err
	}
	payload := entryPayload{
		Description: description,
		ProjectID:   projectID,
		WorkspaceID: wid,
		CreatedWith: createdWith,
		Start:       time.Now().UTC().Format(time.RFC3339),
		Duration:    -1,
	}
	var entry domain.TimeEntry
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%d/time_entries", wid), payload, &entry); err != nil {
		return nil, err
	}
	c.logger.Info("time entry started", "id", entry.ID, "description", description, "project_id", projectID)
	return &entry, nil
}

// AddPastEntry creates a completed entry with an explicit duration. When
// start is the zero time the entry is backdated so it ends now. Timestamps
// are sent in UTC; Toggl normalizes offsets server-side.
func (c *Client) AddPastEntry(ctx context.Context, description string, projectID int64, duration time.Duration, start time.Time) (*domain.TimeEntry, error) {
	wid, err := c.workspace(ctx)
	if err != nil {
		return nil, err
	}

	if start.IsZero() {
		start = time.Now().UTC().Add(-duration)
	}
	start = start.UTC()
	stop := start.Add(duration)

	payload := entryPayload{
		Description: description,
		ProjectID:   projectID,
		WorkspaceID: wid,
		CreatedWith: createdWith,
		Start:       start.Format(time.RFC3339),
		Stop:        stop.Format(time.RFC3339),
		Duration:    int64(duration.Seconds()),
	}
	var entry domain.TimeEntry
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/workspaces/%d/time_entries", wid), payload, &entry); err != nil {
		return nil, err
	}
	c.logger.Info("past entry created", "id", entry.ID, "description", description, "duration", duration)
	return &entry, nil
}

// CurrentEntry returns the running entry, or domain.ErrNoActiveEntry when
// nothing is being tracked.
func (c *Client) CurrentEntry(ctx context.Context) (*domain.TimeEntry, error) {
	var entry *domain.TimeEntry
	if err := c.do(ctx, http.MethodGet, "/me/time_entries/current", nil, &entry); err != nil {
		return nil, err
	}
	if entry == nil || entry.ID == 0 {
		return nil, domain.ErrNoActiveEntry
	}
	return entry, nil
}

// StopRunningEntry stops the currently running entry and returns it.
// Fails with domain.ErrNoActiveEntry when nothing is running.
func (c *Client) StopRunningEntry(ctx context.Context) (*domain.TimeEntry, error) {
	current, err := c.CurrentEntry(ctx)
	if err != nil {
		return nil, err
	}

	var stopped domain.TimeEntry
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/time_entries/%d/stop", current.ID), nil, &stopped); err != nil {
		return nil, err
	}
	c.logger.Info("time entry stopped", "id", stopped.ID, "description", stopped.Description)
	return &stopped, nil
}
