package toggl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"togglbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// togglStub serves the handful of v9 endpoints the client touches.
type togglStub struct {
	workspaceID int64
	clients     []domain.TrackingClient
	projects    []domain.Project
	current     *domain.TimeEntry
	entryPosts  []map[string]any
	stopCalls   []string
	failWith    int // when non-zero, every request fails with this status
	meCalls     int
}

func (s *togglStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.failWith != 0 {
			http.Error(w, "remote says no", s.failWith)
			return
		}
		if _, _, ok := r.BasicAuth(); !ok {
			http.Error(w, "no auth", http.StatusUnauthorized)
			return
		}

		switch {
		case r.URL.Path == "/me":
			s.meCalls++
			json.NewEncoder(w).Encode(map[string]int64{"default_workspace_id": s.workspaceID})
		case r.URL.Path == fmt.Sprintf("/workspaces/%d/clients", s.workspaceID):
			json.NewEncoder(w).Encode(s.clients)
		case r.URL.Path == fmt.Sprintf("/workspaces/%d/projects", s.workspaceID):
			json.NewEncoder(w).Encode(s.projects)
		case r.URL.Path == fmt.Sprintf("/workspaces/%d/time_entries", s.workspaceID) && r.Method == http.MethodPost:
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			s.entryPosts = append(s.entryPosts, payload)
			json.NewEncoder(w).Encode(map[string]any{
				"id":          101,
				"description": payload["description"],
				"duration":    payload["duration"],
			})
		case r.URL.Path == "/me/time_entries/current":
			json.NewEncoder(w).Encode(s.current) // encodes null when nil
		case r.Method == http.MethodPut:
			s.stopCalls = append(s.stopCalls, r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"id": 101, "description": "coding", "duration": 600,
			})
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestClient(t *testing.T, stub *togglStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(Config{APIBase: srv.URL, APIKey: "key", Logger: testLogger()})
}

func TestClients_ListsWorkspaceClients(t *testing.T) {
	stub := &togglStub{
		workspaceID: 42,
		clients: []domain.TrackingClient{
			{ID: 1, Name: "Acme"},
			{ID: 2, Name: "Globex"},
		},
	}
	client := newTestClient(t, stub)

	clients, err := client.Clients(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 || clients[0].Name != "Acme" {
		t.Errorf("unexpected clients: %+v", clients)
	}
}

func TestWorkspace_ResolvedOnce(t *testing.T) {
	stub := &togglStub{workspaceID: 42}
	client := newTestClient(t, stub)

	ctx := context.Background()
	if _, err := client.Clients(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Projects(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if stub.meCalls != 1 {
		t.Errorf("expected /me to be called once, got %d", stub.meCalls)
	}
}

func TestProjects_FilteredByClient(t *testing.T) {
	stub := &togglStub{
		workspaceID: 42,
		projects: []domain.Project{
			{ID: 10, Name: "Website", ClientID: 1},
			{ID: 11, Name: "App", ClientID: 2},
			{ID: 12, Name: "Docs", ClientID: 1},
		},
	}
	client := newTestClient(t, stub)

	projects, err := client.Projects(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects for client 1, got %d", len(projects))
	}
	for _, p := range projects {
		if p.ClientID != 1 {
			t.Errorf("project %d belongs to client %d", p.ID, p.ClientID)
		}
	}
}

func TestStartEntry_PayloadShape(t *testing.T) {
	stub := &togglStub{workspaceID: 42}
	client := newTestClient(t, stub)

	if _, err := client.StartEntry(context.Background(), "coding", 7); err != nil {
		t.Fatal(err)
	}
	if len(stub.entryPosts) != 1 {
		t.Fatalf("expected 1 entry POST, got %d", len(stub.entryPosts))
	}
	payload := stub.entryPosts[0]
	if payload["description"] != "coding" {
		t.Errorf("description: %v", payload["description"])
	}
	if payload["duration"].(float64) != -1 {
		t.Errorf("running entries must have duration -1, got %v", payload["duration"])
	}
	if payload["project_id"].(float64) != 7 {
		t.Errorf("project_id: %v", payload["project_id"])
	}
	if payload["created_with"] != createdWith {
		t.Errorf("created_with: %v", payload["created_with"])
	}
}

func TestAddPastEntry_BackdatedToEndNow(t *testing.T) {
	stub := &togglStub{workspaceID: 42}
	client := newTestClient(t, stub)

	before := time.Now().UTC()
	if _, err := client.AddPastEntry(context.Background(), "planning", 7, 45*time.Minute, time.Time{}); err != nil {
		t.Fatal(err)
	}

	payload := stub.entryPosts[0]
	if payload["duration"].(float64) != 45*60 {
		t.Errorf("duration: %v", payload["duration"])
	}
	start, err := time.Parse(time.RFC3339, payload["start"].(string))
	if err != nil {
		t.Fatalf("start not RFC3339: %v", err)
	}
	stop, err := time.Parse(time.RFC3339, payload["stop"].(string))
	if err != nil {
		t.Fatalf("stop not RFC3339: %v", err)
	}
	if got := stop.Sub(start); got != 45*time.Minute {
		t.Errorf("stop-start = %s, want 45m", got)
	}
	// The entry ends roughly now (backdated start).
	if stop.Before(before.Add(-time.Minute)) || stop.After(before.Add(time.Minute)) {
		t.Errorf("stop %s should be close to now %s", stop, before)
	}
}

func TestAddPastEntry_ExplicitStart(t *testing.T) {
	stub := &togglStub{workspaceID: 42}
	client := newTestClient(t, stub)

	start := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	if _, err := client.AddPastEntry(context.Background(), "planning", 0, 30*time.Minute, start); err != nil {
		t.Fatal(err)
	}
	payload := stub.entryPosts[0]
	if payload["start"] != "2026-08-26T09:00:00Z" {
		t.Errorf("start: %v", payload["start"])
	}
	if payload["stop"] != "2026-08-26T09:30:00Z" {
		t.Errorf("stop: %v", payload["stop"])
	}
	if _, ok := payload["project_id"]; ok {
		t.Error("zero project_id should be omitted")
	}
}

func TestStopRunningEntry_NoActiveEntry(t *testing.T) {
	stub := &togglStub{workspaceID: 42, current: nil}
	client := newTestClient(t, stub)

	_, err := client.StopRunningEntry(context.Background())
	if !errors.Is(err, domain.ErrNoActiveEntry) {
		t.Errorf("expected ErrNoActiveEntry, got %v", err)
	}
	if len(stub.stopCalls) != 0 {
		t.Errorf("no stop call expected, got %v", stub.stopCalls)
	}
}

func TestStopRunningEntry_StopsCurrent(t *testing.T) {
	stub := &togglStub{
		workspaceID: 42,
		current:     &domain.TimeEntry{ID: 101, Description: "coding", DurationSec: -1},
	}
	client := newTestClient(t, stub)

	entry, err := client.StopRunningEntry(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if entry.Description != "coding" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(stub.stopCalls) != 1 || stub.stopCalls[0] != "/time_entries/101/stop" {
		t.Errorf("unexpected stop calls: %v", stub.stopCalls)
	}
}

func TestCurrentEntry_Running(t *testing.T) {
	stub := &togglStub{
		workspaceID: 42,
		current:     &domain.TimeEntry{ID: 101, Description: "coding", DurationSec: -1},
	}
	client := newTestClient(t, stub)

	entry, err := client.CurrentEntry(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Running() {
		t.Error("entry with negative duration should report running")
	}
}

func TestNonSuccessStatus_SurfacesTrackerError(t *testing.T) {
	stub := &togglStub{workspaceID: 42, failWith: http.StatusForbidden}
	client := newTestClient(t, stub)

	_, err := client.Clients(context.Background())
	var trackerErr *domain.TrackerError
	if !errors.As(err, &trackerErr) {
		t.Fatalf("expected *TrackerError, got %v", err)
	}
	if trackerErr.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", trackerErr.Status)
	}
	if trackerErr.Message == "" {
		t.Error("expected remote message to be carried")
	}
}
