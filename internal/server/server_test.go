package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// recordingDispatcher signals on a channel so tests can wait for the
// detached dispatch goroutine.
type recordingDispatcher struct {
	updates chan tgbotapi.Update
	ctxs    chan context.Context
}

func (d *recordingDispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if d.ctxs != nil {
		d.ctxs <- ctx
	}
	d.updates <- update
}

func newTestServer(t *testing.T) (*Server, *recordingDispatcher) {
	t.Helper()
	dispatcher := &recordingDispatcher{updates: make(chan tgbotapi.Update, 1)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	srv := New(Config{Path: "/webhook", Dispatcher: dispatcher, Logger: logger})
	return srv, dispatcher
}

func TestWebhook_ValidUpdateDispatched(t *testing.T) {
	srv, dispatcher := newTestServer(t)

	body := `{"update_id": 42, "message": {"message_id": 1, "chat": {"id": 7}, "text": "hello"}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); !strings.Contains(got, `"status":"ok"`) {
		t.Errorf("body: %s", got)
	}

	select {
	case update := <-dispatcher.updates:
		if update.UpdateID != 42 {
			t.Errorf("update_id = %d", update.UpdateID)
		}
		if update.Message == nil || update.Message.Text != "hello" {
			t.Errorf("message not decoded: %+v", update.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("update never reached the dispatcher")
	}
}

func TestWebhook_MalformedJSONRejected(t *testing.T) {
	srv, dispatcher := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	select {
	case <-dispatcher.updates:
		t.Error("malformed body must not be dispatched")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhook_GetNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebhook_DispatchContextCancelledByShutdown(t *testing.T) {
	srv, dispatcher := newTestServer(t)
	dispatcher.ctxs = make(chan context.Context, 1)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id": 1}`))
	srv.handleWebhook(httptest.NewRecorder(), req)

	var dispatchCtx context.Context
	select {
	case dispatchCtx = <-dispatcher.ctxs:
	case <-time.After(time.Second):
		t.Fatal("dispatch never ran")
	}
	<-dispatcher.updates

	select {
	case <-dispatchCtx.Done():
		t.Fatal("dispatch context cancelled before shutdown")
	default:
	}

	srv.stopDispatches()

	select {
	case <-dispatchCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("shutdown must cancel in-flight dispatch contexts")
	}
}

func TestWebhook_DispatchesTrackedForDrain(t *testing.T) {
	srv, _ := newTestServer(t)
	release := make(chan struct{})
	srv.dispatcher = &blockingDispatcher{release: release}

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id": 1}`))
	srv.handleWebhook(httptest.NewRecorder(), req)

	drained := make(chan struct{})
	go func() {
		srv.dispatches.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("drain must wait for the in-flight dispatch")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("drain never completed after the dispatch finished")
	}
}

type blockingDispatcher struct {
	release chan struct{}
}

func (d *blockingDispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	<-d.release
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("body: %q", body)
	}
}

func TestHome_RootOnly(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHome(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET / status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleHome(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}
