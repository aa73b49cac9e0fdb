// Package bot routes one inbound Telegram update to the correct handling
// path: fixed commands, inline-button callbacks, free text through the
// intent extractor, or voice through transcription first. Every path ends
// in a reply; errors never propagate out of a dispatch.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"togglbot/internal/domain"
	"togglbot/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	callbackClientPrefix  = "client_"
	callbackProjectPrefix = "project_"
)

// Dispatcher owns one webhook delivery end to end.
type Dispatcher struct {
	tracker  domain.TimeTracker
	speech   domain.Transcriber
	intents  domain.IntentExtractor
	sessions domain.SessionStore
	msgr     Messenger
	logger   *slog.Logger
}

type Options struct {
	Tracker  domain.TimeTracker
	Speech   domain.Transcriber
	Intents  domain.IntentExtractor
	Sessions domain.SessionStore
	Msgr     Messenger
	Logger   *slog.Logger
}

func New(opts Options) *Dispatcher {
	return &Dispatcher{
		tracker:  opts.Tracker,
		speech:   opts.Speech,
		intents:  opts.Intents,
		sessions: opts.Sessions,
		msgr:     opts.Msgr,
		logger:   opts.Logger,
	}
}

func countUpdate(kind string) {
	metrics.Default.Counter(
		fmt.Sprintf("bot_updates_total{kind=%q}", kind),
		"Webhook updates received, by kind.",
	).Inc()
}

func countIntent(action domain.Action) {
	metrics.Default.Counter(
		fmt.Sprintf("bot_intents_total{action=%q}", action),
		"Extracted intents, by action.",
	).Inc()
}

func countVendorError(vendor string) {
	metrics.Default.Counter(
		fmt.Sprintf("bot_vendor_errors_total{vendor=%q}", vendor),
		"Vendor API calls that failed, by vendor.",
	).Inc()
}

// HandleUpdate classifies and processes one update. It never returns an
// error: the webhook endpoint has already answered 200 by the time this
// runs, so every failure becomes a chat reply or a log line.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		countUpdate("callback")
		d.handleCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	switch {
	case msg.Voice != nil:
		countUpdate("voice")
		d.handleVoice(ctx, chatID, msg.Voice)
	case msg.IsCommand():
		countUpdate("command")
		d.handleCommand(ctx, chatID, msg)
	case strings.TrimSpace(msg.Text) != "":
		countUpdate("text")
		d.handleText(ctx, chatID, strings.TrimSpace(msg.Text))
	}
}

// handleCommand serves the fixed command set. Commands map directly to
// client calls; the intent extractor is never involved.
func (d *Dispatcher) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		d.msgr.SendText(chatID, "👋 Hi! I track your time on Toggl.\n\nTell me things like \"start a timer for coding\" or \"add 30 minutes for meeting prep\" — typed or as a voice message.\n\nUse /clients to pick a project first, and /help for everything else.")
	case "help":
		d.msgr.SendText(chatID, "📖 *What I understand*\n\nFree text or voice:\n• \"Start a timer for writing docs\"\n• \"Add 45 minutes for planning\"\n• \"Stop the timer\"\n• \"What am I working on?\"\n\nCommands:\n/clients — choose a client, then a project\n/projects — projects for the chosen client\n/status — current running entry\n/stop — stop the running entry\n/cancel — forget the chosen client/project")
	case "clients":
		d.sendClientKeyboard(ctx, chatID)
	case "projects":
		d.sendProjectKeyboard(ctx, chatID)
	case "stop":
		d.stopTimer(ctx, chatID)
	case "status":
		d.sendStatus(ctx, chatID)
	case "cancel":
		if err := d.sessions.Clear(ctx, chatID); err != nil {
			d.logger.Error("session clear failed", "chat_id", chatID, "err", err)
		}
		d.msgr.SendText(chatID, "Selection cleared. Use /clients to choose again.")
	default:
		d.msgr.SendText(chatID, "Unknown command. Type /help for what I can do.")
	}
}

func (d *Dispatcher) sendClientKeyboard(ctx context.Context, chatID int64) {
	clients, err := d.tracker.Clients(ctx)
	if err != nil {
		d.replyTrackerError(chatID, "fetch clients", err)
		return
	}
	if len(clients) == 0 {
		d.msgr.SendText(chatID, "No clients found in your Toggl workspace.")
		return
	}
	buttons := make([]Button, 0, len(clients))
	for _, c := range clients {
		buttons = append(buttons, Button{
			Label: c.Name,
			Data:  callbackClientPrefix + strconv.FormatInt(c.ID, 10),
		})
	}
	d.msgr.SendKeyboard(chatID, "Please choose a client:", buttons)
}

func (d *Dispatcher) sendProjectKeyboard(ctx context.Context, chatID int64) {
	sess, err := d.sessions.Get(ctx, chatID)
	if err != nil {
		d.logger.Error("session lookup failed", "chat_id", chatID, "err", err)
	}
	projects, err := d.tracker.Projects(ctx, sess.ClientID)
	if err != nil {
		d.replyTrackerError(chatID, "fetch projects", err)
		return
	}
	if len(projects) == 0 {
		d.msgr.SendText(chatID, "No projects found. Pick a client with /clients first.")
		return
	}
	d.msgr.SendKeyboard(chatID, "Please choose a project:", projectButtons(projects))
}

// handleCallback continues a selection flow started by /clients. Stale or
// garbled payloads get a user-visible reply instead of crashing.
func (d *Dispatcher) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	d.msgr.AnswerCallback(cq.ID)
	if cq.Message == nil || cq.Message.Chat == nil {
		return
	}
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID

	switch {
	case strings.HasPrefix(cq.Data, callbackClientPrefix):
		clientID, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, callbackClientPrefix), 10, 64)
		if err != nil {
			d.msgr.SendText(chatID, "That button looks stale. Use /clients to start over.")
			return
		}
		if err := d.sessions.SetClient(ctx, chatID, clientID); err != nil {
			d.logger.Error("session save failed", "chat_id", chatID, "err", err)
			d.msgr.SendText(chatID, "I couldn't save that choice. Please try again.")
			return
		}
		projects, err := d.tracker.Projects(ctx, clientID)
		if err != nil {
			countVendorError("toggl")
			d.msgr.EditText(chatID, messageID, "Failed to fetch projects for that client. Please try /clients again.")
			return
		}
		if len(projects) == 0 {
			d.msgr.EditText(chatID, messageID, "No projects found for the selected client.")
			return
		}
		d.msgr.EditKeyboard(chatID, messageID, "Please choose a project:", projectButtons(projects))

	case strings.HasPrefix(cq.Data, callbackProjectPrefix):
		projectID, err := strconv.ParseInt(strings.TrimPrefix(cq.Data, callbackProjectPrefix), 10, 64)
		if err != nil {
			d.msgr.SendText(chatID, "That button looks stale. Use /clients to start over.")
			return
		}
		if err := d.sessions.SetProject(ctx, chatID, projectID); err != nil {
			d.logger.Error("session save failed", "chat_id", chatID, "err", err)
			d.msgr.SendText(chatID, "I couldn't save that choice. Please try again.")
			return
		}
		d.msgr.EditText(chatID, messageID, "Project selected ✅ Now tell me what to track, e.g. \"start a timer for coding\".")

	default:
		d.msgr.SendText(chatID, "That button has expired. Use /clients to start over.")
	}
}

// handleText runs free text through the intent extractor and executes the
// resulting action.
func (d *Dispatcher) handleText(ctx context.Context, chatID int64, text string) {
	d.msgr.SendTyping(chatID)

	intent, err := d.intents.ExtractIntent(ctx, text)
	if err != nil {
		countVendorError("gemini")
		if errors.Is(err, domain.ErrUnrecognizedIntent) {
			d.msgr.SendText(chatID, "Sorry, I got a response I couldn't make sense of. Please rephrase that.")
		} else {
			d.logger.Error("intent extraction failed", "err", err)
			d.msgr.SendText(chatID, "Sorry, I couldn't analyze that message right now. Please try again.")
		}
		return
	}

	countIntent(intent.Action)
	d.executeIntent(ctx, chatID, text, intent)
}

// executeIntent performs at most one time-tracking call for the action.
func (d *Dispatcher) executeIntent(ctx context.Context, chatID int64, text string, intent domain.Intent) {
	description := intent.Description
	if description == "" {
		description = text
	}

	switch intent.Action {
	case domain.ActionStartTimer:
		projectID := intent.ProjectID
		if projectID == 0 {
			sess, err := d.sessions.Get(ctx, chatID)
			if err != nil {
				d.logger.Error("session lookup failed", "chat_id", chatID, "err", err)
			}
			projectID = sess.ProjectID
		}
		if projectID == 0 {
			d.msgr.SendText(chatID, "Please select a project first using /clients.")
			return
		}
		entry, err := d.tracker.StartEntry(ctx, description, projectID)
		if err != nil {
			d.replyTrackerError(chatID, "start timer", err)
			return
		}
		d.msgr.SendText(chatID, fmt.Sprintf("▶️ Started timer for '%s'.", entry.Description))

	case domain.ActionAddPastEntry:
		if intent.DurationMinutes <= 0 {
			d.msgr.SendText(chatID, "I need a duration to log a past entry, e.g. \"add 30 minutes for meeting prep\".")
			return
		}
		projectID := intent.ProjectID
		if projectID == 0 {
			sess, err := d.sessions.Get(ctx, chatID)
			if err != nil {
				d.logger.Error("session lookup failed", "chat_id", chatID, "err", err)
			}
			projectID = sess.ProjectID
		}
		if projectID == 0 {
			d.msgr.SendText(chatID, "Please select a project first using /clients.")
			return
		}
		duration := time.Duration(intent.DurationMinutes) * time.Minute
		if _, err := d.tracker.AddPastEntry(ctx, description, projectID, duration, time.Time{}); err != nil {
			d.replyTrackerError(chatID, "add past entry", err)
			return
		}
		d.msgr.SendText(chatID, fmt.Sprintf("📝 Logged %d minutes for '%s'.", intent.DurationMinutes, description))

	case domain.ActionStopTimer:
		d.stopTimer(ctx, chatID)

	case domain.ActionGetStatus:
		d.sendStatus(ctx, chatID)

	case domain.ActionUnknown:
		d.msgr.SendText(chatID, "I'm not sure how to handle that. I can start timers, log past entries, stop the timer, or report what's running — see /help.")
	}
}

func (d *Dispatcher) stopTimer(ctx context.Context, chatID int64) {
	entry, err := d.tracker.StopRunningEntry(ctx)
	if errors.Is(err, domain.ErrNoActiveEntry) {
		d.msgr.SendText(chatID, "No timer is running right now.")
		return
	}
	if err != nil {
		d.replyTrackerError(chatID, "stop timer", err)
		return
	}
	desc := entry.Description
	if desc == "" {
		desc = "(no description)"
	}
	d.msgr.SendText(chatID, fmt.Sprintf("⏹ Stopped timer: '%s'.", desc))
}

func (d *Dispatcher) sendStatus(ctx context.Context, chatID int64) {
	entry, err := d.tracker.CurrentEntry(ctx)
	if errors.Is(err, domain.ErrNoActiveEntry) {
		d.msgr.SendText(chatID, "No timer is running right now.")
		return
	}
	if err != nil {
		d.replyTrackerError(chatID, "get status", err)
		return
	}
	elapsed := time.Since(entry.Start).Round(time.Minute)
	desc := entry.Description
	if desc == "" {
		desc = "(no description)"
	}
	d.msgr.SendText(chatID, fmt.Sprintf("⏱ Tracking '%s' for %s.", desc, elapsed))
}

// handleVoice transcribes the audio and re-enters the text path. A failed
// transcription gets its own reply and never reaches the intent extractor.
func (d *Dispatcher) handleVoice(ctx context.Context, chatID int64, voice *tgbotapi.Voice) {
	d.msgr.SendText(chatID, "Processing your voice message…")
	d.msgr.SendTyping(chatID)

	audio, err := d.msgr.DownloadVoice(ctx, voice.FileID)
	if err != nil {
		d.logger.Error("voice download failed", "chat_id", chatID, "err", err)
		d.msgr.SendText(chatID, "Sorry, I couldn't fetch that voice message. Please try again.")
		return
	}

	text, err := d.speech.Transcribe(ctx, audio, voice.MimeType)
	if err != nil {
		countVendorError("gemini")
		d.logger.Error("transcription failed", "chat_id", chatID, "err", err)
		d.msgr.SendText(chatID, "Sorry, I couldn't transcribe that voice message. Please try again or type it instead.")
		return
	}

	d.msgr.SendText(chatID, "🎙 Transcription: "+text)
	d.handleText(ctx, chatID, text)
}

func (d *Dispatcher) replyTrackerError(chatID int64, op string, err error) {
	countVendorError("toggl")
	d.logger.Error("toggl call failed", "op", op, "err", err)

	var trackerErr *domain.TrackerError
	if errors.As(err, &trackerErr) {
		d.msgr.SendText(chatID, fmt.Sprintf("Toggl API error (status %d). Please check your TOGGL_API_KEY and try again.", trackerErr.Status))
		return
	}
	d.msgr.SendText(chatID, fmt.Sprintf("Sorry, I couldn't %s right now. Please try again.", op))
}

func projectButtons(projects []domain.Project) []Button {
	buttons := make([]Button, 0, len(projects))
	for _, p := range projects {
		buttons = append(buttons, Button{
			Label: p.Name,
			Data:  callbackProjectPrefix + strconv.FormatInt(p.ID, 10),
		})
	}
	return buttons
}
