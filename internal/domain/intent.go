package domain

import "strings"

// Action is the fixed vocabulary of time-tracking actions the bot understands.
type Action string

const (
	ActionStartTimer   Action = "start_timer"
	ActionAddPastEntry Action = "add_past_entry"
	ActionStopTimer    Action = "stop_timer"
	ActionGetStatus    Action = "get_status"
	ActionUnknown      Action = "unknown"
)

// actionAliases maps older/looser spellings the model may emit to the
// canonical action names.
var actionAliases = map[string]Action{
	"add_entry": ActionAddPastEntry,
	"none":      ActionUnknown,
	"status":    ActionGetStatus,
}

// ParseAction normalizes a raw action string against the fixed vocabulary.
// Returns false when the string names no known action.
func ParseAction(raw string) (Action, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch Action(s) {
	case ActionStartTimer, ActionAddPastEntry, ActionStopTimer, ActionGetStatus, ActionUnknown:
		return Action(s), true
	}
	if a, ok := actionAliases[s]; ok {
		return a, true
	}
	return "", false
}

// Intent is the structured result of running user text through the
// intent extractor. It lives for one dispatch and is never stored.
type Intent struct {
	Action          Action
	Description     string
	DurationMinutes int
	ProjectID       int64
}
