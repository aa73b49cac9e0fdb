package gemini

import (
	"errors"
	"testing"

	"togglbot/internal/domain"
)

func TestCoerceIntent_PureJSON(t *testing.T) {
	intent, err := coerceIntent(`{"action": "start_timer", "description": "coding"}`)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Action != domain.ActionStartTimer {
		t.Errorf("expected start_timer, got %s", intent.Action)
	}
	if intent.Description != "coding" {
		t.Errorf("expected coding, got %q", intent.Description)
	}
}

func TestCoerceIntent_CodeFenced(t *testing.T) {
	raw := "```json\n{\"action\": \"stop_timer\"}\n```"
	intent, err := coerceIntent(raw)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Action != domain.ActionStopTimer {
		t.Errorf("expected stop_timer, got %s", intent.Action)
	}
}

func TestCoerceIntent_SurroundingProse(t *testing.T) {
	raw := `Sure! Here is the intent:
{"action": "add_past_entry", "description": "meeting prep", "duration_minutes": 30}
Let me know if you need anything else.`
	intent, err := coerceIntent(raw)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Action != domain.ActionAddPastEntry {
		t.Errorf("expected add_past_entry, got %s", intent.Action)
	}
	if intent.DurationMinutes != 30 {
		t.Errorf("expected 30 minutes, got %d", intent.DurationMinutes)
	}
}

func TestCoerceIntent_LegacyAliases(t *testing.T) {
	intent, err := coerceIntent(`{"action": "add_entry", "description": "x", "duration_seconds": 1800}`)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Action != domain.ActionAddPastEntry {
		t.Errorf("add_entry should normalize to add_past_entry, got %s", intent.Action)
	}
	if intent.DurationMinutes != 30 {
		t.Errorf("1800 seconds should normalize to 30 minutes, got %d", intent.DurationMinutes)
	}

	intent, err = coerceIntent(`{"action": "none"}`)
	if err != nil {
		t.Fatal(err)
	}
	if intent.Action != domain.ActionUnknown {
		t.Errorf("none should normalize to unknown, got %s", intent.Action)
	}
}

func TestCoerceIntent_UnknownIsValidOutcome(t *testing.T) {
	intent, err := coerceIntent(`{"action": "unknown"}`)
	if err != nil {
		t.Fatalf("a well-formed unknown action must not be an error: %v", err)
	}
	if intent.Action != domain.ActionUnknown {
		t.Errorf("expected unknown, got %s", intent.Action)
	}
}

func TestCoerceIntent_ActionOutsideVocabulary(t *testing.T) {
	_, err := coerceIntent(`{"action": "fly_to_moon", "description": "x"}`)
	if !errors.Is(err, domain.ErrUnrecognizedIntent) {
		t.Errorf("expected ErrUnrecognizedIntent, got %v", err)
	}
}

func TestCoerceIntent_NoJSON(t *testing.T) {
	_, err := coerceIntent("I cannot help with that.")
	if !errors.Is(err, domain.ErrUnrecognizedIntent) {
		t.Errorf("expected ErrUnrecognizedIntent, got %v", err)
	}
}

func TestCoerceIntent_MalformedJSON(t *testing.T) {
	_, err := coerceIntent(`{"action": "start_timer", "description": `)
	if !errors.Is(err, domain.ErrUnrecognizedIntent) {
		t.Errorf("expected ErrUnrecognizedIntent, got %v", err)
	}
}

func TestCoerceIntent_InvalidEscapes(t *testing.T) {
	intent, err := coerceIntent(`{"action": "start_timer", "description": "50\% done"}`)
	if err != nil {
		t.Fatalf("invalid escapes should be sanitized: %v", err)
	}
	if intent.Description != "50% done" {
		t.Errorf("expected sanitized description, got %q", intent.Description)
	}
}

func TestFindJSONBounds_IgnoresBracesInStrings(t *testing.T) {
	s := `prefix {"a": "brace } in string", "b": 1} suffix`
	start, end := findJSONBounds(s)
	if start < 0 {
		t.Fatal("expected to find JSON bounds")
	}
	if s[start] != '{' || s[end-1] != '}' {
		t.Errorf("bad bounds: %q", s[start:end])
	}
	if s[start:end] != `{"a": "brace } in string", "b": 1}` {
		t.Errorf("got %q", s[start:end])
	}
}
