package domain

import (
	"errors"
	"fmt"
)

// ErrNoActiveEntry is returned when a stop or status operation finds
// nothing running on the remote service.
var ErrNoActiveEntry = errors.New("no active time entry")

// ErrTranscriptionFailed is returned when the AI service cannot produce
// text from an audio message.
var ErrTranscriptionFailed = errors.New("transcription failed")

// ErrUnrecognizedIntent is returned when the model's response cannot be
// coerced to a known action. This is distinct from a well-formed "unknown"
// intent, which is a legitimate classification outcome.
var ErrUnrecognizedIntent = errors.New("unrecognized intent format")

// TrackerError carries a non-success status from the time-tracking API.
type TrackerError struct {
	Status  int
	Message string
}

func (e *TrackerError) Error() string {
	return fmt.Sprintf("time-tracking API error (status %d): %s", e.Status, e.Message)
}
