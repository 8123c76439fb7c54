// Package interview runs the lifecycle of a single voice interview session:
// dialing the call, tracking speech and transcript display state, guarding the
// camera, and handing the finished call to the result recorder.
package interview

import (
	"context"
	"errors"
)

type State int

const (
	Idle State = iota
	Connecting
	Live
	Ending
	Ended
	Aborted
)

var stateNames = [...]string{"idle", "connecting", "live", "ending", "ended", "aborted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool { return s == Ended || s == Aborted }

type EventKind string

const (
	EventConnected   EventKind = "connected"
	EventSpeechStart EventKind = "speech-start"
	EventSpeechEnd   EventKind = "speech-end"
	EventTranscript  EventKind = "transcript"
	EventTerminated  EventKind = "terminated"
)

// CallEvent is one event from the call channel, in the order the voice
// platform emitted it.
type CallEvent struct {
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Partial bool      `json:"partial,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

var (
	ErrNoIdentity    = errors.New("interview: user identity is required")
	ErrSessionActive = errors.New("interview: session already started")
	ErrNotStarted    = errors.New("interview: session not started")
	ErrCameraDenied  = errors.New("interview: camera permission denied")
	ErrClosed        = errors.New("interview: session closed")
)

// Dialer opens a new call channel for one session attempt, with userID bound
// into the call's variables so server callbacks can attribute the result.
type Dialer interface {
	Dial(ctx context.Context, userID string) (CallChannel, error)
}

// CallChannel is a live voice call owned by exactly one Controller.
type CallChannel interface {
	ID() string
	// JoinURL is where the client joins the call audio; may be empty.
	JoinURL() string
	// Events is closed when the channel is stopped or the connection drops.
	Events() <-chan CallEvent
	Stop(ctx context.Context) error
}

// Camera is the local camera preview. Open returns ErrCameraDenied when the
// user refuses permission.
type Camera interface {
	Open(ctx context.Context) error
	Close() error
}

// Recorder persists the session outcome. RecordFallback writes a placeholder
// result for a finished call unless an authoritative one already exists.
// RecordAbort marks the call aborted so that no result is ever kept for it,
// whatever the voice platform reports afterwards.
type Recorder interface {
	RecordFallback(ctx context.Context, callID, userID string) (created bool, err error)
	RecordAbort(ctx context.Context, callID, userID string) error
}

type Notice struct {
	Level    string `json:"level"` // info|error
	Message  string `json:"message"`
	Blocking bool   `json:"blocking,omitempty"`
}

// Snapshot is the display state of a session at one point in time.
type Snapshot struct {
	State            State   `json:"state"`
	CallID           string  `json:"callId,omitempty"`
	JoinURL          string  `json:"joinUrl,omitempty"`
	CameraEnabled    bool    `json:"cameraEnabled"`
	AssistantTalking bool    `json:"assistantTalking"`
	Transcript       string  `json:"transcript"`
	Saved            bool    `json:"saved"`
	Notice           *Notice `json:"notice,omitempty"`
}
