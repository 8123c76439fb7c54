// Package vapi speaks the Vapi voice platform's wire formats: server
// callbacks delivered to the webhook, and the REST API used to place web
// calls.
package vapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Preyoshi04/MockWise/internal/interview"
	"github.com/Preyoshi04/MockWise/internal/models"
)

// Server message types.
const (
	TypeToolCalls       = "tool-calls"
	TypeStatusUpdate    = "status-update"
	TypeSpeechUpdate    = "speech-update"
	TypeTranscript      = "transcript"
	TypeEndOfCallReport = "end-of-call-report"
)

// EvaluateInterviewFn is the assistant tool that carries the final verdict.
const EvaluateInterviewFn = "evaluate_interview"

const (
	callVariableUserID    = "userId"
	transcriptTypePartial = "partial"
)

var (
	ErrMalformedBody      = errors.New("vapi: malformed callback body")
	ErrMissingArguments   = errors.New("vapi: tool call arguments missing")
	ErrArgumentsNotObject = errors.New("vapi: tool call arguments are not a JSON object")
)

// ServerMessage is a normalized server callback.
type ServerMessage struct {
	Type string
	// CallID is empty when no known location carried one.
	CallID string
	// CallUserID is the userId call variable bound when the call was created.
	CallUserID string

	ToolCalls []ToolCall

	Status         string
	EndedReason    string
	Role           string
	TranscriptType string
	Transcript     string

	Summary         string
	RecordingURL    string
	DurationSeconds float64
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type wireBody struct {
	Message *wireMessage `json:"message"`
	Call    *wireCall    `json:"call"`
	CallID  string       `json:"callId"`
}

type wireMessage struct {
	Type   string    `json:"type"`
	Call   *wireCall `json:"call"`
	CallID string    `json:"callId"`

	ToolCalls    []wireToolCall `json:"toolCalls"`
	ToolCallList []wireToolCall `json:"toolCallList"`

	Status         string `json:"status"`
	EndedReason    string `json:"endedReason"`
	Role           string `json:"role"`
	TranscriptType string `json:"transcriptType"`
	Transcript     string `json:"transcript"`

	Summary         string  `json:"summary"`
	RecordingURL    string  `json:"recordingUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
	Artifact        *struct {
		Transcript   string `json:"transcript"`
		RecordingURL string `json:"recordingUrl"`
	} `json:"artifact"`
	Analysis *struct {
		Summary string `json:"summary"`
	} `json:"analysis"`
}

type wireCall struct {
	ID                 string `json:"id"`
	AssistantOverrides *struct {
		VariableValues map[string]any `json:"variableValues"`
	} `json:"assistantOverrides"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// ParseServerMessage decodes a callback body. The call id is looked up in order
// at message.call.id, message.callId, call.id and callId.
func ParseServerMessage(body []byte) (*ServerMessage, error) {
	var w wireBody
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	out := &ServerMessage{}
	m := w.Message
	if m == nil {
		m = &wireMessage{}
	}
	out.Type = strings.TrimSpace(m.Type)

	switch {
	case m.Call != nil && m.Call.ID != "":
		out.CallID = m.Call.ID
	case m.CallID != "":
		out.CallID = m.CallID
	case w.Call != nil && w.Call.ID != "":
		out.CallID = w.Call.ID
	default:
		out.CallID = w.CallID
	}
	out.CallID = strings.TrimSpace(out.CallID)

	if v := callVariable(m.Call, callVariableUserID); v != "" {
		out.CallUserID = v
	} else {
		out.CallUserID = callVariable(w.Call, callVariableUserID)
	}

	calls := m.ToolCalls
	if len(calls) == 0 {
		calls = m.ToolCallList
	}
	for _, tc := range calls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	out.Status = m.Status
	out.EndedReason = m.EndedReason
	out.Role = m.Role
	out.TranscriptType = m.TranscriptType
	out.Transcript = m.Transcript
	out.Summary = m.Summary
	out.RecordingURL = m.RecordingURL
	out.DurationSeconds = m.DurationSeconds
	if m.Artifact != nil {
		if out.Transcript == "" {
			out.Transcript = m.Artifact.Transcript
		}
		if out.RecordingURL == "" {
			out.RecordingURL = m.Artifact.RecordingURL
		}
	}
	if out.Summary == "" && m.Analysis != nil {
		out.Summary = m.Analysis.Summary
	}
	return out, nil
}

func callVariable(c *wireCall, key string) string {
	if c == nil || c.AssistantOverrides == nil {
		return ""
	}
	s, _ := c.AssistantOverrides.VariableValues[key].(string)
	return strings.TrimSpace(s)
}

// FirstToolCall returns the first tool call if it has the given name. Later
// tool calls in the same message are ignored.
func (m *ServerMessage) FirstToolCall(name string) (ToolCall, bool) {
	if len(m.ToolCalls) == 0 || m.ToolCalls[0].Name != name {
		return ToolCall{}, false
	}
	return m.ToolCalls[0], true
}

// DecodeArguments accepts arguments sent either as a JSON object or as a
// string containing one.
func (tc ToolCall) DecodeArguments() (map[string]any, error) {
	raw := bytes.TrimSpace(tc.Arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrMissingArguments
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArgumentsNotObject, err)
		}
		raw = bytes.TrimSpace([]byte(s))
		if len(raw) == 0 {
			return nil, ErrMissingArguments
		}
	}
	if raw[0] != '{' {
		return nil, ErrArgumentsNotObject
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArgumentsNotObject, err)
	}
	return out, nil
}

// Evaluation maps evaluate_interview arguments onto an Evaluation. Fields the
// caller left out stay empty; defaults are applied by the recorder.
func (tc ToolCall) Evaluation(callID string) (models.Evaluation, error) {
	args, err := tc.DecodeArguments()
	if err != nil {
		return models.Evaluation{}, err
	}
	return models.Evaluation{
		CallID:    callID,
		UserID:    stringArg(args["userId"]),
		Role:      stringArg(args["role"]),
		TechStack: stringArg(args["techStack"]),
		Level:     stringArg(args["level"]),
		Score:     scoreArg(args["score"]),
		Feedback:  stringArg(args["feedback"]),
	}, nil
}

func stringArg(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// scoreArg converts numbers, numeric strings and booleans to a score in
// 0..100. Anything else is 0.
func scoreArg(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = p
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	// clamp before converting; int() of a huge float is undefined
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

// CallEvent translates a live-call callback into a controller event. The
// second return is false for messages the session controller does not use.
func (m *ServerMessage) CallEvent() (interview.CallEvent, bool) {
	switch {
	case m.Type == TypeStatusUpdate:
		switch m.Status {
		case "in-progress":
			return interview.CallEvent{Kind: interview.EventConnected}, true
		case "ended":
			return interview.CallEvent{Kind: interview.EventTerminated, Reason: m.EndedReason}, true
		}
	case m.Type == TypeSpeechUpdate:
		if m.Role != "assistant" {
			return interview.CallEvent{}, false
		}
		switch m.Status {
		case "started":
			return interview.CallEvent{Kind: interview.EventSpeechStart}, true
		case "stopped":
			return interview.CallEvent{Kind: interview.EventSpeechEnd}, true
		}
	case strings.HasPrefix(m.Type, TypeTranscript):
		partial := m.TranscriptType == transcriptTypePartial ||
			strings.Contains(m.Type, `transcriptType="partial"`)
		return interview.CallEvent{Kind: interview.EventTranscript, Text: m.Transcript, Partial: partial}, true
	case m.Type == TypeEndOfCallReport:
		return interview.CallEvent{Kind: interview.EventTerminated, Reason: m.EndedReason}, true
	}
	return interview.CallEvent{}, false
}

func (m *ServerMessage) CallReport() models.CallReport {
	d := int64(math.Round(m.DurationSeconds))
	if d < 0 {
		d = 0
	}
	return models.CallReport{
		CallID:          m.CallID,
		UserID:          m.CallUserID,
		Summary:         m.Summary,
		Transcript:      m.Transcript,
		RecordingURL:    m.RecordingURL,
		EndedReason:     m.EndedReason,
		DurationSeconds: d,
	}
}
