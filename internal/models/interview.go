package models

import "time"

const (
	StatusEvaluated = "Evaluated"
	StatusPending   = "Pending Evaluation"
	// StatusAborted marks a call whose session was aborted. The document is
	// a tombstone: reads skip it and later writes for the call are refused.
	StatusAborted = "Aborted"
)

const (
	SourceWebhook          = "webhook"
	SourceClientFallback   = "client-fallback"
	SourceTranscriptReview = "transcript-review"
	SourceCallReport       = "call-report"
	SourceSessionAbort     = "session-abort"
)

// Defaults applied to evaluation fields the voice platform left out.
const (
	DefaultUserID    = "no-id-found"
	DefaultRole      = "Technical Interview"
	DefaultTechStack = "General"
	DefaultLevel     = "Standard"
	DefaultFeedback  = "No feedback provided."
	PendingFeedback  = "Evaluation pending."
)

// InterviewResult is one finished interview. ID is the voice platform call id,
// so repeated deliveries for the same call land on the same document.
type InterviewResult struct {
	ID     string `bson:"_id" json:"interviewId"`
	CallID string `bson:"call_id" json:"callId"`
	UserID string `bson:"user_id" json:"userId"`

	Role      string `bson:"role" json:"role"`
	TechStack string `bson:"tech_stack" json:"techStack"`
	Level     string `bson:"level" json:"level"`
	Score     int    `bson:"score" json:"score"`
	Feedback  string `bson:"feedback" json:"feedback"`

	Status string `bson:"status" json:"status"`
	Source string `bson:"source" json:"source"`

	Summary         string `bson:"summary,omitempty" json:"summary,omitempty"`
	Transcript      string `bson:"transcript,omitempty" json:"transcript,omitempty"`
	RecordingURL    string `bson:"recording_url,omitempty" json:"recordingUrl,omitempty"`
	RecordingPath   string `bson:"recording_path,omitempty" json:"recordingPath,omitempty"`
	EndedReason     string `bson:"ended_reason,omitempty" json:"endedReason,omitempty"`
	DurationSeconds int64  `bson:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Evaluation is the normalized content of an evaluate_interview tool call.
type Evaluation struct {
	CallID    string
	UserID    string
	Role      string
	TechStack string
	Level     string
	Score     int
	Feedback  string
}

// CallReport carries the end-of-call report fields merged into a result.
type CallReport struct {
	CallID          string
	UserID          string
	Summary         string
	Transcript      string
	RecordingURL    string
	EndedReason     string
	DurationSeconds int64
}
