package workers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Preyoshi04/MockWise/internal/models"
)

const maxPromptTranscript = 24000

var errNoJSON = errors.New("model output has no JSON object")

func reviewPrompt(rec *models.InterviewResult) string {
	transcript := tailRunes(rec.Transcript, maxPromptTranscript)

	var b strings.Builder
	b.WriteString("Evaluate the candidate in this mock technical interview.\n")
	b.WriteString(`Return JSON: {"role": string, "techStack": string, "level": string, "score": integer 0-100, "feedback": string}.`)
	b.WriteString("\nKeep feedback under 120 words and address the candidate directly.\n")
	if rec.Summary != "" {
		b.WriteString("\nCall summary:\n")
		b.WriteString(rec.Summary)
		b.WriteString("\n")
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// tailRunes keeps at most max bytes from the end of s without splitting a
// UTF-8 sequence.
func tailRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return s[cut:]
}

type reviewOutput struct {
	Role      string      `json:"role"`
	TechStack string      `json:"techStack"`
	Level     string      `json:"level"`
	Score     json.Number `json:"score"`
	Feedback  string      `json:"feedback"`
}

// parseReview extracts the evaluation from model output, tolerating code
// fences and chatter around the JSON object.
func parseReview(out string) (models.Evaluation, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return models.Evaluation{}, errNoJSON
	}

	var r reviewOutput
	if err := json.Unmarshal([]byte(out[start:end+1]), &r); err != nil {
		return models.Evaluation{}, fmt.Errorf("decode review: %w", err)
	}
	score, err := r.Score.Float64()
	if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
		return models.Evaluation{}, fmt.Errorf("review score %q is not a number", r.Score)
	}
	if strings.TrimSpace(r.Feedback) == "" {
		return models.Evaluation{}, errors.New("review has no feedback")
	}
	return models.Evaluation{
		Role:      r.Role,
		TechStack: r.TechStack,
		Level:     r.Level,
		Score:     int(math.Round(math.Max(0, math.Min(100, score)))),
		Feedback:  strings.TrimSpace(r.Feedback),
	}, nil
}
