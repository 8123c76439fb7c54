package llm

import (
	"context"
	"strings"
)

type Provider interface {
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	Close() error
}

// Complete drains a streamed answer into one string.
func Complete(ctx context.Context, p Provider, prompt string) (string, error) {
	chunks, errs := p.StreamAnswer(ctx, prompt)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	if err, ok := <-errs; ok && err != nil {
		return "", err
	}
	return b.String(), nil
}
