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

// Collect drains a stream into one answer. The first stream error wins.
func Collect(ctx context.Context, p Provider, prompt string) (string, error) {
	chunks, errs := p.StreamAnswer(ctx, prompt)

	var full strings.Builder
	for chunk := range chunks {
		full.WriteString(chunk)
	}

	select {
	case err := <-errs:
		if err != nil {
			return "", err
		}
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(full.String()), nil
}
