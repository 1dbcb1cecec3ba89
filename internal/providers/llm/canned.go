package llm

import (
	"context"
	"math/rand/v2"
	"strings"
)

var cannedReplies = []string{
	"I understand your concern. Let me help you with that.",
	"Based on our knowledge base, here's what I found...",
	"That's a common issue. Here's how to resolve it:",
	"I've checked our documentation and found a solution.",
	"Let me walk you through the steps to fix this.",
}

// Canned answers without a model. It is used when Vertex AI is not
// configured; Pick can be replaced for deterministic tests.
type Canned struct {
	Pick func(n int) int
}

func (c *Canned) Close() error { return nil }

func (c *Canned) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 8)
	errs := make(chan error, 1)

	pick := rand.IntN
	if c.Pick != nil {
		pick = c.Pick
	}
	reply := cannedReplies[pick(len(cannedReplies))]

	go func() {
		defer close(out)
		defer close(errs)
		for i, w := range strings.Fields(reply) {
			if i > 0 {
				w = " " + w
			}
			select {
			case out <- w:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return out, errs
}
