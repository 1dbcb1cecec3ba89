package llm

import (
	"context"
	"errors"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

const (
	defaultVertexModel = "gemini-1.5-flash"

	replyTemperature = 0.2
	replyMaxTokens   = 512

	supportInstruction = "You are a customer support assistant. Answer from the provided knowledge base excerpts when they are relevant, keep replies short, and say so when you are unsure."
)

// VertexGemini answers support questions with a Gemini model on Vertex AI.
type VertexGemini struct {
	client *vertexgenai.Client
	model  *vertexgenai.GenerativeModel
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	if modelName == "" {
		modelName = defaultVertexModel
	}
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	m := c.GenerativeModel(modelName)
	m.SetTemperature(replyTemperature)
	m.SetMaxOutputTokens(replyMaxTokens)
	m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(supportInstruction)}}
	return &VertexGemini{client: c, model: m}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

// StreamAnswer emits text parts as the model produces them. Both channels are
// closed when the stream ends; a cancelled ctx ends it early with ctx.Err().
func (v *VertexGemini) StreamAnswer(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		it := v.model.GenerateContentStream(ctx, vertexgenai.Text(prompt))
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			for _, text := range textParts(resp) {
				select {
				case out <- text:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return out, errs
}

func textParts(resp *vertexgenai.GenerateContentResponse) []string {
	var parts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(vertexgenai.Text); ok && t != "" {
				parts = append(parts, string(t))
			}
		}
	}
	return parts
}
