package llm

import (
	"context"
	"strings"

	vertexgenai "cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/iterator"
)

type VertexGemini struct {
	client    *vertexgenai.Client
	modelName string
}

func NewVertexGemini(ctx context.Context, projectID, location, modelName string) (*VertexGemini, error) {
	c, err := vertexgenai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, err
	}

	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &VertexGemini{client: c, modelName: modelName}, nil
}

func (v *VertexGemini) Close() error { return v.client.Close() }

func toContent(m Message) *vertexgenai.Content {
	role := "user"
	if m.Role == "assistant" {
		role = "model"
	}
	return &vertexgenai.Content{Role: role, Parts: []vertexgenai.Part{vertexgenai.Text(m.Content)}}
}

// Generate replays history into a chat session and streams the next reply,
// collecting chunks into one string.
func (v *VertexGemini) Generate(ctx context.Context, system string, history []Message) (string, error) {
	// GenerativeModel carries the system instruction, so build one per call.
	m := v.client.GenerativeModel(v.modelName)
	if system != "" {
		m.SystemInstruction = &vertexgenai.Content{Parts: []vertexgenai.Part{vertexgenai.Text(system)}}
	}

	prompt := "Continue the interview."
	if n := len(history); n > 0 && history[n-1].Role != "assistant" {
		prompt = history[n-1].Content
		history = history[:n-1]
	}

	cs := m.StartChat()
	for _, h := range history {
		cs.History = append(cs.History, toContent(h))
	}

	it := cs.SendMessageStream(ctx, vertexgenai.Text(prompt))
	full := strings.Builder{}
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if t, ok := part.(vertexgenai.Text); ok && string(t) != "" {
					full.WriteString(string(t))
				}
			}
		}
	}

	out := strings.TrimSpace(full.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
