package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Message is one conversational turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// Provider is the text-generation capability. Generate blocks until the full
// reply is available.
type Provider interface {
	Generate(ctx context.Context, system string, history []Message) (string, error)
	Close() error
}

type timeoutProvider struct {
	Provider
	d time.Duration
}

// WithTimeout bounds every Generate call; a timeout surfaces as an error like
// any other generation failure.
func WithTimeout(p Provider, d time.Duration) Provider {
	if d <= 0 {
		return p
	}
	return &timeoutProvider{Provider: p, d: d}
}

func (t *timeoutProvider) Generate(ctx context.Context, system string, history []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.Provider.Generate(ctx, system, history)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
