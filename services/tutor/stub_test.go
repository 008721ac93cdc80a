package tutor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// stubModel is an in-process llms.Model. respond decides each reply; calls
// records every message list it was sent.
type stubModel struct {
	mu      sync.Mutex
	respond func(messages []llms.MessageContent) (string, error)
	calls   [][]llms.MessageContent
	delay   time.Duration
}

func newStubModel(reply string) *stubModel {
	return &stubModel{
		respond: func([]llms.MessageContent) (string, error) { return reply, nil },
	}
}

func failingModel(err error) *stubModel {
	return &stubModel{
		respond: func([]llms.MessageContent) (string, error) { return "", err },
	}
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.mu.Unlock()

	reply, err := m.respond(messages)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *stubModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *stubModel) lastCall() []llms.MessageContent {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

func textOf(msg llms.MessageContent) string {
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

var errModelDown = errors.New("model unavailable")

type staticReferences struct {
	snippets []string
	err      error
}

func (r staticReferences) TopicSnippets(context.Context, string, int) ([]string, error) {
	return r.snippets, r.err
}
