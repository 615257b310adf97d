package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/typestake/session"
	"github.com/m4xw311/typestake/tools"
)

// Client is the interface for interacting with a Large Language Model.
type Client interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error)
}

// MockClient is an offline Client for tests and local development. Scripted
// responses are consumed in order; once the script runs out it parrots the
// last user message.
type MockClient struct {
	mu        sync.Mutex
	Responses []*session.Message
	Calls     int
}

func (m *MockClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool) (*session.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			last = messages[i].Content
			break
		}
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("(mock) You said: %q", last),
	}, nil
}
