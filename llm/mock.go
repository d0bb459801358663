package llm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// MockProvider fabricates responses locally. It is the fallback for every
// request when the real-API toggle is off, and for any model that does not
// resolve to a configured provider.
type MockProvider struct {
	delay time.Duration
	rng   *rand.Rand
}

// NewMockProvider creates a mock provider. delay simulates network latency;
// pass 0 for instant responses (tests).
func NewMockProvider(delay time.Duration) *MockProvider {
	return &MockProvider{
		delay: delay,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var mockTemplates = []string{
	"That's an interesting point about %q. Here is a demo response: in offline mode the client fabricates answers locally, so nothing was sent to a provider.",
	"Regarding %q - this is a mock response. Configure a provider API key and enable the real API to get live answers.",
	"I received your message %q. This reply was generated by the built-in mock provider, which simulates latency and token usage for demonstration.",
	"Here's a simulated answer to %q. The mock provider produces plausible token counts so the rest of the client behaves exactly as it would online.",
}

// Chat fabricates a response after the configured delay
func (p *MockProvider) Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Echo the tail of the last user message into a canned template
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			lastUser = messages[i].Content
			break
		}
	}
	excerpt := lastUser
	if runes := []rune(excerpt); len(runes) > 60 {
		excerpt = string(runes[:60]) + "..."
	}

	template := mockTemplates[p.rng.Intn(len(mockTemplates))]
	content := fmt.Sprintf(template, strings.TrimSpace(excerpt))

	// Prompt tokens approximate the usual 4-chars-per-token rule;
	// completion tokens are random in [50, 250).
	inputLen := 0
	for _, msg := range messages {
		inputLen += len(msg.Content)
	}
	promptTokens := inputLen / 4
	completionTokens := p.rng.Intn(200) + 50

	return &Response{
		Content:  content,
		Model:    model,
		Provider: "mock",
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// Name returns the provider name
func (p *MockProvider) Name() string {
	return "Mock"
}

// Models returns supported models
func (p *MockProvider) Models() []string {
	return []string{"mock-model"}
}

// ValidateConfig validates the configuration; the mock needs nothing
func (p *MockProvider) ValidateConfig() error {
	return nil
}
