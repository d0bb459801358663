package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

type fakeProvider struct {
	chatFunc    func(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error)
	validateErr error
	models      []string
}

func (f *fakeProvider) Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	return f.chatFunc(ctx, messages, model, params)
}

func (f *fakeProvider) Name() string          { return "Fake" }
func (f *fakeProvider) Models() []string      { return f.models }
func (f *fakeProvider) ValidateConfig() error { return f.validateErr }

func userMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

func TestGateway_MockFallbackWhenRealAPIDisabled(t *testing.T) {
	real := &fakeProvider{
		models: []string{"fake-model"},
		chatFunc: func(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
			t.Fatal("real provider should not be called while the real API is disabled")
			return nil, nil
		},
	}

	g := NewGateway(false, NewMockProvider(0))
	g.Register("fake", real)

	resp, err := g.Generate(context.Background(), userMessage("Hello"), "fake-model", DefaultParameters())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Provider != "mock" {
		t.Errorf("Expected mock provider, got: %s", resp.Provider)
	}
	if resp.Model != "fake-model" {
		t.Errorf("Mock should echo the requested model, got: %s", resp.Model)
	}
}

func TestGateway_DispatchByModelName(t *testing.T) {
	called := false
	real := &fakeProvider{
		models: []string{"Fake-Model"},
		chatFunc: func(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
			called = true
			return &Response{Content: "ok", Model: model, Provider: "fake"}, nil
		},
	}

	g := NewGateway(true, NewMockProvider(0))
	g.Register("fake", real)

	// Model lookup is case-insensitive
	resp, err := g.Generate(context.Background(), userMessage("Hello"), "FAKE-MODEL", DefaultParameters())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !called {
		t.Error("Expected the registered provider to handle its own model")
	}
	if resp.Provider != "fake" {
		t.Errorf("Expected fake provider, got: %s", resp.Provider)
	}
}

func TestGateway_UnknownModelFallsBackToMock(t *testing.T) {
	real := &fakeProvider{
		models: []string{"fake-model"},
		chatFunc: func(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
			t.Fatal("provider should not receive a model it never declared")
			return nil, nil
		},
	}

	g := NewGateway(true, NewMockProvider(0))
	g.Register("fake", real)

	resp, err := g.Generate(context.Background(), userMessage("Hello"), "unknown-model", DefaultParameters())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Provider != "mock" {
		t.Errorf("Unknown model should fall back to the mock, got: %s", resp.Provider)
	}
}

func TestGateway_ConfigValidationFailsBeforeChat(t *testing.T) {
	real := &fakeProvider{
		models:      []string{"fake-model"},
		validateErr: &ConfigurationError{Provider: "Fake", Message: "API key not configured"},
		chatFunc: func(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
			t.Fatal("Chat should not run when configuration is invalid")
			return nil, nil
		},
	}

	g := NewGateway(true, NewMockProvider(0))
	g.Register("fake", real)

	_, err := g.Generate(context.Background(), userMessage("Hello"), "fake-model", DefaultParameters())
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected ConfigurationError, got: %v", err)
	}
}

func TestGateway_RejectsEmptyInput(t *testing.T) {
	g := NewGateway(false, NewMockProvider(0))

	var valErr *ValidationError
	if _, err := g.Generate(context.Background(), userMessage("Hello"), "", DefaultParameters()); !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError for empty model, got: %v", err)
	}
	if _, err := g.Generate(context.Background(), nil, "mock-model", DefaultParameters()); !errors.As(err, &valErr) {
		t.Errorf("Expected ValidationError for empty history, got: %v", err)
	}
}

func TestMockProvider_Usage(t *testing.T) {
	p := NewMockProvider(0)

	messages := []Message{
		{Role: "user", Content: "What is the capital of France and why is it famous worldwide?"},
	}
	inputLen := len(messages[0].Content)

	resp, err := p.Chat(context.Background(), messages, "mock-model", DefaultParameters())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Usage.PromptTokens != inputLen/4 {
		t.Errorf("Expected %d prompt tokens, got: %d", inputLen/4, resp.Usage.PromptTokens)
	}
	if resp.Usage.CompletionTokens < 50 || resp.Usage.CompletionTokens >= 250 {
		t.Errorf("Completion tokens out of range [50, 250): %d", resp.Usage.CompletionTokens)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Errorf("Total tokens should be the sum, got: %d", resp.Usage.TotalTokens)
	}
	if resp.Content == "" {
		t.Error("Mock response should not be empty")
	}
}

func TestMockProvider_MultibyteExcerptStaysValidUTF8(t *testing.T) {
	p := NewMockProvider(0)

	// Longer than the excerpt cap, entirely multi-byte runes
	long := strings.Repeat("日本語テキスト", 20)
	resp, err := p.Chat(context.Background(), userMessage(long), "mock-model", DefaultParameters())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if !utf8.ValidString(resp.Content) {
		t.Error("Truncated excerpt must not split a rune")
	}
}

func TestMockProvider_DelayRespectsContext(t *testing.T) {
	p := NewMockProvider(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Chat(ctx, userMessage("Hello"), "mock-model", DefaultParameters())
	if err == nil {
		t.Fatal("Expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Chat should return promptly on context cancellation")
	}
}

func TestParameters_MergeBounds(t *testing.T) {
	p := DefaultParameters()

	// The extremes of every range are valid, including temperature 0
	zero := 0.0
	two := 2.0
	one := 1.0
	negTwo := -2.0
	maxTok := 4096
	merged, err := p.Merge(ParameterUpdate{
		Temperature:      &zero,
		TopP:             &one,
		MaxTokens:        &maxTok,
		PresencePenalty:  &two,
		FrequencyPenalty: &negTwo,
	})
	if err != nil {
		t.Fatalf("Boundary values should be accepted: %v", err)
	}
	if merged.Temperature != 0 {
		t.Errorf("Temperature 0 must survive the merge, got: %v", merged.Temperature)
	}
	if merged.MaxTokens != 4096 || merged.PresencePenalty != 2 || merged.FrequencyPenalty != -2 {
		t.Errorf("Unexpected merged parameters: %+v", merged)
	}

	// An out-of-range field rejects the whole update
	bad := 2.1
	rejected, err := p.Merge(ParameterUpdate{Temperature: &bad})
	if err == nil {
		t.Fatal("Expected error for temperature above 2")
	}
	if rejected != p {
		t.Error("Failed merge must leave parameters unchanged")
	}

	badTokens := 0
	if _, err := p.Merge(ParameterUpdate{MaxTokens: &badTokens}); err == nil {
		t.Error("Expected error for max_tokens below 1")
	}
}

func TestParameters_MergePartial(t *testing.T) {
	p := DefaultParameters()

	temp := 1.5
	merged, err := p.Merge(ParameterUpdate{Temperature: &temp})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.Temperature != 1.5 {
		t.Errorf("Expected temperature 1.5, got: %v", merged.Temperature)
	}
	if merged.MaxTokens != p.MaxTokens || merged.TopP != p.TopP {
		t.Error("Unset fields must keep their previous values")
	}
}
