package llm

import (
	"context"
	"strings"
)

// Gateway maps a provider-agnostic request onto one provider branch and
// returns the uniform Response. Dispatch is keyed by the provider that
// declares the requested model; anything unresolved, and every request
// while the real API is disabled, goes to the mock provider.
type Gateway struct {
	providers  map[string]Provider // lowercase provider key -> branch
	modelIndex map[string]string   // lowercase model name -> provider key
	mock       *MockProvider
	realAPI    bool
}

// NewGateway creates a gateway over the given provider branches
func NewGateway(realAPI bool, mock *MockProvider) *Gateway {
	return &Gateway{
		providers:  make(map[string]Provider),
		modelIndex: make(map[string]string),
		mock:       mock,
		realAPI:    realAPI,
	}
}

// Register adds a provider branch under the given key and indexes its models
func (g *Gateway) Register(key string, provider Provider) {
	key = strings.ToLower(key)
	g.providers[key] = provider
	for _, model := range provider.Models() {
		g.modelIndex[strings.ToLower(model)] = key
	}
}

// Providers returns the registered provider keys
func (g *Gateway) Providers() []string {
	keys := make([]string, 0, len(g.providers))
	for key := range g.providers {
		keys = append(keys, key)
	}
	return keys
}

// ModelsFor returns the models of a registered provider, or nil
func (g *Gateway) ModelsFor(key string) []string {
	provider, ok := g.providers[strings.ToLower(key)]
	if !ok {
		return nil
	}
	return provider.Models()
}

// resolve picks the branch for a model. The mock is the deterministic
// fallback, never an error.
func (g *Gateway) resolve(model string) Provider {
	if !g.realAPI {
		return g.mock
	}
	key, ok := g.modelIndex[strings.ToLower(model)]
	if !ok {
		return g.mock
	}
	provider, ok := g.providers[key]
	if !ok {
		return g.mock
	}
	return provider
}

// Generate performs one completion call. A missing credential fails fast
// with a ConfigurationError before any network attempt; a provider failure
// surfaces as a ProviderError. There are no retries.
func (g *Gateway) Generate(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	if model == "" {
		return nil, NewValidationError("no model selected")
	}
	if len(messages) == 0 {
		return nil, NewValidationError("no messages to send")
	}

	provider := g.resolve(model)

	if err := provider.ValidateConfig(); err != nil {
		return nil, err
	}

	return provider.Chat(ctx, messages, model, params)
}
