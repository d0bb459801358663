package llm

import "fmt"

// Parameters holds the sampling parameters applied to every completion call.
// Zero values are meaningful (temperature 0 is greedy decoding), so the
// struct always carries explicit values; defaults come from DefaultParameters.
type Parameters struct {
	Temperature      float64 `json:"temperature"`       // 0 - 2
	MaxTokens        int     `json:"max_tokens"`        // 1 - 4096
	TopP             float64 `json:"top_p"`             // 0 - 1
	PresencePenalty  float64 `json:"presence_penalty"`  // -2 - 2
	FrequencyPenalty float64 `json:"frequency_penalty"` // -2 - 2
}

// DefaultParameters returns the starting parameters for a new session
func DefaultParameters() Parameters {
	return Parameters{
		Temperature:      0.7,
		MaxTokens:        2048,
		TopP:             1.0,
		PresencePenalty:  0,
		FrequencyPenalty: 0,
	}
}

// ParameterUpdate is a partial update: nil fields are left unchanged
type ParameterUpdate struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
}

// Merge applies an update onto p, validating each supplied field against its
// documented bounds. On error p is returned unchanged.
func (p Parameters) Merge(u ParameterUpdate) (Parameters, error) {
	merged := p
	if u.Temperature != nil {
		if *u.Temperature < 0 || *u.Temperature > 2 {
			return p, fmt.Errorf("temperature must be between 0 and 2, got %.2f", *u.Temperature)
		}
		merged.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		if *u.MaxTokens < 1 || *u.MaxTokens > 4096 {
			return p, fmt.Errorf("max_tokens must be between 1 and 4096, got %d", *u.MaxTokens)
		}
		merged.MaxTokens = *u.MaxTokens
	}
	if u.TopP != nil {
		if *u.TopP < 0 || *u.TopP > 1 {
			return p, fmt.Errorf("top_p must be between 0 and 1, got %.2f", *u.TopP)
		}
		merged.TopP = *u.TopP
	}
	if u.PresencePenalty != nil {
		if *u.PresencePenalty < -2 || *u.PresencePenalty > 2 {
			return p, fmt.Errorf("presence_penalty must be between -2 and 2, got %.2f", *u.PresencePenalty)
		}
		merged.PresencePenalty = *u.PresencePenalty
	}
	if u.FrequencyPenalty != nil {
		if *u.FrequencyPenalty < -2 || *u.FrequencyPenalty > 2 {
			return p, fmt.Errorf("frequency_penalty must be between -2 and 2, got %.2f", *u.FrequencyPenalty)
		}
		merged.FrequencyPenalty = *u.FrequencyPenalty
	}
	return merged, nil
}
