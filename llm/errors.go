package llm

import "fmt"

// ValidationError reports a request rejected before any work happens
// (no model selected, nothing to send).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(format string, v ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, v...)}
}

// ConfigurationError reports a provider that cannot be called at all,
// typically a missing API key. Raised before any network attempt.
type ConfigurationError struct {
	Provider string
	Message  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Provider, e.Message)
}

// ProviderError reports a non-success response from a provider. Message
// carries the provider's own error text when it was parseable.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}
