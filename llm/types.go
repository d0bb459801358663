package llm

import "context"

// Message represents a chat message
type Message struct {
	Role        string       `json:"role"` // "user" or "assistant" or "system"
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents an image attachment forwarded to multimodal providers
type Attachment struct {
	MimeType string `json:"mime_type"` // "image/png", "image/jpeg", etc.
	Data     []byte `json:"data"`
	Filename string `json:"filename"`
}

// Usage is the normalized token accounting for a single completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the uniform result of one completion call, whatever the provider
type Response struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`
}

// Provider interface defines the common interface for all LLM providers
type Provider interface {
	// Chat sends the full message history and returns the complete response.
	// Exactly one network call per invocation; no retries, no streaming.
	Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error)

	// Name returns the provider name
	Name() string

	// Models returns the list of supported models
	Models() []string

	// ValidateConfig validates the provider configuration
	ValidateConfig() error
}

// Config represents provider configuration
type Config struct {
	ProviderName string // Display name for the provider
	APIKey       string
	BaseURL      string
	Model        string   // Default model
	Models       []string // Available models list
	Timeout      int      // seconds
}
