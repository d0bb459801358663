package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ClaudeProvider implements the Provider interface for Anthropic Claude
type ClaudeProvider struct {
	apiKey  string
	baseURL string
	config  Config
	client  *http.Client
}

// ClaudeMessage represents a message in Claude's format
type ClaudeMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // Can be string or []ClaudeContentBlock
}

// ClaudeContentBlock represents a content block in Claude's multimodal format
type ClaudeContentBlock struct {
	Type   string             `json:"type"` // "text" or "image"
	Text   string             `json:"text,omitempty"`
	Source *ClaudeImageSource `json:"source,omitempty"`
}

// ClaudeImageSource represents an image source in Claude's format
type ClaudeImageSource struct {
	Type      string `json:"type"`       // "base64"
	MediaType string `json:"media_type"` // "image/jpeg", "image/png", etc.
	Data      string `json:"data"`       // base64 encoded image data
}

// ClaudeRequest represents a request to Claude API
type ClaudeRequest struct {
	Model       string          `json:"model"`
	Messages    []ClaudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	System      string          `json:"system,omitempty"`
}

// ClaudeResponse represents a response from Claude API
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ClaudeErrorResponse represents an error body from Claude API
type ClaudeErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClaudeProvider creates a new Claude provider
func NewClaudeProvider(config Config) (*ClaudeProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}

	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Claude"
	}

	return &ClaudeProvider{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		config:  config,
		client:  &http.Client{},
	}, nil
}

// Chat sends the message history and returns the complete response
func (p *ClaudeProvider) Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	// Convert messages to Claude format and extract system message
	claudeMessages, systemPrompt := p.convertMessages(messages)

	if model == "" {
		model = p.config.Model
	}

	req := ClaudeRequest{
		Model:       model,
		Messages:    claudeMessages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		System:      systemPrompt,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.apiError(resp.StatusCode, body)
	}

	var claudeResp ClaudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&claudeResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(claudeResp.Content) == 0 {
		return nil, &ProviderError{Provider: p.config.ProviderName, Message: "no content in response"}
	}

	return &Response{
		Content:  claudeResp.Content[0].Text,
		Model:    model,
		Provider: p.config.ProviderName,
		Usage: Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}, nil
}

// apiError maps a non-success status to a ProviderError, surfacing the
// provider's own message when the body is parseable
func (p *ClaudeProvider) apiError(status int, body []byte) error {
	var errResp ClaudeErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{Provider: p.config.ProviderName, StatusCode: status, Message: errResp.Error.Message}
	}
	return &ProviderError{Provider: p.config.ProviderName, StatusCode: status, Message: string(body)}
}

// Name returns the provider name
func (p *ClaudeProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *ClaudeProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// ValidateConfig validates the configuration
func (p *ClaudeProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return &ConfigurationError{Provider: p.config.ProviderName, Message: "API key is required"}
	}
	return nil
}

// convertMessages converts our Message format to Claude's format.
// Claude takes the system prompt out-of-band, so system messages are
// extracted and concatenated rather than sent in the message array.
func (p *ClaudeProvider) convertMessages(messages []Message) ([]ClaudeMessage, string) {
	var claudeMessages []ClaudeMessage
	var systemPrompt string

	for _, msg := range messages {
		if msg.Role == "system" {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		}
	}

	for _, msg := range messages {
		if msg.Role == "system" {
			continue // Already handled
		}

		if len(msg.Attachments) == 0 {
			claudeMessages = append(claudeMessages, ClaudeMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
			continue
		}

		// Multimodal message with content blocks
		contentBlocks := []ClaudeContentBlock{
			{
				Type: "text",
				Text: msg.Content,
			},
		}

		for _, att := range msg.Attachments {
			b64 := base64.StdEncoding.EncodeToString(att.Data)
			contentBlocks = append(contentBlocks, ClaudeContentBlock{
				Type: "image",
				Source: &ClaudeImageSource{
					Type:      "base64",
					MediaType: att.MimeType,
					Data:      b64,
				},
			})
		}

		claudeMessages = append(claudeMessages, ClaudeMessage{
			Role:    msg.Role,
			Content: contentBlocks,
		})
	}

	return claudeMessages, systemPrompt
}

// setHeaders sets the required headers for Claude API requests
func (p *ClaudeProvider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}
