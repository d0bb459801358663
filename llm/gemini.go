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

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	apiKey  string
	baseURL string
	config  Config
	client  *http.Client
}

// GeminiContent represents content in Gemini's format
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

// GeminiPart represents a part of content
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

// GeminiInlineData represents inline data (e.g., images)
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

// GeminiRequest represents a request to Gemini API
type GeminiRequest struct {
	Contents          []GeminiContent         `json:"contents"`
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiGenerationConfig represents generation configuration
type GeminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	PresencePenalty  float64 `json:"presencePenalty,omitempty"`
	FrequencyPenalty float64 `json:"frequencyPenalty,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
		Index        int    `json:"index"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

// GeminiErrorResponse represents an error body from Gemini API
type GeminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Gemini"
	}

	return &GeminiProvider{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		config:  config,
		client:  &http.Client{},
	}, nil
}

// Chat sends the message history and returns the complete response
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	contents, system := p.convertMessages(messages)

	if model == "" {
		model = p.config.Model
	}

	req := GeminiRequest{
		Contents: contents,
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:      params.Temperature,
			MaxOutputTokens:  params.MaxTokens,
			TopP:             params.TopP,
			PresencePenalty:  params.PresencePenalty,
			FrequencyPenalty: params.FrequencyPenalty,
		},
	}
	if system != "" {
		req.SystemInstruction = &GeminiContent{Parts: []GeminiPart{{Text: system}}}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, p.apiError(resp.StatusCode, body)
	}

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return nil, &ProviderError{Provider: p.config.ProviderName, Message: "no candidates in response"}
	}

	var content string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content += part.Text
	}

	usage := Usage{}
	if geminiResp.UsageMetadata != nil {
		usage = Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		}
	}

	return &Response{
		Content:  content,
		Model:    model,
		Provider: p.config.ProviderName,
		Usage:    usage,
	}, nil
}

// apiError maps a non-success status to a ProviderError
func (p *GeminiProvider) apiError(status int, body []byte) error {
	var errResp GeminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{Provider: p.config.ProviderName, StatusCode: status, Message: errResp.Error.Message}
	}
	return &ProviderError{Provider: p.config.ProviderName, StatusCode: status, Message: string(body)}
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *GeminiProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		"gemini-1.5-flash",
		"gemini-1.5-pro",
		"gemini-2.0-flash-exp",
	}
}

// ValidateConfig validates the configuration
func (p *GeminiProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return &ConfigurationError{Provider: p.config.ProviderName, Message: "API key is required"}
	}
	return nil
}

// convertMessages converts our Message format to Gemini's format.
// Gemini names the assistant role "model" and takes system text through
// systemInstruction, so both are remapped here.
func (p *GeminiProvider) convertMessages(messages []Message) ([]GeminiContent, string) {
	var contents []GeminiContent
	var system string

	for _, msg := range messages {
		if msg.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		parts := []GeminiPart{{Text: msg.Content}}
		for _, att := range msg.Attachments {
			parts = append(parts, GeminiPart{
				InlineData: &GeminiInlineData{
					MimeType: att.MimeType,
					Data:     base64.StdEncoding.EncodeToString(att.Data),
				},
			})
		}

		contents = append(contents, GeminiContent{
			Parts: parts,
			Role:  role,
		})
	}

	return contents, system
}
