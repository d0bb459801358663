package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	// Allow empty API key - validation happens at runtime
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	if config.ProviderName == "" {
		config.ProviderName = "OpenAI"
	}

	return &OpenAIProvider{
		client: client,
		config: config,
	}, nil
}

// Chat sends the message history and returns the complete response
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, model string, params Parameters) (*Response, error) {
	openaiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		openaiMessages = append(openaiMessages, p.convertMessage(msg))
	}

	if model == "" {
		model = p.config.Model
	}

	req := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         openaiMessages,
		MaxTokens:        params.MaxTokens,
		Temperature:      float32(params.Temperature),
		TopP:             float32(params.TopP),
		PresencePenalty:  float32(params.PresencePenalty),
		FrequencyPenalty: float32(params.FrequencyPenalty),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				Provider:   p.config.ProviderName,
				StatusCode: apiErr.HTTPStatusCode,
				Message:    apiErr.Message,
			}
		}
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.config.ProviderName, Message: "no choices in response"}
	}

	return &Response{
		Content:  resp.Choices[0].Message.Content,
		Model:    model,
		Provider: p.config.ProviderName,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// convertMessage converts our Message type to OpenAI format, handling attachments
func (p *OpenAIProvider) convertMessage(msg Message) openai.ChatCompletionMessage {
	// If no attachments, return simple text message
	if len(msg.Attachments) == 0 {
		return openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	// Build multimodal message with image attachments
	multiContent := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: msg.Content,
		},
	}

	for _, att := range msg.Attachments {
		b64 := base64.StdEncoding.EncodeToString(att.Data)
		dataURL := fmt.Sprintf("data:%s;base64,%s", att.MimeType, b64)

		multiContent = append(multiContent, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	return openai.ChatCompletionMessage{
		Role:         msg.Role,
		MultiContent: multiContent,
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.config.ProviderName
}

// Models returns supported models
func (p *OpenAIProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		openai.GPT4TurboPreview,
		openai.GPT4,
		openai.GPT3Dot5Turbo,
		"gpt-4-turbo",
		"gpt-4o",
	}
}

// ValidateConfig validates the configuration
func (p *OpenAIProvider) ValidateConfig() error {
	if p.config.APIKey == "" {
		return &ConfigurationError{Provider: p.config.ProviderName, Message: "API key is required"}
	}
	return nil
}
