package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"ai-chat-studio/store"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
	FormatText     ExportFormat = "text"
)

// ConversationExport represents a conversation export structure
type ConversationExport struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Model       string            `json:"model,omitempty"`
	TotalTokens int               `json:"total_tokens,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Messages    []MessageExport   `json:"messages"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// MessageExport represents a message export structure
type MessageExport struct {
	ID               string    `json:"id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	Attachments      string    `json:"attachments,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func buildExport(conv *store.Conversation, messages []store.Message) ConversationExport {
	export := ConversationExport{
		ID:          conv.ID,
		Title:       conv.Title,
		Model:       conv.Model,
		TotalTokens: conv.TotalTokens,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
		Messages:    make([]MessageExport, 0, len(messages)),
		Metadata: map[string]string{
			"export_version": "1.0",
			"export_date":    time.Now().Format(time.RFC3339),
			"app_name":       "AI Chat Studio",
		},
	}

	for _, msg := range messages {
		export.Messages = append(export.Messages, MessageExport{
			ID:               msg.ID,
			Role:             msg.Role,
			Content:          msg.Content,
			Model:            msg.Model,
			PromptTokens:     msg.PromptTokens,
			CompletionTokens: msg.CompletionTokens,
			TotalTokens:      msg.TotalTokens,
			Attachments:      msg.Attachments,
			CreatedAt:        msg.CreatedAt,
		})
	}

	return export
}

// FormatConversationJSON renders a conversation as pretty-printed JSON
func FormatConversationJSON(conv *store.Conversation, messages []store.Message) (string, error) {
	data, err := json.MarshalIndent(buildExport(conv, messages), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func roleLabel(role string) string {
	switch role {
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	default:
		return "User"
	}
}

// FormatConversationMarkdown renders a conversation as a Markdown transcript
func FormatConversationMarkdown(conv *store.Conversation, messages []store.Message) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))
	sb.WriteString(fmt.Sprintf("**Created**: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	if conv.Model != "" {
		sb.WriteString(fmt.Sprintf("**Model**: %s\n", conv.Model))
	}
	if conv.TotalTokens > 0 {
		sb.WriteString(fmt.Sprintf("**Total tokens**: %d\n", conv.TotalTokens))
	}
	sb.WriteString("\n---\n\n")

	// Messages
	for i, msg := range messages {
		sb.WriteString(fmt.Sprintf("## %s\n\n", roleLabel(msg.Role)))
		sb.WriteString(fmt.Sprintf("*%s*", msg.CreatedAt.Format("2006-01-02 15:04:05")))
		if msg.Model != "" {
			sb.WriteString(fmt.Sprintf(" - *%s*", msg.Model))
		}
		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n")

		if i < len(messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported: %s*\n", time.Now().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// FormatConversationText renders a conversation as plain text with
// ASCII-only separators
func FormatConversationText(conv *store.Conversation, messages []store.Message) string {
	const rule = "----------------------------------------"

	var sb strings.Builder
	sb.WriteString(conv.Title + "\n")
	sb.WriteString(rule + "\n")
	sb.WriteString(fmt.Sprintf("Created: %s\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	if conv.Model != "" {
		sb.WriteString(fmt.Sprintf("Model: %s\n", conv.Model))
	}
	if conv.TotalTokens > 0 {
		sb.WriteString(fmt.Sprintf("Total tokens: %d\n", conv.TotalTokens))
	}
	sb.WriteString(rule + "\n\n")

	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", roleLabel(msg.Role), msg.CreatedAt.Format("2006-01-02 15:04:05")))
		sb.WriteString(msg.Content + "\n")
		sb.WriteString(rule + "\n\n")
	}

	return sb.String()
}

// FormatConversation renders a conversation in the given format
func FormatConversation(conv *store.Conversation, messages []store.Message, format ExportFormat) (string, error) {
	switch format {
	case FormatJSON:
		return FormatConversationJSON(conv, messages)
	case FormatMarkdown:
		return FormatConversationMarkdown(conv, messages), nil
	case FormatText:
		return FormatConversationText(conv, messages), nil
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}
}

// ExportConversationToFile writes a conversation to disk in the given format
func ExportConversationToFile(st *store.Store, conversationID string, format ExportFormat, path string) error {
	conv, messages, err := st.GetConversation(conversationID)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return store.ErrNotFound
	}

	content, err := FormatConversation(conv, messages, format)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ExportAllConversations exports all conversations to a single JSON file
func ExportAllConversations(st *store.Store, path string) error {
	conversations, err := st.ListConversations(10000, 0) // Large limit to get all
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	exports := make([]ConversationExport, 0, len(conversations))
	for _, conv := range conversations {
		_, messages, err := st.GetConversation(conv.ID)
		if err != nil {
			return fmt.Errorf("failed to get messages for conversation %s: %w", conv.ID, err)
		}
		export := buildExport(conv, messages)
		export.Metadata = nil
		exports = append(exports, export)
	}

	wrapper := map[string]interface{}{
		"metadata": map[string]string{
			"export_version": "1.0",
			"export_date":    time.Now().Format(time.RFC3339),
			"app_name":       "AI Chat Studio",
			"total_count":    fmt.Sprintf("%d", len(exports)),
		},
		"conversations": exports,
	}

	data, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// importExport turns an export back into store records, regenerating
// identifiers and substituting defaults for missing fields
func importExport(export ConversationExport) (*store.Conversation, []store.Message) {
	now := time.Now()

	conv := &store.Conversation{
		ID:          uuid.NewString(),
		Title:       export.Title,
		Model:       export.Model,
		TotalTokens: export.TotalTokens,
		CreatedAt:   export.CreatedAt,
		UpdatedAt:   export.UpdatedAt,
	}
	if conv.Title == "" {
		conv.Title = "Imported Conversation"
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	messages := make([]store.Message, 0, len(export.Messages))
	for _, msgExport := range export.Messages {
		msg := store.Message{
			ID:               uuid.NewString(),
			ConversationID:   conv.ID,
			Role:             msgExport.Role,
			Content:          msgExport.Content,
			Model:            msgExport.Model,
			PromptTokens:     msgExport.PromptTokens,
			CompletionTokens: msgExport.CompletionTokens,
			TotalTokens:      msgExport.TotalTokens,
			Attachments:      msgExport.Attachments,
			CreatedAt:        msgExport.CreatedAt,
		}
		if msg.Role == "" {
			msg.Role = "user"
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		messages = append(messages, msg)
	}

	return conv, messages
}

// ImportConversation imports a single conversation from JSON data
func ImportConversation(st *store.Store, data []byte) (*store.Conversation, error) {
	var export ConversationExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if len(export.Messages) == 0 {
		return nil, fmt.Errorf("invalid export: no messages")
	}

	conv, messages := importExport(export)
	if err := st.SaveConversation(conv, messages); err != nil {
		return nil, fmt.Errorf("failed to save conversation: %w", err)
	}
	return conv, nil
}

// ImportAllConversations imports a bulk export wrapper from JSON data.
// Entries without messages are skipped rather than failing the import.
func ImportAllConversations(st *store.Store, data []byte) (int, error) {
	var wrapper struct {
		Conversations []ConversationExport `json:"conversations"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return 0, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if wrapper.Conversations == nil {
		return 0, fmt.Errorf("invalid export: missing conversations array")
	}

	count := 0
	for _, export := range wrapper.Conversations {
		if len(export.Messages) == 0 {
			continue
		}
		conv, messages := importExport(export)
		if err := st.SaveConversation(conv, messages); err != nil {
			return count, fmt.Errorf("failed to save conversation: %w", err)
		}
		count++
	}

	return count, nil
}

// ExtensionFor returns the file extension for an export format
func ExtensionFor(format ExportFormat) string {
	switch format {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return "json"
	}
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat) string {
	// Sanitize title for filename
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			return '_'
		}
		return r
	}, title)

	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}

	timestamp := time.Now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", sanitized, timestamp, ExtensionFor(format))
}

// GetDefaultExportPath returns the default export directory
func GetDefaultExportPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(homeDir, "Documents", "Chat_Exports")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}

	return exportDir, nil
}
