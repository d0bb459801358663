package store

import "time"

// Conversation represents a chat conversation
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Model       string    `json:"model,omitempty"`
	TotalTokens int       `json:"total_tokens,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Message represents a single message in a conversation. Seq is the
// position within the conversation, assigned at save time; it is what
// reads order by, so an edited CreatedAt never reorders the transcript.
type Message struct {
	ID               string    `json:"id"`
	ConversationID   string    `json:"conversation_id"`
	Seq              int       `json:"-"`
	Role             string    `json:"role"` // "user", "assistant" or "system"
	Content          string    `json:"content"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	Attachments      string    `json:"attachments,omitempty"` // JSON array of processed file records
	CreatedAt        time.Time `json:"created_at"`
}

// PromptTemplate represents a reusable prompt with {{placeholder}} markers
type PromptTemplate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Body       string    `json:"body"`
	Category   string    `json:"category,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Settings holds the process-wide feature flags
type Settings struct {
	AutoSave          bool `json:"auto_save"`
	AutoTitle         bool `json:"auto_title"`
	ShowTokenCount    bool `json:"show_token_count"`
	SoundNotification bool `json:"sound_notification"`
}

// DefaultSettings returns the settings used before anything was persisted
func DefaultSettings() Settings {
	return Settings{
		AutoSave:          true,
		AutoTitle:         true,
		ShowTokenCount:    true,
		SoundNotification: false,
	}
}
