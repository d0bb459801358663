// Package session owns the in-memory state of the active conversation and
// drives the send/receive cycle, delegating durability to the store and
// completion calls to the gateway.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-chat-studio/llm"
	"ai-chat-studio/store"
	"ai-chat-studio/utils"
)

// DefaultTitle is the placeholder title a conversation carries until it is
// renamed or auto-titled.
const DefaultTitle = "New Conversation"

// titleLimit is how many characters of the first user message the
// auto-title keeps.
const titleLimit = 50

// maxFileContextChars bounds how much of one attachment's text is inlined
// into the prompt.
const maxFileContextChars = 4000

// Options configures a Session
type Options struct {
	Store            *store.Store
	Gateway          *llm.Gateway
	Uploads          *utils.FileUploadHandler
	Logger           *utils.Logger
	AutoSaveInterval time.Duration
	UploadsEnabled   bool
}

// Session is the single authoritative in-memory representation of the
// active conversation. One session exists per running client; callers
// issue one operation at a time. The mutex only exists because the
// auto-save debounce timer fires on its own goroutine.
type Session struct {
	mu sync.Mutex

	store   *store.Store
	gateway *llm.Gateway
	uploads *utils.FileUploadHandler
	logger  *utils.Logger

	uploadsEnabled   bool
	autoSaveInterval time.Duration
	saveTimer        *time.Timer

	settings store.Settings
	params   llm.Parameters
	model    string

	conversationID string
	title          string
	createdAt      time.Time
	updatedAt      time.Time
	totalTokens    int

	messages []store.Message
	pending  []*utils.ProcessedFile
	input    string

	generating bool
	lastError  string
}

// New creates a session, loading settings from the store (defaults when
// persistence is disabled).
func New(opts Options) *Session {
	settings, err := opts.Store.GetSettings()
	if err != nil {
		opts.Logger.Warn("failed to load settings, using defaults: %v", err)
		settings = store.DefaultSettings()
	}

	interval := opts.AutoSaveInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Session{
		store:            opts.Store,
		gateway:          opts.Gateway,
		uploads:          opts.Uploads,
		logger:           opts.Logger,
		uploadsEnabled:   opts.UploadsEnabled,
		autoSaveInterval: interval,
		settings:         settings,
		params:           llm.DefaultParameters(),
	}
}

// SendMessage validates and sends the given prompt text together with any
// staged attachments. On success the user message and the assistant reply
// are both appended; on failure the user message remains and the error is
// recorded in LastError. There is no automatic retry.
func (s *Session) SendMessage(ctx context.Context, text string) (*store.Message, error) {
	s.mu.Lock()

	trimmed := strings.TrimSpace(text)
	if s.model == "" {
		s.mu.Unlock()
		return nil, s.fail(llm.NewValidationError("no model selected"))
	}
	if trimmed == "" && len(s.pending) == 0 {
		s.mu.Unlock()
		return nil, s.fail(llm.NewValidationError("message is empty and no files are attached"))
	}

	// Capture and clear staged attachments; this happens exactly once per
	// sent message.
	files := s.pending
	s.pending = nil

	content := trimmed
	if len(files) > 0 {
		block := fileContextBlock(files)
		if content != "" {
			content = block + "\n\n" + content
		} else {
			content = block
		}
	}

	// Lazily create a conversation on the first send
	if s.conversationID == "" {
		s.startConversationLocked()
	}

	userMsg := store.Message{
		ID:             uuid.NewString(),
		ConversationID: s.conversationID,
		Role:           "user",
		Content:        content,
		Attachments:    marshalAttachments(files),
		CreatedAt:      time.Now(),
	}
	s.messages = append(s.messages, userMsg)
	s.input = ""
	s.generating = true
	s.lastError = ""
	s.touchLocked()
	s.scheduleAutoSaveLocked()

	history := s.historyLocked()
	model := s.model
	params := s.params
	s.mu.Unlock()

	resp, err := s.gateway.Generate(ctx, history, model, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false

	if err != nil {
		s.lastError = err.Error()
		return nil, err
	}

	assistantMsg := store.Message{
		ID:               uuid.NewString(),
		ConversationID:   s.conversationID,
		Role:             "assistant",
		Content:          resp.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CreatedAt:        time.Now(),
	}
	s.messages = append(s.messages, assistantMsg)
	s.totalTokens += resp.Usage.TotalTokens
	s.touchLocked()
	s.scheduleAutoSaveLocked()

	return &assistantMsg, nil
}

// RegenerateLastMessage removes the most recent assistant message and asks
// the gateway for a replacement over the truncated history. The removal
// happens before the call, so a failed regeneration leaves the history one
// message shorter; LastError records the failure.
func (s *Session) RegenerateLastMessage(ctx context.Context) (*store.Message, error) {
	s.mu.Lock()

	idx := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == "assistant" {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return nil, s.fail(llm.NewValidationError("no assistant message to regenerate"))
	}

	removed := s.messages[idx]
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	s.totalTokens -= removed.TotalTokens
	if s.totalTokens < 0 {
		s.totalTokens = 0
	}
	s.generating = true
	s.lastError = ""
	s.touchLocked()
	s.scheduleAutoSaveLocked()

	history := s.historyLocked()
	model := s.model
	params := s.params
	s.mu.Unlock()

	resp, err := s.gateway.Generate(ctx, history, model, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false

	if err != nil {
		s.lastError = err.Error()
		return nil, err
	}

	assistantMsg := store.Message{
		ID:               uuid.NewString(),
		ConversationID:   s.conversationID,
		Role:             "assistant",
		Content:          resp.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		CreatedAt:        time.Now(),
	}
	s.messages = append(s.messages, assistantMsg)
	s.totalTokens += resp.Usage.TotalTokens
	s.touchLocked()
	s.scheduleAutoSaveLocked()

	return &assistantMsg, nil
}

// EditMessage replaces the content of the message with the given id and
// refreshes its timestamp. Unknown ids are a no-op.
func (s *Session) EditMessage(id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content = content
			s.messages[i].CreatedAt = time.Now()
			s.touchLocked()
			s.scheduleAutoSaveLocked()
			return
		}
	}
}

// DeleteMessage removes the message with the given id. Unknown ids are a
// no-op, so calling it twice with the same id is safe.
func (s *Session) DeleteMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.totalTokens -= s.messages[i].TotalTokens
			if s.totalTokens < 0 {
				s.totalTokens = 0
			}
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.touchLocked()
			s.scheduleAutoSaveLocked()
			return
		}
	}
}

// ClearMessages empties the in-memory history and staged attachments and
// detaches from the active conversation. The persisted conversation is not
// deleted.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoSaveLocked()
	s.messages = nil
	s.pending = nil
	s.conversationID = ""
	s.title = ""
	s.totalTokens = 0
	s.lastError = ""
}

// NewConversation detaches from the current conversation and starts a
// fresh one with the default title.
func (s *Session) NewConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoSaveLocked()
	s.messages = nil
	s.pending = nil
	s.totalTokens = 0
	s.lastError = ""
	s.startConversationLocked()
	return s.conversationID
}

// LoadConversation replaces the session state with a stored conversation
func (s *Session) LoadConversation(id string) error {
	conv, messages, err := s.store.GetConversation(id)
	if err != nil {
		return err
	}
	if conv == nil {
		return store.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAutoSaveLocked()
	s.conversationID = conv.ID
	s.title = conv.Title
	s.createdAt = conv.CreatedAt
	s.updatedAt = conv.UpdatedAt
	s.totalTokens = conv.TotalTokens
	s.messages = messages
	s.pending = nil
	s.lastError = ""
	if conv.Model != "" {
		s.model = conv.Model
	}
	return nil
}

// SaveCurrentConversation persists the active conversation, deriving the
// title from the first user message when auto-title is on and the title is
// still the placeholder. Storage failures are logged and swallowed.
func (s *Session) SaveCurrentConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked()
}

func (s *Session) saveLocked() {
	if s.conversationID == "" {
		return
	}

	if s.settings.AutoTitle && (s.title == "" || s.title == DefaultTitle) {
		if derived := s.deriveTitleLocked(); derived != "" {
			s.title = derived
		}
	}

	conv := &store.Conversation{
		ID:          s.conversationID,
		Title:       s.title,
		Model:       s.model,
		TotalTokens: s.totalTokens,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}

	if err := s.store.SaveConversation(conv, s.messages); err != nil {
		s.logger.Error("auto-save failed: %v", err)
	}
}

// deriveTitleLocked returns the leading characters of the first user
// message, with an ellipsis when truncated
func (s *Session) deriveTitleLocked() string {
	for _, msg := range s.messages {
		if msg.Role != "user" {
			continue
		}
		runes := []rune(strings.TrimSpace(msg.Content))
		if len(runes) > titleLimit {
			return string(runes[:titleLimit]) + "..."
		}
		return string(runes)
	}
	return ""
}

// DeleteConversation removes a conversation from the store; deleting the
// active one also clears the session.
func (s *Session) DeleteConversation(id string) error {
	if err := s.store.DeleteConversation(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == id {
		s.stopAutoSaveLocked()
		s.messages = nil
		s.pending = nil
		s.conversationID = ""
		s.title = ""
		s.totalTokens = 0
	}
	return nil
}

// RenameConversation renames a stored conversation, keeping the session
// title in sync when it is the active one
func (s *Session) RenameConversation(id, title string) error {
	if err := s.store.RenameConversation(id, title); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == id {
		s.title = title
	}
	return nil
}

// Export renders a stored conversation in the given format
func (s *Session) Export(id string, format utils.ExportFormat) (string, error) {
	conv, messages, err := s.store.GetConversation(id)
	if err != nil {
		return "", err
	}
	if conv == nil {
		return "", store.ErrNotFound
	}
	return utils.FormatConversation(conv, messages, format)
}

// Search finds stored conversations matching the query
func (s *Session) Search(query string) ([]*store.Conversation, error) {
	return s.store.SearchConversations(query)
}

// StageFile ingests one file into the pending-attachment list
func (s *Session) StageFile(path string) (*utils.ProcessedFile, error) {
	if !s.uploadsEnabled {
		return nil, llm.NewValidationError("file upload is disabled")
	}

	pf, err := s.uploads.ProcessFile(path)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.pending = append(s.pending, pf)
	s.mu.Unlock()
	return pf, nil
}

// StageFiles ingests a batch, skipping failed files
func (s *Session) StageFiles(paths []string) []*utils.ProcessedFile {
	if !s.uploadsEnabled {
		return nil
	}

	processed := s.uploads.ProcessFiles(paths)

	s.mu.Lock()
	s.pending = append(s.pending, processed...)
	s.mu.Unlock()
	return processed
}

// ClearPendingFiles drops all staged attachments
func (s *Session) ClearPendingFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// UseTemplate loads a prompt template into the input buffer, bumping its
// usage counter
func (s *Session) UseTemplate(id string) (*store.PromptTemplate, error) {
	t, err := s.store.GetTemplate(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, store.ErrNotFound
	}

	s.mu.Lock()
	s.input = t.Body
	s.mu.Unlock()
	return t, nil
}

// FillTemplate substitutes {{name}} placeholders in a template body
func FillTemplate(body string, values map[string]string) string {
	for name, value := range values {
		body = strings.ReplaceAll(body, "{{"+name+"}}", value)
	}
	return body
}

// UpdateParameters merges a partial parameter update, rejecting
// out-of-bounds values without changing anything
func (s *Session) UpdateParameters(u llm.ParameterUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := s.params.Merge(u)
	if err != nil {
		return s.failLocked(llm.NewValidationError("%v", err))
	}
	s.params = merged
	return nil
}

// UpdateSettings replaces the settings and persists them
func (s *Session) UpdateSettings(settings store.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if err := s.store.SaveSettings(settings); err != nil {
		s.logger.Error("failed to save settings: %v", err)
	}
}

// Close stops the auto-save timer and flushes the active conversation
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAutoSaveLocked()
	s.saveLocked()
}

// --- accessors ---

// Messages returns a copy of the message list
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// PendingFiles returns the staged attachments
func (s *Session) PendingFiles() []*utils.ProcessedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*utils.ProcessedFile, len(s.pending))
	copy(out, s.pending)
	return out
}

// ConversationID returns the active conversation id, empty when detached
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Title returns the active conversation title
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// TotalTokens returns the aggregate token count of the conversation
func (s *Session) TotalTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTokens
}

// Model returns the selected model
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel selects the model used for subsequent sends
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Parameters returns the current sampling parameters
func (s *Session) Parameters() llm.Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Settings returns the current settings
func (s *Session) Settings() store.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Input returns the input buffer
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input buffer
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// IsGenerating reports whether a provider call is in flight
func (s *Session) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// LastError returns the user-visible error string of the last failed
// operation, empty after a success
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// --- internal helpers ---

func (s *Session) startConversationLocked() {
	now := time.Now()
	s.conversationID = uuid.NewString()
	s.title = DefaultTitle
	s.createdAt = now
	s.updatedAt = now
}

// touchLocked advances updatedAt, never moving it backwards
func (s *Session) touchLocked() {
	now := time.Now()
	if now.After(s.updatedAt) {
		s.updatedAt = now
	}
}

func (s *Session) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(err)
}

func (s *Session) failLocked(err error) error {
	s.lastError = err.Error()
	return err
}

// historyLocked converts the message list to the gateway's wire-neutral
// form, re-attaching image previews for multimodal providers
func (s *Session) historyLocked() []llm.Message {
	history := make([]llm.Message, 0, len(s.messages))
	for i := range s.messages {
		msg := &s.messages[i]
		out := llm.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
		for _, pf := range unmarshalAttachments(msg.Attachments) {
			if !pf.IsImage() || pf.Preview == "" {
				continue
			}
			mimeType, data, err := decodeDataURI(pf.Preview)
			if err != nil {
				continue
			}
			out.Attachments = append(out.Attachments, llm.Attachment{
				MimeType: mimeType,
				Data:     data,
				Filename: pf.Name,
			})
		}
		history = append(history, out)
	}
	return history
}

// fileContextBlock renders the staged attachments into the text block
// prepended to the outgoing prompt
func fileContextBlock(files []*utils.ProcessedFile) string {
	var sb strings.Builder
	sb.WriteString("The user attached the following files:\n")
	for _, pf := range files {
		sb.WriteString(fmt.Sprintf("\n--- %s (%s, %s) ---\n", pf.Name, pf.MimeType, utils.FormatFileSize(pf.Size)))
		content := pf.Content
		if runes := []rune(content); len(runes) > maxFileContextChars {
			content = string(runes[:maxFileContextChars]) + "\n[content truncated]"
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func marshalAttachments(files []*utils.ProcessedFile) string {
	if len(files) == 0 {
		return ""
	}
	data, err := json.Marshal(files)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalAttachments(raw string) []*utils.ProcessedFile {
	if raw == "" {
		return nil
	}
	var files []*utils.ProcessedFile
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil
	}
	return files
}

// decodeDataURI splits a data:<mime>;base64,<payload> URI
func decodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("not a data URI")
	}
	rest := strings.TrimPrefix(uri, "data:")
	semi := strings.Index(rest, ";base64,")
	if semi < 0 {
		return "", nil, fmt.Errorf("not a base64 data URI")
	}
	mimeType := rest[:semi]
	data, err := base64.StdEncoding.DecodeString(rest[semi+len(";base64,"):])
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URI: %w", err)
	}
	return mimeType, data, nil
}
