package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"ai-chat-studio/store"
)

func newExportStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "export.db"), true)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func exportFixture() (*store.Conversation, []store.Message) {
	now := time.Now().Truncate(time.Second)
	conv := &store.Conversation{
		ID:          uuid.NewString(),
		Title:       "Travel plans",
		Model:       "gpt-4",
		TotalTokens: 150,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	messages := []store.Message{
		{ID: uuid.NewString(), ConversationID: conv.ID, Role: "user", Content: "Suggest a weekend trip", CreatedAt: now},
		{ID: uuid.NewString(), ConversationID: conv.ID, Role: "assistant", Content: "How about Lisbon?", Model: "gpt-4", PromptTokens: 50, CompletionTokens: 100, TotalTokens: 150, CreatedAt: now.Add(time.Second)},
	}
	return conv, messages
}

func TestFormatConversationJSON(t *testing.T) {
	conv, messages := exportFixture()

	out, err := FormatConversationJSON(conv, messages)
	if err != nil {
		t.Fatalf("FormatConversationJSON failed: %v", err)
	}

	var export ConversationExport
	if err := json.Unmarshal([]byte(out), &export); err != nil {
		t.Fatalf("Export should be valid JSON: %v", err)
	}
	if export.Title != conv.Title {
		t.Errorf("Expected title %q, got: %q", conv.Title, export.Title)
	}
	if len(export.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got: %d", len(export.Messages))
	}
	if export.Messages[1].TotalTokens != 150 {
		t.Errorf("Token counts should survive the export, got: %d", export.Messages[1].TotalTokens)
	}
	if export.Metadata["export_version"] == "" {
		t.Error("Export should carry version metadata")
	}
}

func TestFormatConversationMarkdown(t *testing.T) {
	conv, messages := exportFixture()

	out := FormatConversationMarkdown(conv, messages)
	if !strings.HasPrefix(out, "# Travel plans") {
		t.Errorf("Markdown should open with the title heading, got: %.40s", out)
	}
	if !strings.Contains(out, "## User") || !strings.Contains(out, "## Assistant") {
		t.Error("Markdown should label both roles")
	}
	if !strings.Contains(out, "How about Lisbon?") {
		t.Error("Markdown should include message content")
	}
	if !strings.Contains(out, "**Model**: gpt-4") {
		t.Error("Markdown header should name the model")
	}
}

func TestFormatConversationText(t *testing.T) {
	conv, messages := exportFixture()

	out := FormatConversationText(conv, messages)
	if strings.Contains(out, "#") || strings.Contains(out, "**") {
		t.Error("Plain text export should carry no markdown syntax")
	}
	if !strings.Contains(out, "[User]") || !strings.Contains(out, "[Assistant]") {
		t.Error("Text export should label both roles")
	}
	if !strings.Contains(out, strings.Repeat("-", 40)) {
		t.Error("Text export should separate sections with an ASCII rule")
	}
}

func TestFormatConversation_UnknownFormat(t *testing.T) {
	conv, messages := exportFixture()

	if _, err := FormatConversation(conv, messages, ExportFormat("pdf")); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestExportConversationToFile(t *testing.T) {
	s := newExportStore(t)
	conv, messages := exportFixture()
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.md")
	if err := ExportConversationToFile(s, conv.ID, FormatMarkdown, path); err != nil {
		t.Fatalf("ExportConversationToFile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read exported file: %v", err)
	}
	if !strings.Contains(string(data), "# Travel plans") {
		t.Errorf("Exported file should hold the rendered conversation, got: %.60s", data)
	}

	if err := ExportConversationToFile(s, "no-such-id", FormatMarkdown, path); err == nil {
		t.Error("Expected error for an unknown conversation")
	}
}

func TestExportAllConversationsToFile(t *testing.T) {
	s := newExportStore(t)
	for _, title := range []string{"First", "Second"} {
		conv, messages := exportFixture()
		conv.Title = title
		if err := s.SaveConversation(conv, messages); err != nil {
			t.Fatalf("SaveConversation failed: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "all.json")
	if err := ExportAllConversations(s, path); err != nil {
		t.Fatalf("ExportAllConversations failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read exported file: %v", err)
	}
	var wrapper struct {
		Metadata      map[string]string    `json:"metadata"`
		Conversations []ConversationExport `json:"conversations"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		t.Fatalf("Bulk export should be valid JSON: %v", err)
	}
	if len(wrapper.Conversations) != 2 {
		t.Errorf("Expected 2 conversations in the bulk export, got: %d", len(wrapper.Conversations))
	}
	if wrapper.Metadata["total_count"] != "2" {
		t.Errorf("Metadata should count the conversations, got: %q", wrapper.Metadata["total_count"])
	}

	// The bulk file round-trips through the bulk importer
	restored, err := store.New(filepath.Join(t.TempDir(), "restore.db"), true)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer restored.Close()
	count, err := ImportAllConversations(restored, data)
	if err != nil {
		t.Fatalf("ImportAllConversations failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 imported conversations, got: %d", count)
	}
}

func TestImportConversation_RoundTrip(t *testing.T) {
	s := newExportStore(t)
	conv, messages := exportFixture()

	out, err := FormatConversationJSON(conv, messages)
	if err != nil {
		t.Fatalf("FormatConversationJSON failed: %v", err)
	}

	imported, err := ImportConversation(s, []byte(out))
	if err != nil {
		t.Fatalf("ImportConversation failed: %v", err)
	}
	if imported.ID == conv.ID {
		t.Error("Import should mint a fresh conversation id")
	}
	if imported.Title != conv.Title {
		t.Errorf("Title should survive the round trip, got: %q", imported.Title)
	}

	loaded, loadedMsgs, err := s.GetConversation(imported.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded.TotalTokens != conv.TotalTokens {
		t.Errorf("Token counts should survive the round trip, got: %d", loaded.TotalTokens)
	}
	if len(loadedMsgs) != len(messages) {
		t.Fatalf("Expected %d messages, got: %d", len(messages), len(loadedMsgs))
	}
	for i := range loadedMsgs {
		if loadedMsgs[i].Content != messages[i].Content {
			t.Errorf("Message %d content changed: %q", i, loadedMsgs[i].Content)
		}
		if loadedMsgs[i].ID == messages[i].ID {
			t.Errorf("Message %d should get a fresh id", i)
		}
	}
}

func TestImportConversation_MissingFieldsGetDefaults(t *testing.T) {
	s := newExportStore(t)

	// Minimal export: no ids, no timestamps, no roles
	raw := `{"title": "", "messages": [{"content": "hello"}]}`
	imported, err := ImportConversation(s, []byte(raw))
	if err != nil {
		t.Fatalf("ImportConversation failed: %v", err)
	}
	if imported.Title != "Imported Conversation" {
		t.Errorf("Missing title should get a default, got: %q", imported.Title)
	}

	_, msgs, err := s.GetConversation(imported.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if msgs[0].Role != "user" {
		t.Errorf("Missing role should default to user, got: %q", msgs[0].Role)
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Error("Missing timestamp should be filled in")
	}
}

func TestImportConversation_RejectsEmpty(t *testing.T) {
	s := newExportStore(t)

	if _, err := ImportConversation(s, []byte(`{"title": "empty", "messages": []}`)); err == nil {
		t.Error("Expected error for an export without messages")
	}
	if _, err := ImportConversation(s, []byte(`not json`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestImportAllConversations_SkipsEmptyEntries(t *testing.T) {
	s := newExportStore(t)

	raw := `{"conversations": [
		{"title": "kept", "messages": [{"role": "user", "content": "hi"}]},
		{"title": "empty", "messages": []}
	]}`
	count, err := ImportAllConversations(s, []byte(raw))
	if err != nil {
		t.Fatalf("ImportAllConversations failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 imported conversation, got: %d", count)
	}

	total, err := s.CountConversations()
	if err != nil {
		t.Fatalf("CountConversations failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Expected 1 stored conversation, got: %d", total)
	}
}

func TestGenerateExportFilename(t *testing.T) {
	name := GenerateExportFilename(`What is "2/3" of x?`, FormatMarkdown)
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		t.Errorf("Filename should be sanitized, got: %q", name)
	}
	if !strings.HasSuffix(name, ".md") {
		t.Errorf("Expected .md suffix, got: %q", name)
	}
}
