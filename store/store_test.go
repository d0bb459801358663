package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), true)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testConversation(title string) (*Conversation, []Message) {
	now := time.Now().Truncate(time.Millisecond)
	conv := &Conversation{
		ID:          uuid.NewString(),
		Title:       title,
		Model:       "gpt-3.5-turbo",
		TotalTokens: 120,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	messages := []Message{
		{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           "user",
			Content:        "Hello there",
			CreatedAt:      now,
		},
		{
			ID:               uuid.NewString(),
			ConversationID:   conv.ID,
			Role:             "assistant",
			Content:          "Hi! How can I help?",
			Model:            "gpt-3.5-turbo",
			PromptTokens:     20,
			CompletionTokens: 100,
			TotalTokens:      120,
			CreatedAt:        now.Add(time.Second),
		},
	}
	return conv, messages
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Round trip")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	loaded, loadedMsgs, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded.Title != conv.Title || loaded.Model != conv.Model || loaded.TotalTokens != conv.TotalTokens {
		t.Errorf("Conversation fields changed across the round trip: %+v", loaded)
	}
	if len(loadedMsgs) != len(messages) {
		t.Fatalf("Expected %d messages, got: %d", len(messages), len(loadedMsgs))
	}
	for i, msg := range loadedMsgs {
		if msg.ID != messages[i].ID || msg.Role != messages[i].Role || msg.Content != messages[i].Content {
			t.Errorf("Message %d changed across the round trip: %+v", i, msg)
		}
	}
	if !loadedMsgs[0].CreatedAt.Before(loadedMsgs[1].CreatedAt) {
		t.Error("Messages should come back in creation order")
	}
}

func TestStore_SaveReplacesMessages(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Replace")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// A second save with a shorter message list replaces, never appends
	if err := s.SaveConversation(conv, messages[:1]); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	count, err := s.CountMessages(conv.ID)
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 message after re-save, got: %d", count)
	}
}

func TestStore_EditedTimestampDoesNotReorder(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Edited")
	// An edit refreshes the first message's timestamp past the second's
	messages[0].Content = "Hello there, edited"
	messages[0].CreatedAt = messages[1].CreatedAt.Add(time.Minute)
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	_, loaded, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded[0].ID != messages[0].ID || loaded[1].ID != messages[1].ID {
		t.Errorf("Transcript order must follow insertion, got: %s, %s", loaded[0].Role, loaded[1].Role)
	}
	if loaded[0].Content != "Hello there, edited" {
		t.Errorf("Edited content should persist, got: %q", loaded[0].Content)
	}
}

func TestStore_GetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.GetConversation(uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_DeleteLeavesNoOrphans(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Doomed")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := s.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}

	if _, _, err := s.GetConversation(conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
	count, err := s.CountMessages(conv.ID)
	if err != nil {
		t.Fatalf("CountMessages failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Delete left %d orphaned messages", count)
	}
}

func TestStore_Rename(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Old title")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := s.RenameConversation(conv.ID, "New title"); err != nil {
		t.Fatalf("RenameConversation failed: %v", err)
	}

	loaded, _, err := s.GetConversation(conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if loaded.Title != "New title" {
		t.Errorf("Expected renamed title, got: %s", loaded.Title)
	}
	if loaded.UpdatedAt.Before(conv.UpdatedAt) {
		t.Error("Rename should advance updated_at")
	}
}

func TestStore_Search(t *testing.T) {
	s := newTestStore(t)

	conv1, msgs1 := testConversation("Trip to Paris")
	conv2, msgs2 := testConversation("Grocery list")
	msgs2[0].Content = "Remind me to buy croissants"
	if err := s.SaveConversation(conv1, msgs1); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := s.SaveConversation(conv2, msgs2); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	// Title match, case-insensitive
	results, err := s.SearchConversations("PARIS")
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != conv1.ID {
		t.Errorf("Expected one title match, got: %d", len(results))
	}

	// Message content match
	results, err = s.SearchConversations("croissant")
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != conv2.ID {
		t.Errorf("Expected one content match, got: %d", len(results))
	}

	// No duplicates when several messages match
	results, err = s.SearchConversations("h")
	if err != nil {
		t.Fatalf("SearchConversations failed: %v", err)
	}
	seen := map[string]bool{}
	for _, conv := range results {
		if seen[conv.ID] {
			t.Errorf("Conversation %s returned twice", conv.ID)
		}
		seen[conv.ID] = true
	}
}

func TestStore_RetentionCleanup(t *testing.T) {
	s := newTestStore(t)

	old, oldMsgs := testConversation("Ancient")
	old.UpdatedAt = time.Now().AddDate(0, 0, -40)
	recent, recentMsgs := testConversation("Fresh")

	if err := s.SaveConversation(old, oldMsgs); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}
	if err := s.SaveConversation(recent, recentMsgs); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	deleted, err := s.DeleteOldConversations(30)
	if err != nil {
		t.Fatalf("DeleteOldConversations failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted conversation, got: %d", deleted)
	}

	if _, _, err := s.GetConversation(old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Old conversation should be gone, got: %v", err)
	}
	if _, _, err := s.GetConversation(recent.ID); err != nil {
		t.Errorf("Recent conversation should survive, got: %v", err)
	}
	if count, _ := s.CountMessages(old.ID); count != 0 {
		t.Errorf("Cleanup left %d orphaned messages", count)
	}
}

func TestStore_SettingsMergeOverDefaults(t *testing.T) {
	s := newTestStore(t)

	// Nothing saved yet: defaults come back
	settings, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings != DefaultSettings() {
		t.Errorf("Expected default settings, got: %+v", settings)
	}

	settings.AutoTitle = false
	settings.SoundNotification = true
	if err := s.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}

	loaded, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if loaded != settings {
		t.Errorf("Expected saved settings back, got: %+v", loaded)
	}
}

func TestStore_Templates(t *testing.T) {
	s := newTestStore(t)

	tpl := &PromptTemplate{
		ID:       uuid.NewString(),
		Name:     "Code review",
		Body:     "Review the following code:\n{{code}}",
		Category: "coding",
		Tags:     []string{"review", "code"},
	}
	if err := s.SaveTemplate(tpl); err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}

	// Each retrieval bumps the usage counter
	loaded, err := s.GetTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if loaded.UsageCount != 1 {
		t.Errorf("Expected usage count 1, got: %d", loaded.UsageCount)
	}
	if len(loaded.Tags) != 2 || loaded.Tags[0] != "review" {
		t.Errorf("Tags changed across the round trip: %v", loaded.Tags)
	}

	loaded, err = s.GetTemplate(tpl.ID)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if loaded.UsageCount != 2 {
		t.Errorf("Expected usage count 2, got: %d", loaded.UsageCount)
	}

	templates, err := s.ListTemplates("coding")
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 1 {
		t.Errorf("Expected 1 template in category, got: %d", len(templates))
	}

	if err := s.DeleteTemplate(tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate failed: %v", err)
	}
	if _, err := s.GetTemplate(tpl.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got: %v", err)
	}
}

func TestStore_DisabledIsNoOp(t *testing.T) {
	s, err := New("", false)
	if err != nil {
		t.Fatalf("Disabled store should initialize: %v", err)
	}
	defer s.Close()

	conv, messages := testConversation("Ignored")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Errorf("Disabled save should be a no-op, got: %v", err)
	}
	if list, err := s.ListConversations(10, 0); err != nil || len(list) != 0 {
		t.Errorf("Disabled list should be empty, got: %v, %v", list, err)
	}
	if err := s.DeleteConversation(conv.ID); err != nil {
		t.Errorf("Disabled delete should be a no-op, got: %v", err)
	}
	settings, err := s.GetSettings()
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if settings != DefaultSettings() {
		t.Errorf("Disabled store should hand out defaults, got: %+v", settings)
	}
}

func TestStore_Stats(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Counted")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.ConversationCount != 1 {
		t.Errorf("Expected 1 conversation, got: %d", stats.ConversationCount)
	}
	if stats.MessageCount != 2 {
		t.Errorf("Expected 2 messages, got: %d", stats.MessageCount)
	}
	if stats.SizeBytes <= 0 {
		t.Errorf("Expected positive database size, got: %d", stats.SizeBytes)
	}
}

func TestStore_Wipe(t *testing.T) {
	s := newTestStore(t)

	conv, messages := testConversation("Wiped")
	if err := s.SaveConversation(conv, messages); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	if err := s.Wipe(); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}

	count, err := s.CountConversations()
	if err != nil {
		t.Fatalf("CountConversations failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store after wipe, got: %d conversations", count)
	}
}
