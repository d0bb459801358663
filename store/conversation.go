package store

import (
	"database/sql"
	"time"
)

// SaveConversation upserts a conversation and replaces its messages in one
// transaction, so the stored message set always matches the in-memory one.
func (s *Store) SaveConversation(conv *Conversation, messages []Message) error {
	if !s.enabled {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return storageErr("save conversation", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO conversations (id, title, model, total_tokens, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title,
		   model = excluded.model,
		   total_tokens = excluded.total_tokens,
		   updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Model, conv.TotalTokens, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return storageErr("save conversation", err)
	}

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return storageErr("save conversation", err)
	}

	for i := range messages {
		msg := &messages[i]
		_, err := tx.Exec(
			`INSERT INTO messages (id, conversation_id, seq, role, content, model, prompt_tokens, completion_tokens, total_tokens, attachments, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, conv.ID, i, msg.Role, msg.Content, msg.Model,
			msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens,
			msg.Attachments, msg.CreatedAt,
		)
		if err != nil {
			return storageErr("save conversation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("save conversation", err)
	}
	return nil
}

// GetConversation retrieves a conversation and its messages by ID
func (s *Store) GetConversation(id string) (*Conversation, []Message, error) {
	if !s.enabled {
		return nil, nil, nil
	}

	var conv Conversation
	err := s.conn.QueryRow(
		"SELECT id, title, model, total_tokens, created_at, updated_at FROM conversations WHERE id = ?",
		id,
	).Scan(&conv.ID, &conv.Title, &conv.Model, &conv.TotalTokens, &conv.CreatedAt, &conv.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, storageErr("get conversation", err)
	}

	messages, err := s.listMessages(id)
	if err != nil {
		return nil, nil, err
	}

	return &conv, messages, nil
}

// ListConversations retrieves all conversations ordered by update time
func (s *Store) ListConversations(limit, offset int) ([]*Conversation, error) {
	if !s.enabled {
		return nil, nil
	}

	rows, err := s.conn.Query(
		"SELECT id, title, model, total_tokens, created_at, updated_at FROM conversations ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, storageErr("list conversations", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}

// RenameConversation updates a conversation's title
func (s *Store) RenameConversation(id, title string) error {
	if !s.enabled {
		return nil
	}

	_, err := s.conn.Exec(
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, time.Now(), id,
	)
	if err != nil {
		return storageErr("rename conversation", err)
	}
	return nil
}

// DeleteConversation deletes a conversation and all its messages, leaving
// no orphaned rows behind.
func (s *Store) DeleteConversation(id string) error {
	if !s.enabled {
		return nil
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return storageErr("delete conversation", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return storageErr("delete conversation", err)
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id); err != nil {
		return storageErr("delete conversation", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("delete conversation", err)
	}
	return nil
}

// CountConversations returns the total number of conversations
func (s *Store) CountConversations() (int64, error) {
	if !s.enabled {
		return 0, nil
	}

	var count int64
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return 0, storageErr("count conversations", err)
	}
	return count, nil
}

// DeleteOldConversations deletes conversations not updated within the
// retention window, with their messages.
func (s *Store) DeleteOldConversations(retentionDays int) (int64, error) {
	if !s.enabled {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.conn.Begin()
	if err != nil {
		return 0, storageErr("cleanup", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE updated_at < ?)",
		cutoff,
	); err != nil {
		return 0, storageErr("cleanup", err)
	}

	result, err := tx.Exec("DELETE FROM conversations WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, storageErr("cleanup", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("cleanup", err)
	}
	return deleted, nil
}

func scanConversations(rows *sql.Rows) ([]*Conversation, error) {
	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.Model, &conv.TotalTokens, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, storageErr("scan conversation", err)
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}
