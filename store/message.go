package store

// listMessages retrieves all messages in a conversation in transcript
// order. Ordering follows the seq column, not created_at, because an edit
// refreshes a message's timestamp without moving its position.
// The DATETIME columns come back as proper time.Time values, so nested
// attachment timestamps are the only ones the caller still has to decode
// (they live inside the attachments JSON and round-trip through RFC 3339).
func (s *Store) listMessages(conversationID string) ([]Message, error) {
	rows, err := s.conn.Query(
		`SELECT id, conversation_id, seq, role, content, model, prompt_tokens, completion_tokens, total_tokens, attachments, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY seq ASC, created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, storageErr("list messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Seq, &msg.Role, &msg.Content, &msg.Model,
			&msg.PromptTokens, &msg.CompletionTokens, &msg.TotalTokens,
			&msg.Attachments, &msg.CreatedAt,
		); err != nil {
			return nil, storageErr("scan message", err)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// CountMessages returns the number of messages in a conversation
func (s *Store) CountMessages(conversationID string) (int64, error) {
	if !s.enabled {
		return 0, nil
	}

	var count int64
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?",
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, storageErr("count messages", err)
	}
	return count, nil
}
