package store

// SearchConversations finds conversations whose title or message content
// contains the query, case-insensitively. Results are ordered by recency.
func (s *Store) SearchConversations(query string) ([]*Conversation, error) {
	if !s.enabled || query == "" {
		return nil, nil
	}

	pattern := "%" + query + "%"
	rows, err := s.conn.Query(
		`SELECT DISTINCT c.id, c.title, c.model, c.total_tokens, c.created_at, c.updated_at
		 FROM conversations c
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 WHERE LOWER(c.title) LIKE LOWER(?) OR LOWER(m.content) LIKE LOWER(?)
		 ORDER BY c.updated_at DESC`,
		pattern, pattern,
	)
	if err != nil {
		return nil, storageErr("search conversations", err)
	}
	defer rows.Close()

	return scanConversations(rows)
}
