package store

import (
	"database/sql"
	"encoding/json"
)

// SaveTemplate upserts a prompt template
func (s *Store) SaveTemplate(t *PromptTemplate) error {
	if !s.enabled {
		return nil
	}

	tags := ""
	if len(t.Tags) > 0 {
		data, err := json.Marshal(t.Tags)
		if err != nil {
			return storageErr("save template", err)
		}
		tags = string(data)
	}

	_, err := s.conn.Exec(
		`INSERT INTO prompt_templates (id, name, body, category, tags, usage_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   body = excluded.body,
		   category = excluded.category,
		   tags = excluded.tags`,
		t.ID, t.Name, t.Body, t.Category, tags, t.UsageCount, t.CreatedAt,
	)
	if err != nil {
		return storageErr("save template", err)
	}
	return nil
}

// GetTemplate retrieves a template by ID and increments its usage counter
func (s *Store) GetTemplate(id string) (*PromptTemplate, error) {
	if !s.enabled {
		return nil, nil
	}

	t, err := s.scanTemplate(s.conn.QueryRow(
		"SELECT id, name, body, category, tags, usage_count, created_at FROM prompt_templates WHERE id = ?",
		id,
	))
	if err != nil {
		return nil, err
	}

	if _, err := s.conn.Exec(
		"UPDATE prompt_templates SET usage_count = usage_count + 1 WHERE id = ?", id,
	); err != nil {
		return nil, storageErr("get template", err)
	}
	t.UsageCount++

	return t, nil
}

// ListTemplates retrieves all templates, optionally filtered by category
func (s *Store) ListTemplates(category string) ([]*PromptTemplate, error) {
	if !s.enabled {
		return nil, nil
	}

	query := "SELECT id, name, body, category, tags, usage_count, created_at FROM prompt_templates"
	args := []interface{}{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY usage_count DESC, name ASC"

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, storageErr("list templates", err)
	}
	defer rows.Close()

	var templates []*PromptTemplate
	for rows.Next() {
		t, err := s.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	return templates, rows.Err()
}

// DeleteTemplate deletes a template
func (s *Store) DeleteTemplate(id string) error {
	if !s.enabled {
		return nil
	}

	if _, err := s.conn.Exec("DELETE FROM prompt_templates WHERE id = ?", id); err != nil {
		return storageErr("delete template", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanTemplate(row rowScanner) (*PromptTemplate, error) {
	var t PromptTemplate
	var tags string
	err := row.Scan(&t.ID, &t.Name, &t.Body, &t.Category, &tags, &t.UsageCount, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("scan template", err)
	}
	if tags != "" {
		// Malformed tags are dropped rather than failing the read
		_ = json.Unmarshal([]byte(tags), &t.Tags)
	}
	return &t, nil
}
