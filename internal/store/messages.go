package store

import (
	"context"
	"fmt"
)

// CreateChatMessage persists a chat record.
func (s *Store) CreateChatMessage(ctx context.Context, m ChatMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_messages (id, session_id, user_id, username, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.UserID, m.Username, m.Message, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListSessionMessages returns the most recent messages for a session in
// chronological order.
func (s *Store) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, username, message, created_at FROM (
		     SELECT id, session_id, user_id, username, message, created_at
		     FROM session_messages WHERE session_id = ?
		     ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at, id`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Username, &m.Message, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
