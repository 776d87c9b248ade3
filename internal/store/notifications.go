package store

import (
	"context"
	"fmt"
)

// CreateNotification inserts a notification row. This durable record is the
// system of record for offline delivery; live pushes are best-effort on top.
func (s *Store) CreateNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, title, message, session_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.SessionID, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Store) listNotifications(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.SessionID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// ListNotifications returns all of the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]Notification, error) {
	return s.listNotifications(ctx,
		`SELECT id, user_id, type, title, message, session_id, is_read, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

// ListUnreadNotifications returns the user's unread notifications, newest first.
func (s *Store) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	return s.listNotifications(ctx,
		`SELECT id, user_id, type, title, message, session_id, is_read, created_at
		 FROM notifications WHERE user_id = ? AND is_read = 0 ORDER BY created_at DESC`, userID)
}

// MarkNotificationRead marks the user's notification as read. Returns
// ErrNotFound if the notification doesn't exist or belongs to someone else.
func (s *Store) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks all of the user's notifications as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
