package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateFriendRequest inserts a pending friend request.
func (s *Store) CreateFriendRequest(ctx context.Context, fr FriendRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friend_requests (id, sender_id, recipient_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		fr.ID, fr.SenderID, fr.RecipientID, fr.Status, fr.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert friend request: %w", err)
	}
	return nil
}

// FriendRequestExists reports whether any request exists between the two users,
// in either direction.
func (s *Store) FriendRequestExists(ctx context.Context, userA, userB string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friend_requests
		 WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)`,
		userA, userB, userB, userA).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check friend request: %w", err)
	}
	return n > 0, nil
}

// GetPendingFriendRequest returns the pending request with the given ID
// addressed to the given recipient, or ErrNotFound.
func (s *Store) GetPendingFriendRequest(ctx context.Context, id, recipientID string) (FriendRequest, error) {
	var fr FriendRequest
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_id, recipient_id, status, created_at FROM friend_requests
		 WHERE id = ? AND recipient_id = ? AND status = 'pending'`,
		id, recipientID).Scan(&fr.ID, &fr.SenderID, &fr.RecipientID, &fr.Status, &fr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FriendRequest{}, ErrNotFound
	}
	if err != nil {
		return FriendRequest{}, fmt.Errorf("failed to scan friend request: %w", err)
	}
	return fr, nil
}

// ListPendingFriendRequests returns pending requests the user sent or received.
func (s *Store) ListPendingFriendRequests(ctx context.Context, userID string) ([]FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, recipient_id, status, created_at FROM friend_requests
		 WHERE (sender_id = ? OR recipient_id = ?) AND status = 'pending'
		 ORDER BY created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	var requests []FriendRequest
	for rows.Next() {
		var fr FriendRequest
		if err := rows.Scan(&fr.ID, &fr.SenderID, &fr.RecipientID, &fr.Status, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		requests = append(requests, fr)
	}
	return requests, rows.Err()
}

// UpdateFriendRequestStatus sets the status of a friend request.
func (s *Store) UpdateFriendRequestStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update friend request: %w", err)
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

// RejectPendingFriendRequest marks a pending request addressed to the
// recipient as rejected. Returns ErrNotFound if no matching pending row.
func (s *Store) RejectPendingFriendRequest(ctx context.Context, id, recipientID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = 'rejected'
		 WHERE id = ? AND recipient_id = ? AND status = 'pending'`, id, recipientID)
	if err != nil {
		return fmt.Errorf("failed to reject friend request: %w", err)
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

// CreateFriendship writes both directions of the friendship edge in one
// transaction; a checker that sees either row treats the users as friends.
func (s *Store) CreateFriendship(ctx context.Context, userA, userB string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, pair := range [][2]string{{userA, userB}, {userB, userA}} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO friends (user_id, friend_id) VALUES (?, ?)`,
			pair[0], pair[1]); err != nil {
			return fmt.Errorf("failed to insert friendship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit friendship: %w", err)
	}
	return nil
}

// AreFriends reports whether a friendship edge exists between the two users.
// A single direction is sufficient.
func (s *Store) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friends
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		userA, userB, userB, userA).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return n > 0, nil
}

// ListFriends returns the users the given user is friends with.
func (s *Store) ListFriends(ctx context.Context, userID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.created_at
		 FROM friends f JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ? ORDER BY u.username`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	var friends []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

// ListFriendIDs returns the IDs of the user's friends.
func (s *Store) ListFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT friend_id FROM friends WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan friend id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveFriendship deletes both edge directions and any requests between the users.
func (s *Store) RemoveFriendship(ctx context.Context, userA, userB string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM friends
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		userA, userB, userB, userA); err != nil {
		return fmt.Errorf("failed to delete friendship: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM friend_requests
		 WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)`,
		userA, userB, userB, userA); err != nil {
		return fmt.Errorf("failed to delete friend requests: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit friend removal: %w", err)
	}
	return nil
}
