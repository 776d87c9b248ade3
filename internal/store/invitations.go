package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateSessionInvitation inserts a pending invitation.
func (s *Store) CreateSessionInvitation(ctx context.Context, inv SessionInvitation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_invitations (id, session_id, inviter_id, invitee_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.SessionID, inv.InviterID, inv.InviteeID, inv.Status, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session invitation: %w", err)
	}
	return nil
}

// HasPendingInvitation reports whether the invitee already has a pending
// invitation to the session.
func (s *Store) HasPendingInvitation(ctx context.Context, sessionID, inviteeID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_invitations
		 WHERE session_id = ? AND invitee_id = ? AND status = 'pending'`,
		sessionID, inviteeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check invitation: %w", err)
	}
	return n > 0, nil
}

// GetPendingInvitation returns the pending invitation with the given ID
// addressed to the invitee, or ErrNotFound.
func (s *Store) GetPendingInvitation(ctx context.Context, id, inviteeID string) (SessionInvitation, error) {
	var inv SessionInvitation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, inviter_id, invitee_id, status, created_at FROM session_invitations
		 WHERE id = ? AND invitee_id = ? AND status = 'pending'`,
		id, inviteeID).Scan(&inv.ID, &inv.SessionID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionInvitation{}, ErrNotFound
	}
	if err != nil {
		return SessionInvitation{}, fmt.Errorf("failed to scan invitation: %w", err)
	}
	return inv, nil
}

// ListPendingInvitations returns the user's pending invitations, newest first.
func (s *Store) ListPendingInvitations(ctx context.Context, inviteeID string) ([]SessionInvitation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, inviter_id, invitee_id, status, created_at FROM session_invitations
		 WHERE invitee_id = ? AND status = 'pending' ORDER BY created_at DESC`,
		inviteeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []SessionInvitation
	for rows.Next() {
		var inv SessionInvitation
		if err := rows.Scan(&inv.ID, &inv.SessionID, &inv.InviterID, &inv.InviteeID, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// UpdateInvitationStatus sets the status of an invitation.
func (s *Store) UpdateInvitationStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_invitations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
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

// CreateSessionRequest inserts a pending join request.
func (s *Store) CreateSessionRequest(ctx context.Context, req SessionRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_requests (id, session_id, requester_id, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.SessionID, req.RequesterID, req.Status, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert session request: %w", err)
	}
	return nil
}

// HasPendingSessionRequest reports whether the requester already has a
// pending request for the session.
func (s *Store) HasPendingSessionRequest(ctx context.Context, sessionID, requesterID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM session_requests
		 WHERE session_id = ? AND requester_id = ? AND status = 'pending'`,
		sessionID, requesterID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check session request: %w", err)
	}
	return n > 0, nil
}

// GetPendingSessionRequest returns the pending request with the given ID for
// the given session, or ErrNotFound.
func (s *Store) GetPendingSessionRequest(ctx context.Context, id, sessionID string) (SessionRequest, error) {
	var req SessionRequest
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, requester_id, status, created_at FROM session_requests
		 WHERE id = ? AND session_id = ? AND status = 'pending'`,
		id, sessionID).Scan(&req.ID, &req.SessionID, &req.RequesterID, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRequest{}, ErrNotFound
	}
	if err != nil {
		return SessionRequest{}, fmt.Errorf("failed to scan session request: %w", err)
	}
	return req, nil
}

// ListPendingSessionRequests returns the pending requests for a session, newest first.
func (s *Store) ListPendingSessionRequests(ctx context.Context, sessionID string) ([]SessionRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, requester_id, status, created_at FROM session_requests
		 WHERE session_id = ? AND status = 'pending' ORDER BY created_at DESC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session requests: %w", err)
	}
	defer rows.Close()

	var requests []SessionRequest
	for rows.Next() {
		var req SessionRequest
		if err := rows.Scan(&req.ID, &req.SessionID, &req.RequesterID, &req.Status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// UpdateSessionRequestStatus sets the status of a join request.
func (s *Store) UpdateSessionRequestStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE session_requests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update session request: %w", err)
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
