package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sessionColumns = `id, name, description, host_id, host_username, platform,
	track_id, track_name, track_artist, is_playing, position_ms,
	privacy_type, is_private, share_key, created_at, updated_at`

func scanSessionRow(scan func(dest ...any) error) (Session, error) {
	var (
		sess          Session
		privacy       sql.NullString
		legacyPrivate bool
		shareKey      sql.NullString
	)
	err := scan(&sess.ID, &sess.Name, &sess.Description, &sess.HostID, &sess.HostUsername,
		&sess.Platform, &sess.TrackID, &sess.TrackName, &sess.TrackArtist,
		&sess.IsPlaying, &sess.PositionMs, &privacy, &legacyPrivate, &shareKey,
		&sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	sess.PrivacyType = normalizePrivacy(privacy, legacyPrivate)
	sess.ShareKey = shareKey.String
	return sess, nil
}

// CreateSession inserts the session and its host as the first member.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	shareKey := sql.NullString{String: sess.ShareKey, Valid: sess.ShareKey != ""}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, name, description, host_id, host_username, platform,
		 track_id, track_name, track_artist, is_playing, position_ms, privacy_type, share_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Name, sess.Description, sess.HostID, sess.HostUsername, sess.Platform,
		sess.TrackID, sess.TrackName, sess.TrackArtist, sess.IsPlaying, sess.PositionMs,
		sess.PrivacyType, shareKey, sess.CreatedAt, sess.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO session_members (session_id, user_id, username, joined_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.HostID, sess.HostUsername, sess.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert host member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// GetSession returns the session with its ordered member list, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSessionRow(row.Scan)
	if err != nil {
		return Session{}, err
	}

	members, err := s.listSessionMembers(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Members = members
	return sess, nil
}

// GetSessionByShareKey resolves a share key to its session, or ErrNotFound.
func (s *Store) GetSessionByShareKey(ctx context.Context, key string) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE share_key = ?`, key)
	sess, err := scanSessionRow(row.Scan)
	if err != nil {
		return Session{}, err
	}

	members, err := s.listSessionMembers(ctx, sess.ID)
	if err != nil {
		return Session{}, err
	}
	sess.Members = members
	return sess, nil
}

// ShareKeyInUse reports whether any session already holds the key.
func (s *Store) ShareKeyInUse(ctx context.Context, key string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE share_key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check share key: %w", err)
	}
	return n > 0, nil
}

func (s *Store) listSessionMembers(ctx context.Context, sessionID string) ([]SessionMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, username, joined_at FROM session_members
		 WHERE session_id = ? ORDER BY joined_at, user_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session members: %w", err)
	}
	defer rows.Close()

	var members []SessionMember
	for rows.Next() {
		var m SessionMember
		if err := rows.Scan(&m.UserID, &m.Username, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListSessionsFor returns the sessions visible to a user: their own, ones they
// are a member of, public sessions, and friends-only sessions hosted by their
// friends. With memberOnly, only hosted/joined sessions are returned.
func (s *Store) ListSessionsFor(ctx context.Context, userID string, friendIDs []string, memberOnly bool) ([]Session, error) {
	var (
		query string
		args  []any
	)

	if memberOnly {
		query = `SELECT ` + sessionColumns + ` FROM sessions
			WHERE host_id = ?
			   OR id IN (SELECT session_id FROM session_members WHERE user_id = ?)
			ORDER BY created_at DESC`
		args = []any{userID, userID}
	} else {
		var sb strings.Builder
		sb.WriteString(`SELECT ` + sessionColumns + ` FROM sessions
			WHERE host_id = ?
			   OR id IN (SELECT session_id FROM session_members WHERE user_id = ?)
			   OR COALESCE(privacy_type, CASE WHEN is_private THEN 'private' ELSE 'public' END) = 'public'`)
		args = []any{userID, userID}
		if len(friendIDs) > 0 {
			placeholders := strings.Repeat("?,", len(friendIDs)-1) + "?"
			sb.WriteString(` OR (privacy_type = 'friends' AND host_id IN (` + placeholders + `))`)
			for _, id := range friendIDs {
				args = append(args, id)
			}
		}
		sb.WriteString(` ORDER BY created_at DESC`)
		query = sb.String()
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sessions {
		members, err := s.listSessionMembers(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Members = members
	}
	return sessions, nil
}

// AddSessionMember inserts the member if not already present. Returns false
// when the user was already a member. The conditional insert is the atomicity
// boundary for concurrent joins.
func (s *Store) AddSessionMember(ctx context.Context, sessionID string, m SessionMember) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_members (session_id, user_id, username, joined_at) VALUES (?, ?, ?, ?)`,
		sessionID, m.UserID, m.Username, m.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add session member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected > 0 {
		if err := s.touchSession(ctx, sessionID, m.JoinedAt); err != nil {
			return false, err
		}
	}
	return affected > 0, nil
}

// RemoveSessionMember removes the member row.
func (s *Store) RemoveSessionMember(ctx context.Context, sessionID, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_members WHERE session_id = ? AND user_id = ?`,
		sessionID, userID); err != nil {
		return fmt.Errorf("failed to remove session member: %w", err)
	}
	return s.touchSession(ctx, sessionID, time.Now().UTC())
}

func (s *Store) touchSession(ctx context.Context, sessionID string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, at, sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// UpdateSessionPlayback merges the non-nil fields of the partial update into
// the persisted playback state. Unset fields are left untouched.
func (s *Store) UpdateSessionPlayback(ctx context.Context, sessionID string, upd PlaybackUpdate, at time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{at}

	if upd.IsPlaying != nil {
		sets = append(sets, "is_playing = ?")
		args = append(args, *upd.IsPlaying)
	}
	if upd.PositionMs != nil {
		sets = append(sets, "position_ms = ?")
		args = append(args, *upd.PositionMs)
	}
	if upd.TrackID != nil {
		sets = append(sets, "track_id = ?")
		args = append(args, *upd.TrackID)
	}
	if upd.TrackName != nil {
		sets = append(sets, "track_name = ?")
		args = append(args, *upd.TrackName)
	}
	if upd.TrackArtist != nil {
		sets = append(sets, "track_artist = ?")
		args = append(args, *upd.TrackArtist)
	}
	args = append(args, sessionID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update playback state: %w", err)
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

// UpdateSessionInfo merges the non-nil metadata and playback fields.
func (s *Store) UpdateSessionInfo(ctx context.Context, sessionID string, upd SessionInfoUpdate, at time.Time) error {
	if upd.Name != nil || upd.Description != nil {
		sets := []string{"updated_at = ?"}
		args := []any{at}
		if upd.Name != nil {
			sets = append(sets, "name = ?")
			args = append(args, *upd.Name)
		}
		if upd.Description != nil {
			sets = append(sets, "description = ?")
			args = append(args, *upd.Description)
		}
		args = append(args, sessionID)
		if _, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
			return fmt.Errorf("failed to update session info: %w", err)
		}
	}
	return s.UpdateSessionPlayback(ctx, sessionID, upd.Playback, at)
}

// DeleteSession removes the session; member rows cascade.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
