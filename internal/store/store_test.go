package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tunetogether/backend/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return New(db)
}

func seedUser(t *testing.T, s *Store, username string) User {
	t.Helper()
	u := User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func seedSession(t *testing.T, s *Store, host User, privacy string) Session {
	t.Helper()
	now := time.Now().UTC()
	sess := Session{
		ID:           uuid.New().String(),
		Name:         host.Username + "'s session",
		HostID:       host.ID,
		HostUsername: host.Username,
		Platform:     "spotify",
		PrivacyType:  privacy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func TestNormalizePrivacy(t *testing.T) {
	tests := []struct {
		name          string
		privacy       sql.NullString
		legacyPrivate bool
		want          string
	}{
		{"explicit public", sql.NullString{String: "public", Valid: true}, true, "public"},
		{"explicit friends", sql.NullString{String: "friends", Valid: true}, false, "friends"},
		{"explicit private", sql.NullString{String: "private", Valid: true}, false, "private"},
		{"legacy private flag set", sql.NullString{}, true, "private"},
		{"legacy private flag clear", sql.NullString{}, false, "public"},
		{"empty string with flag", sql.NullString{String: "", Valid: true}, true, "private"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizePrivacy(tt.privacy, tt.legacyPrivate); got != tt.want {
				t.Errorf("normalizePrivacy = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetSessionCoercesLegacyRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")

	// Rows written before the privacy model: NULL privacy_type, is_private flag.
	for _, tt := range []struct {
		id      string
		private bool
		want    string
	}{
		{"legacy-private", true, PrivacyPrivate},
		{"legacy-public", false, PrivacyPublic},
	} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, name, host_id, host_username, platform, privacy_type, is_private)
			 VALUES (?, 'legacy', ?, ?, 'spotify', NULL, ?)`,
			tt.id, host.ID, host.Username, tt.private); err != nil {
			t.Fatalf("insert legacy row: %v", err)
		}

		sess, err := s.GetSession(ctx, tt.id)
		if err != nil {
			t.Fatalf("GetSession(%s): %v", tt.id, err)
		}
		if sess.PrivacyType != tt.want {
			t.Errorf("session %s privacy = %q, want %q", tt.id, sess.PrivacyType, tt.want)
		}
	}
}

func TestCreateSessionHostIsFirstMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	sess := seedSession(t, s, host, PrivacyPublic)

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(got.Members) != 1 || got.Members[0].UserID != host.ID {
		t.Fatalf("members = %+v, want host only", got.Members)
	}
	if !got.HasMember(host.ID) {
		t.Error("HasMember(host) = false")
	}
}

func TestAddSessionMemberIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	guest := seedUser(t, s, "guest")
	sess := seedSession(t, s, host, PrivacyPublic)

	m := SessionMember{UserID: guest.ID, Username: guest.Username, JoinedAt: time.Now().UTC()}
	added, err := s.AddSessionMember(ctx, sess.ID, m)
	if err != nil {
		t.Fatalf("AddSessionMember: %v", err)
	}
	if !added {
		t.Fatal("first add reported not added")
	}

	added, err = s.AddSessionMember(ctx, sess.ID, m)
	if err != nil {
		t.Fatalf("second AddSessionMember: %v", err)
	}
	if added {
		t.Fatal("second add reported added")
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(got.Members))
	}
}

func TestUpdateSessionPlaybackMergesPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	sess := seedSession(t, s, host, PrivacyPublic)

	track := "track-1"
	name := "Song"
	artist := "Artist"
	playing := true
	if err := s.UpdateSessionPlayback(ctx, sess.ID, PlaybackUpdate{
		TrackID: &track, TrackName: &name, TrackArtist: &artist, IsPlaying: &playing,
	}, time.Now().UTC()); err != nil {
		t.Fatalf("full update: %v", err)
	}

	// Partial update touches only position.
	pos := int64(31000)
	if err := s.UpdateSessionPlayback(ctx, sess.ID, PlaybackUpdate{PositionMs: &pos}, time.Now().UTC()); err != nil {
		t.Fatalf("partial update: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PositionMs != 31000 {
		t.Errorf("PositionMs = %d, want 31000", got.PositionMs)
	}
	if got.TrackID != "track-1" || got.TrackName != "Song" || got.TrackArtist != "Artist" {
		t.Errorf("track fields changed by partial update: %+v", got)
	}
	if !got.IsPlaying {
		t.Error("IsPlaying cleared by partial update")
	}
}

func TestUpdateSessionPlaybackUnknownSession(t *testing.T) {
	s := newTestStore(t)
	pos := int64(1)
	err := s.UpdateSessionPlayback(context.Background(), "missing", PlaybackUpdate{PositionMs: &pos}, time.Now().UTC())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFriendshipBothDirectionsOnAccept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	if err := s.CreateFriendship(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("CreateFriendship: %v", err)
	}

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := s.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("AreFriends(%s, %s) = false", pair[0], pair[1])
		}
	}

	friends, err := s.ListFriends(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 1 || friends[0].ID != bob.ID {
		t.Errorf("ListFriends = %+v, want bob", friends)
	}
}

func TestAreFriendsSingleDirectionSufficient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	// An asymmetric row left by a partial write still counts.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO friends (user_id, friend_id) VALUES (?, ?)`, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	for _, pair := range [][2]string{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		ok, err := s.AreFriends(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("AreFriends(%s, %s) = false with single edge", pair[0], pair[1])
		}
	}
}

func TestRemoveFriendshipClearsBothDirectionsAndRequests(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")

	fr := FriendRequest{
		ID: uuid.New().String(), SenderID: alice.ID, RecipientID: bob.ID,
		Status: "accepted", CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateFriendRequest(ctx, fr); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFriendship(ctx, alice.ID, bob.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.RemoveFriendship(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("RemoveFriendship: %v", err)
	}

	ok, err := s.AreFriends(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("still friends after removal")
	}
	exists, err := s.FriendRequestExists(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("friend request row survived removal")
	}
}

func TestListSessionsForVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	friend := seedUser(t, s, "friend")
	stranger := seedUser(t, s, "stranger")

	public := seedSession(t, s, host, PrivacyPublic)
	friendsOnly := seedSession(t, s, host, PrivacyFriends)
	private := seedSession(t, s, host, PrivacyPrivate)

	if err := s.CreateFriendship(ctx, host.ID, friend.ID); err != nil {
		t.Fatal(err)
	}

	byID := func(sessions []Session) map[string]bool {
		m := make(map[string]bool, len(sessions))
		for _, sess := range sessions {
			m[sess.ID] = true
		}
		return m
	}

	// A stranger sees only the public session.
	got, err := s.ListSessionsFor(ctx, stranger.ID, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	ids := byID(got)
	if !ids[public.ID] || ids[friendsOnly.ID] || ids[private.ID] {
		t.Errorf("stranger sees %v", ids)
	}

	// A friend of the host also sees the friends-only session.
	got, err = s.ListSessionsFor(ctx, friend.ID, []string{host.ID}, false)
	if err != nil {
		t.Fatal(err)
	}
	ids = byID(got)
	if !ids[public.ID] || !ids[friendsOnly.ID] || ids[private.ID] {
		t.Errorf("friend sees %v", ids)
	}

	// The host sees everything they own.
	got, err = s.ListSessionsFor(ctx, host.ID, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	ids = byID(got)
	if !ids[public.ID] || !ids[friendsOnly.ID] || !ids[private.ID] {
		t.Errorf("host sees %v", ids)
	}

	// memberOnly restricts to hosted/joined sessions.
	got, err = s.ListSessionsFor(ctx, stranger.ID, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("stranger memberOnly sees %d sessions, want 0", len(got))
	}
}

func TestPendingInvitationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	invitee := seedUser(t, s, "invitee")
	sess := seedSession(t, s, host, PrivacyPrivate)

	inv := SessionInvitation{
		ID: uuid.New().String(), SessionID: sess.ID,
		InviterID: host.ID, InviteeID: invitee.ID,
		Status: "pending", CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateSessionInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	pending, err := s.HasPendingInvitation(ctx, sess.ID, invitee.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !pending {
		t.Fatal("HasPendingInvitation = false after create")
	}

	got, err := s.GetPendingInvitation(ctx, inv.ID, invitee.ID)
	if err != nil {
		t.Fatalf("GetPendingInvitation: %v", err)
	}
	if got.SessionID != sess.ID {
		t.Errorf("SessionID = %s, want %s", got.SessionID, sess.ID)
	}

	// The wrong invitee cannot see it.
	if _, err := s.GetPendingInvitation(ctx, inv.ID, host.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong invitee err = %v, want ErrNotFound", err)
	}

	if err := s.UpdateInvitationStatus(ctx, inv.ID, "accepted"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPendingInvitation(ctx, inv.ID, invitee.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("accepted invitation still pending: %v", err)
	}
}

func TestNotificationReadScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, s, "owner")
	other := seedUser(t, s, "other")

	n := Notification{
		ID: uuid.New().String(), UserID: owner.ID,
		Type: "request_accepted", Title: "t", Message: "m",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatal(err)
	}

	if err := s.MarkNotificationRead(ctx, n.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign mark-read err = %v, want ErrNotFound", err)
	}
	if err := s.MarkNotificationRead(ctx, n.ID, owner.ID); err != nil {
		t.Fatalf("owner mark-read: %v", err)
	}

	unread, err := s.ListUnreadNotifications(ctx, owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 0 {
		t.Errorf("unread = %d, want 0", len(unread))
	}
}

func TestListSessionMessagesRecentChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	host := seedUser(t, s, "host")
	sess := seedSession(t, s, host, PrivacyPublic)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := ChatMessage{
			ID: uuid.New().String(), SessionID: sess.ID,
			UserID: host.ID, Username: host.Username,
			Message:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateChatMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	// Limit keeps the newest messages, returned oldest first.
	got, err := s.ListSessionMessages(ctx, sess.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("messages = %d, want 3", len(got))
	}
	if got[0].Message != "c" || got[2].Message != "e" {
		t.Errorf("window = [%s..%s], want [c..e]", got[0].Message, got[2].Message)
	}
}

func TestSearchUsersExcludesSelf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	seedUser(t, s, "alicia")
	seedUser(t, s, "bob")

	got, err := s.SearchUsers(ctx, "ali", alice.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Username != "alicia" {
		t.Errorf("SearchUsers = %+v, want alicia only", got)
	}
}

func TestShareKeyLookup(t *testing.T) {
	s := newTestStore(t)
	host := seedUser(t, s, "hope")

	now := time.Now().UTC()
	sess := Session{
		ID:           uuid.New().String(),
		Name:         "keyed session",
		HostID:       host.ID,
		HostUsername: host.Username,
		Platform:     "spotify",
		PrivacyType:  PrivacyPrivate,
		ShareKey:     "apple-river-42",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := s.GetSessionByShareKey(context.Background(), "apple-river-42")
	if err != nil {
		t.Fatalf("GetSessionByShareKey: %v", err)
	}
	if got.ID != sess.ID || got.ShareKey != "apple-river-42" {
		t.Errorf("resolved session = %+v, want %s", got, sess.ID)
	}
	if len(got.Members) != 1 {
		t.Errorf("members = %d, want host only", len(got.Members))
	}

	if _, err := s.GetSessionByShareKey(context.Background(), "no-such-key-0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown key: err = %v, want ErrNotFound", err)
	}

	inUse, err := s.ShareKeyInUse(context.Background(), "apple-river-42")
	if err != nil {
		t.Fatalf("ShareKeyInUse: %v", err)
	}
	if !inUse {
		t.Error("ShareKeyInUse = false, want true")
	}

	// Sessions without a key do not collide with each other.
	seedSession(t, s, host, PrivacyPublic)
	seedSession(t, s, host, PrivacyPublic)
}
