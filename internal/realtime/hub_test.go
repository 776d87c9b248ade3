package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tunetogether/backend/internal/store"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]store.Session
	updates  []store.PlaybackUpdate
	messages []store.ChatMessage
	err      error
}

func newFakeSessions(sessions ...store.Session) *fakeSessions {
	f := &fakeSessions{sessions: make(map[string]store.Session)}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Session{}, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessions) UpdateSessionPlayback(_ context.Context, id string, upd store.PlaybackUpdate, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.sessions[id]; !ok {
		return store.ErrNotFound
	}
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakeSessions) CreateChatMessage(_ context.Context, m store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeSessions) persistedUpdates() []store.PlaybackUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.PlaybackUpdate(nil), f.updates...)
}

func newTestHub(friends *fakeFriends, sessions ...store.Session) (*Hub, *fakeSessions) {
	if friends == nil {
		friends = &fakeFriends{edges: map[[2]string]bool{}}
	}
	fs := newFakeSessions(sessions...)
	return NewHub(fs, NewAuthorizer(friends), NewRegistry()), fs
}

func connectUser(h *Hub, connID, userID, username string) *Conn {
	c := newConn(connID, Identity{ID: userID, Username: username})
	h.Registry().Register(c)
	return c
}

// recvEvent pops the next framed message from a connection's send queue.
func recvEvent(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.Send():
		if !ok {
			t.Fatal("send channel closed")
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Envelope{}
	}
}

func expectNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case raw := <-c.Send():
		t.Fatalf("unexpected event: %s", raw)
	default:
	}
}

func publicSession() store.Session {
	return store.Session{
		ID:          "sess-1",
		HostID:      "host",
		PrivacyType: store.PrivacyPublic,
		Members:     []store.SessionMember{{UserID: "host", Username: "hostname"}},
	}
}

func TestSubscribeAcksJoinerAndNotifiesRoom(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	ctx := context.Background()

	first := connectUser(h, "c1", "host", "hostname")
	if err := h.Subscribe(ctx, first, "sess-1"); err != nil {
		t.Fatalf("subscribe host: %v", err)
	}
	env := recvEvent(t, first)
	if env.Event != EventJoinedSession {
		t.Fatalf("host got %q, want %q", env.Event, EventJoinedSession)
	}

	second := connectUser(h, "c2", "guest", "guestname")
	if err := h.Subscribe(ctx, second, "sess-1"); err != nil {
		t.Fatalf("subscribe guest: %v", err)
	}

	env = recvEvent(t, first)
	if env.Event != EventUserJoined {
		t.Fatalf("host got %q, want %q", env.Event, EventUserJoined)
	}
	var joined UserJoinedEvent
	if err := json.Unmarshal(env.Data, &joined); err != nil {
		t.Fatalf("decode user_joined: %v", err)
	}
	if joined.UserID != "guest" || joined.Username != "guestname" {
		t.Errorf("user_joined = %+v, want guest/guestname", joined)
	}

	env = recvEvent(t, second)
	if env.Event != EventJoinedSession {
		t.Fatalf("guest got %q, want %q", env.Event, EventJoinedSession)
	}
	expectNoEvent(t, second)

	if got := h.RoomSize("sess-1"); got != 2 {
		t.Fatalf("RoomSize = %d, want 2", got)
	}
}

func TestSubscribeUnknownSession(t *testing.T) {
	h, _ := newTestHub(nil)
	c := connectUser(h, "c1", "user", "name")

	err := h.Subscribe(context.Background(), c, "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Subscribe = %v, want ErrSessionNotFound", err)
	}
	if got := h.RoomSize("missing"); got != 0 {
		t.Fatalf("RoomSize = %d, want 0", got)
	}
}

func TestSubscribeDeniedLeavesNoTrace(t *testing.T) {
	sess := publicSession()
	sess.PrivacyType = store.PrivacyPrivate
	h, _ := newTestHub(nil, sess)
	c := connectUser(h, "c1", "stranger", "stranger")

	err := h.Subscribe(context.Background(), c, "sess-1")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("Subscribe = %v, want ErrAccessDenied", err)
	}
	expectNoEvent(t, c)
	if got := h.RoomSize("sess-1"); got != 0 {
		t.Fatalf("RoomSize = %d, want 0", got)
	}
}

func TestSubscribeRechecksFriendEdge(t *testing.T) {
	friends := &fakeFriends{edges: map[[2]string]bool{{"friend", "host"}: true}}
	sess := publicSession()
	sess.PrivacyType = store.PrivacyFriends
	h, _ := newTestHub(friends, sess)
	ctx := context.Background()

	c := connectUser(h, "c1", "friend", "friend")
	if err := h.Subscribe(ctx, c, "sess-1"); err != nil {
		t.Fatalf("subscribe while friends: %v", err)
	}
	if err := h.Unsubscribe(c, "sess-1", true); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	// Friendship dissolved between subscriptions.
	friends.edges = map[[2]string]bool{}
	err := h.Subscribe(ctx, c, "sess-1")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("subscribe after unfriend = %v, want ErrAccessDenied", err)
	}
}

func TestUnsubscribeNotifiesRemaining(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	ctx := context.Background()

	stay := connectUser(h, "c1", "host", "hostname")
	leave := connectUser(h, "c2", "guest", "guestname")
	if err := h.Subscribe(ctx, stay, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if err := h.Subscribe(ctx, leave, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, stay) // joined_session
	recvEvent(t, stay) // user_joined
	recvEvent(t, leave)

	if err := h.Unsubscribe(leave, "sess-1", true); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	env := recvEvent(t, stay)
	if env.Event != EventUserLeft {
		t.Fatalf("remaining got %q, want %q", env.Event, EventUserLeft)
	}
	env = recvEvent(t, leave)
	if env.Event != EventLeftSession {
		t.Fatalf("leaver got %q, want %q", env.Event, EventLeftSession)
	}
	if got := h.RoomSize("sess-1"); got != 1 {
		t.Fatalf("RoomSize = %d, want 1", got)
	}
}

func TestPlaybackUpdateHostOnly(t *testing.T) {
	h, fs := newTestHub(nil, publicSession())
	ctx := context.Background()

	guest := connectUser(h, "c1", "guest", "guestname")
	if err := h.Subscribe(ctx, guest, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, guest)

	playing := true
	err := h.PublishPlaybackUpdate(ctx, guest, SessionUpdateEvent{
		SessionID: "sess-1",
		IsPlaying: &playing,
	})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("guest update = %v, want ErrNotHost", err)
	}
	expectNoEvent(t, guest)
	if got := len(fs.persistedUpdates()); got != 0 {
		t.Fatalf("persisted %d updates, want 0", got)
	}
}

func TestPlaybackUpdatePersistsAndBroadcastsToAll(t *testing.T) {
	h, fs := newTestHub(nil, publicSession())
	ctx := context.Background()

	host := connectUser(h, "c1", "host", "hostname")
	guest := connectUser(h, "c2", "guest", "guestname")
	if err := h.Subscribe(ctx, host, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if err := h.Subscribe(ctx, guest, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, host) // joined_session
	recvEvent(t, host) // user_joined
	recvEvent(t, guest)

	playing := true
	pos := int64(42000)
	err := h.PublishPlaybackUpdate(ctx, host, SessionUpdateEvent{
		SessionID:  "sess-1",
		IsPlaying:  &playing,
		PositionMs: &pos,
	})
	if err != nil {
		t.Fatalf("host update: %v", err)
	}

	updates := fs.persistedUpdates()
	if len(updates) != 1 {
		t.Fatalf("persisted %d updates, want 1", len(updates))
	}
	if updates[0].IsPlaying == nil || !*updates[0].IsPlaying {
		t.Error("persisted update missing is_playing=true")
	}
	if updates[0].TrackID != nil {
		t.Error("persisted update set track_id, want untouched")
	}

	// Sender and guest both receive the broadcast, with the accepted fields
	// nested under the updates key.
	for _, c := range []*Conn{host, guest} {
		env := recvEvent(t, c)
		if env.Event != EventSessionUpdated {
			t.Fatalf("%s got %q, want %q", c.Identity.ID, env.Event, EventSessionUpdated)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			t.Fatal(err)
		}
		if _, ok := raw["updates"]; !ok {
			t.Fatalf("%s payload has no updates key: %s", c.Identity.ID, env.Data)
		}
		var got SessionUpdatedEvent
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.SessionID != "sess-1" {
			t.Errorf("%s saw session %q, want sess-1", c.Identity.ID, got.SessionID)
		}
		if got.Updates.PositionMs == nil || *got.Updates.PositionMs != 42000 {
			t.Errorf("%s saw position %v, want 42000", c.Identity.ID, got.Updates.PositionMs)
		}
		if got.Updates.TrackName != nil {
			t.Errorf("%s saw track_name in payload, want absent", c.Identity.ID)
		}
	}
}

func TestPlaybackUpdateEmptyRejected(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	host := connectUser(h, "c1", "host", "hostname")

	err := h.PublishPlaybackUpdate(context.Background(), host, SessionUpdateEvent{SessionID: "sess-1"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("empty update = %v, want ErrBadRequest", err)
	}
}

func TestPlaybackUpdatesOrderedPerRoom(t *testing.T) {
	h, fs := newTestHub(nil, publicSession())
	ctx := context.Background()

	host := connectUser(h, "c1", "host", "hostname")
	watcher := connectUser(h, "c2", "guest", "guestname")
	if err := h.Subscribe(ctx, watcher, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, watcher)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pos := int64(i)
			if err := h.PublishPlaybackUpdate(ctx, host, SessionUpdateEvent{
				SessionID:  "sess-1",
				PositionMs: &pos,
			}); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	updates := fs.persistedUpdates()
	if len(updates) != n {
		t.Fatalf("persisted %d updates, want %d", len(updates), n)
	}

	// The broadcast order seen by a subscriber must match the order the
	// store accepted the writes.
	for i := 0; i < n; i++ {
		env := recvEvent(t, watcher)
		if env.Event != EventSessionUpdated {
			t.Fatalf("event %d = %q, want %q", i, env.Event, EventSessionUpdated)
		}
		var got SessionUpdatedEvent
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatal(err)
		}
		if got.Updates.PositionMs == nil || *got.Updates.PositionMs != *updates[i].PositionMs {
			t.Fatalf("event %d carried position %v, store accepted %v", i, got.Updates.PositionMs, updates[i].PositionMs)
		}
	}
}

func TestChatPersistsAndEchoesToSender(t *testing.T) {
	h, fs := newTestHub(nil, publicSession())
	ctx := context.Background()

	sender := connectUser(h, "c1", "guest", "guestname")
	if err := h.Subscribe(ctx, sender, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, sender)

	if err := h.PublishChat(ctx, sender, ChatMessageEvent{SessionID: "sess-1", Message: "hello"}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	env := recvEvent(t, sender)
	if env.Event != EventChatMessage {
		t.Fatalf("got %q, want %q", env.Event, EventChatMessage)
	}
	var got ChatBroadcastEvent
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Message != "hello" || got.Username != "guestname" {
		t.Errorf("broadcast = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("broadcast missing server timestamp")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.messages) != 1 || fs.messages[0].Message != "hello" {
		t.Errorf("persisted messages = %+v, want one 'hello'", fs.messages)
	}
	if fs.messages[0].ID == "" {
		t.Error("persisted message missing id")
	}
}

func TestChatBlankMessageRejected(t *testing.T) {
	h, fs := newTestHub(nil, publicSession())
	sender := connectUser(h, "c1", "guest", "guestname")

	for _, msg := range []string{"", "   ", "\n\t"} {
		err := h.PublishChat(context.Background(), sender, ChatMessageEvent{SessionID: "sess-1", Message: msg})
		if !errors.Is(err, ErrBadRequest) {
			t.Errorf("chat %q = %v, want ErrBadRequest", msg, err)
		}
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.messages) != 0 {
		t.Errorf("persisted %d messages, want 0", len(fs.messages))
	}
}

func TestNotifyUserReachesEveryDevice(t *testing.T) {
	h, _ := newTestHub(nil)
	phone := connectUser(h, "c1", "user-1", "alice")
	laptop := connectUser(h, "c2", "user-1", "alice")
	other := connectUser(h, "c3", "user-2", "bob")

	h.NotifyUser("user-1", EventNotification, map[string]string{"message": "ping"})

	for _, c := range []*Conn{phone, laptop} {
		env := recvEvent(t, c)
		if env.Event != EventNotification {
			t.Errorf("conn %s got %q, want %q", c.ID, env.Event, EventNotification)
		}
	}
	expectNoEvent(t, other)

	// Offline target is a no-op.
	h.NotifyUser("nobody", EventNotification, map[string]string{"message": "ping"})
}

func TestDropConnectionCleansUp(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	ctx := context.Background()

	stay := connectUser(h, "c1", "host", "hostname")
	drop := connectUser(h, "c2", "guest", "guestname")
	if err := h.Subscribe(ctx, stay, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if err := h.Subscribe(ctx, drop, "sess-1"); err != nil {
		t.Fatal(err)
	}
	recvEvent(t, stay)
	recvEvent(t, stay)
	recvEvent(t, drop)

	h.DropConnection(drop)

	env := recvEvent(t, stay)
	if env.Event != EventUserLeft {
		t.Fatalf("remaining got %q, want %q", env.Event, EventUserLeft)
	}
	if got := h.Registry().Get("c2"); got != nil {
		t.Error("dropped conn still registered")
	}
	if got := h.RoomSize("sess-1"); got != 1 {
		t.Fatalf("RoomSize = %d, want 1", got)
	}

	// Send channel is closed so the writer goroutine exits.
	select {
	case _, ok := <-drop.Send():
		if ok {
			// The disconnect ack path does not enqueue to the dropped conn,
			// but drain anything buffered before the close.
			for range drop.Send() {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestEnqueueOnDroppedConnIsNoop(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	c := connectUser(h, "c1", "guest", "guestname")

	// A dispatcher may snapshot the user's connections before the drop and
	// enqueue after it; the stale reference must refuse the message rather
	// than hit the closed channel.
	conns := h.Registry().ConnectionsFor("guest")
	if len(conns) != 1 {
		t.Fatalf("ConnectionsFor = %d conns, want 1", len(conns))
	}
	h.DropConnection(c)

	if conns[0].enqueue([]byte(`{"event":"notification"}`)) {
		t.Error("enqueue on dropped conn reported success")
	}

	// Dropping again is harmless.
	h.DropConnection(c)
}

func TestRoomGarbageCollectedWhenEmpty(t *testing.T) {
	h, _ := newTestHub(nil, publicSession())
	ctx := context.Background()

	c := connectUser(h, "c1", "host", "hostname")
	if err := h.Subscribe(ctx, c, "sess-1"); err != nil {
		t.Fatal(err)
	}
	if err := h.Unsubscribe(c, "sess-1", true); err != nil {
		t.Fatal(err)
	}

	h.mu.Lock()
	_, exists := h.rooms["sess-1"]
	h.mu.Unlock()
	if exists {
		t.Fatal("empty room not removed")
	}

	// The room can be recreated afterwards.
	if err := h.Subscribe(ctx, c, "sess-1"); err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	if got := h.RoomSize("sess-1"); got != 1 {
		t.Fatalf("RoomSize = %d, want 1", got)
	}
}
