package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tunetogether/backend/internal/services"
	"github.com/tunetogether/backend/internal/store"
)

func newSocketServer(t *testing.T) (*httptest.Server, *services.AuthService, *fakeSessions) {
	t.Helper()
	auth := services.NewAuthService("test-secret", time.Hour)
	users := &fakeUsers{byEmail: map[string]store.User{
		"host@example.com":  {ID: "host", Username: "hostname", Email: "host@example.com"},
		"guest@example.com": {ID: "guest", Username: "guestname", Email: "guest@example.com"},
	}}
	fs := newFakeSessions(publicSession())
	hub := NewHub(fs, NewAuthorizer(&fakeFriends{edges: map[[2]string]bool{}}), NewRegistry())
	handler := NewHandler(hub, NewIdentityResolver(auth, users), 64*1024)

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)
	return srv, auth, fs
}

func dialSocket(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readSocketEvent(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func writeSocketEvent(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := encodeEvent(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServeWSRejectsWithoutCredential(t *testing.T) {
	srv, _, _ := newSocketServer(t)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}
}

func TestServeWSRejectsBadToken(t *testing.T) {
	srv, _, _ := newSocketServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v, want 401", resp)
	}
}

func TestServeWSConnectAndJoinFlow(t *testing.T) {
	srv, auth, _ := newSocketServer(t)

	token, err := auth.GenerateToken("guest@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ws := dialSocket(t, srv, token)

	env := readSocketEvent(t, ws)
	if env.Event != EventConnected {
		t.Fatalf("first event = %q, want %q", env.Event, EventConnected)
	}
	var connected ConnectedEvent
	if err := json.Unmarshal(env.Data, &connected); err != nil {
		t.Fatal(err)
	}
	if connected.UserID != "guest" || connected.Username != "guestname" {
		t.Errorf("connected = %+v, want guest/guestname", connected)
	}

	writeSocketEvent(t, ws, EventJoinSession, JoinSessionEvent{SessionID: "sess-1"})
	env = readSocketEvent(t, ws)
	if env.Event != EventJoinedSession {
		t.Fatalf("join ack = %q, want %q", env.Event, EventJoinedSession)
	}
}

func TestServeWSReportsErrorsWithoutDisconnect(t *testing.T) {
	srv, auth, _ := newSocketServer(t)

	token, err := auth.GenerateToken("guest@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ws := dialSocket(t, srv, token)
	readSocketEvent(t, ws) // connected

	writeSocketEvent(t, ws, EventJoinSession, JoinSessionEvent{SessionID: "missing"})
	env := readSocketEvent(t, ws)
	if env.Event != EventError {
		t.Fatalf("got %q, want %q", env.Event, EventError)
	}
	var errEv ErrorEvent
	if err := json.Unmarshal(env.Data, &errEv); err != nil {
		t.Fatal(err)
	}
	if errEv.Message != ErrSessionNotFound.Error() {
		t.Errorf("message = %q, want %q", errEv.Message, ErrSessionNotFound)
	}

	// The connection survives and keeps working.
	writeSocketEvent(t, ws, EventJoinSession, JoinSessionEvent{SessionID: "sess-1"})
	env = readSocketEvent(t, ws)
	if env.Event != EventJoinedSession {
		t.Fatalf("after error, join ack = %q, want %q", env.Event, EventJoinedSession)
	}
}

func TestServeWSNonHostPlaybackDenied(t *testing.T) {
	srv, auth, fs := newSocketServer(t)

	token, err := auth.GenerateToken("guest@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ws := dialSocket(t, srv, token)
	readSocketEvent(t, ws)

	playing := true
	writeSocketEvent(t, ws, EventSessionUpdate, SessionUpdateEvent{
		SessionID: "sess-1",
		IsPlaying: &playing,
	})
	env := readSocketEvent(t, ws)
	if env.Event != EventError {
		t.Fatalf("got %q, want %q", env.Event, EventError)
	}
	if got := len(fs.persistedUpdates()); got != 0 {
		t.Fatalf("persisted %d updates, want 0", got)
	}
}

func TestServeWSMalformedFrame(t *testing.T) {
	srv, auth, _ := newSocketServer(t)

	token, err := auth.GenerateToken("guest@example.com")
	if err != nil {
		t.Fatal(err)
	}
	ws := dialSocket(t, srv, token)
	readSocketEvent(t, ws)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	env := readSocketEvent(t, ws)
	if env.Event != EventError {
		t.Fatalf("got %q, want %q", env.Event, EventError)
	}
}
