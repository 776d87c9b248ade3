package realtime

import "testing"

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	c := newConn("conn-1", Identity{ID: "user-1", Username: "alice"})

	r.Register(c)

	if got := r.Get("conn-1"); got != c {
		t.Fatalf("Get returned %v, want registered conn", got)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}
}

func TestRegistryRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	c := newConn("conn-1", Identity{ID: "user-1", Username: "alice"})

	r.Register(c)
	r.Register(c)

	if got := r.Len(); got != 1 {
		t.Fatalf("Len after double register = %d, want 1", got)
	}
	if got := len(r.ConnectionsFor("user-1")); got != 1 {
		t.Fatalf("ConnectionsFor = %d conns, want 1", got)
	}
}

func TestRegistryMultiDevice(t *testing.T) {
	r := NewRegistry()
	phone := newConn("conn-1", Identity{ID: "user-1", Username: "alice"})
	laptop := newConn("conn-2", Identity{ID: "user-1", Username: "alice"})
	other := newConn("conn-3", Identity{ID: "user-2", Username: "bob"})

	r.Register(phone)
	r.Register(laptop)
	r.Register(other)

	conns := r.ConnectionsFor("user-1")
	if len(conns) != 2 {
		t.Fatalf("ConnectionsFor(user-1) = %d conns, want 2", len(conns))
	}
	for _, c := range conns {
		if c.Identity.ID != "user-1" {
			t.Errorf("conn %s belongs to %s, want user-1", c.ID, c.Identity.ID)
		}
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	phone := newConn("conn-1", Identity{ID: "user-1", Username: "alice"})
	laptop := newConn("conn-2", Identity{ID: "user-1", Username: "alice"})

	r.Register(phone)
	r.Register(laptop)

	if got := r.Unregister("conn-1"); got != phone {
		t.Fatalf("Unregister returned %v, want the removed conn", got)
	}
	if got := len(r.ConnectionsFor("user-1")); got != 1 {
		t.Fatalf("ConnectionsFor after first unregister = %d, want 1", got)
	}

	r.Unregister("conn-2")
	if got := r.ConnectionsFor("user-1"); got != nil {
		t.Fatalf("ConnectionsFor after last unregister = %v, want nil", got)
	}
	if got := r.Unregister("conn-2"); got != nil {
		t.Fatalf("Unregister of unknown id returned %v, want nil", got)
	}
}
