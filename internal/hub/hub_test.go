package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type recordConn struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (c *recordConn) Push(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("closed")
	}
	c.events = append(c.events, event)
	return nil
}

func (c *recordConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	h := New()
	first := &recordConn{}
	second := &recordConn{}
	h.Register("parent-1", first)
	h.Register("parent-1", second)

	h.Broadcast("parent-1", "location", map[string]any{"lat": 14.5995})

	if first.count() != 1 || second.count() != 1 {
		t.Fatalf("expected both connections to receive the event, got %d and %d", first.count(), second.count())
	}
}

func TestBroadcastToOfflineUserIsDropped(t *testing.T) {
	h := New()
	// No registration at all; must not panic or error.
	h.Broadcast("parent-1", "location", nil)
}

func TestFailingConnDoesNotBlockOthers(t *testing.T) {
	h := New()
	bad := &recordConn{fail: true}
	good := &recordConn{}
	h.Register("parent-1", bad)
	h.Register("parent-1", good)

	h.Broadcast("parent-1", "location", nil)

	if good.count() != 1 {
		t.Fatalf("expected healthy connection to receive the event, got %d", good.count())
	}
}

func TestUnregisterRemovesOnlyThatConn(t *testing.T) {
	h := New()
	first := &recordConn{}
	second := &recordConn{}
	h.Register("parent-1", first)
	h.Register("parent-1", second)

	h.Unregister("parent-1", first)
	h.Broadcast("parent-1", "location", nil)

	if first.count() != 0 {
		t.Fatalf("unregistered connection received an event")
	}
	if second.count() != 1 {
		t.Fatalf("remaining connection missed the event")
	}
	if h.ConnCount("parent-1") != 1 {
		t.Fatalf("expected 1 connection, got %d", h.ConnCount("parent-1"))
	}
}

func TestUnregisterUnknownConnIsNoop(t *testing.T) {
	h := New()
	known := &recordConn{}
	h.Register("parent-1", known)

	h.Unregister("parent-1", &recordConn{})
	h.Unregister("parent-2", &recordConn{})

	if !h.Reachable("parent-1") {
		t.Fatalf("known connection was affected by unrelated unregister")
	}
}

func TestRegisterSameConnTwice(t *testing.T) {
	h := New()
	conn := &recordConn{}
	h.Register("parent-1", conn)
	h.Register("parent-1", conn)

	h.Broadcast("parent-1", "location", nil)

	if conn.count() != 1 {
		t.Fatalf("duplicate registration caused %d deliveries", conn.count())
	}
}

func TestConcurrentRegisterUnregisterBroadcast(t *testing.T) {
	h := New()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		userID := fmt.Sprintf("user-%d", i%8)
		conn := &recordConn{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Register(userID, conn)
			h.Broadcast(userID, "location", nil)
			h.Unregister(userID, conn)
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		userID := fmt.Sprintf("user-%d", i)
		if h.Reachable(userID) {
			t.Fatalf("user %s still reachable after all unregisters", userID)
		}
	}
}
