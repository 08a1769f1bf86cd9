package ws

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/metrics"
	"github.com/Vasu1712/legalwise-backend/internal/models"
)

// fakeConn records payloads and can be told to fail.
type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (f *fakeConn) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeConn) Close(code int, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestRegistry() *Registry {
	return NewRegistry(zerolog.Nop())
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	r := newTestRegistry()
	h1, h2 := &fakeConn{}, &fakeConn{}

	if prev := r.Register("u1", h1, models.RoleClient, "Alice"); prev != nil {
		t.Fatalf("expected no previous connection, got %v", prev)
	}
	if prev := r.Register("u1", h2, models.RoleClient, "Alice"); prev != h1 {
		t.Fatalf("expected h1 to be returned as replaced")
	}

	if !r.SendTo("u1", []byte("hello")) {
		t.Fatal("SendTo should deliver to the current connection")
	}
	if h1.received() != 0 {
		t.Errorf("replaced connection received %d payloads", h1.received())
	}
	if h2.received() != 1 {
		t.Errorf("current connection received %d payloads, want 1", h2.received())
	}
	if h1.closed {
		t.Error("registry must not close the replaced connection")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	r.Register("u1", &fakeConn{}, models.RoleLawyer, "Bob")

	r.Unregister("u1")
	r.Unregister("u1")
	r.Unregister("never-registered")

	if r.IsOnline("u1") {
		t.Error("u1 should be offline")
	}
}

func TestUnregisterConnKeepsSuccessor(t *testing.T) {
	r := newTestRegistry()
	old, current := &fakeConn{}, &fakeConn{}
	r.Register("u1", old, models.RoleClient, "Alice")
	r.Register("u1", current, models.RoleClient, "Alice")

	if r.UnregisterConn("u1", old) {
		t.Error("stale connection must not unregister its successor")
	}
	if !r.IsOnline("u1") {
		t.Fatal("u1 should still be online")
	}
	if !r.UnregisterConn("u1", current) {
		t.Error("current connection should unregister")
	}
	if r.IsOnline("u1") {
		t.Error("u1 should be offline")
	}
}

func TestSendToOfflineUser(t *testing.T) {
	r := newTestRegistry()
	if r.SendTo("ghost", []byte("x")) {
		t.Error("SendTo an offline user must report false")
	}
}

func TestSendToFailureUnregisters(t *testing.T) {
	r := newTestRegistry()
	r.Register("u1", &fakeConn{fail: true}, models.RoleClient, "Alice")

	if r.SendTo("u1", []byte("x")) {
		t.Error("SendTo should report false on transport failure")
	}
	if r.IsOnline("u1") {
		t.Error("failed connection should be unregistered")
	}
}

func TestBroadcastDropsFailedConnections(t *testing.T) {
	r := newTestRegistry()
	good1, good2, bad := &fakeConn{}, &fakeConn{}, &fakeConn{fail: true}
	r.Register("a", good1, models.RoleClient, "A")
	r.Register("b", good2, models.RoleLawyer, "B")
	r.Register("c", bad, models.RoleClient, "C")

	if n := r.Broadcast([]byte("news")); n != 2 {
		t.Errorf("expected 2 deliveries, got %d", n)
	}
	if good1.received() != 1 || good2.received() != 1 {
		t.Error("healthy connections should each receive the broadcast")
	}
	if r.IsOnline("c") {
		t.Error("failing connection should be unregistered")
	}
	if r.Count() != 2 {
		t.Errorf("expected 2 online, got %d", r.Count())
	}
}

func TestLookupReturnsCachedIdentity(t *testing.T) {
	r := newTestRegistry()
	r.Register("u1", &fakeConn{}, models.RoleLawyer, "Bob")

	u, ok := r.Lookup("u1")
	if !ok {
		t.Fatal("expected u1 to be found")
	}
	if u.Role != models.RoleLawyer || u.Name != "Bob" {
		t.Errorf("unexpected identity %+v", u)
	}
}

func TestCloseAll(t *testing.T) {
	r := newTestRegistry()
	a, b := &fakeConn{}, &fakeConn{}
	r.Register("a", a, models.RoleClient, "A")
	r.Register("b", b, models.RoleLawyer, "B")

	r.CloseAll(1001, "server shutdown")

	if !a.closed || !b.closed {
		t.Error("all connections should be closed")
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}

// TestConcurrentRegistryOperations is meant to be run with -race.
func TestConcurrentRegistryOperations(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", id%10)
			conn := &fakeConn{}
			r.Register(userID, conn, models.RoleClient, "n")
			r.SendTo(userID, []byte("ping"))
			r.IsOnline(userID)
			r.Broadcast([]byte("all"))
			r.UnregisterConn(userID, conn)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		r.Unregister(fmt.Sprintf("user-%d", i))
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}

func TestActiveConnectionsGaugeMatchesCount(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", id%40)
			conn := &fakeConn{}
			r.Register(userID, conn, models.RoleLawyer, "n")
			if id%3 == 0 {
				r.UnregisterConn(userID, conn)
			} else if id%5 == 0 {
				r.Unregister(userID)
			}
		}(i)
	}
	wg.Wait()

	if got, want := testutil.ToFloat64(metrics.ActiveConnections), float64(r.Count()); got != want {
		t.Errorf("gauge reports %v connections, registry holds %v", got, want)
	}

	r.CloseAll(1001, "server shutdown")
	if got := testutil.ToFloat64(metrics.ActiveConnections); got != 0 {
		t.Errorf("expected gauge 0 after CloseAll, got %v", got)
	}
}
