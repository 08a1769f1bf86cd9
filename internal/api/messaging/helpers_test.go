package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/auth"
	"github.com/Vasu1712/legalwise-backend/internal/chat"
	"github.com/Vasu1712/legalwise-backend/internal/middleware"
	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/presence"
	"github.com/Vasu1712/legalwise-backend/internal/storage/memory"
	"github.com/Vasu1712/legalwise-backend/internal/ws"
)

var (
	client1 = models.User{ID: "C1", Role: models.RoleClient, Name: "Carla Client"}
	client2 = models.User{ID: "C2", Role: models.RoleClient, Name: "Chris Client"}
	lawyer1 = models.User{ID: "L1", Role: models.RoleLawyer, Name: "Lena Lawyer"}
	admin1  = models.User{ID: "A1", Role: models.RoleAdmin, Name: "Ada Admin"}
)

type testEnv struct {
	server   *httptest.Server
	handler  http.Handler
	store    *memory.ChatStore
	registry *ws.Registry
	router   *chat.Router
	verifier *auth.JWTVerifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTracker(t, nil)
}

func newTestEnvWithTracker(t *testing.T, tracker presence.Tracker) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	store := memory.NewChatStore()
	for _, u := range []models.User{client1, client2, lawyer1} {
		store.AddUser(u)
	}
	registry := ws.NewRegistry(logger)
	dispatcher := chat.NewDispatcher(registry, 16, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)

	router := chat.NewRouter(store, registry, dispatcher, logger)
	verifier := auth.NewJWTVerifier("test-secret")
	h := NewChatHandler(router, registry, tracker, verifier, Options{
		AllowedOrigins: []string{"*"},
		MaxFrameBytes:  4096,
		SendBufferSize: 16,
	}, logger)

	r := mux.NewRouter()
	RegisterChatRoutes(r, h, middleware.RequireAuth(verifier))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{
		server:   server,
		handler:  r,
		store:    store,
		registry: registry,
		router:   router,
		verifier: verifier,
	}
}

func (e *testEnv) token(t *testing.T, user models.User) string {
	t.Helper()
	token, err := e.verifier.Issue(user, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/chat" + query
}

// dial opens a chat socket for user and waits until the session is registered.
func (e *testEnv) dial(t *testing.T, user models.User) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL("?token="+e.token(t, user)), nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", user.ID, err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, func() bool { return e.registry.IsOnline(user.ID) })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// readClose reads until the server closes the socket and returns the close code.
func readClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if ce, ok := err.(*websocket.CloseError); ok {
			return ce.Code
		}
		t.Fatalf("expected close frame, got %v", err)
	}
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(v); err != nil {
		t.Fatalf("read frame: %v", err)
	}
}

// memoryTracker keeps presence in a map with the same ownership rule as the
// Valkey tracker.
type memoryTracker struct {
	mu     sync.Mutex
	owners map[string]string
}

func newMemoryTracker() *memoryTracker {
	return &memoryTracker{owners: map[string]string{}}
}

func (m *memoryTracker) MarkOnline(_ context.Context, user models.User, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[user.ID] = connID
	return nil
}

func (m *memoryTracker) MarkOffline(_ context.Context, userID, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[userID] == connID {
		delete(m.owners, userID)
	}
	return nil
}

func (m *memoryTracker) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.owners[userID]
	return ok, nil
}
