package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Vasu1712/legalwise-backend/internal/models"
)

func (e *testEnv) do(t *testing.T, user *models.User, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+e.token(t, *user))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func TestRESTConversationFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, &client1, http.MethodGet, "/api/v1/chat/conversations/with/L1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get-or-create: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var conv models.Conversation
	decodeBody(t, rec, &conv)
	if conv.ClientID != "C1" || conv.LawyerID != "L1" || conv.LawyerName != lawyer1.Name {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	rec = env.do(t, &lawyer1, http.MethodGet, "/api/v1/chat/conversations/with/C1", "")
	var again models.Conversation
	decodeBody(t, rec, &again)
	if again.ID != conv.ID {
		t.Errorf("lawyer-side get-or-create returned %s, expected %s", again.ID, conv.ID)
	}

	base := "/api/v1/chat/conversations/" + conv.ID
	for _, text := range []string{"first", "second", "third"} {
		rec = env.do(t, &client1, http.MethodPost, base+"/messages", `{"content":"`+text+`"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("send: expected 201, got %d: %s", rec.Code, rec.Body)
		}
	}

	rec = env.do(t, &lawyer1, http.MethodGet, base+"/messages?skip=1&limit=5", "")
	var msgs []models.Message
	decodeBody(t, rec, &msgs)
	if len(msgs) != 2 || msgs[0].Content != "second" || msgs[1].Content != "third" {
		t.Fatalf("unexpected page %+v", msgs)
	}

	rec = env.do(t, &lawyer1, http.MethodGet, "/api/v1/chat/conversations", "")
	var convs []models.Conversation
	decodeBody(t, rec, &convs)
	if len(convs) != 1 || convs[0].UnreadByLawyer != 3 || convs[0].LastMessage == nil || *convs[0].LastMessage != "third" {
		t.Fatalf("unexpected listing %+v", convs)
	}

	rec = env.do(t, &lawyer1, http.MethodPut, base+"/read", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: expected 200, got %d", rec.Code)
	}
	stored, _ := env.store.GetConversation(context.Background(), conv.ID)
	if stored.UnreadByLawyer != 0 {
		t.Errorf("expected lawyer unread reset, got %d", stored.UnreadByLawyer)
	}
	all, _ := env.store.ListMessages(context.Background(), conv.ID, 0, 10)
	for _, m := range all {
		if !m.Read {
			t.Errorf("message %s not marked read", m.ID)
		}
	}
}

func TestRESTErrors(t *testing.T) {
	env := newTestEnv(t)
	conv, err := env.router.GetOrCreateConversation(context.Background(), client1, lawyer1.ID)
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	base := "/api/v1/chat/conversations/" + conv.ID

	tests := []struct {
		name   string
		user   *models.User
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"no token", nil, http.MethodGet, "/api/v1/chat/conversations", "", http.StatusUnauthorized, ""},
		{"not a party", &client2, http.MethodGet, base + "/messages", "", http.StatusForbidden, "forbidden"},
		{"not a party send", &client2, http.MethodPost, base + "/messages", `{"content":"hi"}`, http.StatusForbidden, "forbidden"},
		{"not a party read", &client2, http.MethodPut, base + "/read", "", http.StatusForbidden, "forbidden"},
		{"missing conversation", &client1, http.MethodGet, "/api/v1/chat/conversations/nope/messages", "", http.StatusNotFound, "not_found"},
		{"missing counterpart", &client1, http.MethodGet, "/api/v1/chat/conversations/with/L404", "", http.StatusNotFound, "not_found"},
		{"admin get-or-create", &admin1, http.MethodGet, "/api/v1/chat/conversations/with/L1", "", http.StatusForbidden, "forbidden"},
		{"bad limit", &client1, http.MethodGet, base + "/messages?limit=ten", "", http.StatusBadRequest, "invalid_input"},
		{"negative skip", &client1, http.MethodGet, base + "/messages?skip=-1", "", http.StatusBadRequest, "invalid_input"},
		{"blank content", &client1, http.MethodPost, base + "/messages", `{"content":"   "}`, http.StatusBadRequest, "invalid_input"},
		{"bad body", &client1, http.MethodPost, base + "/messages", `{`, http.StatusBadRequest, "invalid_input"},
		{"non-admin announce", &lawyer1, http.MethodPost, "/api/v1/chat/announcements", `{"content":"x"}`, http.StatusForbidden, "forbidden"},
		{"wrong method", &client1, http.MethodDelete, base + "/read", "", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.user, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			if tt.code == "" {
				return
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["code"] != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, body["code"])
			}
		})
	}

	msgs, _ := env.store.ListMessages(context.Background(), conv.ID, 0, 10)
	if len(msgs) != 0 {
		t.Errorf("rejected requests persisted %d messages", len(msgs))
	}
}

func TestRESTAnnounceAndPresence(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, lawyer1)

	rec := env.do(t, &admin1, http.MethodPost, "/api/v1/chat/announcements", `{"content":"office closed friday"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("announce: expected 202, got %d: %s", rec.Code, rec.Body)
	}
	var f map[string]any
	readJSON(t, conn, &f)
	if f["type"] != "announcement" || f["content"] != "office closed friday" {
		t.Errorf("unexpected announcement frame %v", f)
	}

	for id, want := range map[string]bool{"L1": true, "C1": false} {
		rec = env.do(t, &client1, http.MethodGet, "/api/v1/chat/presence/"+id, "")
		var body struct {
			UserID string `json:"userId"`
			Online bool   `json:"online"`
		}
		decodeBody(t, rec, &body)
		if body.UserID != id || body.Online != want {
			t.Errorf("presence %s: expected online=%v, got %+v", id, want, body)
		}
	}
}

type failingPinger struct{ err error }

func (p failingPinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	count := func() int { return 3 }

	rec := httptest.NewRecorder()
	Health(failingPinger{}, count)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["connections"] != float64(3) {
		t.Errorf("unexpected body %v", body)
	}

	rec = httptest.NewRecorder()
	Health(failingPinger{err: errors.New("db down")}, count)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
