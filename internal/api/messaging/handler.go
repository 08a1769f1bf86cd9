// Package messaging exposes the chat core over HTTP: the chat websocket
// endpoint and the REST surface used by the web client.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Vasu1712/legalwise-backend/internal/chat"
	"github.com/Vasu1712/legalwise-backend/internal/middleware"
	"github.com/Vasu1712/legalwise-backend/internal/models"
	"github.com/Vasu1712/legalwise-backend/internal/presence"
	"github.com/Vasu1712/legalwise-backend/internal/ws"
)

// Options tunes chat sessions.
type Options struct {
	AllowedOrigins []string
	MaxFrameBytes  int64
	SendBufferSize int
	PresenceTTL    time.Duration
}

// ChatHandler holds the dependencies for the chat endpoints.
type ChatHandler struct {
	router   *chat.Router
	registry *ws.Registry
	presence presence.Tracker
	verifier middleware.TokenVerifier
	upgrader websocket.Upgrader
	opts     Options
	logger   zerolog.Logger
}

// NewChatHandler wires the chat endpoints. tracker may be nil.
func NewChatHandler(router *chat.Router, registry *ws.Registry, tracker presence.Tracker,
	verifier middleware.TokenVerifier, opts Options, logger zerolog.Logger) *ChatHandler {
	if tracker == nil {
		tracker = presence.Nop{}
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 8192
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	return &ChatHandler{
		router:   router,
		registry: registry,
		presence: tracker,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     middleware.OriginAllowed(opts.AllowedOrigins),
		},
		opts:   opts,
		logger: logger.With().Str("component", "chat_api").Logger(),
	}
}

// ListConversations handles GET /conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	convs, err := h.router.ListConversations(r.Context(), user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

// GetOrCreateConversation handles GET /conversations/with/{otherUserId}.
func (h *ChatHandler) GetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	conv, err := h.router.GetOrCreateConversation(r.Context(), user, mux.Vars(r)["otherUserId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /conversations/{id}/messages?skip=&limit=.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeError(w, err)
		return
	}
	msgs, err := h.router.ListMessages(r.Context(), user, mux.Vars(r)["id"], skip, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessage handles POST /conversations/{id}/messages.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	msg, err := h.router.SendMessage(r.Context(), user, mux.Vars(r)["id"], req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkAsRead handles PUT /conversations/{id}/read.
func (h *ChatHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.router.MarkAsRead(r.Context(), user, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Presence handles GET /presence/{userId}. The local registry answers first;
// the shared tracker covers users connected to other instances.
func (h *ChatHandler) Presence(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireUser(w, r); !ok {
		return
	}
	userID := mux.Vars(r)["userId"]
	online := h.registry.IsOnline(userID)
	if !online {
		var err error
		online, err = h.presence.IsOnline(r.Context(), userID)
		if err != nil {
			h.logger.Warn().Err(err).Str("user_id", userID).Msg("presence lookup failed")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "online": online})
}

// Announce handles POST /announcements.
func (h *ChatHandler) Announce(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.router.Announce(r.Context(), user, req.Content); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (h *ChatHandler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, chat.ErrUnauthenticated)
	}
	return user, ok
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxFrameBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", chat.ErrInvalidInput)
	}
	return nil
}

func (h *ChatHandler) writeError(w http.ResponseWriter, err error) {
	status := chat.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("chat request failed")
		if errors.Is(err, chat.ErrTransientStore) {
			msg = chat.ErrTransientStore.Error()
		} else if !errors.Is(err, chat.ErrQueueFull) {
			msg = "internal error"
		}
	}
	writeJSON(w, status, map[string]string{"error": msg, "code": chat.Code(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", chat.ErrInvalidInput, key)
	}
	return n, nil
}
