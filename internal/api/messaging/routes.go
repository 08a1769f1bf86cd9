package messaging

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes registers the chat websocket endpoint and the REST routes.
// requireAuth guards the REST routes; the websocket authenticates itself.
func RegisterChatRoutes(r *mux.Router, handler *ChatHandler, requireAuth mux.MiddlewareFunc) {
	r.HandleFunc("/ws/chat", handler.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/chat").Subrouter()
	api.Use(requireAuth)

	api.HandleFunc("/conversations", handler.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/with/{otherUserId}", handler.GetOrCreateConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", handler.ListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", handler.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/read", handler.MarkAsRead).Methods(http.MethodPut)
	api.HandleFunc("/presence/{userId}", handler.Presence).Methods(http.MethodGet)
	api.HandleFunc("/announcements", handler.Announce).Methods(http.MethodPost)
}
