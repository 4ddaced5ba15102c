// internal/chat/routes.go

package chat

import (
    "net/http"

    "github.com/gorilla/mux"
)

// RegisterRoutes registers all chat routes. The websocket endpoint is left
// outside the auth middleware: the socket authenticates itself with an
// authenticate event after the upgrade.
func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
    // WebSocket endpoint
    router.HandleFunc("/ws", handler.HandleWebSocket).Methods("GET")

    api := router.PathPrefix("/api/v1/chats").Subrouter()
    api.Use(authMiddleware)

    // Conversation endpoints
    api.HandleFunc("", handler.CreateConversation).Methods("POST")
    api.HandleFunc("", handler.ListConversations).Methods("GET")
    api.HandleFunc("/{id:[0-9]+}", handler.GetConversation).Methods("GET")
    api.HandleFunc("/{id:[0-9]+}/activate", handler.ActivateConversation).Methods("POST")

    // Message endpoints
    api.HandleFunc("/{id:[0-9]+}/messages", handler.SendMessage).Methods("POST")
    api.HandleFunc("/{id:[0-9]+}/messages/{messageId:[0-9]+}", handler.DeleteMessage).Methods("DELETE")
    api.HandleFunc("/{id:[0-9]+}/messages", handler.ClearConversation).Methods("DELETE")

    // Read receipts
    api.HandleFunc("/{id:[0-9]+}/mark-read", handler.MarkRead).Methods("PUT")

    // Typing indicators
    api.HandleFunc("/{id:[0-9]+}/typing", handler.SetTyping).Methods("POST")
    api.HandleFunc("/{id:[0-9]+}/typing", handler.GetTyping).Methods("GET")
}
