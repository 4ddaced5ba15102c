// internal/auth/routes.go

package auth

import (
    "github.com/gorilla/mux"
)

// RegisterRoutes registers the auth endpoints
func RegisterRoutes(router *mux.Router, handler *Handler) {
    api := router.PathPrefix("/api/v1/auth").Subrouter()

    api.HandleFunc("/register", handler.Register).Methods("POST")
    api.HandleFunc("/login", handler.Login).Methods("POST")
    api.HandleFunc("/refresh", handler.Refresh).Methods("POST")
    api.HandleFunc("/logout", handler.Logout).Methods("POST")
}
