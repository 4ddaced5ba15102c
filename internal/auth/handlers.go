// internal/auth/handlers.go

package auth

import (
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "strings"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/common/utils"
)

type Handler struct {
    service Service
}

func NewHandler(service Service) *Handler {
    return &Handler{service: service}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
    var req RegisterRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    resp, err := h.service.Register(r.Context(), &req)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, resp, http.StatusCreated)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
    var req LoginRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    resp, err := h.service.Login(r.Context(), &req)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, resp, http.StatusOK)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
    var req RefreshRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    resp, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, resp, http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
    header := r.Header.Get("Authorization")
    parts := strings.SplitN(header, " ", 2)
    if len(parts) != 2 {
        utils.ErrorResponse(w, "Missing authorization header", http.StatusUnauthorized)
        return
    }

    if err := h.service.Logout(r.Context(), parts[1]); err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.MessageResponse(w, "Logged out", http.StatusOK)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
        utils.ErrorResponse(w, err.Error(), http.StatusUnauthorized)
    case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrUsernameTaken):
        utils.ErrorResponse(w, err.Error(), http.StatusConflict)
    default:
        log.Printf("Auth handler error: %v", err)
        utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
    }
}
