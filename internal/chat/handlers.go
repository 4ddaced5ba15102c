// internal/chat/handlers.go

package chat

import (
    "encoding/json"
    "errors"
    "log"
    "net/http"
    "strconv"

    "github.com/gorilla/mux"
    "github.com/gorilla/websocket"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/auth"
    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/common/utils"
)

// Handler exposes the conversation REST surface and the websocket upgrade.
// Every mutation goes through the service first; relays run only after the
// write succeeded, carrying the stored representation.
type Handler struct {
    service  Service
    hub      *Hub
    upgrader websocket.Upgrader
}

func NewHandler(service Service, hub *Hub, checkOrigin func(r *http.Request) bool) *Handler {
    return &Handler{
        service: service,
        hub:     hub,
        upgrader: websocket.Upgrader{
            ReadBufferSize:  1024,
            WriteBufferSize: 1024,
            CheckOrigin:     checkOrigin,
        },
    }
}

// CreateConversation finds or creates the conversation with the given
// participant. Safe to call repeatedly; the same thread comes back.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    var req CreateConversationRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    var item *RelatedItem
    if req.ItemID > 0 {
        item = &RelatedItem{ID: req.ItemID, Name: req.ItemName, Image: req.ItemImage}
    }

    // Request-originated conversations stay inactive until acceptance
    conv, created, err := h.service.FindOrCreate(r.Context(), userID, req.ParticipantID, item, !req.FromRequest)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    // A new request-origin conversation opens with the request message.
    // Reusing an existing thread never re-appends it.
    if created && req.FromRequest && item != nil {
        msg, err := h.service.AppendRequestMessage(r.Context(), conv.ID, userID, req.Message, RequestInfo{
            ItemID:    req.ItemID,
            ItemName:  req.ItemName,
            ItemImage: req.ItemImage,
        })
        if err != nil {
            h.writeServiceError(w, err)
            return
        }
        conv.Messages = append(conv.Messages, msg)
        conv.LastMessageAt = msg.CreatedAt
        h.hub.RelayNewMessage(r.Context(), conv.ID, msg)
    }

    utils.SuccessResponse(w, conv, http.StatusOK)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    conversations, err := h.service.ListConversations(r.Context(), userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, conversations, http.StatusOK)
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    conv, err := h.service.GetConversation(r.Context(), chatID, userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, conv, http.StatusOK)
}

func (h *Handler) ActivateConversation(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    conv, err := h.service.Activate(r.Context(), chatID, userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, conv, http.StatusOK)
}

// SendMessage appends a message and pushes it to the other participant's
// live connection. The response carries the canonical stored message; the
// client replaces its optimistic copy by temp_id.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    var req SendMessageRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }
    if err := utils.ValidateStruct(req); err != nil {
        utils.ErrorResponse(w, err.Error(), http.StatusBadRequest)
        return
    }

    message, err := h.service.AppendMessage(r.Context(), chatID, userID, req.Content, req.TempID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    h.hub.RelayNewMessage(r.Context(), chatID, message)

    utils.SuccessResponse(w, message, http.StatusCreated)
}

// DeleteMessage removes a single message; author-only. A non-author gets
// 401, matching the client's session-reset handling for that endpoint.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }
    messageID, ok := h.pathID(w, r, "messageId")
    if !ok {
        return
    }

    if err := h.service.DeleteMessage(r.Context(), chatID, userID, messageID); err != nil {
        if errors.Is(err, ErrNotAuthor) {
            utils.ErrorResponse(w, "Only the sender can delete this message", http.StatusUnauthorized)
            return
        }
        h.writeServiceError(w, err)
        return
    }

    h.hub.RelayMessageDeleted(r.Context(), chatID, userID, messageID)

    utils.MessageResponse(w, "Message deleted", http.StatusOK)
}

// ClearConversation empties the log; 401 for a non-participant on this
// endpoint (it shares the delete flow client-side).
func (h *Handler) ClearConversation(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    if err := h.service.ClearConversation(r.Context(), chatID, userID); err != nil {
        if errors.Is(err, ErrForbidden) {
            utils.ErrorResponse(w, "Not a participant in this conversation", http.StatusUnauthorized)
            return
        }
        h.writeServiceError(w, err)
        return
    }

    h.hub.RelayChatCleared(r.Context(), chatID, userID)

    utils.MessageResponse(w, "Conversation cleared", http.StatusOK)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    marked, err := h.service.MarkRead(r.Context(), chatID, userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, MarkReadResponse{MarkedCount: marked}, http.StatusOK)
}

func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    var req TypingRequest
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        utils.ErrorResponse(w, "Invalid request body", http.StatusBadRequest)
        return
    }

    typists, err := h.service.SetTyping(r.Context(), chatID, userID, req.IsTyping)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    h.hub.RelayTyping(r.Context(), chatID, userID, req.User, req.IsTyping)

    utils.SuccessResponse(w, TypingResponse{TypingUsers: typists}, http.StatusOK)
}

func (h *Handler) GetTyping(w http.ResponseWriter, r *http.Request) {
    userID, err := auth.GetUserID(r.Context())
    if err != nil {
        utils.ErrorResponse(w, "Unauthorized", http.StatusUnauthorized)
        return
    }

    chatID, ok := h.pathID(w, r, "id")
    if !ok {
        return
    }

    typists, err := h.service.ActiveTypists(r.Context(), chatID, userID)
    if err != nil {
        h.writeServiceError(w, err)
        return
    }

    utils.SuccessResponse(w, TypingResponse{TypingUsers: typists}, http.StatusOK)
}

// HandleWebSocket upgrades the connection and starts the pumps. The socket
// stays unauthenticated until the client sends an authenticate event.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
    conn, err := h.upgrader.Upgrade(w, r, nil)
    if err != nil {
        log.Printf("WebSocket upgrade failed: %v", err)
        return
    }

    NewClient(h.hub, conn).Start()
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
    id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
    if err != nil || id <= 0 {
        utils.ErrorResponse(w, "Invalid "+name, http.StatusBadRequest)
        return 0, false
    }
    return id, true
}

// writeServiceError maps the service's sentinel errors to status codes
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, ErrNotFound):
        utils.ErrorResponse(w, "Conversation or message not found", http.StatusNotFound)
    case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAuthor):
        utils.ErrorResponse(w, "Not allowed", http.StatusForbidden)
    case errors.Is(err, ErrInactiveConversation):
        utils.ErrorResponse(w, "Conversation is not active yet", http.StatusForbidden)
    case errors.Is(err, ErrInvalidOperation):
        utils.ErrorResponse(w, "Invalid operation", http.StatusBadRequest)
    default:
        log.Printf("Chat handler error: %v", err)
        utils.ErrorResponse(w, "Internal server error", http.StatusInternalServerError)
    }
}
