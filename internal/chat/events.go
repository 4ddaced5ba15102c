// internal/chat/events.go
// Realtime protocol: one JSON envelope per socket frame

package chat

import (
    "encoding/json"
    "log"
    "time"
)

// Client -> server event types
const (
    EventAuthenticate  = "authenticate"
    EventJoinChat      = "joinChat"
    EventLeaveChat     = "leaveChat"
    EventSendMessage   = "sendMessage"
    EventDeleteMessage = "deleteMessage"
    EventStartTyping   = "startTyping"
    EventStopTyping    = "stopTyping"
)

// Server -> client event types
const (
    EventAuthenticated  = "authenticated"
    EventNewMessage     = "newMessage"
    EventMessageDeleted = "messageDeleted"
    EventChatCleared    = "chatCleared"
    EventUserTyping     = "userTyping"
    EventError          = "error"
)

// Event is the wire envelope for both directions
type Event struct {
    Type      string          `json:"type"`
    Data      json.RawMessage `json:"data,omitempty"`
    Timestamp time.Time       `json:"timestamp"`
}

// NewEvent wraps a payload into an envelope
func NewEvent(eventType string, payload interface{}) Event {
    return Event{
        Type:      eventType,
        Data:      mustMarshal(payload),
        Timestamp: time.Now(),
    }
}

// Client -> server payloads

type AuthenticatePayload struct {
    Token string `json:"token"`
}

type JoinChatPayload struct {
    ChatID int64 `json:"chat_id"`
}

type SendMessagePayload struct {
    ChatID  int64  `json:"chat_id"`
    Content string `json:"content"`
    TempID  string `json:"temp_id,omitempty"`
}

type DeleteMessagePayload struct {
    ChatID    int64 `json:"chat_id"`
    MessageID int64 `json:"message_id"`
}

type TypingPayload struct {
    ChatID int64 `json:"chat_id"`
    // User is the sender's display name, relayed as-is for rendering
    // "X is typing" without a profile lookup.
    User string `json:"user,omitempty"`
}

// Server -> client payloads

type AuthenticatedPayload struct {
    UserID int64 `json:"user_id"`
}

// NewMessagePayload carries the canonical stored message. IncrementUnread is
// false when the recipient already has the chat open (room membership), so
// the client can skip a redundant badge bump.
type NewMessagePayload struct {
    ChatID          int64    `json:"chat_id"`
    Message         *Message `json:"message"`
    IncrementUnread bool     `json:"increment_unread"`
}

type MessageDeletedPayload struct {
    ChatID    int64 `json:"chat_id"`
    MessageID int64 `json:"message_id"`
}

type ChatClearedPayload struct {
    ChatID int64 `json:"chat_id"`
}

type UserTypingPayload struct {
    ChatID   int64  `json:"chat_id"`
    UserID   int64  `json:"user_id"`
    User     string `json:"user,omitempty"`
    IsTyping bool   `json:"is_typing"`
}

type ErrorPayload struct {
    Code    string `json:"code"`
    Message string `json:"message"`
}

// mustMarshal marshals a payload, falling back to an empty object
func mustMarshal(v interface{}) json.RawMessage {
    data, err := json.Marshal(v)
    if err != nil {
        log.Printf("Error marshaling event payload: %v", err)
        return json.RawMessage(`{}`)
    }
    return data
}
