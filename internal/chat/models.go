// internal/chat/models.go

package chat

import (
    "time"
)

// MessageType discriminates the message variants
type MessageType string

const (
    MessageTypeText    MessageType = "text"
    MessageTypeSystem  MessageType = "system"
    MessageTypeRequest MessageType = "request"
)

// MessageStatus is the delivery state of a message.
// Transitions are monotonic: sending -> sent -> read. "sending" only ever
// exists client-side; stored rows are sent or read.
type MessageStatus string

const (
    StatusSending MessageStatus = "sending"
    StatusSent    MessageStatus = "sent"
    StatusRead    MessageStatus = "read"
)

// RelatedItem is a weak reference to a catalog item, kept for context only
type RelatedItem struct {
    ID    int64  `json:"id" db:"related_item_id"`
    Name  string `json:"name,omitempty" db:"related_item_name"`
    Image string `json:"image,omitempty" db:"related_item_image"`
}

// Conversation is a two-party chat thread
type Conversation struct {
    ID            int64        `json:"id" db:"id"`
    Participants  [2]int64     `json:"participants"`
    RelatedItem   *RelatedItem `json:"related_item,omitempty"`
    IsActive      bool         `json:"is_active" db:"is_active"`
    CreatedAt     time.Time    `json:"created_at" db:"created_at"`
    LastMessageAt time.Time    `json:"last_message_at" db:"last_message_at"`

    // Computed fields
    UnreadCounts map[int64]int `json:"unread_counts,omitempty"`
    Messages     []*Message    `json:"messages,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants
func (c *Conversation) HasParticipant(userID int64) bool {
    return c.Participants[0] == userID || c.Participants[1] == userID
}

// Other returns the participant that is not userID
func (c *Conversation) Other(userID int64) int64 {
    if c.Participants[0] == userID {
        return c.Participants[1]
    }
    return c.Participants[0]
}

// Message is one entry in a conversation's log. Exactly one variant applies:
// text carries Content, request additionally carries Request, system is
// display-only and excluded from read-receipt accounting.
type Message struct {
    ID             int64         `json:"id" db:"id"`
    ConversationID int64         `json:"conversation_id" db:"conversation_id"`
    SenderID       int64         `json:"sender_id,omitempty" db:"sender_id"`
    Type           MessageType   `json:"message_type" db:"message_type"`
    Content        string        `json:"content" db:"content"`
    Request        *RequestInfo  `json:"request,omitempty"`
    Status         MessageStatus `json:"status" db:"status"`
    IsRead         bool          `json:"is_read" db:"is_read"`
    ReadAt         *time.Time    `json:"read_at,omitempty" db:"read_at"`
    CreatedAt      time.Time     `json:"timestamp" db:"created_at"`

    // TempID is echoed back to the sender for optimistic-UI reconciliation.
    // It is never persisted and never authoritative.
    TempID string `json:"temp_id,omitempty" db:"-"`
}

// RequestInfo is the request-variant payload: the item the rental request
// refers to, denormalized for rendering
type RequestInfo struct {
    ItemID    int64  `json:"item_id"`
    ItemName  string `json:"item_name,omitempty"`
    ItemImage string `json:"item_image,omitempty"`
}

// Request DTOs

type CreateConversationRequest struct {
    ParticipantID int64  `json:"participant_id" validate:"required,gt=0"`
    ItemID        int64  `json:"item_id,omitempty"`
    ItemName      string `json:"item_name,omitempty"`
    ItemImage     string `json:"item_image,omitempty"`
    // FromRequest marks conversations originating from a rental request;
    // they stay inactive until the request is accepted, and open with a
    // request message carrying the item details.
    FromRequest bool `json:"from_request,omitempty"`
    // Message is the optional note attached to the opening request message.
    Message string `json:"message,omitempty"`
}

type SendMessageRequest struct {
    Content string `json:"content" validate:"required"`
    TempID  string `json:"temp_id,omitempty"`
}

type TypingRequest struct {
    IsTyping bool `json:"is_typing"`
    // User is an optional display name relayed with the typing event
    User string `json:"user,omitempty"`
}

// TypingResponse lists the other participants currently typing
type TypingResponse struct {
    TypingUsers []int64 `json:"typing_users"`
}

// MarkReadResponse reports how many messages were newly marked
type MarkReadResponse struct {
    MarkedCount int `json:"marked_count"`
}
