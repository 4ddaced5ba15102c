// internal/chat/repository.go

package chat

import (
    "context"
    "time"
)

// Repository is the durable conversation store. Implementations must make
// FindOrCreateConversation atomic under concurrent first contact: two users
// messaging each other for the first time at the same instant get one
// conversation, enforced by a uniqueness constraint on the unordered pair.
type Repository interface {
    // Conversations
    FindOrCreateConversation(ctx context.Context, userLow, userHigh int64, item *RelatedItem, isActive bool) (*Conversation, bool, error)
    GetConversation(ctx context.Context, id int64) (*Conversation, error)
    GetUserConversations(ctx context.Context, userID int64) ([]*Conversation, error)
    SetConversationActive(ctx context.Context, id int64, active bool) error
    UpdateLastMessageAt(ctx context.Context, id int64, t time.Time) error

    // Messages
    CreateMessage(ctx context.Context, message *Message) error
    GetMessage(ctx context.Context, convID, messageID int64) (*Message, error)
    GetMessages(ctx context.Context, convID int64) ([]*Message, error)
    GetLastMessage(ctx context.Context, convID int64) (*Message, error)
    DeleteMessage(ctx context.Context, convID, messageID int64) error
    ClearMessages(ctx context.Context, convID int64) error
    MarkMessagesRead(ctx context.Context, convID, readerID int64, at time.Time) (int, error)

    // Unread counters
    IncrementUnread(ctx context.Context, convID, userID int64) error
    ResetUnread(ctx context.Context, convID, userID int64) error

    // Typing timestamps (ephemeral; readers apply the freshness window)
    SetTyping(ctx context.Context, convID, userID int64, at time.Time) error
    ClearTyping(ctx context.Context, convID, userID int64) error
    GetTypingTimes(ctx context.Context, convID int64) (map[int64]time.Time, error)
}
