// clients/chatclient/state.go

package chatclient

import (
    "sync"
    "time"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/chat"
)

// TypingExpiry mirrors the server's freshness window for typing entries
const TypingExpiry = 10 * time.Second

// ConversationState is the local mirror of one conversation: the message
// list (including optimistic entries not yet acknowledged) and the unread
// badge.
type ConversationState struct {
    ID          int64
    Messages    []*chat.Message
    UnreadCount int

    typingAt map[int64]time.Time
}

// store holds all local conversation state. Mutations reconcile against the
// server's canonical responses: an optimistic entry is replaced by temp_id
// on success and rolled back on failure, never trusted past that.
type store struct {
    mu sync.Mutex

    conversations map[int64]*ConversationState

    // openID is the conversation currently on screen; incoming messages for
    // it are appended and auto-read instead of bumping the badge
    openID int64

    now func() time.Time
}

func newStore() *store {
    return &store{
        conversations: make(map[int64]*ConversationState),
        now:           time.Now,
    }
}

func (s *store) conversation(id int64) *ConversationState {
    conv, ok := s.conversations[id]
    if !ok {
        conv = &ConversationState{
            ID:       id,
            typingAt: make(map[int64]time.Time),
        }
        s.conversations[id] = conv
    }
    return conv
}

// appendOptimistic adds a sending-state placeholder that renders immediately
func (s *store) appendOptimistic(conversationID int64, message *chat.Message) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    conv.Messages = append(conv.Messages, message)
}

// resolveOptimistic swaps the placeholder for the canonical stored message.
// If the placeholder is gone (cleared conversation, rollback raced the
// response) the canonical message is appended instead; the server copy wins.
func (s *store) resolveOptimistic(conversationID int64, tempID string, canonical *chat.Message) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    for i, m := range conv.Messages {
        if m.TempID != "" && m.TempID == tempID {
            conv.Messages[i] = canonical
            return
        }
    }
    conv.Messages = append(conv.Messages, canonical)
}

// rollbackOptimistic drops the placeholder and returns its content so the
// caller can restore the composer
func (s *store) rollbackOptimistic(conversationID int64, tempID string) (string, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    for i, m := range conv.Messages {
        if m.TempID != "" && m.TempID == tempID {
            content := m.Content
            conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
            return content, true
        }
    }
    return "", false
}

// applyIncoming folds a relayed message in. Returns true when the
// conversation is open (caller should auto-mark-read); otherwise the badge
// was bumped.
func (s *store) applyIncoming(conversationID int64, message *chat.Message, incrementUnread bool) bool {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)

    // Deduplicate: reconnect replays can deliver a message we already hold
    for _, m := range conv.Messages {
        if m.ID != 0 && m.ID == message.ID {
            return false
        }
    }

    conv.Messages = append(conv.Messages, message)
    delete(conv.typingAt, message.SenderID)

    if conversationID == s.openID {
        return true
    }
    if incrementUnread {
        conv.UnreadCount++
    }
    return false
}

func (s *store) applyDeleted(conversationID, messageID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    for i, m := range conv.Messages {
        if m.ID == messageID {
            conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
            return
        }
    }
}

func (s *store) applyCleared(conversationID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    conv.Messages = nil
}

func (s *store) setTyping(conversationID, userID int64, isTyping bool) {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    if isTyping {
        conv.typingAt[userID] = s.now()
    } else {
        delete(conv.typingAt, userID)
    }
}

// typists returns the users with a fresh typing entry; stale entries are
// dropped on read, there is no cleanup timer
func (s *store) typists(conversationID int64) []int64 {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    cutoff := s.now().Add(-TypingExpiry)

    var users []int64
    for userID, at := range conv.typingAt {
        if at.After(cutoff) {
            users = append(users, userID)
        } else {
            delete(conv.typingAt, userID)
        }
    }
    return users
}

func (s *store) open(conversationID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()

    s.openID = conversationID
    s.conversation(conversationID).UnreadCount = 0
}

func (s *store) close(conversationID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()

    if s.openID == conversationID {
        s.openID = 0
    }
}

func (s *store) replace(conv *chat.Conversation, selfID int64) {
    s.mu.Lock()
    defer s.mu.Unlock()

    state := s.conversation(conv.ID)
    state.Messages = conv.Messages
    if conv.UnreadCounts != nil {
        state.UnreadCount = conv.UnreadCounts[selfID]
    }
}

func (s *store) snapshot(conversationID int64) *ConversationState {
    s.mu.Lock()
    defer s.mu.Unlock()

    conv := s.conversation(conversationID)
    out := &ConversationState{
        ID:          conv.ID,
        Messages:    make([]*chat.Message, len(conv.Messages)),
        UnreadCount: conv.UnreadCount,
    }
    copy(out.Messages, conv.Messages)
    return out
}
