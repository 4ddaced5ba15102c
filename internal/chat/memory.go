// internal/chat/memory.go
// In-memory Repository used by tests and local development

package chat

import (
    "context"
    "sort"
    "sync"
    "time"
)

type memoryRepository struct {
    mu sync.Mutex

    nextConvID int64
    nextMsgID  int64

    conversations map[int64]*Conversation
    byPair        map[[2]int64]int64
    messages      map[int64][]*Message       // conversation id -> ordered log
    unread        map[int64]map[int64]int    // conversation id -> user -> count
    typing        map[int64]map[int64]time.Time
}

// NewMemoryRepository returns a Repository backed by process memory.
// It honors the same invariants as the postgres implementation, including
// pair uniqueness under concurrent FindOrCreateConversation calls.
func NewMemoryRepository() Repository {
    return &memoryRepository{
        conversations: make(map[int64]*Conversation),
        byPair:        make(map[[2]int64]int64),
        messages:      make(map[int64][]*Message),
        unread:        make(map[int64]map[int64]int),
        typing:        make(map[int64]map[int64]time.Time),
    }
}

func (r *memoryRepository) FindOrCreateConversation(ctx context.Context, userLow, userHigh int64, item *RelatedItem, isActive bool) (*Conversation, bool, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    pair := [2]int64{userLow, userHigh}
    if id, ok := r.byPair[pair]; ok {
        return r.snapshotLocked(id), false, nil
    }

    r.nextConvID++
    now := time.Now()
    conv := &Conversation{
        ID:            r.nextConvID,
        Participants:  pair,
        RelatedItem:   item,
        IsActive:      isActive,
        CreatedAt:     now,
        LastMessageAt: now,
    }
    r.conversations[conv.ID] = conv
    r.byPair[pair] = conv.ID
    r.unread[conv.ID] = map[int64]int{userLow: 0, userHigh: 0}
    r.typing[conv.ID] = make(map[int64]time.Time)

    return r.snapshotLocked(conv.ID), true, nil
}

func (r *memoryRepository) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    if _, ok := r.conversations[id]; !ok {
        return nil, ErrNotFound
    }
    return r.snapshotLocked(id), nil
}

func (r *memoryRepository) GetUserConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    var result []*Conversation
    for id, conv := range r.conversations {
        if conv.HasParticipant(userID) {
            result = append(result, r.snapshotLocked(id))
        }
    }
    sort.Slice(result, func(i, j int) bool {
        return result[i].LastMessageAt.After(result[j].LastMessageAt)
    })
    return result, nil
}

func (r *memoryRepository) SetConversationActive(ctx context.Context, id int64, active bool) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    conv, ok := r.conversations[id]
    if !ok {
        return ErrNotFound
    }
    conv.IsActive = active
    return nil
}

func (r *memoryRepository) UpdateLastMessageAt(ctx context.Context, id int64, t time.Time) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    conv, ok := r.conversations[id]
    if !ok {
        return ErrNotFound
    }
    conv.LastMessageAt = t
    return nil
}

func (r *memoryRepository) CreateMessage(ctx context.Context, message *Message) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    if _, ok := r.conversations[message.ConversationID]; !ok {
        return ErrNotFound
    }
    r.nextMsgID++
    message.ID = r.nextMsgID

    stored := *message
    stored.TempID = ""
    r.messages[message.ConversationID] = append(r.messages[message.ConversationID], &stored)
    return nil
}

func (r *memoryRepository) GetMessage(ctx context.Context, convID, messageID int64) (*Message, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    for _, msg := range r.messages[convID] {
        if msg.ID == messageID {
            copied := *msg
            return &copied, nil
        }
    }
    return nil, ErrNotFound
}

func (r *memoryRepository) GetMessages(ctx context.Context, convID int64) ([]*Message, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    log := r.messages[convID]
    result := make([]*Message, 0, len(log))
    for _, msg := range log {
        copied := *msg
        result = append(result, &copied)
    }
    return result, nil
}

func (r *memoryRepository) GetLastMessage(ctx context.Context, convID int64) (*Message, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    log := r.messages[convID]
    if len(log) == 0 {
        return nil, nil
    }
    copied := *log[len(log)-1]
    return &copied, nil
}

func (r *memoryRepository) DeleteMessage(ctx context.Context, convID, messageID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    log := r.messages[convID]
    for i, msg := range log {
        if msg.ID == messageID {
            r.messages[convID] = append(log[:i], log[i+1:]...)
            return nil
        }
    }
    return ErrNotFound
}

func (r *memoryRepository) ClearMessages(ctx context.Context, convID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    r.messages[convID] = nil
    return nil
}

func (r *memoryRepository) MarkMessagesRead(ctx context.Context, convID, readerID int64, at time.Time) (int, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    marked := 0
    for _, msg := range r.messages[convID] {
        if msg.IsRead || msg.Type == MessageTypeSystem || msg.SenderID == 0 || msg.SenderID == readerID {
            continue
        }
        readAt := at
        msg.IsRead = true
        msg.ReadAt = &readAt
        msg.Status = StatusRead
        marked++
    }
    return marked, nil
}

func (r *memoryRepository) IncrementUnread(ctx context.Context, convID, userID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    counts, ok := r.unread[convID]
    if !ok {
        counts = make(map[int64]int)
        r.unread[convID] = counts
    }
    counts[userID]++
    return nil
}

func (r *memoryRepository) ResetUnread(ctx context.Context, convID, userID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    if counts, ok := r.unread[convID]; ok {
        counts[userID] = 0
    }
    return nil
}

func (r *memoryRepository) SetTyping(ctx context.Context, convID, userID int64, at time.Time) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    typing, ok := r.typing[convID]
    if !ok {
        typing = make(map[int64]time.Time)
        r.typing[convID] = typing
    }
    typing[userID] = at
    return nil
}

func (r *memoryRepository) ClearTyping(ctx context.Context, convID, userID int64) error {
    r.mu.Lock()
    defer r.mu.Unlock()

    if typing, ok := r.typing[convID]; ok {
        delete(typing, userID)
    }
    return nil
}

func (r *memoryRepository) GetTypingTimes(ctx context.Context, convID int64) (map[int64]time.Time, error) {
    r.mu.Lock()
    defer r.mu.Unlock()

    result := make(map[int64]time.Time, len(r.typing[convID]))
    for userID, at := range r.typing[convID] {
        result[userID] = at
    }
    return result, nil
}

// snapshotLocked returns a copy safe to hand out. Caller holds r.mu.
func (r *memoryRepository) snapshotLocked(id int64) *Conversation {
    conv := r.conversations[id]
    copied := *conv
    copied.UnreadCounts = make(map[int64]int, 2)
    for userID, count := range r.unread[id] {
        copied.UnreadCounts[userID] = count
    }
    return &copied
}
