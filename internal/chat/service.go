// internal/chat/service.go

package chat

import (
    "context"
    "errors"
    "strings"
    "time"
)

var (
    ErrNotFound             = errors.New("conversation or message not found")
    ErrForbidden            = errors.New("not a participant in this conversation")
    ErrNotAuthor            = errors.New("only the original sender can delete a message")
    ErrInactiveConversation = errors.New("conversation is not active yet")
    ErrInvalidOperation     = errors.New("invalid operation")
)

// TypingExpiry is the freshness window for typing indicators. Entries older
// than this are expired lazily by readers; no cleanup timer runs.
const TypingExpiry = 10 * time.Second

type Service interface {
    // Conversation lifecycle
    FindOrCreate(ctx context.Context, userA, userB int64, item *RelatedItem, startActive bool) (*Conversation, bool, error)
    Activate(ctx context.Context, conversationID, requesterID int64) (*Conversation, error)
    GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error)
    GetParticipants(ctx context.Context, conversationID int64) ([2]int64, error)
    ListConversations(ctx context.Context, userID int64) ([]*Conversation, error)

    // Messages
    AppendMessage(ctx context.Context, conversationID, senderID int64, content, tempID string) (*Message, error)
    AppendRequestMessage(ctx context.Context, conversationID, senderID int64, content string, item RequestInfo) (*Message, error)
    AppendSystemMessage(ctx context.Context, conversationID int64, content string) (*Message, error)
    DeleteMessage(ctx context.Context, conversationID, requesterID, messageID int64) error
    ClearConversation(ctx context.Context, conversationID, requesterID int64) error

    // Read receipts
    MarkRead(ctx context.Context, conversationID, readerID int64) (int, error)

    // Typing indicators
    SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) ([]int64, error)
    ActiveTypists(ctx context.Context, conversationID, userID int64) ([]int64, error)
}

type ConversationService struct {
    repo         Repository
    typingExpiry time.Duration
    now          func() time.Time
}

func NewService(repo Repository) *ConversationService {
    return &ConversationService{
        repo:         repo,
        typingExpiry: TypingExpiry,
        now:          time.Now,
    }
}

// SetTypingExpiry overrides the default typing freshness window.
func (s *ConversationService) SetTypingExpiry(d time.Duration) {
    if d > 0 {
        s.typingExpiry = d
    }
}

// FindOrCreate returns the unique conversation for the unordered pair
// {userA, userB}, creating it on first contact. The returned flag reports
// whether this call created the conversation. The related item and the
// startActive policy only apply at creation; reuse leaves both untouched.
func (s *ConversationService) FindOrCreate(ctx context.Context, userA, userB int64, item *RelatedItem, startActive bool) (*Conversation, bool, error) {
    if userA == userB {
        return nil, false, ErrInvalidOperation
    }
    if userA <= 0 || userB <= 0 {
        return nil, false, ErrInvalidOperation
    }

    userLow, userHigh := userA, userB
    if userLow > userHigh {
        userLow, userHigh = userHigh, userLow
    }

    conv, created, err := s.repo.FindOrCreateConversation(ctx, userLow, userHigh, item, startActive)
    if err != nil {
        return nil, false, err
    }
    if created {
        conversationsCreated.Inc()
    }
    return conv, created, nil
}

// Activate flips the conversation active. Called by the request workflow
// when a rental request is accepted; participant-only.
func (s *ConversationService) Activate(ctx context.Context, conversationID, requesterID int64) (*Conversation, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(requesterID) {
        return nil, ErrForbidden
    }
    if conv.IsActive {
        return conv, nil
    }
    if err := s.repo.SetConversationActive(ctx, conversationID, true); err != nil {
        return nil, err
    }
    conv.IsActive = true
    return conv, nil
}

// GetParticipants resolves the pair for delivery routing, without the
// participant check used by the user-facing reads.
func (s *ConversationService) GetParticipants(ctx context.Context, conversationID int64) ([2]int64, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return [2]int64{}, err
    }
    return conv.Participants, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, conversationID, userID int64) (*Conversation, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(userID) {
        return nil, ErrForbidden
    }

    messages, err := s.repo.GetMessages(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    conv.Messages = messages
    return conv, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, userID int64) ([]*Conversation, error) {
    return s.repo.GetUserConversations(ctx, userID)
}

// AppendMessage durably appends a text message and returns the canonical
// stored message. The caller's tempID is echoed back for reconciliation but
// never persisted. The sender's stale typing entry is cleared as a side
// effect of sending.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID, senderID int64, content, tempID string) (*Message, error) {
    content = strings.TrimSpace(content)
    if content == "" {
        return nil, ErrInvalidOperation
    }

    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(senderID) {
        return nil, ErrForbidden
    }
    if !conv.IsActive {
        return nil, ErrInactiveConversation
    }

    message := &Message{
        ConversationID: conversationID,
        SenderID:       senderID,
        Type:           MessageTypeText,
        Content:        content,
        Status:         StatusSent,
        CreatedAt:      s.now(),
    }
    if err := s.storeMessage(ctx, conv, message); err != nil {
        return nil, err
    }

    message.TempID = tempID
    return message, nil
}

// AppendRequestMessage appends a request-variant message carrying item
// metadata, written when a rental request opens a conversation. Unlike
// AppendMessage it does not require the conversation to be active: the
// request message is what a pending request-origin conversation starts
// with, before the owner accepts.
func (s *ConversationService) AppendRequestMessage(ctx context.Context, conversationID, senderID int64, content string, item RequestInfo) (*Message, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(senderID) {
        return nil, ErrForbidden
    }

    message := &Message{
        ConversationID: conversationID,
        SenderID:       senderID,
        Type:           MessageTypeRequest,
        Content:        strings.TrimSpace(content),
        Request:        &item,
        Status:         StatusSent,
        CreatedAt:      s.now(),
    }
    if err := s.storeMessage(ctx, conv, message); err != nil {
        return nil, err
    }
    return message, nil
}

// AppendSystemMessage appends a display-only system message. System messages
// have no sender, do not bump unread counters and are skipped by mark-read.
func (s *ConversationService) AppendSystemMessage(ctx context.Context, conversationID int64, content string) (*Message, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }

    message := &Message{
        ConversationID: conversationID,
        Type:           MessageTypeSystem,
        Content:        strings.TrimSpace(content),
        Status:         StatusSent,
        CreatedAt:      s.now(),
    }
    if err := s.repo.CreateMessage(ctx, message); err != nil {
        return nil, err
    }
    if err := s.repo.UpdateLastMessageAt(ctx, conv.ID, message.CreatedAt); err != nil {
        return nil, err
    }
    messagesTotal.WithLabelValues(string(MessageTypeSystem)).Inc()
    return message, nil
}

// storeMessage writes the message and its side effects: bump the other
// participant's unread counter, advance lastMessageAt, drop the sender's
// typing entry. System messages never go through here.
func (s *ConversationService) storeMessage(ctx context.Context, conv *Conversation, message *Message) error {
    if err := s.repo.CreateMessage(ctx, message); err != nil {
        return err
    }
    if err := s.repo.IncrementUnread(ctx, conv.ID, conv.Other(message.SenderID)); err != nil {
        return err
    }
    if err := s.repo.UpdateLastMessageAt(ctx, conv.ID, message.CreatedAt); err != nil {
        return err
    }
    if err := s.repo.ClearTyping(ctx, conv.ID, message.SenderID); err != nil {
        return err
    }
    messagesTotal.WithLabelValues(string(message.Type)).Inc()
    return nil
}

// MarkRead flips every unread message addressed to readerID and resets the
// reader's unread counter. Idempotent: a second consecutive call marks 0.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, readerID int64) (int, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return 0, err
    }
    if !conv.HasParticipant(readerID) {
        return 0, ErrForbidden
    }

    marked, err := s.repo.MarkMessagesRead(ctx, conversationID, readerID, s.now())
    if err != nil {
        return 0, err
    }
    if err := s.repo.ResetUnread(ctx, conversationID, readerID); err != nil {
        return 0, err
    }
    return marked, nil
}

// DeleteMessage removes a message on request of its original sender and
// recomputes lastMessageAt from the remaining log (creation time when the
// log is empty). Unread counters are deliberately not adjusted: the badge
// may overcount after a deletion, matching the product's accepted behavior.
func (s *ConversationService) DeleteMessage(ctx context.Context, conversationID, requesterID, messageID int64) error {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return err
    }

    message, err := s.repo.GetMessage(ctx, conversationID, messageID)
    if err != nil {
        return err
    }
    if message.SenderID != requesterID {
        return ErrNotAuthor
    }

    if err := s.repo.DeleteMessage(ctx, conversationID, messageID); err != nil {
        return err
    }

    last, err := s.repo.GetLastMessage(ctx, conversationID)
    if err != nil {
        return err
    }
    lastAt := conv.CreatedAt
    if last != nil {
        lastAt = last.CreatedAt
    }
    return s.repo.UpdateLastMessageAt(ctx, conversationID, lastAt)
}

// ClearConversation empties the message log. Unread counters are left as-is
// (same accepted imprecision as DeleteMessage).
func (s *ConversationService) ClearConversation(ctx context.Context, conversationID, requesterID int64) error {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return err
    }
    if !conv.HasParticipant(requesterID) {
        return ErrForbidden
    }

    if err := s.repo.ClearMessages(ctx, conversationID); err != nil {
        return err
    }
    return s.repo.UpdateLastMessageAt(ctx, conversationID, conv.CreatedAt)
}

// SetTyping upserts or clears the caller's typing timestamp and returns the
// other participants currently inside the freshness window.
func (s *ConversationService) SetTyping(ctx context.Context, conversationID, userID int64, isTyping bool) ([]int64, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(userID) {
        return nil, ErrForbidden
    }

    if isTyping {
        err = s.repo.SetTyping(ctx, conversationID, userID, s.now())
    } else {
        err = s.repo.ClearTyping(ctx, conversationID, userID)
    }
    if err != nil {
        return nil, err
    }

    return s.activeTypists(ctx, conversationID, userID)
}

// ActiveTypists returns the other participants whose typing entry is fresh
func (s *ConversationService) ActiveTypists(ctx context.Context, conversationID, userID int64) ([]int64, error) {
    conv, err := s.repo.GetConversation(ctx, conversationID)
    if err != nil {
        return nil, err
    }
    if !conv.HasParticipant(userID) {
        return nil, ErrForbidden
    }
    return s.activeTypists(ctx, conversationID, userID)
}

func (s *ConversationService) activeTypists(ctx context.Context, conversationID, excludeUserID int64) ([]int64, error) {
    typing, err := s.repo.GetTypingTimes(ctx, conversationID)
    if err != nil {
        return nil, err
    }

    cutoff := s.now().Add(-s.typingExpiry)
    typists := make([]int64, 0, len(typing))
    for userID, at := range typing {
        if userID == excludeUserID {
            continue
        }
        if at.After(cutoff) {
            typists = append(typists, userID)
        }
    }
    return typists, nil
}
