// internal/chat/hub.go

package chat

import (
    "context"
    "encoding/json"
    "log"
    "sync"
)

// CredentialResolver turns a realtime credential into a user identity. It is
// the same resolver the REST middleware uses.
type CredentialResolver interface {
    ResolveCredential(ctx context.Context, credential string) (int64, error)
}

// Hub is the realtime gateway. Delivery is presence-based: every relay looks
// the recipient up in the registry and emits to that single connection, or
// drops the event when the recipient is offline. Room membership
// (joinChat/leaveChat) is advisory and only suppresses redundant unread
// hints; it never widens or narrows delivery.
//
// The hub never surfaces delivery failures to whoever triggered the relay:
// persistence is the source of truth, the push is best-effort.
type Hub struct {
    service  Service
    presence Presence
    auth     CredentialResolver

    connsMux sync.Mutex
    conns    map[*Client]struct{}

    messageLimit int64
}

func NewHub(service Service, presence Presence, auth CredentialResolver) *Hub {
    return &Hub{
        service:      service,
        presence:     presence,
        auth:         auth,
        conns:        make(map[*Client]struct{}),
        messageLimit: maxMessageSize,
    }
}

// SetMessageLimit overrides the per-frame read limit applied to new
// connections
func (h *Hub) SetMessageLimit(limit int64) {
    if limit > 0 {
        h.messageLimit = limit
    }
}

// RelayNewMessage pushes the canonical stored message to the other
// participant's live connection, if any. System messages (no sender) go to
// both participants.
func (h *Hub) RelayNewMessage(ctx context.Context, chatID int64, message *Message) {
    participants, err := h.service.GetParticipants(ctx, chatID)
    if err != nil {
        log.Printf("relay newMessage: participants lookup failed for chat %d: %v", chatID, err)
        return
    }

    for _, userID := range participants {
        if userID == message.SenderID {
            continue
        }
        peer, ok := h.presence.Get(userID)
        if !ok {
            relayEventsTotal.WithLabelValues(EventNewMessage, relayOffline).Inc()
            continue
        }
        payload := NewMessagePayload{
            ChatID:          chatID,
            Message:         message,
            IncrementUnread: message.Type != MessageTypeSystem && !peer.InChat(chatID),
        }
        h.emit(peer, NewEvent(EventNewMessage, payload), EventNewMessage)
    }
}

// RelayMessageDeleted notifies the other participant that a message is gone
func (h *Hub) RelayMessageDeleted(ctx context.Context, chatID, actorID, messageID int64) {
    h.relayToPeer(ctx, chatID, actorID, EventMessageDeleted, MessageDeletedPayload{
        ChatID:    chatID,
        MessageID: messageID,
    })
}

// RelayChatCleared notifies the other participant that the log was emptied
func (h *Hub) RelayChatCleared(ctx context.Context, chatID, actorID int64) {
    h.relayToPeer(ctx, chatID, actorID, EventChatCleared, ChatClearedPayload{
        ChatID: chatID,
    })
}

// RelayTyping forwards a typing transition. The gateway relays whatever it
// receives, display name included; debouncing is the sender's job.
func (h *Hub) RelayTyping(ctx context.Context, chatID, actorID int64, displayName string, isTyping bool) {
    h.relayToPeer(ctx, chatID, actorID, EventUserTyping, UserTypingPayload{
        ChatID:   chatID,
        UserID:   actorID,
        User:     displayName,
        IsTyping: isTyping,
    })
}

func (h *Hub) relayToPeer(ctx context.Context, chatID, actorID int64, eventType string, payload interface{}) {
    participants, err := h.service.GetParticipants(ctx, chatID)
    if err != nil {
        log.Printf("relay %s: participants lookup failed for chat %d: %v", eventType, chatID, err)
        return
    }

    recipient := participants[0]
    if recipient == actorID {
        recipient = participants[1]
    }

    peer, ok := h.presence.Get(recipient)
    if !ok {
        relayEventsTotal.WithLabelValues(eventType, relayOffline).Inc()
        return
    }
    h.emit(peer, NewEvent(eventType, payload), eventType)
}

// emit enqueues without blocking. A full send buffer drops the event: the
// recipient catches up over REST, and a slow socket must never stall the
// code path that triggered the relay.
func (h *Hub) emit(client *Client, event Event, eventType string) {
    data, err := json.Marshal(event)
    if err != nil {
        log.Printf("Error marshalling %s event: %v", eventType, err)
        return
    }

    if client.enqueue(data) {
        relayEventsTotal.WithLabelValues(eventType, relayDelivered).Inc()
    } else {
        relayEventsTotal.WithLabelValues(eventType, relayBackpressure).Inc()
        log.Printf("Dropped %s event for user %d: send buffer full", eventType, client.UserID())
    }
}

func (h *Hub) addConn(client *Client) {
    h.connsMux.Lock()
    h.conns[client] = struct{}{}
    h.connsMux.Unlock()
}

func (h *Hub) removeConn(client *Client) {
    h.connsMux.Lock()
    delete(h.conns, client)
    h.connsMux.Unlock()
}

// ActiveConnections reports all open sockets, identified or not
func (h *Hub) ActiveConnections() int {
    h.connsMux.Lock()
    defer h.connsMux.Unlock()
    return len(h.conns)
}

// Shutdown closes every open connection
func (h *Hub) Shutdown() {
    h.connsMux.Lock()
    for client := range h.conns {
        client.Close()
    }
    h.conns = make(map[*Client]struct{})
    h.connsMux.Unlock()
}
