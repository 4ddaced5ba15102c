// internal/chat/client.go

package chat

import (
    "context"
    "encoding/json"
    "log"
    "sync"
    "time"

    "github.com/gorilla/websocket"
)

const (
    // Time allowed to write a message to the peer
    writeWait = 10 * time.Second

    // Time allowed to read the next pong message from the peer
    pongWait = 60 * time.Second

    // Send pings to peer with this period (must be less than pongWait)
    pingPeriod = (pongWait * 9) / 10

    // Maximum event size allowed from peer
    maxMessageSize = 64 * 1024

    // Maximum queued outbound events per connection
    sendBufferSize = 256
)

// Client is one websocket connection. It starts unauthenticated; an
// authenticate event carrying a valid credential moves it to identified and
// registers it in the presence registry (superseding any earlier connection
// for the same user — the old socket stays open, just unaddressable).
type Client struct {
    hub  *Hub
    conn *websocket.Conn
    send chan []byte

    done      chan struct{}
    closeOnce sync.Once

    mu         sync.RWMutex
    userID     int64
    identified bool
    openChats  map[int64]bool
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
    return &Client{
        hub:       hub,
        conn:      conn,
        send:      make(chan []byte, sendBufferSize),
        done:      make(chan struct{}),
        openChats: make(map[int64]bool),
    }
}

func (c *Client) Start() {
    c.hub.addConn(c)
    go c.writePump()
    go c.readPump()
}

// Close shuts the connection down; safe to call more than once
func (c *Client) Close() {
    c.closeOnce.Do(func() {
        close(c.done)
        c.conn.Close()
    })
}

// UserID returns the identified user, or 0 before authentication
func (c *Client) UserID() int64 {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.userID
}

// InChat reports whether this connection currently has the chat open
func (c *Client) InChat(chatID int64) bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.openChats[chatID]
}

// enqueue queues an outbound frame without blocking
func (c *Client) enqueue(data []byte) bool {
    select {
    case c.send <- data:
        return true
    default:
        return false
    }
}

func (c *Client) readPump() {
    defer func() {
        c.hub.removeConn(c)
        c.mu.RLock()
        identified, userID := c.identified, c.userID
        c.mu.RUnlock()
        if identified {
            // Only unregisters if this is still the current handle, so a
            // stale disconnect never clobbers a newer connection
            c.hub.presence.RemoveIfCurrent(userID, c)
            activeConnections.Dec()
        }
        c.Close()
    }()

    c.conn.SetReadLimit(c.hub.messageLimit)
    c.conn.SetReadDeadline(time.Now().Add(pongWait))
    c.conn.SetPongHandler(func(string) error {
        c.conn.SetReadDeadline(time.Now().Add(pongWait))
        return nil
    })

    for {
        _, data, err := c.conn.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
                log.Printf("WebSocket error: %v", err)
            }
            break
        }
        c.processEvent(data)
    }
}

func (c *Client) writePump() {
    ticker := time.NewTicker(pingPeriod)
    defer func() {
        ticker.Stop()
        c.conn.Close()
    }()

    for {
        select {
        case data := <-c.send:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
                return
            }

        case <-ticker.C:
            c.conn.SetWriteDeadline(time.Now().Add(writeWait))
            if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
                return
            }

        case <-c.done:
            return
        }
    }
}

// processEvent dispatches one inbound frame. Events run in read order on
// this goroutine so a connection's own sends stay sequenced.
func (c *Client) processEvent(data []byte) {
    var event Event
    if err := json.Unmarshal(data, &event); err != nil {
        c.sendError("BAD_EVENT", "malformed event")
        return
    }

    ctx := context.Background()

    if event.Type == EventAuthenticate {
        c.handleAuthenticate(ctx, event.Data)
        return
    }

    if !c.isIdentified() {
        c.sendError("UNAUTHENTICATED", "authenticate first")
        return
    }

    switch event.Type {
    case EventJoinChat:
        var payload JoinChatPayload
        if err := json.Unmarshal(event.Data, &payload); err == nil {
            c.mu.Lock()
            c.openChats[payload.ChatID] = true
            c.mu.Unlock()
        }

    case EventLeaveChat:
        var payload JoinChatPayload
        if err := json.Unmarshal(event.Data, &payload); err == nil {
            c.mu.Lock()
            delete(c.openChats, payload.ChatID)
            c.mu.Unlock()
        }

    case EventSendMessage:
        c.handleSendMessage(ctx, event.Data)

    case EventDeleteMessage:
        c.handleDeleteMessage(ctx, event.Data)

    case EventStartTyping:
        c.handleTyping(ctx, event.Data, true)

    case EventStopTyping:
        c.handleTyping(ctx, event.Data, false)

    default:
        log.Printf("Unknown event type: %s", event.Type)
    }
}

func (c *Client) handleAuthenticate(ctx context.Context, data json.RawMessage) {
    var payload AuthenticatePayload
    if err := json.Unmarshal(data, &payload); err != nil {
        c.sendError("BAD_EVENT", "malformed authenticate payload")
        return
    }

    userID, err := c.hub.auth.ResolveCredential(ctx, payload.Token)
    if err != nil {
        c.sendError("AUTH_FAILED", "invalid credential")
        return
    }

    c.mu.Lock()
    first := !c.identified
    previous := c.userID
    c.userID = userID
    c.identified = true
    c.mu.Unlock()

    // Re-authenticating as someone else must vacate the old identity's
    // presence slot, or the registry keeps routing to it.
    if !first && previous != userID {
        c.hub.presence.RemoveIfCurrent(previous, c)
    }
    c.hub.presence.Set(userID, c)
    if first {
        activeConnections.Inc()
    }

    c.sendEvent(EventAuthenticated, AuthenticatedPayload{UserID: userID})
}

func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
    var payload SendMessagePayload
    if err := json.Unmarshal(data, &payload); err != nil {
        c.sendError("BAD_EVENT", "malformed sendMessage payload")
        return
    }

    message, err := c.hub.service.AppendMessage(ctx, payload.ChatID, c.UserID(), payload.Content, payload.TempID)
    if err != nil {
        c.sendError("SEND_FAILED", err.Error())
        return
    }

    // Relay the stored message, never the client-constructed payload
    c.hub.RelayNewMessage(ctx, payload.ChatID, message)

    // Echo the canonical message back so the sender can reconcile its
    // optimistic entry by tempId
    c.sendEvent(EventNewMessage, NewMessagePayload{
        ChatID:  payload.ChatID,
        Message: message,
    })
}

func (c *Client) handleDeleteMessage(ctx context.Context, data json.RawMessage) {
    var payload DeleteMessagePayload
    if err := json.Unmarshal(data, &payload); err != nil {
        c.sendError("BAD_EVENT", "malformed deleteMessage payload")
        return
    }

    if err := c.hub.service.DeleteMessage(ctx, payload.ChatID, c.UserID(), payload.MessageID); err != nil {
        c.sendError("DELETE_FAILED", err.Error())
        return
    }

    c.hub.RelayMessageDeleted(ctx, payload.ChatID, c.UserID(), payload.MessageID)
}

func (c *Client) handleTyping(ctx context.Context, data json.RawMessage, isTyping bool) {
    var payload TypingPayload
    if err := json.Unmarshal(data, &payload); err != nil {
        return
    }

    if _, err := c.hub.service.SetTyping(ctx, payload.ChatID, c.UserID(), isTyping); err != nil {
        return
    }

    c.hub.RelayTyping(ctx, payload.ChatID, c.UserID(), payload.User, isTyping)
}

func (c *Client) isIdentified() bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.identified
}

func (c *Client) sendEvent(eventType string, payload interface{}) {
    data, err := json.Marshal(NewEvent(eventType, payload))
    if err != nil {
        return
    }
    c.enqueue(data)
}

func (c *Client) sendError(code, message string) {
    c.sendEvent(EventError, ErrorPayload{Code: code, Message: message})
}
