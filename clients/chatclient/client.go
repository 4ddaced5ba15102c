// clients/chatclient/client.go
// Consumer-side client: REST calls plus the realtime socket, with optimistic
// sends reconciled against the server's canonical responses.

package chatclient

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/websocket"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/chat"
)

var (
    ErrSendFailed   = errors.New("message could not be sent")
    ErrDisconnected = errors.New("realtime connection is down and reconnection gave up")
)

// ConnState is the realtime connection lifecycle
type ConnState int

const (
    StateIdle ConnState = iota
    StateConnected
    StateReconnecting
    // StateDisconnected is terminal: reconnection attempts are exhausted and
    // only an explicit Connect restarts the socket
    StateDisconnected
)

const (
    maxReconnectAttempts = 5
    baseReconnectDelay   = time.Second
)

// Handlers are the consumer-facing callbacks. All are optional.
type Handlers struct {
    // OnMessage fires for every accepted incoming message
    OnMessage func(conversationID int64, message *chat.Message)
    // OnSendFailed fires after a rollback; content is the composer text to
    // restore
    OnSendFailed func(conversationID int64, content string, err error)
    OnTyping     func(conversationID, userID int64, isTyping bool)
    OnStateChange func(state ConnState)
}

// Client talks to the chat service. Messages send optimistically: the local
// copy renders in sending state immediately, then is replaced by the stored
// message or rolled back when the write fails.
type Client struct {
    baseURL  string
    token    string
    selfID   int64
    http     *http.Client
    handlers Handlers

    store *store

    mu       sync.Mutex
    conn     *websocket.Conn
    state    ConnState
    closing  bool
}

func New(baseURL, token string, selfID int64, handlers Handlers) *Client {
    return &Client{
        baseURL:  strings.TrimRight(baseURL, "/"),
        token:    token,
        selfID:   selfID,
        http:     &http.Client{Timeout: 15 * time.Second},
        handlers: handlers,
        store:    newStore(),
        state:    StateIdle,
    }
}

// SendMessage appends optimistically and posts to the server. On success the
// placeholder is replaced by the canonical message; on failure it is rolled
// back and OnSendFailed receives the content for composer restore.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (*chat.Message, error) {
    tempID := uuid.New().String()

    optimistic := &chat.Message{
        ConversationID: conversationID,
        SenderID:       c.selfID,
        Type:           chat.MessageTypeText,
        Content:        content,
        Status:         chat.StatusSending,
        CreatedAt:      time.Now(),
        TempID:         tempID,
    }
    c.store.appendOptimistic(conversationID, optimistic)

    var canonical chat.Message
    err := c.post(ctx,
        fmt.Sprintf("/api/v1/chats/%d/messages", conversationID),
        chat.SendMessageRequest{Content: content, TempID: tempID},
        &canonical)
    if err != nil {
        restored, _ := c.store.rollbackOptimistic(conversationID, tempID)
        if c.handlers.OnSendFailed != nil {
            c.handlers.OnSendFailed(conversationID, restored, err)
        }
        return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
    }

    c.store.resolveOptimistic(conversationID, tempID, &canonical)
    return &canonical, nil
}

// OpenConversation loads the thread, marks it read and registers room
// membership so the server can skip redundant unread hints
func (c *Client) OpenConversation(ctx context.Context, conversationID int64) (*ConversationState, error) {
    var conv chat.Conversation
    if err := c.get(ctx, fmt.Sprintf("/api/v1/chats/%d", conversationID), &conv); err != nil {
        return nil, err
    }

    c.store.replace(&conv, c.selfID)
    c.store.open(conversationID)
    c.sendEvent(chat.EventJoinChat, chat.JoinChatPayload{ChatID: conversationID})

    if err := c.markRead(ctx, conversationID); err != nil {
        return nil, err
    }

    return c.store.snapshot(conversationID), nil
}

func (c *Client) CloseConversation(conversationID int64) {
    c.store.close(conversationID)
    c.sendEvent(chat.EventLeaveChat, chat.JoinChatPayload{ChatID: conversationID})
}

// Conversation returns the current local view of a thread
func (c *Client) Conversation(conversationID int64) *ConversationState {
    return c.store.snapshot(conversationID)
}

// Typists returns the users typing in a conversation right now
func (c *Client) Typists(conversationID int64) []int64 {
    return c.store.typists(conversationID)
}

// SetTyping reports the local user's composer activity
func (c *Client) SetTyping(ctx context.Context, conversationID int64, isTyping bool) error {
    return c.post(ctx,
        fmt.Sprintf("/api/v1/chats/%d/typing", conversationID),
        chat.TypingRequest{IsTyping: isTyping}, nil)
}

// Connect dials the realtime socket and authenticates. Read loop runs until
// the connection drops, then reconnects with increasing backoff; after
// maxReconnectAttempts the client goes Disconnected for good.
func (c *Client) Connect(ctx context.Context) error {
    c.mu.Lock()
    c.closing = false
    c.mu.Unlock()

    if err := c.dial(ctx); err != nil {
        return err
    }

    go c.readLoop(ctx)
    return nil
}

// Close shuts the socket down without triggering reconnection
func (c *Client) Close() {
    c.mu.Lock()
    c.closing = true
    conn := c.conn
    c.conn = nil
    c.setStateLocked(StateIdle)
    c.mu.Unlock()

    if conn != nil {
        conn.Close()
    }
}

func (c *Client) dial(ctx context.Context) error {
    wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws"

    conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
    if err != nil {
        return err
    }

    auth := chat.NewEvent(chat.EventAuthenticate, chat.AuthenticatePayload{Token: c.token})
    if err := conn.WriteJSON(auth); err != nil {
        conn.Close()
        return err
    }

    c.mu.Lock()
    c.conn = conn
    c.setStateLocked(StateConnected)
    c.mu.Unlock()
    return nil
}

func (c *Client) readLoop(ctx context.Context) {
    for {
        c.mu.Lock()
        conn := c.conn
        c.mu.Unlock()
        if conn == nil {
            return
        }

        _, data, err := conn.ReadMessage()
        if err != nil {
            c.mu.Lock()
            closing := c.closing
            c.mu.Unlock()
            if closing {
                return
            }
            if !c.reconnect(ctx) {
                return
            }
            continue
        }

        c.handleEvent(data)
    }
}

// reconnect retries with increasing delays. Returns false once attempts run
// out; the client is then terminally Disconnected.
func (c *Client) reconnect(ctx context.Context) bool {
    c.mu.Lock()
    c.setStateLocked(StateReconnecting)
    c.mu.Unlock()

    for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
        select {
        case <-ctx.Done():
            break
        case <-time.After(baseReconnectDelay * time.Duration(attempt)):
        }
        if ctx.Err() != nil {
            break
        }

        if err := c.dial(ctx); err == nil {
            return true
        }
    }

    c.mu.Lock()
    c.conn = nil
    c.setStateLocked(StateDisconnected)
    c.mu.Unlock()
    return false
}

func (c *Client) handleEvent(data []byte) {
    var event chat.Event
    if err := json.Unmarshal(data, &event); err != nil {
        return
    }

    switch event.Type {
    case chat.EventNewMessage:
        var payload chat.NewMessagePayload
        if err := json.Unmarshal(event.Data, &payload); err != nil || payload.Message == nil {
            return
        }

        // Own echo: reconcile the optimistic entry instead of treating it
        // as an incoming message
        if payload.Message.SenderID == c.selfID {
            if payload.Message.TempID != "" {
                c.store.resolveOptimistic(payload.ChatID, payload.Message.TempID, payload.Message)
            }
            return
        }

        open := c.store.applyIncoming(payload.ChatID, payload.Message, payload.IncrementUnread)
        if open {
            // Reading happens implicitly while the thread is on screen
            ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
            c.markRead(ctx, payload.ChatID)
            cancel()
        }
        if c.handlers.OnMessage != nil {
            c.handlers.OnMessage(payload.ChatID, payload.Message)
        }

    case chat.EventMessageDeleted:
        var payload chat.MessageDeletedPayload
        if err := json.Unmarshal(event.Data, &payload); err != nil {
            return
        }
        c.store.applyDeleted(payload.ChatID, payload.MessageID)

    case chat.EventChatCleared:
        var payload chat.ChatClearedPayload
        if err := json.Unmarshal(event.Data, &payload); err != nil {
            return
        }
        c.store.applyCleared(payload.ChatID)

    case chat.EventUserTyping:
        var payload chat.UserTypingPayload
        if err := json.Unmarshal(event.Data, &payload); err != nil {
            return
        }
        c.store.setTyping(payload.ChatID, payload.UserID, payload.IsTyping)
        if c.handlers.OnTyping != nil {
            c.handlers.OnTyping(payload.ChatID, payload.UserID, payload.IsTyping)
        }
    }
}

func (c *Client) sendEvent(eventType string, payload interface{}) {
    c.mu.Lock()
    conn := c.conn
    c.mu.Unlock()
    if conn == nil {
        return
    }
    conn.WriteJSON(chat.NewEvent(eventType, payload))
}

func (c *Client) setStateLocked(state ConnState) {
    if c.state == state {
        return
    }
    c.state = state
    if c.handlers.OnStateChange != nil {
        go c.handlers.OnStateChange(state)
    }
}

// State returns the realtime connection state
func (c *Client) State() ConnState {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.state
}

func (c *Client) markRead(ctx context.Context, conversationID int64) error {
    return c.put(ctx, fmt.Sprintf("/api/v1/chats/%d/mark-read", conversationID), nil, nil)
}

// REST plumbing

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
    return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
    return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
    return c.do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
    var reader io.Reader
    if body != nil {
        data, err := json.Marshal(body)
        if err != nil {
            return err
        }
        reader = bytes.NewReader(data)
    }

    req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
    if err != nil {
        return err
    }
    req.Header.Set("Authorization", "Bearer "+c.token)
    if body != nil {
        req.Header.Set("Content-Type", "application/json")
    }

    resp, err := c.http.Do(req)
    if err != nil {
        return err
    }
    defer resp.Body.Close()

    var envelope struct {
        Success bool            `json:"success"`
        Data    json.RawMessage `json:"data"`
        Error   string          `json:"error"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
        return fmt.Errorf("unexpected response (%d): %w", resp.StatusCode, err)
    }

    if resp.StatusCode >= 400 || !envelope.Success {
        if envelope.Error != "" {
            return errors.New(envelope.Error)
        }
        return fmt.Errorf("request failed with status %d", resp.StatusCode)
    }

    if out != nil && len(envelope.Data) > 0 {
        return json.Unmarshal(envelope.Data, out)
    }
    return nil
}
