// clients/chatclient/client_test.go

package chatclient

import (
    "context"
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/chat"
)

func jsonResponse(w http.ResponseWriter, status int, success bool, data interface{}, errMsg string) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    json.NewEncoder(w).Encode(map[string]interface{}{
        "success": success,
        "data":    data,
        "error":   errMsg,
    })
}

func TestSendMessageReconciliation(t *testing.T) {
    t.Run("success replaces the optimistic entry", func(t *testing.T) {
        server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            require.Equal(t, "POST", r.Method)
            require.Equal(t, "/api/v1/chats/10/messages", r.URL.Path)
            require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

            var req chat.SendMessageRequest
            require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
            require.NotEmpty(t, req.TempID)

            jsonResponse(w, http.StatusCreated, true, chat.Message{
                ID:      42,
                Content: req.Content,
                Status:  chat.StatusSent,
                TempID:  req.TempID,
            }, "")
        }))
        defer server.Close()

        client := New(server.URL, "token-1", 1, Handlers{})

        msg, err := client.SendMessage(context.Background(), 10, "hello")
        require.NoError(t, err)
        assert.Equal(t, int64(42), msg.ID)
        assert.Equal(t, chat.StatusSent, msg.Status)

        conv := client.Conversation(10)
        require.Len(t, conv.Messages, 1)
        assert.Equal(t, int64(42), conv.Messages[0].ID, "placeholder replaced by the stored message")
    })

    t.Run("failure rolls back and restores the composer", func(t *testing.T) {
        server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            jsonResponse(w, http.StatusForbidden, false, nil, "Conversation is not active yet")
        }))
        defer server.Close()

        var restoredContent atomic.Value
        client := New(server.URL, "token-1", 1, Handlers{
            OnSendFailed: func(conversationID int64, content string, err error) {
                restoredContent.Store(content)
            },
        })

        _, err := client.SendMessage(context.Background(), 10, "too early")
        require.ErrorIs(t, err, ErrSendFailed)
        assert.Contains(t, err.Error(), "not active")

        conv := client.Conversation(10)
        assert.Empty(t, conv.Messages, "optimistic entry rolled back")
        assert.Equal(t, "too early", restoredContent.Load())
    })

    t.Run("network failure also rolls back", func(t *testing.T) {
        server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
        server.Close() // refuse connections

        client := New(server.URL, "token-1", 1, Handlers{})

        _, err := client.SendMessage(context.Background(), 10, "nobody home")
        require.ErrorIs(t, err, ErrSendFailed)
        assert.Empty(t, client.Conversation(10).Messages)
    })
}

func TestOpenConversation(t *testing.T) {
    var markReadCalls atomic.Int32

    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch {
        case r.Method == "GET" && r.URL.Path == "/api/v1/chats/10":
            jsonResponse(w, http.StatusOK, true, chat.Conversation{
                ID:           10,
                Participants: [2]int64{1, 2},
                IsActive:     true,
                UnreadCounts: map[int64]int{1: 3},
                Messages: []*chat.Message{
                    {ID: 1, SenderID: 2, Content: "hi"},
                    {ID: 2, SenderID: 2, Content: "there"},
                },
            }, "")
        case r.Method == "PUT" && r.URL.Path == "/api/v1/chats/10/mark-read":
            markReadCalls.Add(1)
            jsonResponse(w, http.StatusOK, true, chat.MarkReadResponse{MarkedCount: 3}, "")
        default:
            jsonResponse(w, http.StatusNotFound, false, nil, "not found")
        }
    }))
    defer server.Close()

    client := New(server.URL, "token-1", 1, Handlers{})

    conv, err := client.OpenConversation(context.Background(), 10)
    require.NoError(t, err)
    assert.Len(t, conv.Messages, 2)
    assert.Equal(t, 0, conv.UnreadCount, "opening resets the badge")
    assert.Equal(t, int32(1), markReadCalls.Load(), "opening marks the thread read")
}

func TestIncomingEventHandling(t *testing.T) {
    client := New("http://unused", "token-1", 1, Handlers{})

    newMessage := func(chatID int64, msg *chat.Message, increment bool) []byte {
        data, err := json.Marshal(chat.NewEvent(chat.EventNewMessage, chat.NewMessagePayload{
            ChatID:          chatID,
            Message:         msg,
            IncrementUnread: increment,
        }))
        require.NoError(t, err)
        return data
    }

    t.Run("peer message bumps the badge when the hint says so", func(t *testing.T) {
        client.handleEvent(newMessage(20, &chat.Message{ID: 1, SenderID: 2, Content: "hey"}, true))
        assert.Equal(t, 1, client.Conversation(20).UnreadCount)
    })

    t.Run("own echo reconciles instead of duplicating", func(t *testing.T) {
        client.store.appendOptimistic(21, optimisticMessage("tmp-9", "mine"))

        client.handleEvent(newMessage(21, &chat.Message{
            ID: 5, SenderID: 1, Content: "mine", Status: chat.StatusSent, TempID: "tmp-9",
        }, false))

        conv := client.Conversation(21)
        require.Len(t, conv.Messages, 1)
        assert.Equal(t, int64(5), conv.Messages[0].ID)
        assert.Equal(t, 0, conv.UnreadCount)
    })

    t.Run("typing events update the roster", func(t *testing.T) {
        data, err := json.Marshal(chat.NewEvent(chat.EventUserTyping, chat.UserTypingPayload{
            ChatID: 22, UserID: 2, IsTyping: true,
        }))
        require.NoError(t, err)

        client.handleEvent(data)
        assert.Equal(t, []int64{2}, client.Typists(22))

        data, err = json.Marshal(chat.NewEvent(chat.EventUserTyping, chat.UserTypingPayload{
            ChatID: 22, UserID: 2, IsTyping: false,
        }))
        require.NoError(t, err)

        client.handleEvent(data)
        assert.Empty(t, client.Typists(22))
    })

    t.Run("deleted and cleared events prune local state", func(t *testing.T) {
        client.handleEvent(newMessage(23, &chat.Message{ID: 1, SenderID: 2, Content: "a"}, true))
        client.handleEvent(newMessage(23, &chat.Message{ID: 2, SenderID: 2, Content: "b"}, true))

        data, err := json.Marshal(chat.NewEvent(chat.EventMessageDeleted, chat.MessageDeletedPayload{
            ChatID: 23, MessageID: 1,
        }))
        require.NoError(t, err)
        client.handleEvent(data)
        require.Len(t, client.Conversation(23).Messages, 1)

        data, err = json.Marshal(chat.NewEvent(chat.EventChatCleared, chat.ChatClearedPayload{ChatID: 23}))
        require.NoError(t, err)
        client.handleEvent(data)
        assert.Empty(t, client.Conversation(23).Messages)
    })
}
