// internal/chat/handlers_test.go

package chat

import (
    "bytes"
    "encoding/json"
    "fmt"
    "net/http"
    "net/http/httptest"
    "strconv"
    "testing"
    "time"

    "github.com/gorilla/mux"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/auth"
)

// testAuthMiddleware trusts the X-Test-User header instead of a bearer token
func testAuthMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        userID, err := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
        if err != nil || userID <= 0 {
            w.WriteHeader(http.StatusUnauthorized)
            return
        }
        next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
    })
}

type testAPI struct {
    router  *mux.Router
    service Service
}

func newTestAPI(t *testing.T) *testAPI {
    t.Helper()

    service := NewService(NewMemoryRepository())
    registry := NewRegistry(nil, time.Minute)
    hub := NewHub(service, registry, &stubResolver{users: map[string]int64{}})
    handler := NewHandler(service, hub, nil)

    router := mux.NewRouter()
    RegisterRoutes(router, handler, testAuthMiddleware)

    return &testAPI{router: router, service: service}
}

func (api *testAPI) request(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
    t.Helper()

    var reader *bytes.Reader
    if body != nil {
        data, err := json.Marshal(body)
        require.NoError(t, err)
        reader = bytes.NewReader(data)
    } else {
        reader = bytes.NewReader(nil)
    }

    req := httptest.NewRequest(method, path, reader)
    req.Header.Set("Content-Type", "application/json")
    if userID > 0 {
        req.Header.Set("X-Test-User", strconv.FormatInt(userID, 10))
    }

    rr := httptest.NewRecorder()
    api.router.ServeHTTP(rr, req)
    return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out interface{}) {
    t.Helper()

    var envelope struct {
        Success bool            `json:"success"`
        Data    json.RawMessage `json:"data"`
        Error   string          `json:"error"`
    }
    require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
    require.True(t, envelope.Success, "error: %s", envelope.Error)
    if out != nil {
        require.NoError(t, json.Unmarshal(envelope.Data, out))
    }
}

func TestCreateConversationEndpoint(t *testing.T) {
    t.Run("creates and then finds the same conversation", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
        require.Equal(t, http.StatusOK, rr.Code)

        var first Conversation
        decodeData(t, rr, &first)

        rr = api.request(t, "POST", "/api/v1/chats", 2, CreateConversationRequest{ParticipantID: 1})
        require.Equal(t, http.StatusOK, rr.Code)

        var second Conversation
        decodeData(t, rr, &second)
        assert.Equal(t, first.ID, second.ID)
    })

    t.Run("rejects missing participant", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{})
        assert.Equal(t, http.StatusBadRequest, rr.Code)
    })

    t.Run("rejects self conversation", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 1})
        assert.Equal(t, http.StatusBadRequest, rr.Code)
    })

    t.Run("requires authentication", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 0, CreateConversationRequest{ParticipantID: 2})
        assert.Equal(t, http.StatusUnauthorized, rr.Code)
    })

    t.Run("request origin opens with the request message", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{
            ParticipantID: 2,
            ItemID:        10,
            ItemName:      "Denim jacket",
            FromRequest:   true,
            Message:       "Is this free next week?",
        })
        require.Equal(t, http.StatusOK, rr.Code)

        var conv Conversation
        decodeData(t, rr, &conv)
        assert.False(t, conv.IsActive)
        require.Len(t, conv.Messages, 1)
        assert.Equal(t, MessageTypeRequest, conv.Messages[0].Type)
        assert.Equal(t, "Is this free next week?", conv.Messages[0].Content)
        require.NotNil(t, conv.Messages[0].Request)
        assert.Equal(t, int64(10), conv.Messages[0].Request.ItemID)

        // Reposting the request reuses the thread without another message
        rr = api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{
            ParticipantID: 2,
            ItemID:        10,
            FromRequest:   true,
        })
        require.Equal(t, http.StatusOK, rr.Code)

        rr = api.request(t, "GET", fmt.Sprintf("/api/v1/chats/%d", conv.ID), 2, nil)
        require.Equal(t, http.StatusOK, rr.Code)

        var fetched Conversation
        decodeData(t, rr, &fetched)
        assert.Len(t, fetched.Messages, 1)
        assert.Equal(t, 1, fetched.UnreadCounts[2])
    })
}

func TestSendMessageEndpoint(t *testing.T) {
    t.Run("returns the canonical message with the temp id", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
        var conv Conversation
        decodeData(t, rr, &conv)

        rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
            SendMessageRequest{Content: "hello", TempID: "tmp-1"})
        require.Equal(t, http.StatusCreated, rr.Code)

        var msg Message
        decodeData(t, rr, &msg)
        assert.NotZero(t, msg.ID)
        assert.Equal(t, "hello", msg.Content)
        assert.Equal(t, "tmp-1", msg.TempID)
        assert.Equal(t, StatusSent, msg.Status)
    })

    t.Run("403 for a non participant", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
        var conv Conversation
        decodeData(t, rr, &conv)

        rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 3,
            SendMessageRequest{Content: "intruding"})
        assert.Equal(t, http.StatusForbidden, rr.Code)
    })

    t.Run("403 for an inactive conversation", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats", 1,
            CreateConversationRequest{ParticipantID: 2, FromRequest: true})
        var conv Conversation
        decodeData(t, rr, &conv)

        rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
            SendMessageRequest{Content: "too early"})
        assert.Equal(t, http.StatusForbidden, rr.Code)
    })

    t.Run("404 for a missing conversation", func(t *testing.T) {
        api := newTestAPI(t)

        rr := api.request(t, "POST", "/api/v1/chats/9999/messages", 1,
            SendMessageRequest{Content: "hello"})
        assert.Equal(t, http.StatusNotFound, rr.Code)
    })
}

func TestDeleteMessageEndpoint(t *testing.T) {
    api := newTestAPI(t)

    rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
    var conv Conversation
    decodeData(t, rr, &conv)

    rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
        SendMessageRequest{Content: "regret this"})
    var msg Message
    decodeData(t, rr, &msg)

    // Non-author gets 401 on this endpoint
    rr = api.request(t, "DELETE", fmt.Sprintf("/api/v1/chats/%d/messages/%d", conv.ID, msg.ID), 2, nil)
    assert.Equal(t, http.StatusUnauthorized, rr.Code)

    rr = api.request(t, "DELETE", fmt.Sprintf("/api/v1/chats/%d/messages/%d", conv.ID, msg.ID), 1, nil)
    assert.Equal(t, http.StatusOK, rr.Code)

    rr = api.request(t, "GET", fmt.Sprintf("/api/v1/chats/%d", conv.ID), 1, nil)
    var got Conversation
    decodeData(t, rr, &got)
    assert.Empty(t, got.Messages)
}

func TestClearConversationEndpoint(t *testing.T) {
    api := newTestAPI(t)

    rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
    var conv Conversation
    decodeData(t, rr, &conv)

    api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
        SendMessageRequest{Content: "one"})
    api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 2,
        SendMessageRequest{Content: "two"})

    // Non-participant gets 401 on this endpoint
    rr = api.request(t, "DELETE", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 5, nil)
    assert.Equal(t, http.StatusUnauthorized, rr.Code)

    rr = api.request(t, "DELETE", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 2, nil)
    assert.Equal(t, http.StatusOK, rr.Code)

    rr = api.request(t, "GET", fmt.Sprintf("/api/v1/chats/%d", conv.ID), 1, nil)
    var got Conversation
    decodeData(t, rr, &got)
    assert.Empty(t, got.Messages)
}

func TestMarkReadEndpoint(t *testing.T) {
    api := newTestAPI(t)

    rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
    var conv Conversation
    decodeData(t, rr, &conv)

    api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
        SendMessageRequest{Content: "one"})
    api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/messages", conv.ID), 1,
        SendMessageRequest{Content: "two"})

    rr = api.request(t, "PUT", fmt.Sprintf("/api/v1/chats/%d/mark-read", conv.ID), 2, nil)
    require.Equal(t, http.StatusOK, rr.Code)

    var marked MarkReadResponse
    decodeData(t, rr, &marked)
    assert.Equal(t, 2, marked.MarkedCount)

    // Second call is idempotent
    rr = api.request(t, "PUT", fmt.Sprintf("/api/v1/chats/%d/mark-read", conv.ID), 2, nil)
    decodeData(t, rr, &marked)
    assert.Equal(t, 0, marked.MarkedCount)
}

func TestTypingEndpoints(t *testing.T) {
    api := newTestAPI(t)

    rr := api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
    var conv Conversation
    decodeData(t, rr, &conv)

    rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/typing", conv.ID), 1,
        TypingRequest{IsTyping: true})
    require.Equal(t, http.StatusOK, rr.Code)

    rr = api.request(t, "GET", fmt.Sprintf("/api/v1/chats/%d/typing", conv.ID), 2, nil)
    require.Equal(t, http.StatusOK, rr.Code)

    var typing TypingResponse
    decodeData(t, rr, &typing)
    assert.Equal(t, []int64{1}, typing.TypingUsers)

    rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/typing", conv.ID), 1,
        TypingRequest{IsTyping: false})
    require.Equal(t, http.StatusOK, rr.Code)

    rr = api.request(t, "GET", fmt.Sprintf("/api/v1/chats/%d/typing", conv.ID), 2, nil)
    decodeData(t, rr, &typing)
    assert.Empty(t, typing.TypingUsers)
}

func TestListConversationsEndpoint(t *testing.T) {
    api := newTestAPI(t)

    api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 2})
    api.request(t, "POST", "/api/v1/chats", 1, CreateConversationRequest{ParticipantID: 3})
    api.request(t, "POST", "/api/v1/chats", 2, CreateConversationRequest{ParticipantID: 3})

    rr := api.request(t, "GET", "/api/v1/chats", 1, nil)
    require.Equal(t, http.StatusOK, rr.Code)

    var list []Conversation
    decodeData(t, rr, &list)
    assert.Len(t, list, 2)
}

func TestActivateEndpoint(t *testing.T) {
    api := newTestAPI(t)

    rr := api.request(t, "POST", "/api/v1/chats", 1,
        CreateConversationRequest{ParticipantID: 2, FromRequest: true})
    var conv Conversation
    decodeData(t, rr, &conv)
    require.False(t, conv.IsActive)

    rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/activate", conv.ID), 3, nil)
    assert.Equal(t, http.StatusForbidden, rr.Code)

    rr = api.request(t, "POST", fmt.Sprintf("/api/v1/chats/%d/activate", conv.ID), 2, nil)
    require.Equal(t, http.StatusOK, rr.Code)

    var activated Conversation
    decodeData(t, rr, &activated)
    assert.True(t, activated.IsActive)
}
