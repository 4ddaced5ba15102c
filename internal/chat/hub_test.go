// internal/chat/hub_test.go

package chat

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

type stubResolver struct {
    users map[string]int64
}

func (s *stubResolver) ResolveCredential(ctx context.Context, credential string) (int64, error) {
    if userID, ok := s.users[credential]; ok {
        return userID, nil
    }
    return 0, errors.New("unknown credential")
}

func newTestHub(t *testing.T) (*Hub, Service, *Registry) {
    t.Helper()
    service := NewService(NewMemoryRepository())
    registry := NewRegistry(nil, time.Minute)
    hub := NewHub(service, registry, &stubResolver{users: map[string]int64{"token-1": 1, "token-2": 2}})
    return hub, service, registry
}

func receiveEvent(t *testing.T, client *Client) Event {
    t.Helper()
    select {
    case data := <-client.send:
        var event Event
        require.NoError(t, json.Unmarshal(data, &event))
        return event
    default:
        t.Fatal("expected a queued event")
        return Event{}
    }
}

func assertNoEvent(t *testing.T, client *Client) {
    t.Helper()
    select {
    case <-client.send:
        t.Fatal("expected no queued event")
    default:
    }
}

func TestRelayNewMessage(t *testing.T) {
    ctx := context.Background()

    t.Run("delivers to the online recipient only", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        sender := newTestClient()
        sender.userID = 1
        recipient := newTestClient()
        recipient.userID = 2
        registry.Set(1, sender)
        registry.Set(2, recipient)

        msg, err := service.AppendMessage(ctx, conv.ID, 1, "hello", "")
        require.NoError(t, err)

        hub.RelayNewMessage(ctx, conv.ID, msg)

        event := receiveEvent(t, recipient)
        assert.Equal(t, EventNewMessage, event.Type)

        var payload NewMessagePayload
        require.NoError(t, json.Unmarshal(event.Data, &payload))
        assert.Equal(t, conv.ID, payload.ChatID)
        assert.Equal(t, msg.ID, payload.Message.ID)
        assert.True(t, payload.IncrementUnread)

        assertNoEvent(t, sender)
    })

    t.Run("offline recipient is a silent no-op", func(t *testing.T) {
        hub, service, _ := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        msg, err := service.AppendMessage(ctx, conv.ID, 1, "into the void", "")
        require.NoError(t, err)

        // Nobody is registered; must not panic or error out
        hub.RelayNewMessage(ctx, conv.ID, msg)
    })

    t.Run("open chat suppresses the unread hint", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        recipient := newTestClient()
        recipient.userID = 2
        recipient.openChats[conv.ID] = true
        registry.Set(2, recipient)

        msg, err := service.AppendMessage(ctx, conv.ID, 1, "hello", "")
        require.NoError(t, err)

        hub.RelayNewMessage(ctx, conv.ID, msg)

        event := receiveEvent(t, recipient)
        var payload NewMessagePayload
        require.NoError(t, json.Unmarshal(event.Data, &payload))
        assert.False(t, payload.IncrementUnread)
    })

    t.Run("system message reaches both participants without unread hint", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        one := newTestClient()
        one.userID = 1
        two := newTestClient()
        two.userID = 2
        registry.Set(1, one)
        registry.Set(2, two)

        msg, err := service.AppendSystemMessage(ctx, conv.ID, "Request accepted")
        require.NoError(t, err)

        hub.RelayNewMessage(ctx, conv.ID, msg)

        for _, client := range []*Client{one, two} {
            event := receiveEvent(t, client)
            var payload NewMessagePayload
            require.NoError(t, json.Unmarshal(event.Data, &payload))
            assert.Equal(t, MessageTypeSystem, payload.Message.Type)
            assert.False(t, payload.IncrementUnread)
        }
    })
}

func TestRelayToPeer(t *testing.T) {
    ctx := context.Background()

    t.Run("message deleted goes to the other participant", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        peer := newTestClient()
        peer.userID = 2
        registry.Set(2, peer)

        hub.RelayMessageDeleted(ctx, conv.ID, 1, 77)

        event := receiveEvent(t, peer)
        assert.Equal(t, EventMessageDeleted, event.Type)

        var payload MessageDeletedPayload
        require.NoError(t, json.Unmarshal(event.Data, &payload))
        assert.Equal(t, int64(77), payload.MessageID)
    })

    t.Run("typing events carry the actor and state", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        peer := newTestClient()
        peer.userID = 2
        registry.Set(2, peer)

        hub.RelayTyping(ctx, conv.ID, 1, "ada", true)

        event := receiveEvent(t, peer)
        assert.Equal(t, EventUserTyping, event.Type)

        var payload UserTypingPayload
        require.NoError(t, json.Unmarshal(event.Data, &payload))
        assert.Equal(t, int64(1), payload.UserID)
        assert.Equal(t, "ada", payload.User)
        assert.True(t, payload.IsTyping)
    })

    t.Run("chat cleared is not echoed to the actor", func(t *testing.T) {
        hub, service, registry := newTestHub(t)
        conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

        actor := newTestClient()
        actor.userID = 1
        registry.Set(1, actor)

        hub.RelayChatCleared(ctx, conv.ID, 1)

        assertNoEvent(t, actor)
    })
}

func TestRelayBackpressure(t *testing.T) {
    ctx := context.Background()
    hub, service, registry := newTestHub(t)
    conv, _, _ := service.FindOrCreate(ctx, 1, 2, nil, true)

    recipient := newTestClient()
    recipient.userID = 2
    // Fill the outbound queue so the next emit has nowhere to go
    for i := 0; i < sendBufferSize; i++ {
        recipient.send <- []byte("{}")
    }
    registry.Set(2, recipient)

    msg, err := service.AppendMessage(ctx, conv.ID, 1, "dropped", "")
    require.NoError(t, err)

    // Must drop rather than block the relay path
    done := make(chan struct{})
    go func() {
        hub.RelayNewMessage(ctx, conv.ID, msg)
        close(done)
    }()

    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("relay blocked on a saturated connection")
    }
}
