// clients/chatclient/state_test.go

package chatclient

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/varsharaodevaraj/wardrobe-nearby-chat/internal/chat"
)

func optimisticMessage(tempID, content string) *chat.Message {
    return &chat.Message{
        SenderID: 1,
        Type:     chat.MessageTypeText,
        Content:  content,
        Status:   chat.StatusSending,
        TempID:   tempID,
    }
}

func TestResolveOptimistic(t *testing.T) {
    t.Run("replaces the placeholder in place", func(t *testing.T) {
        s := newStore()
        s.appendOptimistic(10, optimisticMessage("tmp-1", "hello"))

        canonical := &chat.Message{ID: 42, Content: "hello", Status: chat.StatusSent, TempID: "tmp-1"}
        s.resolveOptimistic(10, "tmp-1", canonical)

        conv := s.snapshot(10)
        require.Len(t, conv.Messages, 1)
        assert.Equal(t, int64(42), conv.Messages[0].ID)
        assert.Equal(t, chat.StatusSent, conv.Messages[0].Status)
    })

    t.Run("appends when the placeholder is gone", func(t *testing.T) {
        s := newStore()

        canonical := &chat.Message{ID: 42, Content: "hello", Status: chat.StatusSent}
        s.resolveOptimistic(10, "tmp-missing", canonical)

        conv := s.snapshot(10)
        require.Len(t, conv.Messages, 1)
        assert.Equal(t, int64(42), conv.Messages[0].ID)
    })

    t.Run("keeps surrounding messages ordered", func(t *testing.T) {
        s := newStore()
        s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "before"}, true)
        s.appendOptimistic(10, optimisticMessage("tmp-1", "mine"))
        s.applyIncoming(10, &chat.Message{ID: 2, SenderID: 2, Content: "after"}, true)

        s.resolveOptimistic(10, "tmp-1", &chat.Message{ID: 3, Content: "mine", Status: chat.StatusSent})

        conv := s.snapshot(10)
        require.Len(t, conv.Messages, 3)
        assert.Equal(t, int64(1), conv.Messages[0].ID)
        assert.Equal(t, int64(3), conv.Messages[1].ID)
        assert.Equal(t, int64(2), conv.Messages[2].ID)
    })
}

func TestRollbackOptimistic(t *testing.T) {
    s := newStore()
    s.appendOptimistic(10, optimisticMessage("tmp-1", "failed send"))

    content, ok := s.rollbackOptimistic(10, "tmp-1")
    assert.True(t, ok)
    assert.Equal(t, "failed send", content, "content is handed back for composer restore")

    conv := s.snapshot(10)
    assert.Empty(t, conv.Messages)

    // A second rollback finds nothing
    _, ok = s.rollbackOptimistic(10, "tmp-1")
    assert.False(t, ok)
}

func TestApplyIncoming(t *testing.T) {
    t.Run("closed conversation bumps the badge", func(t *testing.T) {
        s := newStore()

        open := s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "hi"}, true)
        assert.False(t, open)
        assert.Equal(t, 1, s.snapshot(10).UnreadCount)
    })

    t.Run("unread hint false leaves the badge alone", func(t *testing.T) {
        s := newStore()

        s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "hi"}, false)
        assert.Equal(t, 0, s.snapshot(10).UnreadCount)
    })

    t.Run("open conversation appends without badge", func(t *testing.T) {
        s := newStore()
        s.open(10)

        open := s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "hi"}, true)
        assert.True(t, open, "caller should auto mark-read")
        assert.Equal(t, 0, s.snapshot(10).UnreadCount)
    })

    t.Run("replayed message is dropped", func(t *testing.T) {
        s := newStore()

        s.applyIncoming(10, &chat.Message{ID: 7, SenderID: 2, Content: "once"}, true)
        s.applyIncoming(10, &chat.Message{ID: 7, SenderID: 2, Content: "once"}, true)

        conv := s.snapshot(10)
        assert.Len(t, conv.Messages, 1)
        assert.Equal(t, 1, conv.UnreadCount)
    })

    t.Run("incoming message clears the sender's typing entry", func(t *testing.T) {
        s := newStore()
        s.setTyping(10, 2, true)
        require.Len(t, s.typists(10), 1)

        s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "done"}, true)
        assert.Empty(t, s.typists(10))
    })
}

func TestOpenResetsBadge(t *testing.T) {
    s := newStore()
    s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "a"}, true)
    s.applyIncoming(10, &chat.Message{ID: 2, SenderID: 2, Content: "b"}, true)
    require.Equal(t, 2, s.snapshot(10).UnreadCount)

    s.open(10)
    assert.Equal(t, 0, s.snapshot(10).UnreadCount)

    // Closing stops the auto-read behavior
    s.close(10)
    s.applyIncoming(10, &chat.Message{ID: 3, SenderID: 2, Content: "c"}, true)
    assert.Equal(t, 1, s.snapshot(10).UnreadCount)
}

func TestTypingFreshness(t *testing.T) {
    s := newStore()
    base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
    s.now = func() time.Time { return base }

    s.setTyping(10, 2, true)
    assert.Equal(t, []int64{2}, s.typists(10))

    s.now = func() time.Time { return base.Add(9 * time.Second) }
    assert.Len(t, s.typists(10), 1)

    s.now = func() time.Time { return base.Add(11 * time.Second) }
    assert.Empty(t, s.typists(10), "entries expire lazily on read")

    // An explicit stop clears immediately
    s.now = func() time.Time { return base }
    s.setTyping(10, 2, true)
    s.setTyping(10, 2, false)
    assert.Empty(t, s.typists(10))
}

func TestDeleteAndClear(t *testing.T) {
    s := newStore()
    s.applyIncoming(10, &chat.Message{ID: 1, SenderID: 2, Content: "a"}, true)
    s.applyIncoming(10, &chat.Message{ID: 2, SenderID: 2, Content: "b"}, true)

    s.applyDeleted(10, 1)
    conv := s.snapshot(10)
    require.Len(t, conv.Messages, 1)
    assert.Equal(t, int64(2), conv.Messages[0].ID)

    s.applyCleared(10)
    assert.Empty(t, s.snapshot(10).Messages)

    // Badge untouched by delete or clear, same as the server's behavior
    assert.Equal(t, 2, s.snapshot(10).UnreadCount)
}
