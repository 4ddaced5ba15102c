// internal/chat/presence.go

package chat

import (
    "context"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/go-redis/redis/v8"
)

// Presence maps a user identity to its single live connection. Last writer
// wins: a later Set for the same user supersedes the earlier handle, which
// stays alive but is no longer addressable by identity.
type Presence interface {
    Set(userID int64, client *Client)
    Get(userID int64) (*Client, bool)
    RemoveIfCurrent(userID int64, client *Client)
}

// Registry is the in-process Presence implementation. When a Redis client is
// provided it also mirrors a last-seen key with a TTL so other services can
// answer "is this user online" without talking to this process; the mirror
// is best-effort and never blocks registry operations.
type Registry struct {
    mu      sync.RWMutex
    clients map[int64]*Client

    redis *redis.Client
    ttl   time.Duration
}

func NewRegistry(redisClient *redis.Client, presenceTTL time.Duration) *Registry {
    return &Registry{
        clients: make(map[int64]*Client),
        redis:   redisClient,
        ttl:     presenceTTL,
    }
}

func (r *Registry) Set(userID int64, client *Client) {
    r.mu.Lock()
    r.clients[userID] = client
    r.mu.Unlock()

    r.mirrorOnline(userID)
}

func (r *Registry) Get(userID int64) (*Client, bool) {
    r.mu.RLock()
    defer r.mu.RUnlock()

    client, ok := r.clients[userID]
    return client, ok
}

// RemoveIfCurrent unregisters only if client is still the registered handle.
// A stale disconnect from a superseded connection must not clobber the
// newer registration.
func (r *Registry) RemoveIfCurrent(userID int64, client *Client) {
    r.mu.Lock()
    current, ok := r.clients[userID]
    if ok && current == client {
        delete(r.clients, userID)
        r.mu.Unlock()
        r.mirrorOffline(userID)
        return
    }
    r.mu.Unlock()
}

// Count returns the number of identified connections
func (r *Registry) Count() int {
    r.mu.RLock()
    defer r.mu.RUnlock()
    return len(r.clients)
}

func presenceKey(userID int64) string {
    return fmt.Sprintf("presence:last_seen:%d", userID)
}

func (r *Registry) mirrorOnline(userID int64) {
    if r.redis == nil {
        return
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        if err := r.redis.Set(ctx, presenceKey(userID), time.Now().Unix(), r.ttl).Err(); err != nil {
            log.Printf("presence mirror set failed for user %d: %v", userID, err)
        }
    }()
}

func (r *Registry) mirrorOffline(userID int64) {
    if r.redis == nil {
        return
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
        defer cancel()
        if err := r.redis.Del(ctx, presenceKey(userID)).Err(); err != nil {
            log.Printf("presence mirror del failed for user %d: %v", userID, err)
        }
    }()
}
