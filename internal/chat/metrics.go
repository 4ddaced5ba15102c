// internal/chat/metrics.go

package chat

import (
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promauto"
)

var (
    conversationsCreated = promauto.NewCounter(
        prometheus.CounterOpts{
            Name: "chat_conversations_created_total",
            Help: "Total number of conversations created",
        },
    )

    messagesTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "chat_messages_total",
            Help: "Total number of messages persisted",
        },
        []string{"type"},
    )

    relayEventsTotal = promauto.NewCounterVec(
        prometheus.CounterOpts{
            Name: "chat_relay_events_total",
            Help: "Realtime relay attempts by event type and outcome",
        },
        []string{"event", "outcome"},
    )

    activeConnections = promauto.NewGauge(
        prometheus.GaugeOpts{
            Name: "chat_ws_connections",
            Help: "Currently identified websocket connections",
        },
    )
)

// Relay outcome labels
const (
    relayDelivered    = "delivered"
    relayOffline      = "offline"
    relayBackpressure = "backpressure"
)
