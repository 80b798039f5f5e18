package ports

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one broadcast as seen by subscribers and the pending buffer.
type Message struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"roomId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Transport delivers room broadcasts to live subscribers.
type Transport interface {
	// Name identifies the transport in logs.
	Name() string

	// Publish fans msg out to every subscriber of msg.RoomID.
	// Implementations must honour ctx cancellation; the caller bounds it with a deadline.
	Publish(ctx context.Context, msg Message) error
}
