package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"trickroom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// StreamModule is the part of runtime.NakamaModule the stream transport uses.
type StreamModule interface {
	StreamSend(mode uint8, subject, subcontext, label, data string, presences []runtime.Presence, reliable bool) error
	StreamUserJoin(mode uint8, subject, subcontext, label, userID, sessionID string, hidden, persistence bool, status string) (bool, error)
}

// NakamaStreamTransport delivers room broadcasts to sessions joined to the room's stream.
type NakamaStreamTransport struct {
	nk StreamModule
}

// NewNakamaStreamTransport creates a new stream transport.
func NewNakamaStreamTransport(nk StreamModule) *NakamaStreamTransport {
	return &NakamaStreamTransport{nk: nk}
}

func (t *NakamaStreamTransport) Name() string { return "nakama-stream" }

// Publish sends msg to every presence on the room stream.
func (t *NakamaStreamTransport) Publish(ctx context.Context, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	return t.nk.StreamSend(StreamModeRoom, "", "", msg.RoomID, data, nil, true)
}

// Subscribe joins a session to roomID's stream so it receives broadcasts.
func (t *NakamaStreamTransport) Subscribe(roomID, userID, sessionID string) error {
	_, err := t.nk.StreamUserJoin(StreamModeRoom, "", "", roomID, userID, sessionID, false, false, "")
	return err
}

// encodeEnvelope renders msg as canonical protobuf JSON so every client SDK sees the same shape.
func encodeEnvelope(msg ports.Message) (string, error) {
	var payload interface{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return "", fmt.Errorf("failed to decode %s payload: %w", msg.Type, err)
		}
	}
	st, err := structpb.NewStruct(map[string]interface{}{
		"id":        msg.ID,
		"roomId":    msg.RoomID,
		"type":      msg.Type,
		"timestamp": msg.Timestamp.UnixMilli(),
		"payload":   payload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to build %s envelope: %w", msg.Type, err)
	}
	out, err := protojson.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s envelope: %w", msg.Type, err)
	}
	return string(out), nil
}

var _ ports.Transport = (*NakamaStreamTransport)(nil)
