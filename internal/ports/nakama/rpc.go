package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"trickroom/internal/ports"
	"trickroom/internal/protocol"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Nakama RPC status codes (gRPC numbering).
const (
	codeInvalidArgument = 3
	codeInternal        = 13
)

// IntentHandler runs one intent.
type IntentHandler interface {
	Handle(ctx context.Context, caller protocol.Caller, in protocol.Intent) protocol.Response
}

// Feed serves buffered broadcasts.
type Feed interface {
	Pending(roomID string, since time.Time) []ports.Message
}

// StreamSubscriber joins a session to a room's broadcast stream.
type StreamSubscriber interface {
	Subscribe(roomID, userID, sessionID string) error
}

// RPCService exposes the intent and polling RPCs.
type RPCService struct {
	intents  IntentHandler
	feed     Feed
	identity ports.IdentityPort
	streams  StreamSubscriber
}

// NewRPCService wires the RPC handlers. identity and streams may be nil.
func NewRPCService(intents IntentHandler, feed Feed, identity ports.IdentityPort, streams StreamSubscriber) *RPCService {
	return &RPCService{intents: intents, feed: feed, identity: identity, streams: streams}
}

// Register adds the RPCs to the Nakama initializer.
func (s *RPCService) Register(initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcIntent, s.RpcIntent); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcPoll, s.RpcPoll)
}

// RpcIntent runs an intent as the calling user.
//
// Payload: {"type": "...", "payload": {...}}
// Returns: the response body with its status folded in.
func (s *RPCService) RpcIntent(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var in protocol.Intent
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		return "", runtime.NewError("Invalid payload", codeInvalidArgument)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	username, _ := ctx.Value(runtime.RUNTIME_CTX_USERNAME).(string)
	sessionID, _ := ctx.Value(runtime.RUNTIME_CTX_SESSION_ID).(string)
	caller := protocol.Caller{UserID: userID, DisplayName: username}

	joining := in.Type == protocol.IntentJoinRoom || in.Type == protocol.IntentPlayerJoined
	if joining && userID != "" && s.identity != nil {
		if id, err := s.identity.Resolve(ctx, userID); err == nil {
			caller.DisplayName = id.DisplayName
		} else {
			logger.Warn("RpcIntent [User:%s]: Failed to resolve account: %v", userID, err)
		}
	}

	resp := s.intents.Handle(ctx, caller, in)

	if joining && resp.OK() && sessionID != "" && s.streams != nil {
		var target struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(in.Payload, &target); err != nil || target.RoomID == "" {
			logger.Warn("RpcIntent [User:%s]: No room to stream for accepted join: %v", userID, err)
		} else if err := s.streams.Subscribe(target.RoomID, userID, sessionID); err != nil {
			logger.Warn("RpcIntent [User:%s]: Failed to join stream for room %s: %v", userID, target.RoomID, err)
		}
	}

	out, err := json.Marshal(resp.Envelope())
	if err != nil {
		logger.Error("RpcIntent [User:%s]: Failed to encode response: %v", userID, err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	return string(out), nil
}

// RpcPoll returns buffered broadcasts for a room.
//
// Payload: {"roomId": "...", "since": <unix ms, optional>}
// Returns: {"roomId": "...", "messages": [...], "now": <unix ms>}
func (s *RPCService) RpcPoll(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req struct {
		RoomID string `json:"roomId"`
		Since  int64  `json:"since"`
	}
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.RoomID == "" {
		return "", runtime.NewError("roomId required", codeInvalidArgument)
	}
	var since time.Time
	if req.Since > 0 {
		since = time.UnixMilli(req.Since)
	}

	messages := s.feed.Pending(req.RoomID, since)
	if messages == nil {
		messages = []ports.Message{}
	}
	out, err := json.Marshal(map[string]interface{}{
		"roomId":   req.RoomID,
		"messages": messages,
		"now":      time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Error("RpcPoll: Failed to encode response: %v", err)
		return "", runtime.NewError("Internal error", codeInternal)
	}
	return string(out), nil
}
