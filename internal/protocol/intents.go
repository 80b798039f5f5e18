package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"trickroom/internal/app"
	"trickroom/internal/domain"
)

// IntentType names a client request.
type IntentType string

const (
	IntentCreateRoom   IntentType = "room:create"
	IntentJoinRoom     IntentType = "room:join"
	IntentPlayerJoined IntentType = "player:joined"
	IntentLeaveRoom    IntentType = "room:leave"
	IntentReady        IntentType = "game:ready"
	IntentSelectTrump  IntentType = "game:select-trump"
	IntentPlayCard     IntentType = "game:play-card"
	IntentBid          IntentType = "game:bid"
	IntentRequestState IntentType = "room:request-state"
	IntentAddBot       IntentType = "room:add-bot"
	IntentResetRoom    IntentType = "room:reset"
)

// MessageRoomState carries a full room snapshot after every accepted intent.
const MessageRoomState = "room:state"

// MaxBid is the highest accepted bid: every trick of a hand.
const MaxBid = domain.FullHandSize

// Intent is the request envelope.
type Intent struct {
	Type    IntentType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Caller describes who submitted an intent, as far as the transport knows.
type Caller struct {
	// ConnID is a transport connection id, used as the player id when nothing better is known.
	ConnID string
	// UserID and DisplayName are set by transports that authenticate on their own.
	UserID      string
	DisplayName string
	// Token is a bearer credential resolved through the identity port on join.
	Token string
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type joinPayload struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
	IsBot      bool   `json:"isBot"`
	Token      string `json:"token"`
}

type leavePayload struct {
	RoomID     string `json:"roomId"`
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
}

type trumpPayload struct {
	RoomID   string `json:"roomId"`
	Suit     string `json:"suit"`
	PlayerID string `json:"playerId"`
	BotID    string `json:"botId"`
}

type playPayload struct {
	RoomID   string       `json:"roomId"`
	PlayerID string       `json:"playerId"`
	Card     *domain.Card `json:"card"`
}

type bidPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Bid      *int   `json:"bid"`
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: payload is required", app.ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", app.ErrBadRequest, err)
	}
	return nil
}

func required(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", app.ErrBadRequest, field)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
