package app

import "trickroom/internal/domain"

// EventKind identifies emitted room events. The values double as broadcast message types.
type EventKind string

const (
	EventRoomCreated   EventKind = "room:created"
	EventRoomDestroyed EventKind = "room:destroyed"
	EventRoomReset     EventKind = "room:reset"
	EventPlayerJoined  EventKind = "player:joined"
	EventPlayerLeft    EventKind = "player:left"
	EventHostChanged   EventKind = "host:changed"
	EventPhaseChanged  EventKind = "game:phase"
	EventCardsDealt    EventKind = "game:dealt"
	EventTrumpVote     EventKind = "trump:vote"
	EventTrumpSelected EventKind = "trump:selected"
	EventBidPlaced     EventKind = "game:bid"
	EventCardPlayed    EventKind = "card:played"
	EventTrickWon      EventKind = "trick:won"
	EventTurnChanged   EventKind = "game:turn"
	EventGameFinished  EventKind = "game:finished"
)

// Event is a room event produced by a Registry mutation.
type Event struct {
	Kind    EventKind
	RoomID  string
	Payload any
}

type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomDestroyedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomResetPayload struct {
	RoomID string `json:"roomId"`
	Epoch  uint64 `json:"epoch"`
}

type PlayerJoinedPayload struct {
	Player domain.Player `json:"player"`
}

type PlayerLeftPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type HostChangedPayload struct {
	PlayerID string `json:"playerId"`
}

type PhaseChangedPayload struct {
	Phase       domain.Phase `json:"gamePhase"`
	Epoch       uint64       `json:"epoch"`
	VotingEpoch uint64       `json:"votingEpoch"`
}

type CardsDealtPayload struct {
	Phase     domain.Phase   `json:"gamePhase"`
	HandSizes map[string]int `json:"handSizes"`
	DeckLeft  int            `json:"deckRemaining"`
}

type TrumpVotePayload struct {
	PlayerID string `json:"playerId"`
	Votes    int    `json:"votes"`
	Needed   int    `json:"needed"`
}

type TrumpSelectedPayload struct {
	Suit        domain.Suit         `json:"suit"`
	Counts      map[domain.Suit]int `json:"counts"`
	Tied        bool                `json:"tied"`
	Epoch       uint64              `json:"epoch"`
	VotingEpoch uint64              `json:"votingEpoch"`
}

type BidPlacedPayload struct {
	PlayerID string `json:"playerId"`
	Bid      int    `json:"bid"`
}

type CardPlayedPayload struct {
	PlayerID string      `json:"playerId"`
	Card     domain.Card `json:"card"`
	TrickLen int         `json:"trickSize"`
}

type TrickWonPayload struct {
	WinnerID   string              `json:"winnerId"`
	Team       string              `json:"team"`
	Trick      []domain.PlayedCard `json:"trick"`
	TeamScores map[string]int      `json:"teamScores"`
}

type TurnChangedPayload struct {
	PlayerID string `json:"playerId"`
	TurnSeq  int    `json:"turnSeq"`
	Epoch    uint64 `json:"epoch"`
}

type GameFinishedPayload struct {
	WinningTeam string         `json:"winningTeam"`
	TeamScores  map[string]int `json:"teamScores"`
	Epoch       uint64         `json:"epoch"`
}
