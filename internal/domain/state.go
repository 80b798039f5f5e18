package domain

import "time"

// Phase represents the lifecycle stage of a room.
type Phase string

const (
	// PhaseWaiting is the lobby state where players can join.
	PhaseWaiting Phase = "waiting"
	// PhaseInitialDeal means five cards are dealt and trump voting is open.
	PhaseInitialDeal Phase = "initial_deal"
	// PhaseBidding follows a resolved trump vote.
	PhaseBidding Phase = "bidding"
	// PhaseFinalDeal means the remaining eight cards per player are dealt.
	PhaseFinalDeal Phase = "final_deal"
	// PhasePlaying is the trick-taking stage.
	PhasePlaying Phase = "playing"
	// PhaseFinished is terminal until the room is reset or destroyed.
	PhaseFinished Phase = "finished"
)

var phaseOrder = map[Phase]int{
	PhaseWaiting:     0,
	PhaseInitialDeal: 1,
	PhaseBidding:     2,
	PhaseFinalDeal:   3,
	PhasePlaying:     4,
	PhaseFinished:    5,
}

// CanAdvance reports whether next is the immediate successor of p.
func (p Phase) CanAdvance(next Phase) bool {
	from, ok := phaseOrder[p]
	if !ok {
		return false
	}
	to, ok := phaseOrder[next]
	return ok && to == from+1
}

const (
	// MaxPlayers is the seat count of a room.
	MaxPlayers = 4
	// InitialHandSize is dealt before trump voting.
	InitialHandSize = 5
	// FullHandSize is the hand size after the final deal.
	FullHandSize = 13
)

// Team identifiers. Seats 0 and 2 play for TeamA, seats 1 and 3 for TeamB.
const (
	TeamA = "A"
	TeamB = "B"
)

// TeamForSeat maps a 0-based seat to its team.
func TeamForSeat(seat int) string {
	if seat%2 == 0 {
		return TeamA
	}
	return TeamB
}

// Player holds state for a participant in a room.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Seat     int       `json:"seat"` // 0-based, stable for the life of the room
	Hand     []Card    `json:"hand"`
	Score    int       `json:"score"` // tricks won by this player
	IsHost   bool      `json:"isHost"`
	IsBot    bool      `json:"isBot"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Move is one accepted card play, kept for archival.
type Move struct {
	Seq      int       `json:"seq"`
	PlayerID string    `json:"playerId"`
	Card     Card      `json:"card"`
	Trick    int       `json:"trick"`
	At       time.Time `json:"at"`
}

// GameState is the mutable game portion of a room.
type GameState struct {
	Phase        Phase          `json:"gamePhase"`
	CurrentTurn  *string        `json:"currentTurn"`
	TrumpSuit    *Suit          `json:"trumpSuit"`
	LeadSuit     *Suit          `json:"leadSuit"`
	Trick        []PlayedCard   `json:"trickCards"`
	Round        int            `json:"round"`
	TricksPlayed int            `json:"tricksPlayed"`
	TeamScores   map[string]int `json:"teamScores"`
	Voted        []string       `json:"votedPlayers"`
	VoteCounts   map[Suit]int   `json:"voteCounts"`
	VotingEpoch  uint64         `json:"votingEpoch"`
	Bids         map[string]int `json:"bids"`
	WinningTeam  string         `json:"winningTeam,omitempty"`
	TurnSeq      int            `json:"turnSeq"`
	Moves        []Move         `json:"-"`
}

// Room is one game session.
type Room struct {
	ID           string    `json:"id"`
	Players      []*Player `json:"players"` // join order
	Game         GameState `json:"gameState"`
	Epoch        uint64    `json:"epoch"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Deck         []Card    `json:"-"` // undealt remainder of the current shuffle
}

// NewRoom returns an empty waiting room.
func NewRoom(id string, now time.Time) *Room {
	return &Room{
		ID:           id,
		Game:         NewGameState(),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// NewGameState returns a fresh waiting-phase game state.
func NewGameState() GameState {
	return GameState{
		Phase:      PhaseWaiting,
		TeamScores: map[string]int{TeamA: 0, TeamB: 0},
		VoteCounts: map[Suit]int{},
		Bids:       map[string]int{},
	}
}

// Player returns the player with the given id, or nil.
func (r *Room) Player(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByName returns the first player with the given display name, or nil.
func (r *Room) PlayerByName(name string) *Player {
	for _, p := range r.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Host returns the current host, or nil for an empty room.
func (r *Room) Host() *Player {
	for _, p := range r.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// Seats returns the occupied seats indexed by seat number.
func (r *Room) Seats() [MaxPlayers]string {
	var seats [MaxPlayers]string
	for _, p := range r.Players {
		if p.Seat >= 0 && p.Seat < MaxPlayers {
			seats[p.Seat] = p.ID
		}
	}
	return seats
}

// Clone returns a deep copy safe to read without the room lock.
func (r *Room) Clone() *Room {
	out := *r
	out.Players = make([]*Player, len(r.Players))
	for i, p := range r.Players {
		cp := *p
		cp.Hand = append([]Card(nil), p.Hand...)
		out.Players[i] = &cp
	}
	out.Deck = append([]Card(nil), r.Deck...)
	out.Game = r.Game.clone()
	return &out
}

func (g GameState) clone() GameState {
	out := g
	if g.CurrentTurn != nil {
		v := *g.CurrentTurn
		out.CurrentTurn = &v
	}
	if g.TrumpSuit != nil {
		v := *g.TrumpSuit
		out.TrumpSuit = &v
	}
	if g.LeadSuit != nil {
		v := *g.LeadSuit
		out.LeadSuit = &v
	}
	out.Trick = append([]PlayedCard(nil), g.Trick...)
	out.Voted = append([]string(nil), g.Voted...)
	out.Moves = append([]Move(nil), g.Moves...)
	out.TeamScores = make(map[string]int, len(g.TeamScores))
	for k, v := range g.TeamScores {
		out.TeamScores[k] = v
	}
	out.VoteCounts = make(map[Suit]int, len(g.VoteCounts))
	for k, v := range g.VoteCounts {
		out.VoteCounts[k] = v
	}
	out.Bids = make(map[string]int, len(g.Bids))
	for k, v := range g.Bids {
		out.Bids[k] = v
	}
	return out
}
