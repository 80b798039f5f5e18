package ports

import (
	"context"
	"time"

	"trickroom/internal/domain"
)

// ArchivedPlayer is a participant as recorded in match history.
type ArchivedPlayer struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Seat   int    `json:"seat"`
	Team   string `json:"team"`
	Tricks int    `json:"tricks"`
	IsBot  bool   `json:"isBot"`
}

// MatchRecord summarises one finished hand.
type MatchRecord struct {
	RoomID      string           `json:"roomId"`
	Epoch       uint64           `json:"epoch"`
	TrumpSuit   string           `json:"trumpSuit"`
	WinningTeam string           `json:"winningTeam"`
	TeamScores  map[string]int   `json:"teamScores"`
	Bids        map[string]int   `json:"bids"`
	Players     []ArchivedPlayer `json:"players"`
	Moves       []domain.Move    `json:"moves"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// ArchivePort accepts finished matches for long-term storage.
type ArchivePort interface {
	// Archive stores rec. Implementations may be slow; callers run them off the room lock.
	Archive(ctx context.Context, rec MatchRecord) error
}

// NewMatchRecord builds the archival summary of a finished room.
func NewMatchRecord(room *domain.Room, finishedAt time.Time) MatchRecord {
	rec := MatchRecord{
		RoomID:      room.ID,
		Epoch:       room.Epoch,
		WinningTeam: room.Game.WinningTeam,
		TeamScores:  map[string]int{},
		Bids:        map[string]int{},
		Moves:       append([]domain.Move(nil), room.Game.Moves...),
		FinishedAt:  finishedAt,
	}
	if room.Game.TrumpSuit != nil {
		rec.TrumpSuit = string(*room.Game.TrumpSuit)
	}
	for k, v := range room.Game.TeamScores {
		rec.TeamScores[k] = v
	}
	for k, v := range room.Game.Bids {
		rec.Bids[k] = v
	}
	for _, p := range room.Players {
		rec.Players = append(rec.Players, ArchivedPlayer{
			ID:     p.ID,
			Name:   p.Name,
			Seat:   p.Seat,
			Team:   domain.TeamForSeat(p.Seat),
			Tricks: p.Score,
			IsBot:  p.IsBot,
		})
	}
	return rec
}
