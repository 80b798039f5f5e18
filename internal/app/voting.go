package app

import (
	"math/rand"
	"sync"
	"time"

	"trickroom/internal/domain"
)

// TiePicker chooses the trump suit among suits tied for the most votes.
type TiePicker interface {
	Pick(tied []domain.Suit) domain.Suit
}

// RandomTiePicker picks uniformly at random. Safe for concurrent use.
type RandomTiePicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomTiePicker uses rng, or a time-seeded source when rng is nil.
func NewRandomTiePicker(rng *rand.Rand) *RandomTiePicker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomTiePicker{rng: rng}
}

func (p *RandomTiePicker) Pick(tied []domain.Suit) domain.Suit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return tied[p.rng.Intn(len(tied))]
}

// TiePickerFunc adapts a function to TiePicker.
type TiePickerFunc func(tied []domain.Suit) domain.Suit

func (f TiePickerFunc) Pick(tied []domain.Suit) domain.Suit { return f(tied) }

// Tally is a view over the vote fields of a game state.
// It must only be used while the owning room is locked.
type Tally struct {
	g *domain.GameState
}

// TallyOf returns the tally view of g.
func TallyOf(g *domain.GameState) Tally { return Tally{g: g} }

// HasVoted reports whether playerID already cast a vote this epoch.
func (t Tally) HasVoted(playerID string) bool {
	for _, id := range t.g.Voted {
		if id == playerID {
			return true
		}
	}
	return false
}

// Cast records a vote. Callers check HasVoted first.
func (t Tally) Cast(playerID string, suit domain.Suit) {
	t.g.Voted = append(t.g.Voted, playerID)
	if t.g.VoteCounts == nil {
		t.g.VoteCounts = map[domain.Suit]int{}
	}
	t.g.VoteCounts[suit]++
}

// Total is the number of votes cast.
func (t Tally) Total() int {
	n := 0
	for _, c := range t.g.VoteCounts {
		n += c
	}
	return n
}

// Complete reports whether every current player has voted.
func (t Tally) Complete(playerCount int) bool {
	return playerCount > 0 && t.Total() >= playerCount
}

// Leaders returns the suits with the maximum count, in deck suit order.
func (t Tally) Leaders() []domain.Suit {
	best := 0
	for _, c := range t.g.VoteCounts {
		if c > best {
			best = c
		}
	}
	if best == 0 {
		return nil
	}
	var out []domain.Suit
	for _, s := range domain.Suits {
		if t.g.VoteCounts[s] == best {
			out = append(out, s)
		}
	}
	return out
}

// Counts returns a copy of the per-suit counts.
func (t Tally) Counts() map[domain.Suit]int {
	out := make(map[domain.Suit]int, len(t.g.VoteCounts))
	for k, v := range t.g.VoteCounts {
		out[k] = v
	}
	return out
}

// Reset opens a new voting epoch.
func (t Tally) Reset() {
	t.g.Voted = nil
	t.g.VoteCounts = map[domain.Suit]int{}
	t.g.VotingEpoch++
}
