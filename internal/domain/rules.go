package domain

import "fmt"

// WinningTricks is the number of tricks a team needs to take the hand.
const WinningTricks = 7

// PlayedCard is one player's contribution to a trick.
type PlayedCard struct {
	PlayerID string `json:"playerId"`
	Seat     int    `json:"seat"`
	Card     Card   `json:"card"`
}

// Beats reports whether challenger outranks the current best card of a trick.
// Trump beats non-trump, lead suit beats off-suit, and within a suit the higher rank wins.
// A card that is neither trump nor lead never wins.
func Beats(challenger, best Card, lead Suit, trump *Suit) bool {
	cTrump := trump != nil && challenger.Suit == *trump
	bTrump := trump != nil && best.Suit == *trump
	switch {
	case cTrump && bTrump:
		return challenger.Rank > best.Rank
	case cTrump:
		return true
	case bTrump:
		return false
	}

	cLead := challenger.Suit == lead
	bLead := best.Suit == lead
	switch {
	case cLead && bLead:
		return challenger.Rank > best.Rank
	case cLead:
		return true
	default:
		return false
	}
}

// ResolveTrick returns the id of the player whose card wins the trick.
// It panics on an empty trick or a trick in which a player appears twice;
// both are caller bugs, not game situations.
func ResolveTrick(trick []PlayedCard, lead Suit, trump *Suit) string {
	if len(trick) == 0 {
		panic("domain: ResolveTrick called with empty trick")
	}
	seen := make(map[string]struct{}, len(trick))
	for _, pc := range trick {
		if _, dup := seen[pc.PlayerID]; dup {
			panic(fmt.Sprintf("domain: player %q appears twice in trick", pc.PlayerID))
		}
		seen[pc.PlayerID] = struct{}{}
	}

	best := trick[0]
	for _, pc := range trick[1:] {
		if Beats(pc.Card, best.Card, lead, trump) {
			best = pc
		}
	}
	return best.PlayerID
}
