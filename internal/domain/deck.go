package domain

import (
	"math/rand"
	"sort"
)

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// NewDeck returns an ordered 52-card deck, suit-major then ascending rank.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for r := RankTwo; r <= RankAce; r++ {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// Shuffle permutes deck in place with Fisher–Yates and returns it.
// A nil rng falls back to the package-level source.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	intn := rand.Intn
	if rng != nil {
		intn = rng.Intn
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

// SortHand orders a hand by suit (deck order) then rank.
func SortHand(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		si, sj := suitIndex(cards[i].Suit), suitIndex(cards[j].Suit)
		if si != sj {
			return si < sj
		}
		return cards[i].Rank < cards[j].Rank
	})
}

func suitIndex(s Suit) int {
	for i, candidate := range Suits {
		if candidate == s {
			return i
		}
	}
	return len(Suits)
}
