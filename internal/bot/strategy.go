package bot

import (
	"math/rand"

	"trickroom/internal/domain"
)

// ChooseCard picks a card the bot actually holds. With probability trumpPreference it
// plays a trump when it has one; otherwise it follows the lead suit when it can, and
// falls back to any card. Choices within a group are uniform.
func ChooseCard(hand []domain.Card, lead, trump *domain.Suit, trumpPreference float64, rng *rand.Rand) (domain.Card, bool) {
	if len(hand) == 0 {
		return domain.Card{}, false
	}
	if trump != nil && rng.Float64() < trumpPreference {
		if trumps := domain.CardsOfSuit(hand, *trump); len(trumps) > 0 {
			return trumps[rng.Intn(len(trumps))], true
		}
	}
	if lead != nil {
		if follow := domain.CardsOfSuit(hand, *lead); len(follow) > 0 {
			return follow[rng.Intn(len(follow))], true
		}
	}
	return hand[rng.Intn(len(hand))], true
}

// ChooseSuit picks a trump vote uniformly.
func ChooseSuit(rng *rand.Rand) domain.Suit {
	return domain.Suits[rng.Intn(len(domain.Suits))]
}
