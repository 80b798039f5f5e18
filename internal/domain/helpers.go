package domain

// LowestAvailableSeat returns the first free seat index (0-based), or -1 if every seat is taken.
func LowestAvailableSeat(seats *[MaxPlayers]string) int {
	for i, userID := range seats {
		if userID == "" {
			return i
		}
	}
	return -1
}

// ContainsCard reports whether hand holds card.
func ContainsCard(hand []Card, card Card) bool {
	for _, c := range hand {
		if c == card {
			return true
		}
	}
	return false
}

// RemoveCard returns a new hand without card, and whether it was present.
// The input slice is not modified.
func RemoveCard(hand []Card, card Card) ([]Card, bool) {
	out := make([]Card, 0, len(hand))
	found := false
	for _, c := range hand {
		if !found && c == card {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		return hand, false
	}
	return out, true
}

// CardsOfSuit returns the subset of hand in suit s, preserving order.
func CardsOfSuit(hand []Card, s Suit) []Card {
	var out []Card
	for _, c := range hand {
		if c.Suit == s {
			out = append(out, c)
		}
	}
	return out
}

// NextSeatedPlayer returns the id of the player seated after seat, wrapping around.
// A lone player gets their own id back; an empty table yields "".
func NextSeatedPlayer(seats [MaxPlayers]string, seat int) string {
	for step := 1; step <= MaxPlayers; step++ {
		idx := (seat + step) % MaxPlayers
		if seats[idx] != "" {
			return seats[idx]
		}
	}
	return ""
}

// FirstSeatedPlayer returns the id in the lowest occupied seat.
func FirstSeatedPlayer(seats [MaxPlayers]string) string {
	for _, id := range seats {
		if id != "" {
			return id
		}
	}
	return ""
}
