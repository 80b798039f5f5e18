package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Suit is one of the four French suits.
type Suit string

const (
	SuitHearts   Suit = "hearts"
	SuitDiamonds Suit = "diamonds"
	SuitClubs    Suit = "clubs"
	SuitSpades   Suit = "spades"
)

// Suits lists every suit in deck order.
var Suits = []Suit{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Valid reports whether s names a real suit.
func (s Suit) Valid() bool {
	switch s {
	case SuitHearts, SuitDiamonds, SuitClubs, SuitSpades:
		return true
	}
	return false
}

// ParseSuit accepts full names or single-letter abbreviations, case-insensitive.
func ParseSuit(raw string) (Suit, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "hearts", "heart", "h":
		return SuitHearts, nil
	case "diamonds", "diamond", "d":
		return SuitDiamonds, nil
	case "clubs", "club", "c":
		return SuitClubs, nil
	case "spades", "spade", "s":
		return SuitSpades, nil
	}
	return "", fmt.Errorf("unknown suit %q", raw)
}

// Rank is a card rank from 2 to 14 (Ace high).
type Rank int

const (
	RankTwo   Rank = 2
	RankTen   Rank = 10
	RankJack  Rank = 11
	RankQueen Rank = 12
	RankKing  Rank = 13
	RankAce   Rank = 14
)

// Valid reports whether r is within 2..Ace.
func (r Rank) Valid() bool {
	return r >= RankTwo && r <= RankAce
}

// String renders the rank label used in card ids.
func (r Rank) String() string {
	switch r {
	case RankJack:
		return "J"
	case RankQueen:
		return "Q"
	case RankKing:
		return "K"
	case RankAce:
		return "A"
	}
	return strconv.Itoa(int(r))
}

// ParseRank accepts "2".."10", "J", "Q", "K", "A" (case-insensitive).
func ParseRank(raw string) (Rank, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "J", "JACK":
		return RankJack, nil
	case "Q", "QUEEN":
		return RankQueen, nil
	case "K", "KING":
		return RankKing, nil
	case "A", "ACE":
		return RankAce, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !Rank(n).Valid() {
		return 0, fmt.Errorf("unknown rank %q", raw)
	}
	return Rank(n), nil
}

func (r Rank) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Rank) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if !Rank(n).Valid() {
			return fmt.Errorf("rank %d out of range", n)
		}
		*r = Rank(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("rank must be a string or number: %w", err)
	}
	parsed, err := ParseRank(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Card is an immutable playing card.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

// ID returns the stable "<suit>-<rank>" identifier, e.g. "hearts-A".
func (c Card) ID() string {
	return string(c.Suit) + "-" + c.Rank.String()
}

func (c Card) String() string { return c.ID() }

// Valid reports whether both suit and rank are in range.
func (c Card) Valid() bool {
	return c.Suit.Valid() && c.Rank.Valid()
}

// ParseCard parses a card id produced by Card.ID.
func ParseCard(id string) (Card, error) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return Card{}, fmt.Errorf("malformed card id %q", id)
	}
	suit, err := ParseSuit(id[:i])
	if err != nil {
		return Card{}, err
	}
	rank, err := ParseRank(id[i+1:])
	if err != nil {
		return Card{}, err
	}
	return Card{Suit: suit, Rank: rank}, nil
}

type cardJSON struct {
	ID   string `json:"id"`
	Suit Suit   `json:"suit"`
	Rank Rank   `json:"rank"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(cardJSON{ID: c.ID(), Suit: c.Suit, Rank: c.Rank})
}

// UnmarshalJSON accepts either a card id string or an object with suit and rank.
func (c *Card) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		parsed, err := ParseCard(id)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}

	var raw struct {
		ID   string `json:"id"`
		Suit string `json:"suit"`
		Rank *Rank  `json:"rank"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("card must be an id or an object: %w", err)
	}
	if raw.Suit == "" && raw.ID != "" {
		parsed, err := ParseCard(raw.ID)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	suit, err := ParseSuit(raw.Suit)
	if err != nil {
		return err
	}
	if raw.Rank == nil {
		return fmt.Errorf("card rank missing")
	}
	*c = Card{Suit: suit, Rank: *raw.Rank}
	return nil
}
