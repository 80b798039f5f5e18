package domain

import (
	"math/rand"
	"testing"
)

func card(id string) Card {
	c, err := ParseCard(id)
	if err != nil {
		panic(err)
	}
	return c
}

func suitPtr(s Suit) *Suit { return &s }

func TestResolveTrick(t *testing.T) {
	tests := []struct {
		name  string
		cards []string // p1..p4 in play order
		trump *Suit
		want  string
	}{
		{
			name:  "highest lead suit wins without trump",
			cards: []string{"clubs-5", "clubs-K", "clubs-2", "clubs-9"},
			want:  "p2",
		},
		{
			name:  "off-suit ace never wins",
			cards: []string{"clubs-5", "spades-A", "diamonds-A", "clubs-6"},
			trump: suitPtr(SuitHearts),
			want:  "p4",
		},
		{
			name:  "low trump beats high lead",
			cards: []string{"clubs-A", "hearts-2", "clubs-K", "spades-A"},
			trump: suitPtr(SuitHearts),
			want:  "p2",
		},
		{
			name:  "higher trump wins among trumps",
			cards: []string{"clubs-A", "hearts-2", "hearts-J", "hearts-5"},
			trump: suitPtr(SuitHearts),
			want:  "p3",
		},
		{
			name:  "trump lead behaves as lead and trump",
			cards: []string{"hearts-3", "clubs-A", "hearts-4", "spades-K"},
			trump: suitPtr(SuitHearts),
			want:  "p3",
		},
		{
			name:  "single trump takes an unfollowed lead",
			cards: []string{"diamonds-2", "clubs-A", "spades-A", "hearts-A"},
			trump: suitPtr(SuitClubs),
			want:  "p2",
		},
		{
			name:  "lead card wins when all others are off-suit and no trump",
			cards: []string{"diamonds-2", "clubs-A", "spades-A", "hearts-A"},
			want:  "p1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trick := make([]PlayedCard, len(tt.cards))
			for i, id := range tt.cards {
				trick[i] = PlayedCard{PlayerID: "p" + string(rune('1'+i)), Card: card(id)}
			}
			got := ResolveTrick(trick, trick[0].Card.Suit, tt.trump)
			if got != tt.want {
				t.Fatalf("ResolveTrick() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolveTrickIgnoresPositionAfterLead(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	trumps := []*Suit{nil, suitPtr(SuitHearts), suitPtr(SuitSpades)}

	for trial := 0; trial < 500; trial++ {
		deck := Shuffle(NewDeck(), rng)
		trick := []PlayedCard{
			{PlayerID: "a", Card: deck[0]},
			{PlayerID: "b", Card: deck[1]},
			{PlayerID: "c", Card: deck[2]},
			{PlayerID: "d", Card: deck[3]},
		}
		trump := trumps[trial%len(trumps)]
		lead := trick[0].Card.Suit
		want := ResolveTrick(trick, lead, trump)

		for perm := 0; perm < 6; perm++ {
			tail := append([]PlayedCard(nil), trick[1:]...)
			rng.Shuffle(len(tail), func(i, j int) { tail[i], tail[j] = tail[j], tail[i] })
			reordered := append([]PlayedCard{trick[0]}, tail...)
			if got := ResolveTrick(reordered, lead, trump); got != want {
				t.Fatalf("trial %d: winner changed from %s to %s after reordering %v", trial, want, got, reordered)
			}
		}
	}
}

func TestResolveTrickOffSuitNeverWins(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	trump := SuitHearts
	for trial := 0; trial < 500; trial++ {
		deck := Shuffle(NewDeck(), rng)
		trick := []PlayedCard{
			{PlayerID: "a", Card: deck[0]},
			{PlayerID: "b", Card: deck[1]},
			{PlayerID: "c", Card: deck[2]},
			{PlayerID: "d", Card: deck[3]},
		}
		lead := trick[0].Card.Suit
		winner := ResolveTrick(trick, lead, &trump)

		var winning Card
		anyTrump := false
		for _, pc := range trick {
			if pc.PlayerID == winner {
				winning = pc.Card
			}
			if pc.Card.Suit == trump {
				anyTrump = true
			}
		}
		if winning.Suit != lead && winning.Suit != trump {
			t.Fatalf("trial %d: off-suit card %s won %v", trial, winning, trick)
		}
		if anyTrump && winning.Suit != trump {
			t.Fatalf("trial %d: non-trump %s beat a trump in %v", trial, winning, trick)
		}
	}
}

func TestResolveTrickPanicsOnContractViolation(t *testing.T) {
	tests := []struct {
		name  string
		trick []PlayedCard
	}{
		{name: "empty", trick: nil},
		{name: "duplicate player", trick: []PlayedCard{
			{PlayerID: "a", Card: card("hearts-2")},
			{PlayerID: "a", Card: card("hearts-3")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatal("expected panic")
				}
			}()
			ResolveTrick(tt.trick, SuitHearts, nil)
		})
	}
}

func TestPhaseCanAdvance(t *testing.T) {
	order := []Phase{PhaseWaiting, PhaseInitialDeal, PhaseBidding, PhaseFinalDeal, PhasePlaying, PhaseFinished}
	for i := 0; i < len(order)-1; i++ {
		if !order[i].CanAdvance(order[i+1]) {
			t.Fatalf("%s -> %s should be allowed", order[i], order[i+1])
		}
	}
	if PhaseWaiting.CanAdvance(PhaseBidding) {
		t.Fatal("skipping a phase should not be allowed")
	}
	if PhaseFinished.CanAdvance(PhaseWaiting) {
		t.Fatal("finished is terminal")
	}
}
