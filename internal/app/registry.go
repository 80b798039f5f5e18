package app

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trickroom/internal/domain"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// Registry is the authoritative in-memory room store. It exclusively owns every Room;
// each room is guarded by its own mutex so mutations of one room are serialized while
// different rooms proceed in parallel. The registry lock is never held while waiting
// on a room lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry

	logger runtime.Logger
	now    func() time.Time
	ties   TiePicker

	rngMu sync.Mutex
	rng   *rand.Rand

	hooksMu   sync.RWMutex
	onDestroy []func(roomID string)
}

type roomEntry struct {
	mu        sync.Mutex
	room      *domain.Room
	destroyed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRand sets the source used for shuffling.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) { r.rng = rng }
}

// WithTiePicker sets the trump tie-break strategy.
func WithTiePicker(p TiePicker) Option {
	return func(r *Registry) { r.ties = p }
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger runtime.Logger, opts ...Option) *Registry {
	r := &Registry{
		rooms:  make(map[string]*roomEntry),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.ties == nil {
		r.ties = NewRandomTiePicker(nil)
	}
	return r
}

// OnDestroy registers fn to run (outside any lock) after a room is destroyed.
func (r *Registry) OnDestroy(fn func(roomID string)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onDestroy = append(r.onDestroy, fn)
}

func (r *Registry) entry(roomID string) *roomEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[roomID]
}

// mutate runs fn with the room locked. When fn asks for destruction the room is
// removed from the registry before the lock is released to waiters.
func (r *Registry) mutate(roomID string, fn func(room *domain.Room) ([]Event, bool, error)) ([]Event, error) {
	e := r.entry(roomID)
	if e == nil {
		return nil, ErrRoomNotFound
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	events, destroy, err := fn(e.room)
	if err == nil {
		e.room.LastActivity = r.now()
	}
	if destroy {
		e.destroyed = true
	}
	e.mu.Unlock()

	if destroy {
		r.remove(roomID, e)
		events = append(events, Event{Kind: EventRoomDestroyed, RoomID: roomID, Payload: RoomDestroyedPayload{RoomID: roomID}})
		r.fireDestroyed(roomID)
	}
	return events, err
}

func (r *Registry) remove(roomID string, e *roomEntry) {
	r.mu.Lock()
	if r.rooms[roomID] == e {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()
	r.logger.Debug("Registry: room %s destroyed", roomID)
}

func (r *Registry) fireDestroyed(roomID string) {
	r.hooksMu.RLock()
	hooks := append([]func(string){}, r.onDestroy...)
	r.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(roomID)
	}
}

// CreateRoom creates an empty waiting room. Creating an existing room is a successful no-op.
func (r *Registry) CreateRoom(roomID string) (bool, []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return false, nil
	}
	r.rooms[roomID] = &roomEntry{room: domain.NewRoom(roomID, r.now())}
	r.logger.Debug("Registry: room %s created", roomID)
	return true, []Event{{Kind: EventRoomCreated, RoomID: roomID, Payload: RoomCreatedPayload{RoomID: roomID}}}
}

// Exists reports whether roomID is live.
func (r *Registry) Exists(roomID string) bool {
	return r.entry(roomID) != nil
}

// RoomIDs lists live rooms in lexical order.
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of the room.
func (r *Registry) Snapshot(roomID string) (*domain.Room, error) {
	e := r.entry(roomID)
	if e == nil {
		return nil, ErrRoomNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

// Touch refreshes the room's activity timestamp.
func (r *Registry) Touch(roomID string) error {
	_, err := r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		return nil, false, nil
	})
	return err
}

// AddPlayer seats a new player. A player already present (same id or display name) is
// returned unchanged together with ErrAlreadyJoined. The first player becomes host.
func (r *Registry) AddPlayer(roomID, name, connID string, isBot bool) (domain.Player, []Event, error) {
	var joined domain.Player
	events, err := r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if existing := findExisting(room, connID, name); existing != nil {
			joined = copyPlayer(existing)
			return nil, false, ErrAlreadyJoined
		}
		if room.Game.Phase != domain.PhaseWaiting {
			return nil, false, ErrWrongPhase
		}
		if len(room.Players) >= domain.MaxPlayers {
			return nil, false, ErrRoomFull
		}

		seats := room.Seats()
		id := connID
		if id == "" {
			id = uuid.NewString()
		}
		p := &domain.Player{
			ID:       id,
			Name:     name,
			Seat:     domain.LowestAvailableSeat(&seats),
			IsHost:   len(room.Players) == 0,
			IsBot:    isBot,
			JoinedAt: r.now(),
		}
		room.Players = append(room.Players, p)
		joined = copyPlayer(p)
		return []Event{{Kind: EventPlayerJoined, RoomID: room.ID, Payload: PlayerJoinedPayload{Player: joined}}}, false, nil
	})
	return joined, events, err
}

// RemovePlayer removes the player whose id (or, failing that, display name) is ref.
// The host role passes to the earliest-joined remaining player; an emptied room is destroyed.
func (r *Registry) RemovePlayer(roomID, ref string) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		idx := playerIndex(room, ref)
		if idx < 0 {
			return nil, false, ErrPlayerNotFound
		}
		gone := room.Players[idx]
		room.Players = append(room.Players[:idx:idx], room.Players[idx+1:]...)

		events := []Event{{Kind: EventPlayerLeft, RoomID: room.ID, Payload: PlayerLeftPayload{PlayerID: gone.ID, Name: gone.Name}}}
		if len(room.Players) == 0 {
			return events, true, nil
		}
		if gone.IsHost {
			room.Players[0].IsHost = true
			events = append(events, Event{Kind: EventHostChanged, RoomID: room.ID, Payload: HostChangedPayload{PlayerID: room.Players[0].ID}})
		}
		events = append(events, r.afterDeparture(room, gone)...)
		return events, false, nil
	})
}

func (r *Registry) afterDeparture(room *domain.Room, gone *domain.Player) []Event {
	g := &room.Game
	switch g.Phase {
	case domain.PhaseInitialDeal:
		if TallyOf(g).Complete(len(room.Players)) {
			return r.resolveTrump(room)
		}
	case domain.PhasePlaying:
		if trickComplete(room) {
			return r.resolveTrick(room)
		}
		if g.CurrentTurn != nil && *g.CurrentTurn == gone.ID {
			next := domain.NextSeatedPlayer(room.Seats(), gone.Seat)
			return []Event{r.setTurn(room, next)}
		}
	}
	return nil
}

// StartGame shuffles a fresh deck and deals the initial five cards to each of exactly four players.
func (r *Registry) StartGame(roomID string) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		switch room.Game.Phase {
		case domain.PhaseWaiting:
		case domain.PhaseFinished:
			return nil, false, ErrWrongPhase
		default:
			return nil, false, ErrAlreadyStarted
		}
		if len(room.Players) != domain.MaxPlayers {
			return nil, false, ErrInvalidPlayerCount
		}

		deck := r.shuffledDeck()
		players := bySeat(room.Players)
		for _, p := range players {
			p.Hand = append([]domain.Card(nil), deck[:domain.InitialHandSize]...)
			deck = deck[domain.InitialHandSize:]
			p.Score = 0
		}
		room.Deck = deck
		room.Epoch++

		g := domain.NewGameState()
		g.VotingEpoch = room.Game.VotingEpoch
		g.Phase = domain.PhaseInitialDeal
		g.Round = 1
		room.Game = g
		TallyOf(&room.Game).Reset()

		return []Event{
			r.phaseEvent(room),
			dealtEvent(room),
		}, false, nil
	})
}

// CastVote records playerID's trump vote. A repeat vote yields ErrAlreadyVoted and changes nothing.
// When every current player has voted the trump is resolved and the phase moves to bidding.
func (r *Registry) CastVote(roomID, playerID string, suit domain.Suit) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if !suit.Valid() {
			return nil, false, ErrBadRequest
		}
		p := findPlayer(room, playerID)
		if p == nil {
			return nil, false, ErrPlayerNotFound
		}
		tally := TallyOf(&room.Game)
		if tally.HasVoted(p.ID) {
			return nil, false, ErrAlreadyVoted
		}
		if room.Game.Phase != domain.PhaseInitialDeal {
			return nil, false, ErrWrongPhase
		}

		tally.Cast(p.ID, suit)
		events := []Event{{Kind: EventTrumpVote, RoomID: room.ID, Payload: TrumpVotePayload{
			PlayerID: p.ID,
			Votes:    tally.Total(),
			Needed:   len(room.Players),
		}}}
		if tally.Complete(len(room.Players)) {
			events = append(events, r.resolveTrump(room)...)
		}
		return events, false, nil
	})
}

func (r *Registry) resolveTrump(room *domain.Room) []Event {
	g := &room.Game
	tally := TallyOf(g)
	leaders := tally.Leaders()
	if len(leaders) == 0 {
		leaders = domain.Suits
	}
	suit := leaders[0]
	if len(leaders) > 1 {
		suit = r.ties.Pick(leaders)
	}
	counts := tally.Counts()

	g.TrumpSuit = &suit
	g.VoteCounts = map[domain.Suit]int{}
	g.Phase = domain.PhaseBidding

	return []Event{
		{Kind: EventTrumpSelected, RoomID: room.ID, Payload: TrumpSelectedPayload{
			Suit:        suit,
			Counts:      counts,
			Tied:        len(leaders) > 1,
			Epoch:       room.Epoch,
			VotingEpoch: g.VotingEpoch,
		}},
		r.phaseEvent(room),
	}
}

// RecordBid stores a bid during the bidding phase. An empty ref attributes the bid to the host.
func (r *Registry) RecordBid(roomID, ref string, bid int) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if room.Game.Phase != domain.PhaseBidding {
			return nil, false, ErrWrongPhase
		}
		var p *domain.Player
		if ref == "" {
			p = room.Host()
		} else {
			p = findPlayer(room, ref)
		}
		if p == nil {
			return nil, false, ErrPlayerNotFound
		}
		room.Game.Bids[p.ID] = bid
		return []Event{{Kind: EventBidPlaced, RoomID: room.ID, Payload: BidPlacedPayload{PlayerID: p.ID, Bid: bid}}}, false, nil
	})
}

// DealRemainingCards deals the rest of the current shuffle once trump is known.
// A non-zero epoch must match the room's epoch.
func (r *Registry) DealRemainingCards(roomID string, epoch uint64) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if epoch != 0 && epoch != room.Epoch {
			return nil, false, ErrStaleEpoch
		}
		if room.Game.TrumpSuit == nil {
			return nil, false, ErrTrumpUnresolved
		}
		if room.Game.Phase != domain.PhaseBidding {
			return nil, false, ErrWrongPhase
		}

		perPlayer := domain.FullHandSize - domain.InitialHandSize
		for _, p := range bySeat(room.Players) {
			n := perPlayer
			if n > len(room.Deck) {
				n = len(room.Deck)
			}
			p.Hand = append(p.Hand, room.Deck[:n]...)
			room.Deck = room.Deck[n:]
		}
		room.Game.Phase = domain.PhaseFinalDeal
		return []Event{r.phaseEvent(room), dealtEvent(room)}, false, nil
	})
}

// BeginPlay moves a fully dealt room into the playing phase; the lowest seat leads.
func (r *Registry) BeginPlay(roomID string, epoch uint64) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if epoch != 0 && epoch != room.Epoch {
			return nil, false, ErrStaleEpoch
		}
		if room.Game.Phase != domain.PhaseFinalDeal {
			return nil, false, ErrWrongPhase
		}
		room.Game.Phase = domain.PhasePlaying
		room.Game.Round = 1
		first := domain.FirstSeatedPlayer(room.Seats())
		return []Event{r.phaseEvent(room), r.setTurn(room, first)}, false, nil
	})
}

// PlayCard plays card from playerID's hand into the current trick. Rejections leave the room untouched.
func (r *Registry) PlayCard(roomID, playerID string, card domain.Card) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		g := &room.Game
		if g.Phase != domain.PhasePlaying {
			return nil, false, ErrWrongPhase
		}
		p := findPlayer(room, playerID)
		if p == nil {
			return nil, false, ErrPlayerNotFound
		}
		if g.CurrentTurn == nil || *g.CurrentTurn != p.ID {
			return nil, false, ErrNotYourTurn
		}
		hand, ok := domain.RemoveCard(p.Hand, card)
		if !ok {
			return nil, false, ErrCardNotInHand
		}

		p.Hand = hand
		if len(g.Trick) == 0 {
			lead := card.Suit
			g.LeadSuit = &lead
		}
		g.Trick = append(g.Trick, domain.PlayedCard{PlayerID: p.ID, Seat: p.Seat, Card: card})
		g.Moves = append(g.Moves, domain.Move{
			Seq:      len(g.Moves) + 1,
			PlayerID: p.ID,
			Card:     card,
			Trick:    g.TricksPlayed + 1,
			At:       r.now(),
		})

		events := []Event{{Kind: EventCardPlayed, RoomID: room.ID, Payload: CardPlayedPayload{
			PlayerID: p.ID,
			Card:     card,
			TrickLen: len(g.Trick),
		}}}
		if trickComplete(room) {
			return append(events, r.resolveTrick(room)...), false, nil
		}
		next := domain.NextSeatedPlayer(room.Seats(), p.Seat)
		return append(events, r.setTurn(room, next)), false, nil
	})
}

func (r *Registry) resolveTrick(room *domain.Room) []Event {
	g := &room.Game
	lead := g.Trick[0].Card.Suit
	if g.LeadSuit != nil {
		lead = *g.LeadSuit
	}
	winnerID := domain.ResolveTrick(g.Trick, lead, g.TrumpSuit)

	winnerSeat := 0
	for _, pc := range g.Trick {
		if pc.PlayerID == winnerID {
			winnerSeat = pc.Seat
		}
	}
	team := domain.TeamForSeat(winnerSeat)
	if p := room.Player(winnerID); p != nil {
		p.Score++
	}
	g.TeamScores[team]++
	g.TricksPlayed++
	trick := g.Trick
	g.Trick = nil
	g.LeadSuit = nil

	events := []Event{{Kind: EventTrickWon, RoomID: room.ID, Payload: TrickWonPayload{
		WinnerID:   winnerID,
		Team:       team,
		Trick:      trick,
		TeamScores: copyScores(g.TeamScores),
	}}}

	if g.TeamScores[team] >= domain.WinningTricks || handsEmpty(room) {
		g.Phase = domain.PhaseFinished
		g.WinningTeam = leadingTeam(g.TeamScores)
		g.CurrentTurn = nil
		return append(events,
			r.phaseEvent(room),
			Event{Kind: EventGameFinished, RoomID: room.ID, Payload: GameFinishedPayload{
				WinningTeam: g.WinningTeam,
				TeamScores:  copyScores(g.TeamScores),
				Epoch:       room.Epoch,
			}},
		)
	}

	g.Round++
	next := winnerID
	if room.Player(winnerID) == nil {
		next = domain.NextSeatedPlayer(room.Seats(), winnerSeat)
	}
	return append(events, r.setTurn(room, next))
}

// ResetRoom returns a room to the waiting phase, keeping its players.
func (r *Registry) ResetRoom(roomID string) ([]Event, error) {
	return r.mutate(roomID, func(room *domain.Room) ([]Event, bool, error) {
		if room.Game.Phase == domain.PhaseWaiting {
			return nil, false, nil
		}
		for _, p := range room.Players {
			p.Hand = nil
			p.Score = 0
		}
		g := domain.NewGameState()
		g.VotingEpoch = room.Game.VotingEpoch
		room.Game = g
		room.Deck = nil
		room.Epoch++
		return []Event{
			{Kind: EventRoomReset, RoomID: room.ID, Payload: RoomResetPayload{RoomID: room.ID, Epoch: room.Epoch}},
			r.phaseEvent(room),
		}, false, nil
	})
}

// Sweep destroys rooms idle for at least timeout and returns their ids.
func (r *Registry) Sweep(timeout time.Duration) []string {
	now := r.now()
	r.mu.RLock()
	entries := make(map[string]*roomEntry, len(r.rooms))
	for id, e := range r.rooms {
		entries[id] = e
	}
	r.mu.RUnlock()

	var removed []string
	for id, e := range entries {
		e.mu.Lock()
		idle := !e.destroyed && now.Sub(e.room.LastActivity) >= timeout
		if idle {
			e.destroyed = true
		}
		e.mu.Unlock()
		if idle {
			r.remove(id, e)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		r.fireDestroyed(id)
	}
	return removed
}

// StartJanitor sweeps idle rooms every interval until ctx is cancelled.
func (r *Registry) StartJanitor(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 || timeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := r.Sweep(timeout); len(removed) > 0 {
					r.logger.Info("Janitor: removed %d idle rooms: %v", len(removed), removed)
				}
			}
		}
	}()
}

func (r *Registry) shuffledDeck() []domain.Card {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return domain.Shuffle(domain.NewDeck(), r.rng)
}

func (r *Registry) phaseEvent(room *domain.Room) Event {
	return Event{Kind: EventPhaseChanged, RoomID: room.ID, Payload: PhaseChangedPayload{
		Phase:       room.Game.Phase,
		Epoch:       room.Epoch,
		VotingEpoch: room.Game.VotingEpoch,
	}}
}

func (r *Registry) setTurn(room *domain.Room, playerID string) Event {
	g := &room.Game
	g.CurrentTurn = &playerID
	g.TurnSeq++
	return Event{Kind: EventTurnChanged, RoomID: room.ID, Payload: TurnChangedPayload{
		PlayerID: playerID,
		TurnSeq:  g.TurnSeq,
		Epoch:    room.Epoch,
	}}
}

func dealtEvent(room *domain.Room) Event {
	sizes := make(map[string]int, len(room.Players))
	for _, p := range room.Players {
		sizes[p.ID] = len(p.Hand)
	}
	return Event{Kind: EventCardsDealt, RoomID: room.ID, Payload: CardsDealtPayload{
		Phase:     room.Game.Phase,
		HandSizes: sizes,
		DeckLeft:  len(room.Deck),
	}}
}

func findExisting(room *domain.Room, connID, name string) *domain.Player {
	if connID != "" {
		if p := room.Player(connID); p != nil {
			return p
		}
	}
	if name != "" {
		return room.PlayerByName(name)
	}
	return nil
}

func findPlayer(room *domain.Room, ref string) *domain.Player {
	if idx := playerIndex(room, ref); idx >= 0 {
		return room.Players[idx]
	}
	return nil
}

func playerIndex(room *domain.Room, ref string) int {
	for i, p := range room.Players {
		if p.ID == ref {
			return i
		}
	}
	for i, p := range room.Players {
		if p.Name == ref {
			return i
		}
	}
	return -1
}

func copyPlayer(p *domain.Player) domain.Player {
	cp := *p
	cp.Hand = append([]domain.Card(nil), p.Hand...)
	return cp
}

func bySeat(players []*domain.Player) []*domain.Player {
	out := append([]*domain.Player(nil), players...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// trickComplete reports whether every seated player has a card in the current trick.
func trickComplete(room *domain.Room) bool {
	if len(room.Game.Trick) == 0 {
		return false
	}
	played := make(map[string]bool, len(room.Game.Trick))
	for _, pc := range room.Game.Trick {
		played[pc.PlayerID] = true
	}
	for _, p := range room.Players {
		if !played[p.ID] {
			return false
		}
	}
	return true
}

func handsEmpty(room *domain.Room) bool {
	for _, p := range room.Players {
		if len(p.Hand) > 0 {
			return false
		}
	}
	return true
}

func leadingTeam(scores map[string]int) string {
	switch {
	case scores[domain.TeamA] > scores[domain.TeamB]:
		return domain.TeamA
	case scores[domain.TeamB] > scores[domain.TeamA]:
		return domain.TeamB
	}
	return "draw"
}

func copyScores(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
