package bot

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/domain"
	"trickroom/internal/ports"
	"trickroom/internal/schedule"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Actor submits bot decisions through the same entry points humans use.
type Actor interface {
	CastVote(ctx context.Context, roomID, playerID string, suit domain.Suit) error
	PlayCard(ctx context.Context, roomID, playerID string, card domain.Card) error
}

// RoomReader reads authoritative room snapshots.
type RoomReader interface {
	Snapshot(roomID string) (*domain.Room, error)
}

// Config tunes bot pacing and play style.
type Config struct {
	MinDelay        time.Duration
	MaxDelay        time.Duration
	Watchdog        time.Duration
	TrumpPreference float64
}

// DefaultConfig returns human-like pacing.
func DefaultConfig() Config {
	return Config{
		MinDelay:        400 * time.Millisecond,
		MaxDelay:        2500 * time.Millisecond,
		Watchdog:        4 * time.Second,
		TrumpPreference: 0.35,
	}
}

type voteKey struct {
	roomID      string
	votingEpoch uint64
}

type playKey struct {
	roomID  string
	epoch   uint64
	turnSeq int
}

// Coordinator drives bots from room broadcasts. It casts at most one vote per bot per
// voting epoch and at most one play per bot turn, however often it is triggered.
type Coordinator struct {
	logger runtime.Logger
	rooms  RoomReader
	actor  Actor
	sched  schedule.Scheduler
	roster *Roster
	cfg    Config

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.Mutex
	scheduled map[voteKey]map[string]bool
	voted     map[voteKey]map[string]bool
	watchdogs map[voteKey]bool
	plays     map[playKey]bool
}

// NewCoordinator wires a coordinator. A nil rng uses a time-seeded source.
func NewCoordinator(logger runtime.Logger, rooms RoomReader, actor Actor, sched schedule.Scheduler, roster *Roster, cfg Config, rng *rand.Rand) *Coordinator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if roster == nil {
		roster = DefaultRoster()
	}
	return &Coordinator{
		logger:    logger,
		rooms:     rooms,
		actor:     actor,
		sched:     sched,
		roster:    roster,
		cfg:       cfg,
		rng:       rng,
		scheduled: make(map[voteKey]map[string]bool),
		voted:     make(map[voteKey]map[string]bool),
		watchdogs: make(map[voteKey]bool),
		plays:     make(map[playKey]bool),
	}
}

// Roster returns the identities this coordinator treats as bots.
func (c *Coordinator) Roster() *Roster { return c.roster }

// OnBroadcast reacts to phase and turn changes.
func (c *Coordinator) OnBroadcast(msg ports.Message) {
	switch app.EventKind(msg.Type) {
	case app.EventPhaseChanged:
		var p app.PhaseChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.logger.Warn("Bots: bad %s payload: %v", msg.Type, err)
			return
		}
		if p.Phase == domain.PhaseInitialDeal {
			c.ScheduleVotes(msg.RoomID, p.VotingEpoch)
		}
	case app.EventTurnChanged:
		var p app.TurnChangedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.logger.Warn("Bots: bad %s payload: %v", msg.Type, err)
			return
		}
		c.SchedulePlay(msg.RoomID, p.PlayerID, p.Epoch, p.TurnSeq)
	case app.EventRoomDestroyed:
		c.Forget(msg.RoomID)
	}
}

// ScheduleVotes queues a staggered vote for every bot that has not voted in votingEpoch,
// plus one watchdog re-check. Repeated calls for the same epoch schedule nothing new.
func (c *Coordinator) ScheduleVotes(roomID string, votingEpoch uint64) {
	room, err := c.rooms.Snapshot(roomID)
	if err != nil || room.Game.Phase != domain.PhaseInitialDeal || room.Game.VotingEpoch != votingEpoch {
		return
	}
	key := voteKey{roomID: roomID, votingEpoch: votingEpoch}

	pending := c.unvotedBots(room)
	c.mu.Lock()
	c.pruneVotes(roomID, votingEpoch)
	if c.scheduled[key] == nil {
		c.scheduled[key] = make(map[string]bool)
	}
	var fresh []string
	for _, id := range pending {
		if !c.scheduled[key][id] && !c.voted[key][id] {
			c.scheduled[key][id] = true
			fresh = append(fresh, id)
		}
	}
	armWatchdog := len(pending) > 0 && !c.watchdogs[key]
	if armWatchdog {
		c.watchdogs[key] = true
	}
	c.mu.Unlock()

	for i, id := range fresh {
		id := id
		c.sched.After(c.staggeredDelay(i, len(fresh)), func() { c.castVote(key, id) })
	}
	if armWatchdog {
		c.sched.After(c.cfg.Watchdog, func() { c.watchdog(key) })
	}
	if len(fresh) > 0 {
		c.logger.Debug("Bots: scheduled %d votes in room %s (voting epoch %d)", len(fresh), roomID, votingEpoch)
	}
}

func (c *Coordinator) watchdog(key voteKey) {
	room, err := c.rooms.Snapshot(key.roomID)
	if err != nil || room.Game.Phase != domain.PhaseInitialDeal || room.Game.VotingEpoch != key.votingEpoch {
		return
	}
	missing := c.unvotedBots(room)
	if len(missing) > 0 {
		c.logger.Info("Bots: watchdog forcing %d votes in room %s", len(missing), key.roomID)
	}
	for _, id := range missing {
		c.castVote(key, id)
	}
}

func (c *Coordinator) castVote(key voteKey, botID string) {
	c.mu.Lock()
	if c.voted[key] == nil {
		c.voted[key] = make(map[string]bool)
	}
	if c.voted[key][botID] {
		c.mu.Unlock()
		return
	}
	c.voted[key][botID] = true
	c.mu.Unlock()

	room, err := c.rooms.Snapshot(key.roomID)
	if err != nil || room.Game.Phase != domain.PhaseInitialDeal || room.Game.VotingEpoch != key.votingEpoch {
		return
	}
	if room.Player(botID) == nil || hasVoted(room, botID) {
		return
	}

	suit := c.pickSuit()
	err = c.actor.CastVote(context.Background(), key.roomID, botID, suit)
	switch {
	case err == nil:
		c.logger.Debug("Bots: %s voted %s in room %s", botID, suit, key.roomID)
	case errors.Is(err, app.ErrAlreadyVoted):
	default:
		c.logger.Warn("Bots: vote by %s in room %s failed: %v", botID, key.roomID, err)
		c.mu.Lock()
		if c.voted[key] != nil {
			delete(c.voted[key], botID)
		}
		c.mu.Unlock()
	}
}

// SchedulePlay queues one card play if playerID is a bot holding the turn identified by (epoch, turnSeq).
func (c *Coordinator) SchedulePlay(roomID, playerID string, epoch uint64, turnSeq int) {
	room, err := c.rooms.Snapshot(roomID)
	if err != nil || room.Game.Phase != domain.PhasePlaying {
		return
	}
	if !c.roster.IsBot(room.Player(playerID)) {
		return
	}
	key := playKey{roomID: roomID, epoch: epoch, turnSeq: turnSeq}

	c.mu.Lock()
	if c.plays[key] {
		c.mu.Unlock()
		return
	}
	for k := range c.plays {
		if k.roomID == roomID && (k.epoch != epoch || k.turnSeq < turnSeq) {
			delete(c.plays, k)
		}
	}
	c.plays[key] = true
	c.mu.Unlock()

	c.sched.After(c.randomDelay(), func() { c.playTurn(key, playerID) })
}

func (c *Coordinator) playTurn(key playKey, botID string) {
	room, err := c.rooms.Snapshot(key.roomID)
	if err != nil {
		return
	}
	g := room.Game
	if g.Phase != domain.PhasePlaying || room.Epoch != key.epoch || g.TurnSeq != key.turnSeq {
		return
	}
	if g.CurrentTurn == nil || *g.CurrentTurn != botID {
		return
	}
	p := room.Player(botID)
	if p == nil {
		return
	}

	c.rngMu.Lock()
	card, ok := ChooseCard(p.Hand, g.LeadSuit, g.TrumpSuit, c.cfg.TrumpPreference, c.rng)
	c.rngMu.Unlock()
	if !ok {
		c.logger.Warn("Bots: %s has no cards on its turn in room %s", botID, key.roomID)
		return
	}
	if err := c.actor.PlayCard(context.Background(), key.roomID, botID, card); err != nil {
		c.logger.Warn("Bots: play by %s in room %s failed: %v", botID, key.roomID, err)
	}
}

// Forget drops all tracking for a destroyed room.
func (c *Coordinator) Forget(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneVotes(roomID, ^uint64(0))
	for k := range c.plays {
		if k.roomID == roomID {
			delete(c.plays, k)
		}
	}
}

// pruneVotes discards tracking for roomID epochs older than keep. Callers hold c.mu.
func (c *Coordinator) pruneVotes(roomID string, keep uint64) {
	for k := range c.scheduled {
		if k.roomID == roomID && k.votingEpoch < keep {
			delete(c.scheduled, k)
		}
	}
	for k := range c.voted {
		if k.roomID == roomID && k.votingEpoch < keep {
			delete(c.voted, k)
		}
	}
	for k := range c.watchdogs {
		if k.roomID == roomID && k.votingEpoch < keep {
			delete(c.watchdogs, k)
		}
	}
}

func (c *Coordinator) unvotedBots(room *domain.Room) []string {
	var out []string
	for _, p := range room.Players {
		if c.roster.IsBot(p) && !hasVoted(room, p.ID) {
			out = append(out, p.ID)
		}
	}
	return out
}

func hasVoted(room *domain.Room, playerID string) bool {
	for _, id := range room.Game.Voted {
		if id == playerID {
			return true
		}
	}
	return false
}

func (c *Coordinator) pickSuit() domain.Suit {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return ChooseSuit(c.rng)
}

func (c *Coordinator) randomDelay() time.Duration {
	span := c.cfg.MaxDelay - c.cfg.MinDelay
	if span <= 0 {
		return c.cfg.MinDelay
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.cfg.MinDelay + time.Duration(c.rng.Int63n(int64(span)))
}

// staggeredDelay spreads n votes over [MinDelay, MaxDelay), one jittered slot per bot.
func (c *Coordinator) staggeredDelay(i, n int) time.Duration {
	span := c.cfg.MaxDelay - c.cfg.MinDelay
	if span <= 0 || n == 0 {
		return c.cfg.MinDelay
	}
	slot := span / time.Duration(n)
	if slot <= 0 {
		return c.cfg.MinDelay
	}
	c.rngMu.Lock()
	jitter := time.Duration(c.rng.Int63n(int64(slot)))
	c.rngMu.Unlock()
	return c.cfg.MinDelay + time.Duration(i)*slot + jitter
}
