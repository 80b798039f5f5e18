package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/bot"
	"trickroom/internal/domain"
	"trickroom/internal/ports"
	"trickroom/internal/schedule"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Broadcaster publishes room messages. Delivery problems are never reported back.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID, msgType string, payload any) bool
}

// Options wires optional collaborators and pacing.
type Options struct {
	// VoteToDealDelay and DealToPlayDelay pace the automatic phase advances after trump is chosen.
	VoteToDealDelay time.Duration
	DealToPlayDelay time.Duration
	Scheduler       schedule.Scheduler
	Identity        ports.IdentityPort
	Archives        []ports.ArchivePort
	ArchiveTimeout  time.Duration
	Roster          *bot.Roster
	Now             func() time.Time
}

type handlerFunc func(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error)

// Handler maps intents onto the room registry and broadcasts the outcome.
type Handler struct {
	logger runtime.Logger
	rooms  *app.Registry
	out    Broadcaster
	opts   Options
	routes map[IntentType]handlerFunc
}

// NewHandler builds the dispatch table once.
func NewHandler(logger runtime.Logger, rooms *app.Registry, out Broadcaster, opts Options) *Handler {
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.Timers{}
	}
	if opts.Roster == nil {
		opts.Roster = bot.DefaultRoster()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ArchiveTimeout <= 0 {
		opts.ArchiveTimeout = 10 * time.Second
	}
	h := &Handler{logger: logger, rooms: rooms, out: out, opts: opts}
	h.routes = map[IntentType]handlerFunc{
		IntentCreateRoom:   h.createRoom,
		IntentJoinRoom:     h.joinRoom,
		IntentPlayerJoined: h.joinRoom,
		IntentLeaveRoom:    h.leaveRoom,
		IntentReady:        h.startGame,
		IntentSelectTrump:  h.selectTrump,
		IntentPlayCard:     h.playCard,
		IntentBid:          h.placeBid,
		IntentRequestState: h.requestState,
		IntentAddBot:       h.addBot,
		IntentResetRoom:    h.resetRoom,
	}
	return h
}

// Intents lists every accepted intent type in lexical order.
func (h *Handler) Intents() []IntentType {
	out := make([]IntentType, 0, len(h.routes))
	for t := range h.routes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HandleJSON decodes a raw envelope and handles it.
func (h *Handler) HandleJSON(ctx context.Context, caller Caller, body []byte) Response {
	var in Intent
	if err := json.Unmarshal(body, &in); err != nil {
		return respond(nil, fmt.Errorf("%w: %v", app.ErrBadRequest, err))
	}
	return h.Handle(ctx, caller, in)
}

// Handle runs one intent and returns the response envelope.
func (h *Handler) Handle(ctx context.Context, caller Caller, in Intent) Response {
	fn, ok := h.routes[in.Type]
	if !ok {
		if in.Type == "" {
			return respond(nil, fmt.Errorf("%w: type is required", app.ErrBadRequest))
		}
		return respond(nil, fmt.Errorf("%w: %q", app.ErrUnknownIntent, in.Type))
	}
	data, err := fn(ctx, caller, in.Payload)
	if err != nil {
		kind := app.KindOf(err)
		switch kind {
		case app.KindAlreadyDone:
			h.logger.Debug("Intent %s: already done: %v", in.Type, err)
		case app.KindInternal:
			h.logger.Error("Intent %s failed: %v", in.Type, err)
		default:
			h.logger.Debug("Intent %s rejected (%s): %v", in.Type, kind, err)
		}
	}
	return respond(data, err)
}

func (h *Handler) createRoom(ctx context.Context, _ Caller, raw json.RawMessage) (map[string]any, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	created, evs := h.rooms.CreateRoom(p.RoomID)
	h.publish(ctx, p.RoomID, evs)
	return h.withRoom(p.RoomID, map[string]any{"roomId": p.RoomID, "created": created})
}

func (h *Handler) joinRoom(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error) {
	var p joinPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}

	token := firstNonEmpty(caller.Token, p.Token)
	if caller.UserID == "" && token != "" && h.opts.Identity != nil {
		id, err := h.opts.Identity.Resolve(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", app.ErrBadRequest, err)
		}
		caller.UserID, caller.DisplayName = id.UserID, id.DisplayName
	}
	name := firstNonEmpty(p.PlayerName, caller.DisplayName)
	if err := required(name, "playerName"); err != nil {
		return nil, err
	}
	connID := firstNonEmpty(caller.UserID, p.PlayerID, caller.ConnID)
	isBot := p.IsBot || h.opts.Roster.IsReservedName(name)

	var (
		player domain.Player
		evs    []app.Event
		err    error
	)
	// The room may be destroyed between create and add; one retry covers that window.
	for attempt := 0; attempt < 2; attempt++ {
		_, createdEvs := h.rooms.CreateRoom(p.RoomID)
		h.publish(ctx, p.RoomID, createdEvs)
		player, evs, err = h.rooms.AddPlayer(p.RoomID, name, connID, isBot)
		if !errors.Is(err, app.ErrRoomNotFound) {
			break
		}
	}
	if err != nil && !errors.Is(err, app.ErrAlreadyJoined) {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)

	data, snapErr := h.withRoom(p.RoomID, map[string]any{"player": player})
	if snapErr != nil {
		return nil, snapErr
	}
	return data, err
}

func (h *Handler) leaveRoom(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error) {
	var p leavePayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	ref := firstNonEmpty(p.PlayerID, p.PlayerName, caller.UserID)
	if err := required(ref, "playerName"); err != nil {
		return nil, err
	}
	evs, err := h.rooms.RemovePlayer(p.RoomID, ref)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)
	return map[string]any{"roomId": p.RoomID, "roomDestroyed": !h.rooms.Exists(p.RoomID)}, nil
}

func (h *Handler) startGame(ctx context.Context, _ Caller, raw json.RawMessage) (map[string]any, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	evs, err := h.rooms.StartGame(p.RoomID)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)
	return h.withRoom(p.RoomID, nil)
}

func (h *Handler) selectTrump(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error) {
	var p trumpPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	if err := required(p.Suit, "suit"); err != nil {
		return nil, err
	}
	suit, err := domain.ParseSuit(p.Suit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrBadRequest, err)
	}
	voter := firstNonEmpty(p.PlayerID, p.BotID, caller.UserID)
	if err := required(voter, "playerId"); err != nil {
		return nil, err
	}
	if err := h.CastVote(ctx, p.RoomID, voter, suit); err != nil {
		return nil, err
	}
	return h.withRoom(p.RoomID, nil)
}

func (h *Handler) playCard(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error) {
	var p playPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	player := firstNonEmpty(p.PlayerID, caller.UserID)
	if err := required(player, "playerId"); err != nil {
		return nil, err
	}
	if p.Card == nil || !p.Card.Valid() {
		return nil, fmt.Errorf("%w: card is required", app.ErrBadRequest)
	}
	if err := h.PlayCard(ctx, p.RoomID, player, *p.Card); err != nil {
		return nil, err
	}
	return h.withRoom(p.RoomID, nil)
}

func (h *Handler) placeBid(ctx context.Context, caller Caller, raw json.RawMessage) (map[string]any, error) {
	var p bidPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	if p.Bid == nil {
		return nil, fmt.Errorf("%w: bid is required", app.ErrBadRequest)
	}
	if *p.Bid < 0 || *p.Bid > MaxBid {
		return nil, fmt.Errorf("%w: bid must be between 0 and %d", app.ErrBadRequest, MaxBid)
	}
	evs, err := h.rooms.RecordBid(p.RoomID, firstNonEmpty(p.PlayerID, caller.UserID), *p.Bid)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)
	return h.withRoom(p.RoomID, nil)
}

func (h *Handler) requestState(ctx context.Context, _ Caller, raw json.RawMessage) (map[string]any, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	created, evs := h.rooms.CreateRoom(p.RoomID)
	if !created {
		if err := h.rooms.Touch(p.RoomID); err != nil {
			return nil, err
		}
	}
	h.publish(ctx, p.RoomID, evs)
	if !created {
		h.broadcastState(ctx, p.RoomID)
	}
	return h.withRoom(p.RoomID, map[string]any{"created": created})
}

func (h *Handler) addBot(ctx context.Context, _ Caller, raw json.RawMessage) (map[string]any, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	room, err := h.rooms.Snapshot(p.RoomID)
	if err != nil {
		return nil, err
	}
	if len(room.Players) >= domain.MaxPlayers {
		return nil, app.ErrRoomFull
	}
	identity, ok := h.opts.Roster.NextFree(room)
	if !ok {
		return nil, fmt.Errorf("%w: no free bot identity", app.ErrRoomFull)
	}
	player, evs, err := h.rooms.AddPlayer(p.RoomID, identity.DisplayName, identity.UserID, true)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)
	return h.withRoom(p.RoomID, map[string]any{"player": player})
}

func (h *Handler) resetRoom(ctx context.Context, _ Caller, raw json.RawMessage) (map[string]any, error) {
	var p roomPayload
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if err := required(p.RoomID, "roomId"); err != nil {
		return nil, err
	}
	evs, err := h.rooms.ResetRoom(p.RoomID)
	if err != nil {
		return nil, err
	}
	h.publish(ctx, p.RoomID, evs)
	return h.withRoom(p.RoomID, nil)
}

// CastVote records a trump vote and publishes the outcome. Bots vote through here too.
func (h *Handler) CastVote(ctx context.Context, roomID, playerID string, suit domain.Suit) error {
	evs, err := h.rooms.CastVote(roomID, playerID, suit)
	if err != nil {
		return err
	}
	h.publish(ctx, roomID, evs)
	return nil
}

// PlayCard plays a card and publishes the outcome. Bots play through here too.
func (h *Handler) PlayCard(ctx context.Context, roomID, playerID string, card domain.Card) error {
	evs, err := h.rooms.PlayCard(roomID, playerID, card)
	if err != nil {
		return err
	}
	h.publish(ctx, roomID, evs)
	return nil
}

// publish broadcasts evs followed by a fresh room snapshot, then starts any follow-up work the events call for.
func (h *Handler) publish(ctx context.Context, roomID string, evs []app.Event) {
	if len(evs) == 0 {
		return
	}
	destroyed := false
	for _, ev := range evs {
		h.out.Broadcast(ctx, ev.RoomID, string(ev.Kind), ev.Payload)
		if ev.Kind == app.EventRoomDestroyed {
			destroyed = true
		}
	}
	if !destroyed {
		h.broadcastState(ctx, roomID)
	}

	for _, ev := range evs {
		switch payload := ev.Payload.(type) {
		case app.TrumpSelectedPayload:
			h.scheduleDeal(ev.RoomID, payload.Epoch)
		case app.GameFinishedPayload:
			h.archive(ev.RoomID, payload.Epoch)
		}
	}
}

func (h *Handler) broadcastState(ctx context.Context, roomID string) {
	room, err := h.rooms.Snapshot(roomID)
	if err != nil {
		return
	}
	h.out.Broadcast(ctx, roomID, MessageRoomState, room)
}

// scheduleDeal deals the rest of the shuffle and then opens play, each step after its delay.
// Both steps are bound to epoch so a reset or destroyed room turns them into no-ops.
func (h *Handler) scheduleDeal(roomID string, epoch uint64) {
	h.opts.Scheduler.After(h.opts.VoteToDealDelay, func() {
		evs, err := h.rooms.DealRemainingCards(roomID, epoch)
		if err != nil {
			h.logger.Debug("Phase: skipped final deal for room %s (epoch %d): %v", roomID, epoch, err)
			return
		}
		h.publish(context.Background(), roomID, evs)

		h.opts.Scheduler.After(h.opts.DealToPlayDelay, func() {
			evs, err := h.rooms.BeginPlay(roomID, epoch)
			if err != nil {
				h.logger.Debug("Phase: skipped start of play for room %s (epoch %d): %v", roomID, epoch, err)
				return
			}
			h.publish(context.Background(), roomID, evs)
		})
	})
}

// archive hands the finished match to every archive port off the caller's goroutine.
func (h *Handler) archive(roomID string, epoch uint64) {
	if len(h.opts.Archives) == 0 {
		return
	}
	room, err := h.rooms.Snapshot(roomID)
	if err != nil || room.Epoch != epoch || room.Game.Phase != domain.PhaseFinished {
		return
	}
	rec := ports.NewMatchRecord(room, h.opts.Now())
	for _, a := range h.opts.Archives {
		go func(a ports.ArchivePort) {
			ctx, cancel := context.WithTimeout(context.Background(), h.opts.ArchiveTimeout)
			defer cancel()
			if err := a.Archive(ctx, rec); err != nil {
				h.logger.Error("Archive: room %s epoch %d: %v", roomID, epoch, err)
			}
		}(a)
	}
}

func (h *Handler) withRoom(roomID string, data map[string]any) (map[string]any, error) {
	room, err := h.rooms.Snapshot(roomID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	data["room"] = room
	return data, nil
}
