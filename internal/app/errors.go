package app

import "errors"

// Kind classifies errors for the protocol layer.
type Kind string

const (
	KindBadRequest        Kind = "bad_request"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindAlreadyDone       Kind = "already_done"
	KindTransportDegraded Kind = "transport_degraded"
	KindInternal          Kind = "internal"
)

var (
	ErrBadRequest         = errors.New("malformed request")
	ErrUnknownIntent      = errors.New("unknown intent")
	ErrRoomNotFound       = errors.New("room not found")
	ErrPlayerNotFound     = errors.New("player not found")
	ErrRoomFull           = errors.New("room is full")
	ErrWrongPhase         = errors.New("action not allowed in the current phase")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrCardNotInHand      = errors.New("card not in hand")
	ErrInvalidPlayerCount = errors.New("exactly 4 players are required to start")
	ErrTrumpUnresolved    = errors.New("trump suit has not been resolved")
	ErrStaleEpoch         = errors.New("room epoch changed since the transition was scheduled")
	ErrAlreadyVoted       = errors.New("player already voted")
	ErrAlreadyJoined      = errors.New("player already joined")
	ErrAlreadyStarted     = errors.New("game already started")
	ErrTransportDegraded  = errors.New("broadcast transport degraded")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrBadRequest, KindBadRequest},
	{ErrUnknownIntent, KindBadRequest},
	{ErrRoomNotFound, KindNotFound},
	{ErrPlayerNotFound, KindNotFound},
	{ErrRoomFull, KindConflict},
	{ErrWrongPhase, KindConflict},
	{ErrNotYourTurn, KindConflict},
	{ErrCardNotInHand, KindConflict},
	{ErrInvalidPlayerCount, KindConflict},
	{ErrTrumpUnresolved, KindConflict},
	{ErrStaleEpoch, KindConflict},
	{ErrAlreadyVoted, KindAlreadyDone},
	{ErrAlreadyJoined, KindAlreadyDone},
	{ErrAlreadyStarted, KindAlreadyDone},
	{ErrTransportDegraded, KindTransportDegraded},
}

// KindOf maps err (possibly wrapped) to its taxonomy kind.
// Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
