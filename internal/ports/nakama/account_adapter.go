package nakama

import (
	"context"
	"fmt"

	"trickroom/internal/ports"

	"github.com/heroiclabs/nakama-common/api"
)

// AccountModule is the part of runtime.NakamaModule the identity adapter uses.
type AccountModule interface {
	AccountGetId(ctx context.Context, userID string) (*api.Account, error)
}

// NakamaAccountAdapter implements ports.IdentityPort using Nakama's account API.
// The credential is the Nakama user id.
type NakamaAccountAdapter struct {
	nk AccountModule
}

// NewNakamaAccountAdapter creates a new account adapter.
func NewNakamaAccountAdapter(nk AccountModule) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk}
}

// Resolve looks up userID and prefers the display name, then the username.
func (a *NakamaAccountAdapter) Resolve(ctx context.Context, userID string) (ports.Identity, error) {
	if userID == "" {
		return ports.Identity{}, ports.ErrUnauthenticated
	}
	account, err := a.nk.AccountGetId(ctx, userID)
	if err != nil {
		return ports.Identity{}, fmt.Errorf("%w: %v", ports.ErrUnauthenticated, err)
	}
	user := account.GetUser()
	if user == nil || user.GetId() == "" {
		return ports.Identity{}, ports.ErrUnauthenticated
	}
	name := user.GetDisplayName()
	if name == "" {
		name = user.GetUsername()
	}
	return ports.Identity{UserID: user.GetId(), DisplayName: name}, nil
}

var _ ports.IdentityPort = (*NakamaAccountAdapter)(nil)
