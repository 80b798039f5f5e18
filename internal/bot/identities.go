package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"trickroom/internal/domain"
)

// Identity is an automated player profile.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// ReservedNames are display names that always denote an automated player,
// even when a join arrives without the bot flag.
var ReservedNames = []string{"AI North", "AI East", "AI South", "AI West", "Bot", "Computer"}

// Roster holds the known bot identities. Safe for concurrent use.
type Roster struct {
	mu         sync.RWMutex
	identities []Identity
	names      map[string]bool
	ids        map[string]bool
}

// DefaultRoster seats the four compass bots as bot-1..bot-4.
func DefaultRoster() *Roster {
	var ids []Identity
	for i, name := range ReservedNames[:domain.MaxPlayers] {
		ids = append(ids, Identity{UserID: fmt.Sprintf("bot-%d", i+1), DisplayName: name})
	}
	return NewRoster(ids)
}

// NewRoster builds a roster from identities. Reserved names are always recognised.
func NewRoster(identities []Identity) *Roster {
	r := &Roster{
		names: make(map[string]bool),
		ids:   make(map[string]bool),
	}
	for _, name := range ReservedNames {
		r.names[normalize(name)] = true
	}
	for i, id := range identities {
		if id.UserID == "" {
			id.UserID = fmt.Sprintf("bot-%d", i+1)
		}
		r.identities = append(r.identities, id)
		r.ids[id.UserID] = true
		if id.DisplayName != "" {
			r.names[normalize(id.DisplayName)] = true
		}
	}
	return r
}

// LoadRoster reads a JSON array of identities from path.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bot identities: %w", err)
	}
	var identities []Identity
	if err := json.Unmarshal(data, &identities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bot identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("bot identities file %s is empty", path)
	}
	return NewRoster(identities), nil
}

// IsReservedName reports whether name belongs to an automated player.
func (r *Roster) IsReservedName(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[normalize(name)]
}

// IsBot reports whether p is automated: flagged explicitly, or carrying a bot id or reserved name.
func (r *Roster) IsBot(p *domain.Player) bool {
	if p == nil {
		return false
	}
	if p.IsBot {
		return true
	}
	r.mu.RLock()
	known := r.ids[p.ID]
	r.mu.RUnlock()
	return known || r.IsReservedName(p.Name)
}

// NextFree returns the first identity whose id and display name are not used in room.
func (r *Roster) NextFree(room *domain.Room) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.identities {
		if room.Player(id.UserID) != nil || room.PlayerByName(id.DisplayName) != nil {
			continue
		}
		return id, true
	}
	return Identity{}, false
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
