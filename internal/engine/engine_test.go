package engine

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trickroom/internal/config"
	"trickroom/internal/domain"
	"trickroom/internal/logging"
	"trickroom/internal/protocol"
	"trickroom/internal/schedule"
)

func intent(t *testing.T, e *Engine, typ protocol.IntentType, payload map[string]any) protocol.Response {
	t.Helper()
	raw, _ := json.Marshal(payload)
	return e.Handler.Handle(context.Background(), protocol.Caller{}, protocol.Intent{Type: typ, Payload: raw})
}

func TestBotsPlayAWholeGame(t *testing.T) {
	sched := schedule.NewManual()
	e, err := New(logging.Nop(), config.Default(), Extras{Scheduler: sched, Rand: rand.New(rand.NewSource(5))})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.Bots == nil {
		t.Fatalf("bots are enabled by default")
	}

	intent(t, e, protocol.IntentCreateRoom, map[string]any{"roomId": "R1"})
	for i := 0; i < domain.MaxPlayers; i++ {
		if resp := intent(t, e, protocol.IntentAddBot, map[string]any{"roomId": "R1"}); !resp.OK() {
			t.Fatalf("add bot %d: %v", i, resp.Body)
		}
	}
	if resp := intent(t, e, protocol.IntentReady, map[string]any{"roomId": "R1"}); !resp.OK() {
		t.Fatalf("ready: %v", resp.Body)
	}

	sched.RunAll(1000)

	room, err := e.Rooms.Snapshot("R1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if room.Game.Phase != domain.PhaseFinished {
		t.Fatalf("phase = %s, pending = %d", room.Game.Phase, sched.Pending())
	}
	if room.Game.TeamScores[room.Game.WinningTeam] < domain.WinningTricks {
		t.Fatalf("scores = %v winner = %s", room.Game.TeamScores, room.Game.WinningTeam)
	}
}

func TestBotsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.BotsEnabled = false
	e, err := New(logging.Nop(), cfg, Extras{Scheduler: schedule.NewManual()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if e.Bots != nil {
		t.Fatalf("coordinator built with bots disabled")
	}
}

func TestDestroyKeepsBroadcastBuffer(t *testing.T) {
	e, err := New(logging.Nop(), config.Default(), Extras{Scheduler: schedule.NewManual()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	intent(t, e, protocol.IntentJoinRoom, map[string]any{"roomId": "R1", "playerName": "ann"})
	before := e.Gateway.Pending("R1", time.Time{})
	if len(before) == 0 {
		t.Fatalf("nothing buffered for a live room")
	}
	intent(t, e, protocol.IntentLeaveRoom, map[string]any{"roomId": "R1", "playerName": "ann"})
	if e.Rooms.Exists("R1") {
		t.Fatalf("room survived its last leave")
	}

	after := e.Gateway.Pending("R1", time.Time{})
	ids := make(map[string]bool, len(after))
	types := make(map[string]bool, len(after))
	for _, m := range after {
		ids[m.ID] = true
		types[m.Type] = true
	}
	for _, m := range before {
		if !ids[m.ID] {
			t.Fatalf("%s (%s) dropped from the buffer on destroy", m.Type, m.ID)
		}
	}
	if !types["player:left"] || !types["room:destroyed"] {
		t.Fatalf("buffer after destroy = %v", types)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BotMinDelayMs, cfg.BotMaxDelayMs = 10, 1
	if _, err := New(logging.Nop(), cfg, Extras{}); err == nil {
		t.Fatalf("expected validation error")
	}

	cfg = config.Default()
	cfg.BotIdentitiesPath = filepath.Join(t.TempDir(), "missing.json")
	if _, err := New(logging.Nop(), cfg, Extras{}); err == nil {
		t.Fatalf("expected roster load error")
	}
}

func TestCustomRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.json")
	os.WriteFile(path, []byte(`[{"user_id":"b-1","display_name":"Robo One"}]`), 0o600)
	cfg := config.Default()
	cfg.BotIdentitiesPath = path
	e, err := New(logging.Nop(), cfg, Extras{Scheduler: schedule.NewManual()})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	intent(t, e, protocol.IntentCreateRoom, map[string]any{"roomId": "R1"})
	resp := intent(t, e, protocol.IntentAddBot, map[string]any{"roomId": "R1"})
	if !resp.OK() {
		t.Fatalf("add bot: %v", resp.Body)
	}
	if p := resp.Body["player"].(domain.Player); p.ID != "b-1" || p.Name != "Robo One" || !p.IsBot {
		t.Fatalf("bot = %+v", p)
	}
	if resp := intent(t, e, protocol.IntentAddBot, map[string]any{"roomId": "R1"}); resp.OK() {
		t.Fatalf("second bot added from a one-entry roster")
	}
}
