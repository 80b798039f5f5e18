package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"trickroom/internal/ports"
	"trickroom/internal/protocol"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sentStream struct {
	mode  uint8
	label string
	data  string
}

type streamJoin struct {
	label, userID, sessionID string
}

// fakeNakama overrides the module calls the adapters make; anything else panics on the nil embed.
type fakeNakama struct {
	runtime.NakamaModule

	mu       sync.Mutex
	sent     []sentStream
	joins    []streamJoin
	writes   []*runtime.StorageWrite
	accounts map[string]*api.Account
	sendErr  error
}

func newFakeNakama() *fakeNakama {
	return &fakeNakama{accounts: map[string]*api.Account{}}
}

func (f *fakeNakama) StreamSend(mode uint8, subject, subcontext, label, data string, presences []runtime.Presence, reliable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentStream{mode: mode, label: label, data: data})
	return nil
}

func (f *fakeNakama) StreamUserJoin(mode uint8, subject, subcontext, label, userID, sessionID string, hidden, persistence bool, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, streamJoin{label: label, userID: userID, sessionID: sessionID})
	return true, nil
}

func (f *fakeNakama) AccountGetId(ctx context.Context, userID string) (*api.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.accounts[userID]
	if !ok {
		return nil, errors.New("account not found")
	}
	return acc, nil
}

func (f *fakeNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writes...)
	return nil, nil
}

func (f *fakeNakama) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		var env map[string]interface{}
		json.Unmarshal([]byte(s.data), &env)
		out = append(out, env["type"].(string))
	}
	return out
}

type fakeInitializer struct {
	runtime.Initializer
	rpcs map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error)
}

func (f *fakeInitializer) RegisterRpc(id string, fn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)) error {
	f.rpcs[id] = fn
	return nil
}

func userCtx(userID, username, sessionID string) context.Context {
	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, userID)
	ctx = context.WithValue(ctx, runtime.RUNTIME_CTX_USERNAME, username)
	return context.WithValue(ctx, runtime.RUNTIME_CTX_SESSION_ID, sessionID)
}

func TestStreamTransportEnvelope(t *testing.T) {
	nk := newFakeNakama()
	tr := NewNakamaStreamTransport(nk)
	msg := ports.Message{
		ID:        "m1",
		RoomID:    "R1",
		Type:      "trick:won",
		Payload:   json.RawMessage(`{"winnerId":"p1","teamScores":{"A":1,"B":0}}`),
		Timestamp: time.UnixMilli(1_700_000_000_123),
	}
	if err := tr.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(nk.sent) != 1 || nk.sent[0].mode != StreamModeRoom || nk.sent[0].label != "R1" {
		t.Fatalf("sent = %+v", nk.sent)
	}

	var env struct {
		ID        string                 `json:"id"`
		Type      string                 `json:"type"`
		Timestamp float64                `json:"timestamp"`
		Payload   map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(nk.sent[0].data), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.ID != "m1" || env.Type != "trick:won" || env.Payload["winnerId"] != "p1" {
		t.Fatalf("envelope = %+v", env)
	}
	if int64(env.Timestamp) != 1_700_000_000_123 {
		t.Fatalf("timestamp = %v", env.Timestamp)
	}

	nk.sendErr = errors.New("stream closed")
	if err := tr.Publish(context.Background(), msg); err == nil {
		t.Fatalf("expected stream error")
	}
}

func TestAccountAdapterResolve(t *testing.T) {
	nk := newFakeNakama()
	nk.accounts["u1"] = &api.Account{User: &api.User{Id: "u1", Username: "ann42", DisplayName: "Ann"}}
	nk.accounts["u2"] = &api.Account{User: &api.User{Id: "u2", Username: "bob7"}}
	a := NewNakamaAccountAdapter(nk)

	tests := []struct {
		userID   string
		wantName string
		wantErr  bool
	}{
		{"u1", "Ann", false},
		{"u2", "bob7", false},
		{"missing", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		id, err := a.Resolve(context.Background(), tt.userID)
		if tt.wantErr {
			if !errors.Is(err, ports.ErrUnauthenticated) {
				t.Fatalf("Resolve(%q) err = %v", tt.userID, err)
			}
			continue
		}
		if err != nil || id.DisplayName != tt.wantName || id.UserID != tt.userID {
			t.Fatalf("Resolve(%q) = %+v, %v", tt.userID, id, err)
		}
	}
}

func TestStorageArchiveWritesRecord(t *testing.T) {
	nk := newFakeNakama()
	rec := ports.MatchRecord{RoomID: "R1", Epoch: 2, WinningTeam: "B", TeamScores: map[string]int{"A": 3, "B": 7}}
	if err := NewNakamaStorageArchive(nk).Archive(context.Background(), rec); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(nk.writes) != 1 {
		t.Fatalf("writes = %d", len(nk.writes))
	}
	w := nk.writes[0]
	if w.Collection != MatchHistoryCollection || w.Key != "R1-2" || w.UserID != "" {
		t.Fatalf("write = %+v", w)
	}
	if w.PermissionRead != runtime.STORAGE_PERMISSION_PUBLIC_READ || w.PermissionWrite != runtime.STORAGE_PERMISSION_NO_WRITE {
		t.Fatalf("permissions = %d/%d", w.PermissionRead, w.PermissionWrite)
	}
	var decoded ports.MatchRecord
	if err := json.Unmarshal([]byte(w.Value), &decoded); err != nil || decoded.WinningTeam != "B" {
		t.Fatalf("value = %s (%v)", w.Value, err)
	}
}

func TestInitModuleServesIntentsOverRPC(t *testing.T) {
	nk := newFakeNakama()
	nk.accounts["u1"] = &api.Account{User: &api.User{Id: "u1", Username: "ann42", DisplayName: "Ann"}}
	ini := &fakeInitializer{rpcs: map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){}}

	env := map[string]string{"TRICKROOM_BOTS_ENABLED": "false", "TRICKROOM_JANITOR_INTERVAL_MS": "0"}
	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_ENV, env)
	if err := InitModule(ctx, noopLogger{}, nil, nk, ini); err != nil {
		t.Fatalf("init: %v", err)
	}
	intentRPC, pollRPC := ini.rpcs[RpcIntent], ini.rpcs[RpcPoll]
	if intentRPC == nil || pollRPC == nil {
		t.Fatalf("registered rpcs = %v", ini.rpcs)
	}

	out, err := intentRPC(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{"type":"room:join","payload":{"roomId":"R1"}}`)
	if err != nil {
		t.Fatalf("join rpc: %v", err)
	}
	var resp map[string]interface{}
	json.Unmarshal([]byte(out), &resp)
	if resp["status"] != float64(200) {
		t.Fatalf("join response = %v", resp)
	}
	player := resp["player"].(map[string]interface{})
	if player["id"] != "u1" || player["name"] != "Ann" {
		t.Fatalf("player = %v", player)
	}
	if len(nk.joins) != 1 || nk.joins[0] != (streamJoin{label: "R1", userID: "u1", sessionID: "s1"}) {
		t.Fatalf("stream joins = %+v", nk.joins)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(strings.Join(nk.sentTypes(), ","), "player:joined") {
		if time.Now().After(deadline) {
			t.Fatalf("no player:joined on the stream: %v", nk.sentTypes())
		}
		time.Sleep(10 * time.Millisecond)
	}

	out, err = intentRPC(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{"type":"game:ready","payload":{"roomId":"R1"}}`)
	if err != nil {
		t.Fatalf("ready rpc: %v", err)
	}
	json.Unmarshal([]byte(out), &resp)
	if resp["status"] != float64(409) {
		t.Fatalf("ready with one player = %v", resp)
	}

	if _, err := intentRPC(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{`); err == nil {
		t.Fatalf("expected invalid payload error")
	}

	out, err = pollRPC(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{"roomId":"R1"}`)
	if err != nil {
		t.Fatalf("poll rpc: %v", err)
	}
	var polled struct {
		Messages []ports.Message `json:"messages"`
	}
	json.Unmarshal([]byte(out), &polled)
	if len(polled.Messages) == 0 {
		t.Fatalf("poll returned nothing")
	}
	if _, err := pollRPC(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{}`); err == nil {
		t.Fatalf("expected roomId error")
	}
}

type acceptAll struct{}

func (acceptAll) Handle(context.Context, protocol.Caller, protocol.Intent) protocol.Response {
	return protocol.Response{Status: 200, Body: map[string]any{"success": true}}
}

func TestJoinWithoutRoomSkipsStream(t *testing.T) {
	nk := newFakeNakama()
	svc := NewRPCService(acceptAll{}, nil, nil, NewNakamaStreamTransport(nk))
	for _, payload := range []string{
		`{"type":"room:join","payload":{"playerName":"ann"}}`,
		`{"type":"room:join","payload":"R1"}`,
	} {
		if _, err := svc.RpcIntent(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, payload); err != nil {
			t.Fatalf("rpc %s: %v", payload, err)
		}
	}
	if len(nk.joins) != 0 {
		t.Fatalf("stream joins = %+v", nk.joins)
	}

	if _, err := svc.RpcIntent(userCtx("u1", "ann42", "s1"), noopLogger{}, nil, nk, `{"type":"room:join","payload":{"roomId":"R1"}}`); err != nil {
		t.Fatalf("rpc: %v", err)
	}
	if len(nk.joins) != 1 || nk.joins[0].label != "R1" {
		t.Fatalf("stream joins = %+v", nk.joins)
	}
}

func TestInitModuleRejectsBadEnv(t *testing.T) {
	env := map[string]string{"TRICKROOM_DEDUP_WINDOW_MS": "soon"}
	ctx := context.WithValue(context.Background(), runtime.RUNTIME_CTX_ENV, env)
	ini := &fakeInitializer{rpcs: map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){}}
	if err := InitModule(ctx, noopLogger{}, nil, newFakeNakama(), ini); err == nil {
		t.Fatalf("expected config error")
	}
}
