package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/broadcast"
	"trickroom/internal/logging"
	"trickroom/internal/ports"
	"trickroom/internal/ports/jwtauth"
	"trickroom/internal/ports/ws"
	"trickroom/internal/protocol"
	"trickroom/internal/schedule"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	router *gin.Engine
	reg    *app.Registry
	gw     *broadcast.Gateway
	hub    *ws.Hub
	auth   *jwtauth.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := app.NewRegistry(logging.Nop())
	gw := broadcast.NewGateway(logging.Nop(), broadcast.DefaultOptions())
	auth := jwtauth.New("secret", "")
	h := protocol.NewHandler(logging.Nop(), reg, gw, protocol.Options{
		Scheduler: schedule.NewManual(),
		Identity:  auth,
	})
	hub := ws.NewHub(logging.Nop(), nil)
	gw.AddTransport(hub)
	router := NewRouter(logging.Nop(), Deps{Intents: h, Feed: gw, Rooms: reg, Subscriber: hub})
	return &fixture{router: router, reg: reg, gw: gw, hub: hub, auth: auth}
}

func (f *fixture) post(t *testing.T, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/intent", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	f.reg.CreateRoom("R1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"rooms":1`) {
		t.Fatalf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestIntentStatusCodes(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"create", `{"type":"room:create","payload":{"roomId":"R1"}}`, http.StatusOK},
		{"join", `{"type":"room:join","payload":{"roomId":"R1","playerName":"ann"}}`, http.StatusOK},
		{"garbage", `{`, http.StatusBadRequest},
		{"unknown", `{"type":"room:explode","payload":{}}`, http.StatusBadRequest},
		{"missing room", `{"type":"game:ready","payload":{"roomId":"nope"}}`, http.StatusNotFound},
		{"too few players", `{"type":"game:ready","payload":{"roomId":"R1"}}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := f.post(t, tt.body, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%v)", w.Code, tt.want, body)
			}
		})
	}
}

func TestIntentAssignsConnectionID(t *testing.T) {
	f := newFixture(t)
	w, body := f.post(t, `{"type":"room:join","payload":{"roomId":"R1","playerName":"ann"}}`, nil)
	connID := w.Header().Get(ConnHeader)
	if connID == "" {
		t.Fatalf("no connection id header")
	}
	player := body["player"].(map[string]any)
	if player["id"] != connID {
		t.Fatalf("player id = %v, want conn id %s", player["id"], connID)
	}

	w, body = f.post(t, `{"type":"room:join","payload":{"roomId":"R1","playerName":"ann"}}`, map[string]string{ConnHeader: connID})
	if w.Code != http.StatusOK || body["alreadyDone"] != true {
		t.Fatalf("rejoin = %d %v", w.Code, body)
	}
}

func TestIntentBearerTokenIdentity(t *testing.T) {
	f := newFixture(t)
	token, err := f.auth.Issue("user-7", "Grace", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, body := f.post(t, `{"type":"room:join","payload":{"roomId":"R1"}}`, map[string]string{"Authorization": "Bearer " + token})
	player := body["player"].(map[string]any)
	if player["id"] != "user-7" || player["name"] != "Grace" {
		t.Fatalf("player = %v", player)
	}

	w, _ := f.post(t, `{"type":"room:join","payload":{"roomId":"R1"}}`, map[string]string{"Authorization": "Bearer junk"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad token status = %d", w.Code)
	}
}

func TestPollReturnsBufferedBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.post(t, `{"type":"room:join","payload":{"roomId":"R1","playerName":"ann"}}`, nil)

	get := func(query string) (int, map[string]any) {
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/poll?"+query, nil))
		var out map[string]any
		json.Unmarshal(w.Body.Bytes(), &out)
		return w.Code, out
	}

	code, body := get("roomId=R1")
	msgs := body["messages"].([]any)
	if code != http.StatusOK || len(msgs) == 0 {
		t.Fatalf("poll = %d %v", code, body)
	}
	types := map[string]bool{}
	for _, m := range msgs {
		types[m.(map[string]any)["type"].(string)] = true
	}
	if !types[string(app.EventPlayerJoined)] || !types[protocol.MessageRoomState] {
		t.Fatalf("poll types = %v", types)
	}

	future := strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10)
	_, body = get("roomId=R1&since=" + future)
	if n := len(body["messages"].([]any)); n != 0 {
		t.Fatalf("future since returned %d messages", n)
	}

	if code, _ := get("since=1"); code != http.StatusBadRequest {
		t.Fatalf("missing roomId status = %d", code)
	}
	if code, _ := get("roomId=R1&since=yesterday"); code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", code)
	}
}

func TestWebsocketSubscription(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?roomId=R1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("hello: %v", err)
	}

	f.gw.Broadcast(t.Context(), "R1", "game:phase", map[string]string{"phase": "playing"})
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg ports.Message
		json.Unmarshal(frame, &msg)
		if msg.Type == "game:phase" {
			break
		}
	}
}

func TestBearer(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
	}
	for in, want := range tests {
		if got := bearer(in); got != want {
			t.Fatalf("bearer(%q) = %q, want %q", in, got, want)
		}
	}
}
