package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trickroom/internal/logging"
	"trickroom/internal/ports"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, onIntent IntentFunc) (*Hub, string) {
	t.Helper()
	hub := NewHub(logging.Nop(), onIntent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := hub.Serve(w, r, r.URL.Query().Get("roomId")); err != nil {
			t.Logf("serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, roomID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?roomId="+roomID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	var hello map[string]string
	readJSON(t, conn, &hello)
	if hello["type"] != "connection:ready" || hello["roomId"] != roomID || hello["connId"] == "" {
		t.Fatalf("hello = %v", hello)
	}
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(frame, v); err != nil {
		t.Fatalf("decode %s: %v", frame, err)
	}
}

func TestPublishReachesOnlyRoomSubscribers(t *testing.T) {
	hub, url := startHub(t, nil)
	a := dial(t, url, "R1")
	b := dial(t, url, "R2")

	if n := hub.Subscribers("R1"); n != 1 {
		t.Fatalf("R1 subscribers = %d", n)
	}
	msg := ports.Message{ID: "m1", RoomID: "R1", Type: "game:phase", Payload: json.RawMessage(`{"phase":"playing"}`)}
	if err := hub.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got ports.Message
	readJSON(t, a, &got)
	if got.ID != "m1" || got.Type != "game:phase" || string(got.Payload) != `{"phase":"playing"}` {
		t.Fatalf("got = %+v", got)
	}

	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, frame, err := b.ReadMessage(); err == nil {
		t.Fatalf("R2 subscriber received %s", frame)
	}
}

func TestInboundFramesGetReplies(t *testing.T) {
	seen := make(chan string, 1)
	_, url := startHub(t, func(_ context.Context, connID string, frame []byte) []byte {
		seen <- connID
		out, _ := json.Marshal(map[string]string{"echo": string(frame)})
		return out
	})
	conn := dial(t, url, "R1")
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var reply map[string]string
	readJSON(t, conn, &reply)
	if reply["echo"] != "ping" {
		t.Fatalf("reply = %v", reply)
	}
	if id := <-seen; id == "" {
		t.Fatalf("handler saw no connection id")
	}
}

func TestDisconnectUnsubscribes(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url, "R1")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("R1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber still registered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseRoomDisconnects(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url, "R1")
	hub.CloseRoom("R1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after CloseRoom")
	}
	if hub.Subscribers("R1") != 0 {
		t.Fatalf("room still has subscribers")
	}
}

func TestRoomDestroyedIsLastFrame(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url, "R1")
	other := dial(t, url, "R2")

	hub.Publish(context.Background(), ports.Message{ID: "m1", RoomID: "R1", Type: "player:left"})
	hub.Publish(context.Background(), ports.Message{ID: "m2", RoomID: "R1", Type: "room:destroyed"})

	var got ports.Message
	readJSON(t, conn, &got)
	if got.Type != "player:left" {
		t.Fatalf("first frame = %s", got.Type)
	}
	readJSON(t, conn, &got)
	if got.Type != "room:destroyed" {
		t.Fatalf("second frame = %s", got.Type)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection stayed open after room:destroyed")
	}
	if hub.Subscribers("R1") != 0 || hub.Subscribers("R2") != 1 {
		t.Fatalf("subscribers R1=%d R2=%d", hub.Subscribers("R1"), hub.Subscribers("R2"))
	}

	hub.Publish(context.Background(), ports.Message{ID: "m3", RoomID: "R2", Type: "room:state"})
	readJSON(t, other, &got)
	if got.ID != "m3" {
		t.Fatalf("other room frame = %+v", got)
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	hub := NewHub(logging.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hub.Publish(ctx, ports.Message{RoomID: "R1"}); err == nil {
		t.Fatalf("expected context error")
	}
}
