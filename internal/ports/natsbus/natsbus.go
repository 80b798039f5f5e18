package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/ports"
	"trickroom/internal/protocol"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/nats-io/nats.go"
)

const (
	// RoomSubjectPrefix prefixes per-room broadcast subjects.
	RoomSubjectPrefix = "trickroom.room."
	// IntentSubject takes request/reply intents.
	IntentSubject = "trickroom.intent"
	// ArchiveSubject receives one message per finished match.
	ArchiveSubject = "trickroom.archive"
)

// Conn is the part of *nats.Conn the bus uses.
type Conn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Connect dials url with reconnects enabled.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
	}
	return nats.Connect(url, opts...)
}

// RoomSubject returns the broadcast subject for roomID. Dots and whitespace would split or
// break the subject, so they are replaced.
func RoomSubject(roomID string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '\n', '\r', '*', '>':
			return '_'
		}
		return r
	}, roomID)
	return RoomSubjectPrefix + clean
}

// Transport publishes room broadcasts on per-room subjects.
type Transport struct {
	conn Conn
}

func NewTransport(conn Conn) *Transport {
	return &Transport{conn: conn}
}

func (t *Transport) Name() string { return "nats" }

func (t *Transport) Publish(ctx context.Context, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	return t.conn.Publish(RoomSubject(msg.RoomID), data)
}

// Archiver publishes finished matches for downstream consumers.
type Archiver struct {
	conn Conn
}

func NewArchiver(conn Conn) *Archiver {
	return &Archiver{conn: conn}
}

func (a *Archiver) Archive(ctx context.Context, rec ports.MatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode match record: %w", err)
	}
	return a.conn.Publish(ArchiveSubject, data)
}

// IntentHandler runs one intent.
type IntentHandler interface {
	Handle(ctx context.Context, caller protocol.Caller, in protocol.Intent) protocol.Response
}

// IntentRequest is the request body on IntentSubject.
type IntentRequest struct {
	ConnID  string          `json:"connId"`
	Token   string          `json:"token"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeIntents answers requests on IntentSubject. The reply is the response body plus its status.
func ServeIntents(conn Conn, logger runtime.Logger, h IntentHandler, timeout time.Duration) (*nats.Subscription, error) {
	return conn.Subscribe(IntentSubject, func(m *nats.Msg) {
		if m.Reply == "" {
			logger.Warn("NATS: dropping intent without reply subject")
			return
		}
		var req IntentRequest
		var resp protocol.Response
		if err := json.Unmarshal(m.Data, &req); err != nil {
			resp = protocol.Failure(fmt.Errorf("%w: %v", app.ErrBadRequest, err))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			resp = h.Handle(ctx, protocol.Caller{ConnID: req.ConnID, Token: req.Token}, protocol.Intent{
				Type:    protocol.IntentType(req.Type),
				Payload: req.Payload,
			})
			cancel()
		}

		data, err := json.Marshal(resp.Envelope())
		if err != nil {
			logger.Error("NATS: failed to encode reply: %v", err)
			return
		}
		if err := conn.Publish(m.Reply, data); err != nil {
			logger.Error("NATS: failed to reply on %s: %v", m.Reply, err)
		}
	})
}

var (
	_ ports.Transport   = (*Transport)(nil)
	_ ports.ArchivePort = (*Archiver)(nil)
)
