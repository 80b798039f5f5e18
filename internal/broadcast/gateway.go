package broadcast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/ports"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	DefaultDedupWindow    = 5 * time.Second
	DefaultRetention      = 5 * time.Minute
	DefaultPublishTimeout = 3 * time.Second
)

// Listener observes every delivered broadcast in-process, before transports run.
// Listeners must not block; long work belongs on a scheduler.
type Listener interface {
	OnBroadcast(msg ports.Message)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(msg ports.Message)

func (f ListenerFunc) OnBroadcast(msg ports.Message) { f(msg) }

// Options tune the gateway. Zero DedupWindow disables deduplication.
type Options struct {
	DedupWindow    time.Duration
	Retention      time.Duration
	PublishTimeout time.Duration
	Now            func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		DedupWindow:    DefaultDedupWindow,
		Retention:      DefaultRetention,
		PublishTimeout: DefaultPublishTimeout,
	}
}

type seenEntry struct {
	roomID string
	at     time.Time
}

// Gateway fans room messages out to listeners and transports, suppressing repeats
// and keeping a time-bounded replay buffer per room. Transport failures are logged
// and never reported to the caller.
type Gateway struct {
	logger runtime.Logger
	opts   Options

	mu      sync.Mutex
	seen    map[string]seenEntry
	pending map[string][]ports.Message

	subsMu     sync.RWMutex
	listeners  []Listener
	transports []ports.Transport
}

// NewGateway creates a gateway with no subscribers.
func NewGateway(logger runtime.Logger, opts Options) *Gateway {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	return &Gateway{
		logger:  logger,
		opts:    opts,
		seen:    make(map[string]seenEntry),
		pending: make(map[string][]ports.Message),
	}
}

// AddListener registers an in-process listener.
func (g *Gateway) AddListener(l Listener) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	g.listeners = append(g.listeners, l)
}

// AddTransport registers a delivery transport.
func (g *Gateway) AddTransport(t ports.Transport) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	g.transports = append(g.transports, t)
}

// Broadcast delivers payload as a msgType message for roomID. It reports false when the
// message was suppressed as a duplicate or could not be encoded; transport trouble still reports true.
func (g *Gateway) Broadcast(ctx context.Context, roomID, msgType string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("Broadcast: failed to encode %s for room %s: %v", msgType, roomID, err)
		return false
	}

	now := g.opts.Now()
	msg := ports.Message{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Type:      msgType,
		Payload:   raw,
		Timestamp: now,
	}

	if !g.record(msg, fingerprint(roomID, msgType, raw), now) {
		g.logger.Debug("Broadcast: suppressed duplicate %s for room %s", msgType, roomID)
		return false
	}

	g.subsMu.RLock()
	listeners := append([]Listener(nil), g.listeners...)
	transports := append([]ports.Transport(nil), g.transports...)
	g.subsMu.RUnlock()

	for _, l := range listeners {
		l.OnBroadcast(msg)
	}
	if err := g.publish(ctx, transports, msg); err != nil {
		g.logger.WithFields(map[string]interface{}{
			"room": msg.RoomID,
			"type": msg.Type,
			"kind": string(app.KindOf(err)),
		}).Warn("Broadcast: %v", err)
	}
	return true
}

// record applies deduplication and appends msg to the pending buffer.
func (g *Gateway) record(msg ports.Message, fp string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.opts.DedupWindow > 0 {
		if prev, ok := g.seen[fp]; ok && now.Sub(prev.at) < g.opts.DedupWindow {
			return false
		}
		for k, e := range g.seen {
			if now.Sub(e.at) >= g.opts.DedupWindow {
				delete(g.seen, k)
			}
		}
		g.seen[fp] = seenEntry{roomID: msg.RoomID, at: now}
	}

	buf := g.pending[msg.RoomID]
	cut := 0
	for cut < len(buf) && now.Sub(buf[cut].Timestamp) >= g.opts.Retention {
		cut++
	}
	g.pending[msg.RoomID] = append(buf[cut:], msg)
	return true
}

// publish runs every transport under the publish timeout and joins their failures,
// each wrapped with app.ErrTransportDegraded.
func (g *Gateway) publish(ctx context.Context, transports []ports.Transport, msg ports.Message) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, t := range transports {
		wg.Add(1)
		go func(t ports.Transport) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, g.opts.PublishTimeout)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- t.Publish(pctx, msg) }()

			var err error
			select {
			case err = <-done:
			case <-pctx.Done():
				err = pctx.Err()
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%w: %s: %w", app.ErrTransportDegraded, t.Name(), err))
				mu.Unlock()
			}
		}(t)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Pending returns the unexpired messages for roomID newer than since, oldest first.
// A zero since returns the whole buffer. Reads never remove entries.
func (g *Gateway) Pending(roomID string, since time.Time) []ports.Message {
	now := g.opts.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []ports.Message
	for _, m := range g.pending[roomID] {
		if now.Sub(m.Timestamp) >= g.opts.Retention {
			continue
		}
		if !since.IsZero() && !m.Timestamp.After(since) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ForgetRoom drops the dedup history of a destroyed room so a recreated room with the
// same id is not suppressed. Buffered messages stay until they expire.
func (g *Gateway) ForgetRoom(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, e := range g.seen {
		if e.roomID == roomID {
			delete(g.seen, k)
		}
	}
}

// Prune drops expired buffers and dedup entries for every room and reports how many
// rooms no longer hold any buffered message.
func (g *Gateway) Prune() int {
	now := g.opts.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	for k, e := range g.seen {
		if now.Sub(e.at) >= g.opts.DedupWindow {
			delete(g.seen, k)
		}
	}
	emptied := 0
	for roomID, buf := range g.pending {
		cut := 0
		for cut < len(buf) && now.Sub(buf[cut].Timestamp) >= g.opts.Retention {
			cut++
		}
		if cut == len(buf) {
			delete(g.pending, roomID)
			emptied++
			continue
		}
		g.pending[roomID] = buf[cut:]
	}
	return emptied
}

func fingerprint(roomID, msgType string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(roomID))
	h.Write([]byte{0})
	h.Write([]byte(msgType))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
