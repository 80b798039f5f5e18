package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/ports"
	"trickroom/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
)

// ConnHeader lets polling clients keep a stable connection id across requests.
const ConnHeader = "X-Conn-Id"

const maxIntentBody = 64 << 10

// IntentHandler runs a raw intent envelope.
type IntentHandler interface {
	HandleJSON(ctx context.Context, caller protocol.Caller, body []byte) protocol.Response
}

// Feed serves buffered broadcasts to polling clients.
type Feed interface {
	Pending(roomID string, since time.Time) []ports.Message
}

// RoomLister reports live rooms for health checks.
type RoomLister interface {
	RoomIDs() []string
}

// Subscriber upgrades a request into a live room subscription.
type Subscriber interface {
	Serve(w http.ResponseWriter, r *http.Request, roomID string) (string, error)
}

// Deps are the collaborators behind the HTTP surface. Subscriber may be nil.
type Deps struct {
	Intents    IntentHandler
	Feed       Feed
	Rooms      RoomLister
	Subscriber Subscriber
	Now        func() time.Time
}

type server struct {
	logger runtime.Logger
	deps   Deps
}

// NewRouter builds the gin engine for intents, polling, websocket upgrades and health.
func NewRouter(logger runtime.Logger, deps Deps) *gin.Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &server{logger: logger, deps: deps}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.GET("/healthz", s.health)
	r.POST("/intent", s.intent)
	r.GET("/poll", s.poll)
	if deps.Subscriber != nil {
		r.GET("/ws", s.subscribe)
	}
	return r
}

func (s *server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(map[string]interface{}{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

func (s *server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.deps.Rooms != nil {
		body["rooms"] = len(s.deps.Rooms.RoomIDs())
	}
	c.JSON(http.StatusOK, body)
}

func (s *server) intent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIntentBody+1))
	if err != nil || len(body) > maxIntentBody {
		resp := protocol.Failure(fmt.Errorf("%w: unreadable or oversized body", app.ErrBadRequest))
		c.JSON(resp.Status, resp.Body)
		return
	}

	connID := c.GetHeader(ConnHeader)
	if connID == "" {
		connID = uuid.NewString()
	}
	c.Header(ConnHeader, connID)
	caller := protocol.Caller{ConnID: connID, Token: bearer(c.GetHeader("Authorization"))}

	resp := s.deps.Intents.HandleJSON(c.Request.Context(), caller, body)
	c.JSON(resp.Status, resp.Body)
}

// poll returns buffered broadcasts for roomId newer than since (unix milliseconds).
func (s *server) poll(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		resp := protocol.Failure(fmt.Errorf("%w: roomId is required", app.ErrBadRequest))
		c.JSON(resp.Status, resp.Body)
		return
	}
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			resp := protocol.Failure(fmt.Errorf("%w: since must be unix milliseconds", app.ErrBadRequest))
			c.JSON(resp.Status, resp.Body)
			return
		}
		since = time.UnixMilli(ms)
	}

	messages := s.deps.Feed.Pending(roomID, since)
	if messages == nil {
		messages = []ports.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"roomId":   roomID,
		"messages": messages,
		"now":      s.deps.Now().UnixMilli(),
	})
}

func (s *server) subscribe(c *gin.Context) {
	roomID := c.Query("roomId")
	if roomID == "" {
		resp := protocol.Failure(fmt.Errorf("%w: roomId is required", app.ErrBadRequest))
		c.JSON(resp.Status, resp.Body)
		return
	}
	if _, err := s.deps.Subscriber.Serve(c.Writer, c.Request, roomID); err != nil {
		s.logger.Warn("HTTP: websocket upgrade for room %s failed: %v", roomID, err)
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
