package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trickroom/internal/config"
	"trickroom/internal/engine"
	"trickroom/internal/logging"
	"trickroom/internal/ports"
	"trickroom/internal/ports/httpapi"
	"trickroom/internal/ports/jwtauth"
	"trickroom/internal/ports/natsbus"
	"trickroom/internal/ports/ws"
	"trickroom/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(config.PathFromEnv(), ".env")
	if err != nil {
		logging.New("error", os.Stderr, false).Error("Config: %v", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, os.Stdout, cfg.LogJSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var eng *engine.Engine
	hub := ws.NewHub(logger, func(ctx context.Context, connID string, frame []byte) []byte {
		resp := eng.Handler.HandleJSON(ctx, protocol.Caller{ConnID: connID}, frame)
		out, _ := json.Marshal(resp.Envelope())
		return out
	})

	extras := engine.Extras{Transports: []ports.Transport{hub}}
	if cfg.JWTSecret != "" {
		extras.Identity = jwtauth.New(cfg.JWTSecret, "")
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = natsbus.Connect(cfg.NATSURL, "trickroom")
		if err != nil {
			logger.Error("NATS: failed to connect to %s: %v", cfg.NATSURL, err)
			os.Exit(1)
		}
		extras.Transports = append(extras.Transports, natsbus.NewTransport(nc))
		extras.Archives = append(extras.Archives, natsbus.NewArchiver(nc))
	}

	eng, err = engine.New(logger, cfg, extras)
	if err != nil {
		logger.Error("Engine: %v", err)
		os.Exit(1)
	}
	eng.Start(ctx)

	if nc != nil {
		if _, err := natsbus.ServeIntents(nc, logger, eng.Handler, config.Millis(cfg.TransportTimeoutMs)); err != nil {
			logger.Error("NATS: failed to subscribe to intents: %v", err)
			os.Exit(1)
		}
		logger.Info("NATS: serving intents on %s", natsbus.IntentSubject)
	}

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(logger, httpapi.Deps{
			Intents:    eng.Handler,
			Feed:       eng.Gateway,
			Rooms:      eng.Rooms,
			Subscriber: hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP: listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP: shutdown: %v", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("NATS: drain: %v", err)
		}
	}
}
