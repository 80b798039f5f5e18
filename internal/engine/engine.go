package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"trickroom/internal/app"
	"trickroom/internal/bot"
	"trickroom/internal/broadcast"
	"trickroom/internal/config"
	"trickroom/internal/ports"
	"trickroom/internal/protocol"
	"trickroom/internal/schedule"

	"github.com/heroiclabs/nakama-common/runtime"
)

// Extras are the host-specific adapters plugged into the engine.
type Extras struct {
	Identity   ports.IdentityPort
	Archives   []ports.ArchivePort
	Transports []ports.Transport
	Scheduler  schedule.Scheduler
	Rand       *rand.Rand
}

// Engine is one fully wired game service: registry, gateway, protocol handler and bots.
type Engine struct {
	Config  config.Config
	Rooms   *app.Registry
	Gateway *broadcast.Gateway
	Handler *protocol.Handler
	// Bots is nil when bots are disabled.
	Bots *bot.Coordinator

	logger runtime.Logger
}

// New assembles the service from cfg. Nothing runs until Start.
func New(logger runtime.Logger, cfg config.Config, ex Extras) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ex.Scheduler == nil {
		ex.Scheduler = schedule.Timers{}
	}
	if ex.Rand == nil {
		ex.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	roster := bot.DefaultRoster()
	if cfg.BotIdentitiesPath != "" {
		loaded, err := bot.LoadRoster(cfg.BotIdentitiesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load bot identities: %w", err)
		}
		roster = loaded
	}

	rooms := app.NewRegistry(logger, app.WithRand(rand.New(rand.NewSource(ex.Rand.Int63()))))
	gw := broadcast.NewGateway(logger, broadcast.Options{
		DedupWindow:    config.Millis(cfg.DedupWindowMs),
		Retention:      config.Millis(cfg.PendingRetentionMs),
		PublishTimeout: config.Millis(cfg.TransportTimeoutMs),
	})
	for _, t := range ex.Transports {
		gw.AddTransport(t)
	}

	handler := protocol.NewHandler(logger, rooms, gw, protocol.Options{
		VoteToDealDelay: config.Millis(cfg.VoteToDealDelayMs),
		DealToPlayDelay: config.Millis(cfg.DealToPlayDelayMs),
		Scheduler:       ex.Scheduler,
		Identity:        ex.Identity,
		Archives:        ex.Archives,
		Roster:          roster,
	})

	e := &Engine{Config: cfg, Rooms: rooms, Gateway: gw, Handler: handler, logger: logger}
	rooms.OnDestroy(gw.ForgetRoom)

	if cfg.BotsEnabled {
		e.Bots = bot.NewCoordinator(logger, rooms, handler, ex.Scheduler, roster, bot.Config{
			MinDelay:        config.Millis(cfg.BotMinDelayMs),
			MaxDelay:        config.Millis(cfg.BotMaxDelayMs),
			Watchdog:        config.Millis(cfg.BotWatchdogMs),
			TrumpPreference: cfg.BotTrumpPreference,
		}, rand.New(rand.NewSource(ex.Rand.Int63())))
		gw.AddListener(e.Bots)
		rooms.OnDestroy(e.Bots.Forget)
	}
	return e, nil
}

// Start runs the idle-room janitor and the broadcast buffer pruner until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	interval := config.Millis(e.Config.JanitorIntervalMs)
	e.Rooms.StartJanitor(ctx, interval, config.Millis(e.Config.RoomInactivityTimeoutMs))
	if interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					e.Gateway.Prune()
				}
			}
		}()
	}
	e.logger.Info("Engine started (bots enabled: %v, vote-to-deal %dms, deal-to-play %dms)",
		e.Bots != nil, e.Config.VoteToDealDelayMs, e.Config.DealToPlayDelayMs)
}
