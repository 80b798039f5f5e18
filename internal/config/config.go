package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRICKROOM_"

// DefaultPath is read when TRICKROOM_CONFIG is unset.
const DefaultPath = "data/config.json"

// Config is the process configuration. Durations are milliseconds.
type Config struct {
	HTTPAddr  string `json:"http_addr"`
	NATSURL   string `json:"nats_url"`
	LogLevel  string `json:"log_level"`
	LogJSON   bool   `json:"log_json"`
	JWTSecret string `json:"jwt_secret"`

	RoomInactivityTimeoutMs int64 `json:"room_inactivity_timeout_ms"`
	JanitorIntervalMs       int64 `json:"janitor_interval_ms"`
	DedupWindowMs           int64 `json:"dedup_window_ms"`
	PendingRetentionMs      int64 `json:"pending_retention_ms"`
	TransportTimeoutMs      int64 `json:"transport_timeout_ms"`
	VoteToDealDelayMs       int64 `json:"vote_to_deal_delay_ms"`
	DealToPlayDelayMs       int64 `json:"deal_to_play_delay_ms"`

	BotsEnabled        bool    `json:"bots_enabled"`
	BotMinDelayMs      int64   `json:"bot_min_delay_ms"`
	BotMaxDelayMs      int64   `json:"bot_max_delay_ms"`
	BotWatchdogMs      int64   `json:"bot_watchdog_ms"`
	BotTrumpPreference float64 `json:"bot_trump_preference"`
	BotIdentitiesPath  string  `json:"bot_identities_path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:                ":8080",
		LogLevel:                "info",
		RoomInactivityTimeoutMs: int64(30 * time.Minute / time.Millisecond),
		JanitorIntervalMs:       int64(time.Minute / time.Millisecond),
		DedupWindowMs:           5000,
		PendingRetentionMs:      int64(5 * time.Minute / time.Millisecond),
		TransportTimeoutMs:      3000,
		VoteToDealDelayMs:       1500,
		DealToPlayDelayMs:       2000,
		BotsEnabled:             true,
		BotMinDelayMs:           400,
		BotMaxDelayMs:           2500,
		BotWatchdogMs:           4000,
		BotTrumpPreference:      0.35,
	}
}

// Load builds the configuration: defaults, then the JSON file at path (skipped when absent),
// then the given .env files (skipped when absent) merged into the environment, then TRICKROOM_* variables.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var present []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) > 0 {
		if err := godotenv.Load(present...); err != nil {
			return Config{}, fmt.Errorf("failed to load env files: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromLookup builds the configuration from defaults and TRICKROOM_* keys found by lookup.
// Hosts that carry their own environment map, such as the Nakama runtime, use it instead of Load.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PathFromEnv returns TRICKROOM_CONFIG or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv(EnvPrefix + "CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"HTTP_ADDR":           &c.HTTPAddr,
		"NATS_URL":            &c.NATSURL,
		"LOG_LEVEL":           &c.LogLevel,
		"JWT_SECRET":          &c.JWTSecret,
		"BOT_IDENTITIES_PATH": &c.BotIdentitiesPath,
	}
	ints := map[string]*int64{
		"ROOM_INACTIVITY_TIMEOUT_MS": &c.RoomInactivityTimeoutMs,
		"JANITOR_INTERVAL_MS":        &c.JanitorIntervalMs,
		"DEDUP_WINDOW_MS":            &c.DedupWindowMs,
		"PENDING_RETENTION_MS":       &c.PendingRetentionMs,
		"TRANSPORT_TIMEOUT_MS":       &c.TransportTimeoutMs,
		"VOTE_TO_DEAL_DELAY_MS":      &c.VoteToDealDelayMs,
		"DEAL_TO_PLAY_DELAY_MS":      &c.DealToPlayDelayMs,
		"BOT_MIN_DELAY_MS":           &c.BotMinDelayMs,
		"BOT_MAX_DELAY_MS":           &c.BotMaxDelayMs,
		"BOT_WATCHDOG_MS":            &c.BotWatchdogMs,
	}
	bools := map[string]*bool{
		"LOG_JSON":     &c.LogJSON,
		"BOTS_ENABLED": &c.BotsEnabled,
	}

	for k, dst := range str {
		if v, ok := lookup(EnvPrefix + k); ok {
			*dst = v
		}
	}
	for k, dst := range ints {
		if v, ok := lookup(EnvPrefix + k); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, k, err)
			}
			*dst = n
		}
	}
	for k, dst := range bools {
		if v, ok := lookup(EnvPrefix + k); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, k, err)
			}
			*dst = b
		}
	}
	if v, ok := lookup(EnvPrefix + "BOT_TRUMP_PREFERENCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %sBOT_TRUMP_PREFERENCE: %w", EnvPrefix, err)
		}
		c.BotTrumpPreference = f
	}
	return nil
}

// Validate rejects negative durations and inconsistent bot settings.
func (c Config) Validate() error {
	durations := map[string]int64{
		"room_inactivity_timeout_ms": c.RoomInactivityTimeoutMs,
		"janitor_interval_ms":        c.JanitorIntervalMs,
		"dedup_window_ms":            c.DedupWindowMs,
		"pending_retention_ms":       c.PendingRetentionMs,
		"transport_timeout_ms":       c.TransportTimeoutMs,
		"vote_to_deal_delay_ms":      c.VoteToDealDelayMs,
		"deal_to_play_delay_ms":      c.DealToPlayDelayMs,
		"bot_min_delay_ms":           c.BotMinDelayMs,
		"bot_max_delay_ms":           c.BotMaxDelayMs,
		"bot_watchdog_ms":            c.BotWatchdogMs,
	}
	for name, v := range durations {
		if v < 0 {
			return fmt.Errorf("config: %s must not be negative (got %d)", name, v)
		}
	}
	if c.BotMinDelayMs > c.BotMaxDelayMs {
		return fmt.Errorf("config: bot_min_delay_ms (%d) exceeds bot_max_delay_ms (%d)", c.BotMinDelayMs, c.BotMaxDelayMs)
	}
	if c.BotTrumpPreference < 0 || c.BotTrumpPreference > 1 {
		return fmt.Errorf("config: bot_trump_preference must be within [0,1] (got %v)", c.BotTrumpPreference)
	}
	return nil
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }
