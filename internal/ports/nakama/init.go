package nakama

import (
	"context"
	"database/sql"

	"trickroom/internal/config"
	"trickroom/internal/engine"
	"trickroom/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule builds the game engine on top of Nakama streams, accounts and storage and registers the RPCs.
// Settings come from TRICKROOM_* keys in the runtime environment.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	cfg, err := config.FromLookup(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	if err != nil {
		return err
	}

	streams := NewNakamaStreamTransport(nk)
	accounts := NewNakamaAccountAdapter(nk)
	eng, err := engine.New(logger, cfg, engine.Extras{
		Transports: []ports.Transport{streams},
		Archives:   []ports.ArchivePort{NewNakamaStorageArchive(nk)},
	})
	if err != nil {
		return err
	}
	eng.Start(context.Background())

	if err := NewRPCService(eng.Handler, eng.Gateway, accounts, streams).Register(initializer); err != nil {
		return err
	}

	logger.Info("Trickroom Go module loaded.")
	return nil
}
