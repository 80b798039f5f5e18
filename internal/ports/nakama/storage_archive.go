package nakama

import (
	"context"
	"encoding/json"
	"fmt"

	"trickroom/internal/ports"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// StorageModule is the part of runtime.NakamaModule the archive adapter uses.
type StorageModule interface {
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// NakamaStorageArchive writes finished matches to Nakama storage as system-owned, publicly readable objects.
type NakamaStorageArchive struct {
	nk StorageModule
}

// NewNakamaStorageArchive creates a new archive adapter.
func NewNakamaStorageArchive(nk StorageModule) *NakamaStorageArchive {
	return &NakamaStorageArchive{nk: nk}
}

func (a *NakamaStorageArchive) Archive(ctx context.Context, rec ports.MatchRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal match record: %w", err)
	}
	writes := []*runtime.StorageWrite{
		{
			Collection:      MatchHistoryCollection,
			Key:             matchKey(rec),
			Value:           string(value),
			PermissionRead:  runtime.STORAGE_PERMISSION_PUBLIC_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	}
	if _, err := a.nk.StorageWrite(ctx, writes); err != nil {
		return fmt.Errorf("failed to archive match %s: %w", matchKey(rec), err)
	}
	return nil
}

func matchKey(rec ports.MatchRecord) string {
	return fmt.Sprintf("%s-%d", rec.RoomID, rec.Epoch)
}

var _ ports.ArchivePort = (*NakamaStorageArchive)(nil)
