package db

import (
	"context"
	"database/sql"
)

// PlayerStoreAdapter feeds identity-lookup results into the players cache.
// It exists so the EOS client can persist what it resolves without knowing
// about this package.
type PlayerStoreAdapter struct {
	DB *sql.DB
}

func (a *PlayerStoreAdapter) UpsertPlayer(ctx context.Context, puid, accountID, platform, displayName string) error {
	return UpsertPlayer(ctx, a.DB, Player{
		PUID:        puid,
		AccountID:   accountID,
		Platform:    platform,
		DisplayName: displayName,
	})
}
