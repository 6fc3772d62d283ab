// Copyright 2024-2026 Aiku AI

package database

import (
	"context"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

type RoomUpgradeQuery struct {
	*dbutil.QueryHelper[*RoomUpgrade]
}

// RoomUpgrade is a tombstoned room waiting for the bridge to land in its
// replacement. There is at most one per old room.
type RoomUpgrade struct {
	NewRoomID id.RoomID
	OldRoomID id.RoomID
}

const (
	getRoomUpgradeBaseQuery  = `SELECT new_room_id, old_room_id FROM room_upgrade_pending `
	getRoomUpgradeByNewQuery = getRoomUpgradeBaseQuery + `WHERE new_room_id=$1`
	getRoomUpgradeByOldQuery = getRoomUpgradeBaseQuery + `WHERE old_room_id=$1`
	upsertRoomUpgradeQuery   = `
		INSERT INTO room_upgrade_pending (new_room_id, old_room_id) VALUES ($1, $2)
		ON CONFLICT (old_room_id) DO UPDATE SET new_room_id=excluded.new_room_id
	`
	deleteRoomUpgradeByOldQuery = `DELETE FROM room_upgrade_pending WHERE old_room_id=$1`
)

func (ruq *RoomUpgradeQuery) GetByNewRoom(ctx context.Context, newRoom id.RoomID) (*RoomUpgrade, error) {
	return ruq.QueryOne(ctx, getRoomUpgradeByNewQuery, newRoom)
}

func (ruq *RoomUpgradeQuery) GetByOldRoom(ctx context.Context, oldRoom id.RoomID) (*RoomUpgrade, error) {
	return ruq.QueryOne(ctx, getRoomUpgradeByOldQuery, oldRoom)
}

// Upsert records a pending upgrade, replacing any earlier one for the old room.
func (ruq *RoomUpgradeQuery) Upsert(ctx context.Context, ru *RoomUpgrade) error {
	return ruq.Exec(ctx, upsertRoomUpgradeQuery, ru.NewRoomID, ru.OldRoomID)
}

func (ruq *RoomUpgradeQuery) DeleteByOldRoom(ctx context.Context, oldRoom id.RoomID) error {
	return ruq.Exec(ctx, deleteRoomUpgradeByOldQuery, oldRoom)
}

func (ru *RoomUpgrade) Scan(row dbutil.Scannable) (*RoomUpgrade, error) {
	err := row.Scan(&ru.NewRoomID, &ru.OldRoomID)
	if err != nil {
		return nil, err
	}
	return ru, nil
}
