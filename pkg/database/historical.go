// Copyright 2024-2026 Aiku AI

package database

import (
	"context"
	"time"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

type HistoricalQuery struct {
	*dbutil.QueryHelper[*HistoricalChannelRoom]
}

// HistoricalChannelRoom records a room that used to serve a channel. Rows are
// never deleted.
type HistoricalChannelRoom struct {
	RoomID             id.RoomID
	ReferenceChannelID string
	UpgradedAt         time.Time
}

const (
	getHistoricalBaseQuery = `
		SELECT room_id, reference_channel_id, upgraded_timestamp FROM historical_channel_room
	`
	getLatestHistoricalByRoomQuery = getHistoricalBaseQuery + `WHERE room_id=$1 ORDER BY upgraded_timestamp DESC LIMIT 1`
	getHistoricalByChannelQuery    = getHistoricalBaseQuery + `WHERE reference_channel_id=$1 ORDER BY upgraded_timestamp`
	insertHistoricalQuery          = `
		INSERT INTO historical_channel_room (room_id, reference_channel_id, upgraded_timestamp) VALUES ($1, $2, $3)
	`
)

func (hq *HistoricalQuery) GetLatestByRoomID(ctx context.Context, roomID id.RoomID) (*HistoricalChannelRoom, error) {
	return hq.QueryOne(ctx, getLatestHistoricalByRoomQuery, roomID)
}

func (hq *HistoricalQuery) GetByChannelID(ctx context.Context, channelID string) ([]*HistoricalChannelRoom, error) {
	return hq.QueryMany(ctx, getHistoricalByChannelQuery, channelID)
}

func (hq *HistoricalQuery) Insert(ctx context.Context, h *HistoricalChannelRoom) error {
	return hq.Exec(ctx, insertHistoricalQuery, h.RoomID, h.ReferenceChannelID, h.UpgradedAt.UnixMilli())
}

func (h *HistoricalChannelRoom) Scan(row dbutil.Scannable) (*HistoricalChannelRoom, error) {
	var ts int64
	err := row.Scan(&h.RoomID, &h.ReferenceChannelID, &ts)
	if err != nil {
		return nil, err
	}
	h.UpgradedAt = time.UnixMilli(ts)
	return h, nil
}
