// Copyright 2024-2026 Aiku AI

package database

import (
	"context"
	"database/sql"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

type ChannelRoomQuery struct {
	*dbutil.QueryHelper[*ChannelRoom]
}

// ChannelRoom binds one Mattermost channel to one Matrix room.
type ChannelRoom struct {
	qh *dbutil.QueryHelper[*ChannelRoom]

	ChannelID    string
	RoomID       id.RoomID
	Name         string
	Nick         string
	ThreadParent string
	CustomAvatar id.ContentURIString
}

const (
	getChannelRoomBaseQuery = `
		SELECT channel_id, room_id, name, nick, thread_parent, custom_avatar FROM channel_room
	`
	getChannelRoomByChannelQuery = getChannelRoomBaseQuery + `WHERE channel_id=$1`
	getChannelRoomByRoomQuery    = getChannelRoomBaseQuery + `WHERE room_id=$1`
	getAllChannelRoomsQuery      = getChannelRoomBaseQuery + `ORDER BY channel_id`
	insertChannelRoomQuery       = `
		INSERT INTO channel_room (channel_id, room_id, name, nick, thread_parent, custom_avatar)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	updateChannelRoomQuery = `
		UPDATE channel_room SET name=$2, nick=$3, thread_parent=$4, custom_avatar=$5 WHERE channel_id=$1
	`
	updateChannelRoomIDQuery = `UPDATE channel_room SET room_id=$2 WHERE channel_id=$1`
	deleteChannelRoomQuery   = `DELETE FROM channel_room WHERE channel_id=$1`
)

func (crq *ChannelRoomQuery) GetByChannelID(ctx context.Context, channelID string) (*ChannelRoom, error) {
	return crq.QueryOne(ctx, getChannelRoomByChannelQuery, channelID)
}

func (crq *ChannelRoomQuery) GetByRoomID(ctx context.Context, roomID id.RoomID) (*ChannelRoom, error) {
	return crq.QueryOne(ctx, getChannelRoomByRoomQuery, roomID)
}

func (crq *ChannelRoomQuery) GetAll(ctx context.Context) ([]*ChannelRoom, error) {
	return crq.QueryMany(ctx, getAllChannelRoomsQuery)
}

func (crq *ChannelRoomQuery) UpdateRoomID(ctx context.Context, channelID string, roomID id.RoomID) error {
	return crq.Exec(ctx, updateChannelRoomIDQuery, channelID, roomID)
}

func (crq *ChannelRoomQuery) Delete(ctx context.Context, channelID string) error {
	return crq.Exec(ctx, deleteChannelRoomQuery, channelID)
}

func (cr *ChannelRoom) Scan(row dbutil.Scannable) (*ChannelRoom, error) {
	var nick, threadParent, customAvatar sql.NullString
	err := row.Scan(&cr.ChannelID, &cr.RoomID, &cr.Name, &nick, &threadParent, &customAvatar)
	if err != nil {
		return nil, err
	}
	cr.Nick = nick.String
	cr.ThreadParent = threadParent.String
	cr.CustomAvatar = id.ContentURIString(customAvatar.String)
	return cr, nil
}

func (cr *ChannelRoom) sqlVariables() []any {
	return []any{
		cr.ChannelID, cr.RoomID, cr.Name,
		dbutil.StrPtr(cr.Nick), dbutil.StrPtr(cr.ThreadParent), dbutil.StrPtr(cr.CustomAvatar),
	}
}

func (cr *ChannelRoom) Insert(ctx context.Context) error {
	return cr.qh.Exec(ctx, insertChannelRoomQuery, cr.sqlVariables()...)
}

// Update writes the mutable display fields. The room id only changes through
// UpdateRoomID.
func (cr *ChannelRoom) Update(ctx context.Context) error {
	vars := cr.sqlVariables()
	return cr.qh.Exec(ctx, updateChannelRoomQuery, vars[0], vars[2], vars[3], vars[4], vars[5])
}
