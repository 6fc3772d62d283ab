// Copyright 2024-2026 Aiku AI

// Package database contains the correlation tables that tie Matrix rooms and
// events to Mattermost channels and posts.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database/upgrades"
)

type Database struct {
	*dbutil.Database

	ChannelRoom *ChannelRoomQuery
	Message     *EventMessageQuery
	Reaction    *ReactionQuery
	RoomUpgrade *RoomUpgradeQuery
	Historical  *HistoricalQuery
	Emoji       *EmojiQuery
}

func New(db *dbutil.Database, log zerolog.Logger) *Database {
	db.UpgradeTable = upgrades.Table
	db.Log = dbutil.ZeroLogger(log.With().Str("db_section", "main").Logger())
	return &Database{
		Database: db,
		ChannelRoom: &ChannelRoomQuery{dbutil.MakeQueryHelper(db, func(qh *dbutil.QueryHelper[*ChannelRoom]) *ChannelRoom {
			return &ChannelRoom{qh: qh}
		})},
		Message: &EventMessageQuery{dbutil.MakeQueryHelper(db, func(_ *dbutil.QueryHelper[*EventMessage]) *EventMessage {
			return &EventMessage{}
		})},
		Reaction: &ReactionQuery{dbutil.MakeQueryHelper(db, func(_ *dbutil.QueryHelper[*Reaction]) *Reaction {
			return &Reaction{}
		})},
		RoomUpgrade: &RoomUpgradeQuery{dbutil.MakeQueryHelper(db, func(_ *dbutil.QueryHelper[*RoomUpgrade]) *RoomUpgrade {
			return &RoomUpgrade{}
		})},
		Historical: &HistoricalQuery{dbutil.MakeQueryHelper(db, func(_ *dbutil.QueryHelper[*HistoricalChannelRoom]) *HistoricalChannelRoom {
			return &HistoricalChannelRoom{}
		})},
		Emoji: &EmojiQuery{dbutil.MakeQueryHelper(db, func(_ *dbutil.QueryHelper[*Emoji]) *Emoji {
			return &Emoji{}
		})},
	}
}

// CompleteRoomUpgrade moves the binding of oldRoom to newRoom, records the old
// room in the history table and drops the pending upgrade. All three writes
// commit together. It returns the channel that was moved.
func (db *Database) CompleteRoomUpgrade(ctx context.Context, oldRoom, newRoom id.RoomID, ts time.Time) (string, error) {
	var channelID string
	err := db.DoTxn(ctx, nil, func(ctx context.Context) error {
		binding, err := db.ChannelRoom.GetByRoomID(ctx, oldRoom)
		if err != nil {
			return fmt.Errorf("failed to get binding of old room: %w", err)
		} else if binding == nil {
			return fmt.Errorf("old room %s has no channel binding", oldRoom)
		}
		channelID = binding.ChannelID
		if err = db.ChannelRoom.UpdateRoomID(ctx, channelID, newRoom); err != nil {
			return fmt.Errorf("failed to rewrite binding: %w", err)
		}
		if err = db.Historical.Insert(ctx, &HistoricalChannelRoom{
			RoomID:             oldRoom,
			ReferenceChannelID: channelID,
			UpgradedAt:         ts,
		}); err != nil {
			return fmt.Errorf("failed to insert historical room: %w", err)
		}
		if err = db.RoomUpgrade.DeleteByOldRoom(ctx, oldRoom); err != nil {
			return fmt.Errorf("failed to delete pending upgrade: %w", err)
		}
		return nil
	})
	return channelID, err
}

// ChannelForRoom returns the channel bound to roomID, falling back to rooms
// that used to serve a channel before an upgrade.
func (db *Database) ChannelForRoom(ctx context.Context, roomID id.RoomID) (string, error) {
	binding, err := db.ChannelRoom.GetByRoomID(ctx, roomID)
	if err != nil {
		return "", err
	} else if binding != nil {
		return binding.ChannelID, nil
	}
	hist, err := db.Historical.GetLatestByRoomID(ctx, roomID)
	if err != nil {
		return "", err
	} else if hist != nil {
		return hist.ReferenceChannelID, nil
	}
	return "", nil
}
