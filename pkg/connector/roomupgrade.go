// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

// handleTombstone starts following a room upgrade. A bound room that is
// replaced gets a pending upgrade and the bot tries to join the new room.
func (mc *MattermostConnector) handleTombstone(ctx context.Context, evt *event.Event) error {
	content := evt.Content.AsTombstone()
	if content.ReplacementRoom == "" {
		return nil
	}
	log := zerolog.Ctx(ctx).With().Stringer("new_room_id", content.ReplacementRoom).Logger()
	cr, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if cr == nil {
		log.Debug().Msg("Ignoring tombstone of unbridged room")
		return nil
	}
	err = mc.DB.RoomUpgrade.Upsert(ctx, &database.RoomUpgrade{
		NewRoomID: content.ReplacementRoom,
		OldRoomID: evt.RoomID,
	})
	if err != nil {
		return fmt.Errorf("failed to save pending room upgrade: %w", err)
	}
	log.Info().Str("channel_id", cr.ChannelID).Msg("Room upgrade pending, joining replacement room")
	if err = mc.Matrix.JoinRoom(ctx, content.ReplacementRoom); err != nil {
		log.Warn().Err(err).Msg("Failed to join replacement room")
		mc.notifyJoinFailure(ctx, evt.Sender, evt.RoomID, content.ReplacementRoom)
	}
	return nil
}

// notifyJoinFailure asks the user who upgraded the room to invite the bot.
func (mc *MattermostConnector) notifyJoinFailure(ctx context.Context, userID id.UserID, oldRoom, newRoom id.RoomID) {
	log := zerolog.Ctx(ctx)
	if userID == "" || mc.IsBridgeUser(userID) {
		return
	}
	dm, err := mc.Matrix.CreateDM(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", userID).Msg("Failed to create DM for room upgrade notice")
		return
	}
	_, err = mc.Matrix.SendMessage(ctx, dm, "", event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body: fmt.Sprintf(
			"I couldn't join %s, the replacement of %s. Invite %s to the new room to keep it bridged.",
			newRoom, oldRoom, mc.Matrix.BotUserID(),
		),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send room upgrade notice")
	}
}

// handleBotMembership completes a pending room upgrade once the bot is
// invited to or joins the replacement room. Migrations of one room are
// serialized so that the invite and the join it causes migrate only once.
func (mc *MattermostConnector) handleBotMembership(ctx context.Context, evt *event.Event) error {
	if evt.StateKey == nil || id.UserID(*evt.StateKey) != mc.Matrix.BotUserID() {
		return nil
	}
	membership := evt.Content.AsMember().Membership
	if membership != event.MembershipInvite && membership != event.MembershipJoin {
		return nil
	}

	unlock := mc.roomLocks.Lock(evt.RoomID.String())
	defer unlock()

	pending, err := mc.DB.RoomUpgrade.GetByNewRoom(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get pending room upgrade: %w", err)
	} else if pending == nil {
		return nil
	}
	log := zerolog.Ctx(ctx).With().
		Stringer("old_room_id", pending.OldRoomID).
		Stringer("new_room_id", pending.NewRoomID).
		Logger()
	if membership == event.MembershipInvite {
		if err = mc.Matrix.JoinRoom(ctx, evt.RoomID); err != nil {
			return fmt.Errorf("failed to join replacement room: %w", err)
		}
	}

	var parents []id.RoomID
	oldState, err := mc.Matrix.GetFullState(ctx, pending.OldRoomID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get old room state")
	} else {
		parents = spaceParents(oldState)
		for _, space := range parents {
			err = mc.Matrix.SetStateEvent(ctx, space, event.StateSpaceChild, pending.OldRoomID.String(), map[string]any{})
			if err != nil {
				log.Warn().Err(err).Stringer("space_id", space).Msg("Failed to remove old room from space")
			}
		}
		mc.clearBridgeState(ctx, pending.OldRoomID, oldState)
	}

	channelID, err := mc.DB.CompleteRoomUpgrade(ctx, pending.OldRoomID, pending.NewRoomID, mc.now())
	if err != nil {
		return fmt.Errorf("failed to migrate channel binding: %w", err)
	}
	log.Info().Str("channel_id", channelID).Msg("Moved channel binding to upgraded room")

	cr, err := mc.DB.ChannelRoom.GetByChannelID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to get migrated binding: %w", err)
	} else if cr == nil {
		return nil
	}
	return mc.syncRoomState(ctx, cr, nil, parents)
}
