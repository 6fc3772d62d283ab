// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

func bridgeStateKey(channelID string) string {
	return "fi.mau.mattermost://mattermost/" + channelID
}

// stateOfType returns the state events of one type keyed by state key.
// Lookups go by type name since the class of fetched state isn't guaranteed.
func stateOfType(state mautrix.RoomStateMap, evtType event.Type) map[string]*event.Event {
	for t, events := range state {
		if t.Type == evtType.Type {
			return events
		}
	}
	return nil
}

// spaceParents lists the spaces a room claims to be in.
func spaceParents(state mautrix.RoomStateMap) []id.RoomID {
	var parents []id.RoomID
	for stateKey := range stateOfType(state, event.StateSpaceParent) {
		parents = append(parents, id.RoomID(stateKey))
	}
	slices.Sort(parents)
	return parents
}

func (mc *MattermostConnector) bridgeInfo(cr *database.ChannelRoom, channel *model.Channel) *event.BridgeEventContent {
	return &event.BridgeEventContent{
		BridgeBot: mc.Matrix.BotUserID(),
		Creator:   mc.Matrix.BotUserID(),
		Protocol: event.BridgeInfoSection{
			ID:          "mattermost",
			DisplayName: "Mattermost",
			ExternalURL: mc.Config.Mattermost.ServerURL,
		},
		Channel: event.BridgeInfoSection{
			ID:          cr.ChannelID,
			DisplayName: channel.DisplayName,
		},
	}
}

func (mc *MattermostConnector) syncRoom(ctx context.Context, cr *database.ChannelRoom) error {
	return mc.syncRoomState(ctx, cr, nil, nil)
}

func (mc *MattermostConnector) syncRoomWithChannel(ctx context.Context, cr *database.ChannelRoom, channel *model.Channel) error {
	return mc.syncRoomState(ctx, cr, channel, nil)
}

// syncRoomState writes the channel's name, topic and bridge declaration into
// the bound room and links the room into its spaces. extraSpaces are spaces
// the room must be a child of even if it doesn't list them yet.
func (mc *MattermostConnector) syncRoomState(ctx context.Context, cr *database.ChannelRoom, channel *model.Channel, extraSpaces []id.RoomID) error {
	log := zerolog.Ctx(ctx).With().Str("channel_id", cr.ChannelID).Stringer("room_id", cr.RoomID).Logger()
	if channel == nil {
		var err error
		channel, err = mc.MM.GetChannel(ctx, cr.ChannelID)
		if err != nil {
			return err
		}
	}

	name := cr.Nick
	if name == "" {
		name = channel.DisplayName
	}
	if name == "" {
		name = cr.Name
	}
	info := mc.bridgeInfo(cr, channel)
	stateKey := bridgeStateKey(cr.ChannelID)
	errs := []error{
		mc.Matrix.SetStateEvent(ctx, cr.RoomID, event.StateRoomName, "", &event.RoomNameEventContent{Name: name}),
		mc.Matrix.SetStateEvent(ctx, cr.RoomID, event.StateTopic, "", &event.TopicEventContent{Topic: channel.Header}),
		mc.Matrix.SetStateEvent(ctx, cr.RoomID, event.StateBridge, stateKey, info),
		mc.Matrix.SetStateEvent(ctx, cr.RoomID, event.StateHalfShotBridge, stateKey, info),
	}
	if cr.CustomAvatar != "" {
		errs = append(errs, mc.Matrix.SetStateEvent(ctx, cr.RoomID, event.StateRoomAvatar, "", &event.RoomAvatarEventContent{URL: cr.CustomAvatar}))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to sync room state: %w", err)
	}

	spaces := slices.Clone(extraSpaces)
	state, err := mc.Matrix.GetFullState(ctx, cr.RoomID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get room state for space links")
	} else {
		spaces = append(spaces, spaceParents(state)...)
	}
	slices.Sort(spaces)
	for _, space := range slices.Compact(spaces) {
		err = mc.Matrix.SetStateEvent(ctx, space, event.StateSpaceChild, cr.RoomID.String(), &event.SpaceChildEventContent{
			Via: []string{mc.Config.Homeserver.Domain},
		})
		if err != nil {
			log.Warn().Err(err).Stringer("space_id", space).Msg("Failed to add room to space")
		}
	}
	log.Debug().Msg("Synced room state")
	return nil
}

// clearBridgeState blanks every bridge declaration in a room. Failures are
// only logged.
func (mc *MattermostConnector) clearBridgeState(ctx context.Context, roomID id.RoomID, state mautrix.RoomStateMap) {
	log := zerolog.Ctx(ctx)
	for _, evtType := range []event.Type{event.StateBridge, event.StateHalfShotBridge} {
		for stateKey := range stateOfType(state, evtType) {
			if err := mc.Matrix.SetStateEvent(ctx, roomID, evtType, stateKey, map[string]any{}); err != nil {
				log.Warn().Err(err).
					Stringer("room_id", roomID).
					Str("state_type", evtType.Type).
					Msg("Failed to clear bridge declaration")
			}
		}
	}
}
