// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/confirm"
	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

// ConfirmKey is the reaction that accepts a confirmation prompt.
const ConfirmKey = "✅"

// permissionCreateEmojis is the Mattermost permission needed to upload custom emoji.
const permissionCreateEmojis = "create_emojis"

const commandHelp = "Available commands:\n" +
	"* `%[1]s link <channel ID>` - bridge this room to a Mattermost channel\n" +
	"* `%[1]s unlink` - stop bridging this room\n" +
	"* `%[1]s emoji <name> <mxc URI>` - upload a custom emoji to Mattermost"

type commandHandler func(ctx context.Context, evt *event.Event, args []string) error

// botPrompter places confirmation reactions as the bridge bot.
type botPrompter struct {
	api MatrixAPI
}

func (bp botPrompter) SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, key string) error {
	_, err := bp.api.SendReaction(ctx, roomID, "", eventID, key)
	return err
}

func (mc *MattermostConnector) isCommand(content *event.MessageEventContent) bool {
	if content == nil || content.MsgType != event.MsgText || content.RelatesTo.GetReplaceID() != "" {
		return false
	}
	prefix := mc.Config.Bridge.CommandPrefix
	return content.Body == prefix || strings.HasPrefix(content.Body, prefix+" ")
}

func (mc *MattermostConnector) handleCommand(ctx context.Context, evt *event.Event, content *event.MessageEventContent) error {
	fields := strings.Fields(strings.TrimPrefix(content.Body, mc.Config.Bridge.CommandPrefix))
	if len(fields) == 0 {
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf(commandHelp, mc.Config.Bridge.CommandPrefix))
	}
	var handler commandHandler
	switch strings.ToLower(fields[0]) {
	case "link":
		handler = mc.cmdLink
	case "unlink":
		handler = mc.cmdUnlink
	case "emoji":
		handler = mc.cmdEmoji
	default:
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf(commandHelp, mc.Config.Bridge.CommandPrefix))
	}
	zerolog.Ctx(ctx).Debug().Str("command", fields[0]).Msg("Handling bridge command")

	level, err := mc.powerLevel(ctx, evt.RoomID, evt.Sender)
	if err != nil {
		return err
	}
	if level < mc.Config.Bridge.CommandPowerLevel {
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf(
			"You need power level %d to use this command.", mc.Config.Bridge.CommandPowerLevel,
		))
	}
	return handler(ctx, evt, fields[1:])
}

func (mc *MattermostConnector) sendNotice(ctx context.Context, roomID id.RoomID, text string) (id.EventID, error) {
	evtID, err := mc.Matrix.SendMessage(ctx, roomID, "", event.EventMessage, &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send notice: %w", err)
	}
	return evtID, nil
}

func (mc *MattermostConnector) reply(ctx context.Context, roomID id.RoomID, text string) error {
	_, err := mc.sendNotice(ctx, roomID, text)
	return err
}

// confirmAction posts a prompt and blocks until the sender accepts it. It
// returns false if the prompt expired.
func (mc *MattermostConnector) confirmAction(ctx context.Context, evt *event.Event, prompt string) (bool, error) {
	promptID, err := mc.sendNotice(ctx, evt.RoomID, prompt+" React with "+ConfirmKey+" to confirm.")
	if err != nil {
		return false, err
	}
	handle, err := mc.Confirmations.Register(ctx, botPrompter{api: mc.Matrix}, confirm.Key{
		RoomID:  evt.RoomID,
		EventID: promptID,
		UserID:  evt.Sender,
		Emoji:   ConfirmKey,
	})
	if err != nil {
		return false, err
	}
	_, err = handle.Wait(ctx)
	if errors.Is(err, confirm.ErrExpired) {
		return false, mc.reply(ctx, evt.RoomID, "Confirmation expired, nothing was changed.")
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (mc *MattermostConnector) cmdLink(ctx context.Context, evt *event.Event, args []string) error {
	if len(args) != 1 {
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf("Usage: `%s link <channel ID>`", mc.Config.Bridge.CommandPrefix))
	}
	channelID := args[0]
	if existing, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID); err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if existing != nil {
		return mc.reply(ctx, evt.RoomID, "This room is already bridged to a Mattermost channel.")
	}
	if existing, err := mc.DB.ChannelRoom.GetByChannelID(ctx, channelID); err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if existing != nil {
		return mc.reply(ctx, evt.RoomID, "That channel is already bridged to another room.")
	}
	channel, err := mc.MM.GetChannel(ctx, channelID)
	if isMattermostNotFound(err) {
		return mc.reply(ctx, evt.RoomID, "Mattermost channel not found.")
	} else if err != nil {
		return err
	}

	ok, err := mc.confirmAction(ctx, evt, fmt.Sprintf("Bridge this room to ~%s (%s)?", channel.Name, channel.DisplayName))
	if err != nil || !ok {
		return err
	}

	cr := mc.DB.ChannelRoom.New()
	cr.ChannelID = channel.Id
	cr.RoomID = evt.RoomID
	cr.Name = channel.DisplayName
	if err = cr.Insert(ctx); err != nil {
		return fmt.Errorf("failed to save channel binding: %w", err)
	}
	if err = mc.syncRoomWithChannel(ctx, cr, channel); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to sync newly linked room")
	}
	return mc.reply(ctx, evt.RoomID, fmt.Sprintf("Room bridged to ~%s.", channel.Name))
}

func (mc *MattermostConnector) cmdUnlink(ctx context.Context, evt *event.Event, _ []string) error {
	cr, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if cr == nil {
		return mc.reply(ctx, evt.RoomID, "This room is not bridged.")
	}
	ok, err := mc.confirmAction(ctx, evt, "Stop bridging this room?")
	if err != nil || !ok {
		return err
	}
	if err = mc.DB.ChannelRoom.Delete(ctx, cr.ChannelID); err != nil {
		return fmt.Errorf("failed to delete channel binding: %w", err)
	}
	if state, err := mc.Matrix.GetFullState(ctx, evt.RoomID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to get room state to clear bridge info")
	} else {
		mc.clearBridgeState(ctx, evt.RoomID, state)
	}
	return mc.reply(ctx, evt.RoomID, "Room unbridged.")
}

func (mc *MattermostConnector) cmdEmoji(ctx context.Context, evt *event.Event, args []string) error {
	if len(args) != 2 {
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf("Usage: `%s emoji <name> <mxc URI>`", mc.Config.Bridge.CommandPrefix))
	}
	name := strings.ToLower(strings.Trim(args[0], ":"))
	mxc := id.ContentURIString(args[1])
	if _, err := mxc.Parse(); err != nil {
		return mc.reply(ctx, evt.RoomID, "That is not a valid mxc URI.")
	}
	if existing, err := mc.DB.Emoji.GetByName(ctx, name); err != nil {
		return fmt.Errorf("failed to get custom emoji: %w", err)
	} else if existing != nil {
		return mc.reply(ctx, evt.RoomID, fmt.Sprintf("Emoji :%s: already exists.", name))
	}
	perms, err := mc.MM.OwnPermissions(ctx)
	if err != nil {
		return err
	} else if !perms[permissionCreateEmojis] {
		return mc.reply(ctx, evt.RoomID, "The bridge bot is not allowed to create custom emoji on Mattermost.")
	}

	ok, err := mc.confirmAction(ctx, evt, fmt.Sprintf("Upload %s as :%s: to Mattermost?", mxc, name))
	if err != nil || !ok {
		return err
	}

	data, err := mc.Matrix.DownloadMedia(ctx, mxc)
	if err != nil {
		return fmt.Errorf("failed to download emoji image: %w", err)
	}
	created, err := mc.MM.CreateEmoji(ctx, name, data, name+imageExtension(data))
	if err != nil {
		return err
	}
	err = mc.DB.Emoji.Upsert(ctx, &database.Emoji{
		EmojiID: created.Id,
		Name:    created.Name,
		MXC:     mxc,
	})
	if err != nil {
		return fmt.Errorf("failed to save custom emoji: %w", err)
	}
	return mc.reply(ctx, evt.RoomID, fmt.Sprintf("Uploaded :%s:.", created.Name))
}

func imageExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/gif":
		return ".gif"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".png"
	}
}
