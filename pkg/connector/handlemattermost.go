// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

// isEchoSender reports whether a Mattermost user or username belongs to the
// bridge itself. Such events must not be relayed back to Matrix.
func (mc *MattermostConnector) isEchoSender(userID, senderName string) bool {
	if userID == mc.MM.UserID() {
		return true
	}
	senderName = strings.TrimPrefix(senderName, "@")
	return senderName != "" && isBridgeUsername(senderName, mc.Config.Mattermost.BotPrefix)
}

// parsePostedEvent extracts and validates a post from a WebSocket event,
// applying all echo prevention layers. Returns (nil, nil) to skip silently,
// (nil, err) to report an error, or (post, nil) to proceed.
func (mc *MattermostConnector) parsePostedEvent(ctx context.Context, evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip non-default post types (system messages).
	if post.Type != "" && post.Type != model.PostTypeDefault {
		return nil, nil
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	if mc.isEchoSender(post.UserId, senderName) {
		zerolog.Ctx(ctx).Debug().
			Str("post_id", post.Id).
			Str("user_id", post.UserId).
			Str("username", senderName).
			Msg("Skipping bridge post (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

// parsePostEditedEvent extracts and validates an edited post from a WebSocket
// event, applying echo prevention.
func (mc *MattermostConnector) parsePostEditedEvent(ctx context.Context, evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, nil
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal edited post: %w", err)
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	if mc.isEchoSender(post.UserId, senderName) {
		zerolog.Ctx(ctx).Debug().
			Str("post_id", post.Id).
			Str("user_id", post.UserId).
			Msg("Skipping bridge edit (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

// parsePostDeletedEvent extracts a deleted post from a WebSocket event.
// Deletions made by the bridge itself are skipped.
func (mc *MattermostConnector) parsePostDeletedEvent(ctx context.Context, evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, nil
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deleted post: %w", err)
	}

	deleteBy, _ := evt.GetData()["delete_by"].(string)
	if deleteBy == "" {
		deleteBy = post.UserId
	}
	if deleteBy == mc.MM.UserID() {
		zerolog.Ctx(ctx).Debug().Str("post_id", post.Id).Msg("Skipping bridge delete (echo prevention)")
		return nil, nil
	}

	return &post, nil
}

// parseReactionEvent extracts and validates a reaction from a WebSocket event.
func (mc *MattermostConnector) parseReactionEvent(ctx context.Context, evt *model.WebSocketEvent) (*model.Reaction, error) {
	reactionJSON, ok := evt.GetData()["reaction"].(string)
	if !ok {
		return nil, nil
	}

	var reaction model.Reaction
	if err := json.Unmarshal([]byte(reactionJSON), &reaction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reaction: %w", err)
	}

	senderName, _ := evt.GetData()["sender_name"].(string)
	if mc.isEchoSender(reaction.UserId, senderName) {
		zerolog.Ctx(ctx).Debug().
			Str("post_id", reaction.PostId).
			Str("user_id", reaction.UserId).
			Str("emoji", reaction.EmojiName).
			Msg("Skipping bridge reaction (echo prevention)")
		return nil, nil
	}

	return &reaction, nil
}

func (mc *MattermostConnector) bindingForChannel(ctx context.Context, channelID string) (*database.ChannelRoom, error) {
	cr, err := mc.DB.ChannelRoom.GetByChannelID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channel binding: %w", err)
	}
	return cr, nil
}

func (mc *MattermostConnector) handlePosted(ctx context.Context, evt *model.WebSocketEvent) error {
	post, err := mc.parsePostedEvent(ctx, evt)
	if err != nil || post == nil {
		return err
	}
	cr, err := mc.bindingForChannel(ctx, post.ChannelId)
	if err != nil || cr == nil {
		return err
	}
	ghost, err := mc.ensureGhost(ctx, post.UserId)
	if err != nil {
		return err
	}

	var replyTo id.EventID
	if post.RootId != "" {
		root, err := mc.DB.Message.GetPart(ctx, post.RootId, 0)
		if err != nil {
			return fmt.Errorf("failed to get thread root: %w", err)
		} else if root != nil {
			replyTo = root.EventID
		}
	}

	var parts []*event.MessageEventContent
	if post.Message != "" {
		parts = append(parts, &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    post.Message,
		})
	}
	for _, fileID := range post.FileIds {
		parts = append(parts, mc.fileNotice(ctx, fileID))
	}

	for _, content := range parts {
		if replyTo != "" {
			content.RelatesTo = (&event.RelatesTo{}).SetReplyTo(replyTo)
		}
		evtID, err := mc.Matrix.SendMessage(ctx, cr.RoomID, ghost, event.EventMessage, content)
		if err != nil {
			return fmt.Errorf("failed to send post to Matrix: %w", err)
		}
		err = mc.DB.Message.Insert(ctx, &database.EventMessage{
			EventID:      evtID,
			MessageID:    post.Id,
			EventType:    event.EventMessage.Type,
			EventSubtype: string(content.MsgType),
			Source:       database.SourceMattermost,
		})
		if err != nil {
			return fmt.Errorf("failed to save message mapping: %w", err)
		}
	}
	return nil
}

// fileNotice describes an attached file. Media itself is not transferred.
func (mc *MattermostConnector) fileNotice(ctx context.Context, fileID string) *event.MessageEventContent {
	name := fileID
	info, err := mc.MM.GetFileInfo(ctx, fileID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file_id", fileID).Msg("Failed to get file info")
	} else if info.Name != "" {
		name = info.Name
	}
	return &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    "sent a file: " + name,
	}
}

func (mc *MattermostConnector) handlePostEdited(ctx context.Context, evt *model.WebSocketEvent) error {
	post, err := mc.parsePostEditedEvent(ctx, evt)
	if err != nil || post == nil {
		return err
	}
	first, err := mc.DB.Message.GetPart(ctx, post.Id, 0)
	if err != nil {
		return fmt.Errorf("failed to get edited message: %w", err)
	} else if first == nil || first.EventSubtype != string(event.MsgText) {
		return nil
	}
	cr, err := mc.bindingForChannel(ctx, post.ChannelId)
	if err != nil || cr == nil {
		return err
	}
	ghost, err := mc.ensureGhost(ctx, post.UserId)
	if err != nil {
		return err
	}
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    post.Message,
	}
	content.SetEdit(first.EventID)
	if _, err = mc.Matrix.SendMessage(ctx, cr.RoomID, ghost, event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send edit to Matrix: %w", err)
	}
	return nil
}

func (mc *MattermostConnector) handlePostDeleted(ctx context.Context, evt *model.WebSocketEvent) error {
	post, err := mc.parsePostDeletedEvent(ctx, evt)
	if err != nil || post == nil {
		return err
	}
	parts, err := mc.DB.Message.GetByMessageID(ctx, post.Id)
	if err != nil {
		return fmt.Errorf("failed to get deleted message: %w", err)
	} else if len(parts) == 0 {
		return nil
	}
	cr, err := mc.bindingForChannel(ctx, post.ChannelId)
	if err != nil || cr == nil {
		return err
	}
	var errs []error
	for _, part := range parts {
		err = mc.Matrix.Redact(ctx, cr.RoomID, part.EventID, "Deleted on Mattermost")
		if err != nil && !isMatrixNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to redact part %d: %w", part.Part, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if err = mc.DB.Message.DeleteByMessageID(ctx, post.Id); err != nil {
		return fmt.Errorf("failed to delete message mapping: %w", err)
	}
	return nil
}

func (mc *MattermostConnector) handleReactionAdded(ctx context.Context, evt *model.WebSocketEvent) error {
	reaction, err := mc.parseReactionEvent(ctx, evt)
	if err != nil || reaction == nil {
		return err
	}
	target, err := mc.DB.Message.GetPart(ctx, reaction.PostId, 0)
	if err != nil {
		return fmt.Errorf("failed to get reaction target: %w", err)
	} else if target == nil {
		return nil
	}
	cr, err := mc.bindingForChannel(ctx, broadcastChannelID(evt))
	if err != nil || cr == nil {
		return err
	}
	ghost, err := mc.ensureGhost(ctx, reaction.UserId)
	if err != nil {
		return err
	}
	key, shortcode, err := mc.reactionKeyForEmojiName(ctx, reaction.EmojiName)
	if err != nil {
		return err
	}
	content := &event.Content{
		Parsed: &event.ReactionEventContent{
			RelatesTo: event.RelatesTo{
				Type:    event.RelAnnotation,
				EventID: target.EventID,
				Key:     key,
			},
		},
	}
	if shortcode != "" {
		content.Raw = map[string]any{reactionShortcodeKey: shortcode}
	}
	if _, err = mc.Matrix.SendMessage(ctx, cr.RoomID, ghost, event.EventReaction, content); err != nil {
		return fmt.Errorf("failed to send reaction to Matrix: %w", err)
	}
	return nil
}

func (mc *MattermostConnector) handleChannelUpdated(ctx context.Context, evt *model.WebSocketEvent) error {
	channelJSON, ok := evt.GetData()["channel"].(string)
	if !ok {
		return nil
	}
	var channel model.Channel
	if err := json.Unmarshal([]byte(channelJSON), &channel); err != nil {
		return fmt.Errorf("failed to unmarshal channel: %w", err)
	}
	cr, err := mc.bindingForChannel(ctx, channel.Id)
	if err != nil || cr == nil {
		return err
	}
	cr.Name = channel.DisplayName
	if err = cr.Update(ctx); err != nil {
		return fmt.Errorf("failed to save channel name: %w", err)
	}
	return mc.syncRoomWithChannel(ctx, cr, &channel)
}

// isBridgeUsername reports whether username carries the configured prefix of
// bridge-managed accounts. An empty prefix matches nothing.
func isBridgeUsername(username, botPrefix string) bool {
	return botPrefix != "" && strings.HasPrefix(username, botPrefix)
}
