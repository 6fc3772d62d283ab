// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/confirm"
	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
	"github.com/aiku/matrix-mattermost-bridge/pkg/emoji"
	"github.com/aiku/matrix-mattermost-bridge/pkg/hashid"
	"github.com/aiku/matrix-mattermost-bridge/pkg/pindiff"
)

// reactionShortcodeKey carries the shortcode of custom emoji reactions.
const reactionShortcodeKey = "com.beeper.reaction.shortcode"

// handleMatrixMessage relays a message sent from Matrix to Mattermost.
func (mc *MattermostConnector) handleMatrixMessage(ctx context.Context, evt *event.Event) error {
	content := evt.Content.AsMessage()
	if mc.isCommand(content) {
		return mc.handleCommand(ctx, evt, content)
	}
	cr, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if cr == nil {
		return nil
	}
	displayname := mc.matrixDisplayname(ctx, evt.RoomID, evt.Sender)

	if editTarget := content.RelatesTo.GetReplaceID(); editTarget != "" {
		return mc.handleMatrixEdit(ctx, editTarget, displayname, content)
	}

	post := &model.Post{
		ChannelId: cr.ChannelID,
		Message:   formatRelayedMessage(displayname, content),
	}
	post.RootId, err = mc.rootPostFor(ctx, content)
	if err != nil {
		return err
	} else if post.RootId == "" {
		post.RootId = cr.ThreadParent
	}

	created, err := mc.MM.CreatePost(ctx, post)
	if err != nil {
		return err
	}
	err = mc.DB.Message.Insert(ctx, &database.EventMessage{
		EventID:      evt.ID,
		MessageID:    created.Id,
		EventType:    evt.Type.Type,
		EventSubtype: string(content.MsgType),
		Source:       database.SourceMatrix,
	})
	if err != nil {
		return fmt.Errorf("failed to save message mapping: %w", err)
	}
	zerolog.Ctx(ctx).Debug().Str("post_id", created.Id).Msg("Relayed Matrix message")
	return nil
}

func (mc *MattermostConnector) handleMatrixEdit(ctx context.Context, target id.EventID, displayname string, content *event.MessageEventContent) error {
	em, err := mc.DB.Message.GetByEventID(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get edit target: %w", err)
	} else if em == nil {
		zerolog.Ctx(ctx).Debug().Stringer("target_id", target).Msg("Ignoring edit of unknown message")
		return nil
	}
	newContent := content.NewContent
	if newContent == nil {
		newContent = content
		newContent.Body = strings.TrimPrefix(newContent.Body, " * ")
	}
	return mc.MM.PatchPost(ctx, em.MessageID, formatRelayedMessage(displayname, newContent))
}

// rootPostFor returns the Mattermost thread root a reply or thread message
// belongs under.
func (mc *MattermostConnector) rootPostFor(ctx context.Context, content *event.MessageEventContent) (string, error) {
	parent := content.RelatesTo.GetThreadParent()
	if parent == "" {
		parent = content.RelatesTo.GetReplyTo()
	}
	if parent == "" {
		return "", nil
	}
	em, err := mc.DB.Message.GetByEventID(ctx, parent)
	if err != nil {
		return "", fmt.Errorf("failed to get reply target: %w", err)
	} else if em == nil {
		return "", nil
	}
	post, err := mc.MM.GetPost(ctx, em.MessageID)
	if isMattermostNotFound(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	if post.RootId != "" {
		return post.RootId, nil
	}
	return post.Id, nil
}

// formatRelayedMessage renders a Matrix message as the text of a Mattermost
// post made by the bridge bot on behalf of the sender.
func formatRelayedMessage(displayname string, content *event.MessageEventContent) string {
	switch content.MsgType {
	case event.MsgEmote:
		return fmt.Sprintf("_%s %s_", displayname, content.Body)
	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		filename := content.GetFileName()
		if filename == "" {
			filename = "file"
		}
		return fmt.Sprintf("**%s** sent a file: %s", displayname, filename)
	default:
		return fmt.Sprintf("**%s**: %s", displayname, content.Body)
	}
}

func (mc *MattermostConnector) matrixDisplayname(ctx context.Context, roomID id.RoomID, userID id.UserID) string {
	var member event.MemberEventContent
	err := mc.Matrix.GetStateEvent(ctx, roomID, event.StateMember, userID.String(), &member)
	if err == nil && member.Displayname != "" {
		return member.Displayname
	}
	if localpart, _, err := userID.Parse(); err == nil && localpart != "" {
		return localpart
	}
	return userID.String()
}

// handleMatrixReaction routes a Matrix reaction: retry triggers and answers to
// confirmation prompts are consumed here, everything else is relayed.
func (mc *MattermostConnector) handleMatrixReaction(ctx context.Context, evt *event.Event) error {
	rel := evt.Content.AsReaction().RelatesTo
	log := zerolog.Ctx(ctx)
	if rel.Key == mc.Config.Bridge.RetryKey {
		if handled, err := mc.handleRetryReaction(ctx, evt, rel.EventID); err != nil || handled {
			return err
		}
	}
	if mc.Confirmations.Resolve(confirm.Key{
		RoomID:  evt.RoomID,
		EventID: rel.EventID,
		UserID:  evt.Sender,
		Emoji:   rel.Key,
	}, evt) {
		log.Debug().Msg("Reaction answered a confirmation prompt")
		return nil
	}

	channelID, err := mc.DB.ChannelForRoom(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel for room: %w", err)
	} else if channelID == "" {
		return nil
	}
	target, err := mc.DB.Message.GetByEventID(ctx, rel.EventID)
	if err != nil {
		return fmt.Errorf("failed to get reaction target: %w", err)
	} else if target == nil {
		log.Debug().Stringer("target_id", rel.EventID).Msg("Ignoring reaction to unknown message")
		return nil
	}

	shortcode, _ := evt.Content.Raw[reactionShortcodeKey].(string)
	encoded, err := mc.Resolver.Resolve(ctx, rel.Key, shortcode)
	if errors.Is(err, emoji.ErrNoMapping) {
		log.Debug().Str("key", rel.Key).Msg("No Mattermost equivalent for reaction")
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to resolve reaction emoji: %w", err)
	}
	name, err := emojiNameFromEncoded(encoded)
	if errors.Is(err, emoji.ErrNoMapping) {
		log.Debug().Str("key", rel.Key).Str("encoded", encoded).Msg("Emoji not known to Mattermost")
		return nil
	} else if err != nil {
		return err
	}
	if err = mc.MM.AddReaction(ctx, target.MessageID, name); isReactionRuleError(err) {
		log.Debug().Err(err).Str("emoji_name", name).Msg("Mattermost refused reaction")
		return nil
	} else if err != nil {
		return err
	}
	err = mc.DB.Reaction.Upsert(ctx, &database.Reaction{
		HashedEventID:    hashid.Hash(evt.ID.String()),
		MessageID:        target.MessageID,
		EncodedEmoji:     encoded,
		OriginalEncoding: rel.Key,
	})
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

// handleMatrixRedaction removes whatever the redacted event was bridged as.
// The target may be a message or a reaction, both are tried.
func (mc *MattermostConnector) handleMatrixRedaction(ctx context.Context, evt *event.Event) error {
	target := evt.Redacts
	if target == "" {
		target = evt.Content.AsRedaction().Redacts
	}
	if target == "" {
		return nil
	}
	channelID, err := mc.DB.ChannelForRoom(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel for room: %w", err)
	} else if channelID == "" {
		return nil
	}
	return errors.Join(
		mc.redactMessage(ctx, target),
		mc.redactReaction(ctx, target),
	)
}

func (mc *MattermostConnector) redactMessage(ctx context.Context, target id.EventID) error {
	em, err := mc.DB.Message.GetByEventID(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to get redacted message: %w", err)
	} else if em == nil {
		return nil
	}
	if err = mc.MM.DeletePost(ctx, em.MessageID); err != nil && !isMattermostNotFound(err) {
		return err
	}
	if err = mc.DB.Message.DeleteByMessageID(ctx, em.MessageID); err != nil {
		return fmt.Errorf("failed to delete message mapping: %w", err)
	}
	return nil
}

func (mc *MattermostConnector) redactReaction(ctx context.Context, target id.EventID) error {
	hashed := hashid.Hash(target.String())
	r, err := mc.DB.Reaction.Get(ctx, hashed)
	if err != nil {
		return fmt.Errorf("failed to get redacted reaction: %w", err)
	} else if r == nil {
		return nil
	}
	name, err := emojiNameFromEncoded(r.EncodedEmoji)
	if err != nil {
		return err
	}
	if err = mc.MM.DeleteOwnReaction(ctx, r.MessageID, name); err != nil && !isMattermostNotFound(err) {
		return err
	}
	if err = mc.DB.Reaction.Delete(ctx, hashed); err != nil {
		return fmt.Errorf("failed to delete reaction mapping: %w", err)
	}
	return nil
}

// handleMatrixPins mirrors changes of the pinned event list onto Mattermost.
func (mc *MattermostConnector) handleMatrixPins(ctx context.Context, evt *event.Event) error {
	channelID, err := mc.DB.ChannelForRoom(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel for room: %w", err)
	} else if channelID == "" {
		return nil
	}
	current := evt.Content.AsPinnedEvents().Pinned
	var previous []id.EventID
	if prev := evt.Unsigned.PrevContent; prev != nil {
		if prev.Parsed == nil {
			if err = prev.ParseRaw(evt.Type); err != nil {
				zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to parse previous pinned events, treating all pins as new")
				prev.Parsed = nil
			}
		}
		if parsed, ok := prev.Parsed.(*event.PinnedEventsEventContent); ok {
			previous = parsed.Pinned
		}
	}

	var errs []error
	for _, change := range pindiff.Diff(current, previous) {
		em, err := mc.DB.Message.GetByEventID(ctx, change.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get pinned message: %w", err))
			continue
		} else if em == nil {
			continue
		}
		if change.Added {
			err = mc.MM.PinPost(ctx, em.MessageID)
		} else {
			err = mc.MM.UnpinPost(ctx, em.MessageID)
		}
		if err != nil && !isMattermostNotFound(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (mc *MattermostConnector) handleMatrixRoomName(ctx context.Context, evt *event.Event) error {
	cr, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if cr == nil {
		return nil
	}
	cr.Nick = evt.Content.AsRoomName().Name
	if err = cr.Update(ctx); err != nil {
		return fmt.Errorf("failed to save room nick: %w", err)
	}
	return nil
}

func (mc *MattermostConnector) handleMatrixRoomAvatar(ctx context.Context, evt *event.Event) error {
	cr, err := mc.DB.ChannelRoom.GetByRoomID(ctx, evt.RoomID)
	if err != nil {
		return fmt.Errorf("failed to get channel binding: %w", err)
	} else if cr == nil {
		return nil
	}
	cr.CustomAvatar = evt.Content.AsRoomAvatar().URL
	if err = cr.Update(ctx); err != nil {
		return fmt.Errorf("failed to save room avatar: %w", err)
	}
	return nil
}
