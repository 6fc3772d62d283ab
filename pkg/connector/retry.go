// Copyright 2024-2026 Aiku AI

package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// DefaultRetryKey is the reaction that retries a failed event.
const DefaultRetryKey = "\U0001F501"

// contentJSON returns the raw content of an event fetched from the server.
func contentJSON(evt *event.Event) (json.RawMessage, error) {
	if len(evt.Content.VeryRaw) > 0 {
		return evt.Content.VeryRaw, nil
	}
	return json.Marshal(&evt.Content)
}

// parseFailureMarker returns the marker of a failure artifact, or nil if evt
// isn't one.
func parseFailureMarker(evt *event.Event) *failureMarker {
	raw, err := contentJSON(evt)
	if err != nil {
		return nil
	}
	var wrapper struct {
		Marker *failureMarker `json:"fi.mau.mattermost.error"`
	}
	if err = json.Unmarshal(raw, &wrapper); err != nil || wrapper.Marker == nil || len(wrapper.Marker.Payload) == 0 {
		return nil
	}
	return wrapper.Marker
}

// powerLevel returns the power level of userID in roomID. Users not listed
// get users_default.
func (mc *MattermostConnector) powerLevel(ctx context.Context, roomID id.RoomID, userID id.UserID) (int, error) {
	var pl event.PowerLevelsEventContent
	err := mc.Matrix.GetStateEvent(ctx, roomID, event.StatePowerLevels, "", &pl)
	if isMatrixNotFound(err) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get power levels: %w", err)
	}
	if level, ok := pl.Users[userID]; ok {
		return level, nil
	}
	return pl.UsersDefault, nil
}

// handleRetryReaction re-dispatches the event behind a failure artifact when
// an authorized user reacts to it with the retry key. The returned flag is
// false if target is not a failure artifact sent by the bot.
func (mc *MattermostConnector) handleRetryReaction(ctx context.Context, evt *event.Event, target id.EventID) (bool, error) {
	log := zerolog.Ctx(ctx).With().Stringer("artifact_id", target).Logger()
	artifact, err := mc.Matrix.GetEvent(ctx, evt.RoomID, target)
	if isMatrixNotFound(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to get retry target: %w", err)
	}
	if artifact.Sender != mc.Matrix.BotUserID() {
		return false, nil
	}
	marker := parseFailureMarker(artifact)
	if marker == nil {
		return false, nil
	}

	var retry func(ctx context.Context)
	var author id.UserID
	switch marker.Source {
	case SourceMatrix:
		var orig event.Event
		if err = json.Unmarshal(marker.Payload, &orig); err != nil {
			return true, fmt.Errorf("failed to decode failed Matrix event: %w", err)
		}
		author = orig.Sender
		retry = func(ctx context.Context) {
			mc.Dispatcher.DispatchMatrix(ctx, &orig)
		}
	case SourceMattermost:
		wsEvt, err := model.WebSocketEventFromJSON(bytes.NewReader(marker.Payload))
		if err != nil {
			return true, fmt.Errorf("failed to decode failed Mattermost event: %w", err)
		}
		retry = func(ctx context.Context) {
			mc.Dispatcher.DispatchMattermost(ctx, wsEvt)
		}
	default:
		log.Debug().Str("marker_source", string(marker.Source)).Msg("Unknown source in failure artifact")
		return true, nil
	}

	if evt.Sender != author {
		level, err := mc.powerLevel(ctx, evt.RoomID, evt.Sender)
		if err != nil {
			return true, err
		}
		if level < mc.Config.Bridge.RetryPowerLevel {
			log.Debug().Int("power_level", level).Msg("Ignoring retry from unauthorized user")
			return true, nil
		}
	}

	log.Info().Str("marker_source", string(marker.Source)).Msg("Retrying failed event")
	retry(ctx)
	if err = mc.Matrix.Redact(ctx, evt.RoomID, target, "Retried"); err != nil {
		log.Warn().Err(err).Msg("Failed to redact retried error report")
	}
	return true, nil
}
