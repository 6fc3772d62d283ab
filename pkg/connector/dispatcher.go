// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// EventKind is the closed set of inbound events the bridge handles.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindMatrixMessage
	KindMatrixReaction
	KindMatrixRedaction
	KindMatrixPinnedEvents
	KindMatrixTombstone
	KindMatrixMember
	KindMatrixRoomName
	KindMatrixRoomAvatar
	KindMattermostPosted
	KindMattermostPostEdited
	KindMattermostPostDeleted
	KindMattermostReactionAdded
	KindMattermostChannelUpdated
)

var kindNames = [...]string{
	KindUnknown:                  "unknown",
	KindMatrixMessage:            event.EventMessage.Type,
	KindMatrixReaction:           event.EventReaction.Type,
	KindMatrixRedaction:          event.EventRedaction.Type,
	KindMatrixPinnedEvents:       event.StatePinnedEvents.Type,
	KindMatrixTombstone:          event.StateTombstone.Type,
	KindMatrixMember:             event.StateMember.Type,
	KindMatrixRoomName:           event.StateRoomName.Type,
	KindMatrixRoomAvatar:         event.StateRoomAvatar.Type,
	KindMattermostPosted:         string(model.WebsocketEventPosted),
	KindMattermostPostEdited:     string(model.WebsocketEventPostEdited),
	KindMattermostPostDeleted:    string(model.WebsocketEventPostDeleted),
	KindMattermostReactionAdded:  string(model.WebsocketEventReactionAdded),
	KindMattermostChannelUpdated: string(model.WebsocketEventChannelUpdated),
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// EventSource names the network an event came from. It is stored in failure
// artifacts so that a retry is routed back to the right dispatcher.
type EventSource string

const (
	SourceMatrix     EventSource = "matrix"
	SourceMattermost EventSource = "mattermost"
)

func matrixKind(evtType event.Type) EventKind {
	switch evtType.Type {
	case event.EventMessage.Type:
		return KindMatrixMessage
	case event.EventReaction.Type:
		return KindMatrixReaction
	case event.EventRedaction.Type:
		return KindMatrixRedaction
	case event.StatePinnedEvents.Type:
		return KindMatrixPinnedEvents
	case event.StateTombstone.Type:
		return KindMatrixTombstone
	case event.StateMember.Type:
		return KindMatrixMember
	case event.StateRoomName.Type:
		return KindMatrixRoomName
	case event.StateRoomAvatar.Type:
		return KindMatrixRoomAvatar
	default:
		return KindUnknown
	}
}

func mattermostKind(evtType model.WebsocketEventType) EventKind {
	switch evtType {
	case model.WebsocketEventPosted:
		return KindMattermostPosted
	case model.WebsocketEventPostEdited:
		return KindMattermostPostEdited
	case model.WebsocketEventPostDeleted:
		return KindMattermostPostDeleted
	case model.WebsocketEventReactionAdded:
		return KindMattermostReactionAdded
	case model.WebsocketEventChannelUpdated:
		return KindMattermostChannelUpdated
	default:
		return KindUnknown
	}
}

type (
	matrixHandler     func(ctx context.Context, evt *event.Event) error
	mattermostHandler func(ctx context.Context, evt *model.WebSocketEvent) error
)

// Dispatcher routes inbound events of both networks to their handlers and runs
// every handler inside the failure guard.
type Dispatcher struct {
	mc *MattermostConnector

	matrixHandlers     map[EventKind]matrixHandler
	mattermostHandlers map[EventKind]mattermostHandler

	// reportLimit is shared by every room and both sources.
	reportLimit *rate.Limiter
}

func NewDispatcher(mc *MattermostConnector) *Dispatcher {
	d := &Dispatcher{
		mc:          mc,
		reportLimit: rate.NewLimiter(rate.Every(mc.Config.Bridge.ErrorCooldown), 1),
	}
	d.matrixHandlers = map[EventKind]matrixHandler{
		KindMatrixMessage:      mc.handleMatrixMessage,
		KindMatrixReaction:     mc.handleMatrixReaction,
		KindMatrixRedaction:    mc.handleMatrixRedaction,
		KindMatrixPinnedEvents: mc.handleMatrixPins,
		KindMatrixTombstone:    mc.handleTombstone,
		KindMatrixMember:       mc.handleBotMembership,
		KindMatrixRoomName:     mc.handleMatrixRoomName,
		KindMatrixRoomAvatar:   mc.handleMatrixRoomAvatar,
	}
	d.mattermostHandlers = map[EventKind]mattermostHandler{
		KindMattermostPosted:         mc.handlePosted,
		KindMattermostPostEdited:     mc.handlePostEdited,
		KindMattermostPostDeleted:    mc.handlePostDeleted,
		KindMattermostReactionAdded:  mc.handleReactionAdded,
		KindMattermostChannelUpdated: mc.handleChannelUpdated,
	}
	return d
}

// prepareMatrixEvent fixes up the event class and parses the content. Events
// decoded from failure payloads arrive with raw content only.
func prepareMatrixEvent(evt *event.Event) error {
	if evt.StateKey != nil {
		evt.Type.Class = event.StateEventType
	} else {
		evt.Type.Class = event.MessageEventType
	}
	if evt.Content.Parsed != nil {
		return nil
	}
	if err := evt.Content.ParseRaw(evt.Type); err != nil {
		return fmt.Errorf("failed to parse %s content: %w", evt.Type.Type, err)
	}
	return nil
}

// DispatchMatrix handles one Matrix event synchronously.
func (d *Dispatcher) DispatchMatrix(ctx context.Context, evt *event.Event) {
	kind := matrixKind(evt.Type)
	log := d.mc.Log.With().
		Str("source", string(SourceMatrix)).
		Stringer("event_kind", kind).
		Stringer("event_id", evt.ID).
		Stringer("room_id", evt.RoomID).
		Stringer("sender", evt.Sender).
		Logger()
	ctx = log.WithContext(ctx)

	handler, ok := d.matrixHandlers[kind]
	if !ok {
		log.Trace().Str("event_type", evt.Type.Type).Msg("Ignoring unhandled event type")
		return
	}
	// The member handler has to see the bot's own membership.
	if kind != KindMatrixMember && d.mc.IsBridgeUser(evt.Sender) {
		log.Trace().Msg("Ignoring event from bridge namespace (echo prevention)")
		return
	}

	d.guard(ctx, &failure{
		Source: SourceMatrix,
		Kind:   kind,
		RoomID: evt.RoomID,
		payload: func() (json.RawMessage, error) {
			return json.Marshal(evt)
		},
	}, func(ctx context.Context) error {
		if err := prepareMatrixEvent(evt); err != nil {
			return err
		}
		return handler(ctx, evt)
	})
}

// DispatchMattermost handles one Mattermost WebSocket event synchronously.
func (d *Dispatcher) DispatchMattermost(ctx context.Context, evt *model.WebSocketEvent) {
	kind := mattermostKind(evt.EventType())
	channelID := broadcastChannelID(evt)
	log := d.mc.Log.With().
		Str("source", string(SourceMattermost)).
		Stringer("event_kind", kind).
		Str("channel_id", channelID).
		Logger()
	ctx = log.WithContext(ctx)

	handler, ok := d.mattermostHandlers[kind]
	if !ok {
		log.Trace().Str("event_type", string(evt.EventType())).Msg("Ignoring unhandled event type")
		return
	}

	d.guard(ctx, &failure{
		Source: SourceMattermost,
		Kind:   kind,
		RoomID: d.reportRoomForChannel(ctx, channelID),
		payload: func() (json.RawMessage, error) {
			data, err := evt.ToJSON()
			return data, err
		},
	}, func(ctx context.Context) error {
		return handler(ctx, evt)
	})
}

func broadcastChannelID(evt *model.WebSocketEvent) string {
	if broadcast := evt.GetBroadcast(); broadcast != nil {
		return broadcast.ChannelId
	}
	return ""
}

// reportRoomForChannel returns the room failures of a Mattermost event are
// reported into, or an empty ID if the channel isn't bridged.
func (d *Dispatcher) reportRoomForChannel(ctx context.Context, channelID string) id.RoomID {
	if channelID == "" {
		return ""
	}
	cr, err := d.mc.DB.ChannelRoom.GetByChannelID(ctx, channelID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to get room for error reports")
		return ""
	} else if cr == nil {
		return ""
	}
	return cr.RoomID
}
