// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixAPI is the subset of the Matrix client-server API the bridge uses.
// An empty asUser means the bridge bot.
type MatrixAPI interface {
	BotUserID() id.UserID
	SendMessage(ctx context.Context, roomID id.RoomID, asUser id.UserID, evtType event.Type, content any) (id.EventID, error)
	SendReaction(ctx context.Context, roomID id.RoomID, asUser id.UserID, target id.EventID, key string) (id.EventID, error)
	Redact(ctx context.Context, roomID id.RoomID, eventID id.EventID, reason string) error
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error)
	GetStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, out any) error
	SetStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) error
	GetFullState(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error)
	GetJoinedMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error)
	JoinRoom(ctx context.Context, roomID id.RoomID) error
	CreateDM(ctx context.Context, userID id.UserID) (id.RoomID, error)
	DownloadMedia(ctx context.Context, uri id.ContentURIString) ([]byte, error)
	EnsureGhost(ctx context.Context, userID id.UserID, displayname string) error
}

// ASMatrixAPI implements MatrixAPI on top of an appservice.
type ASMatrixAPI struct {
	AS *appservice.AppService
}

var _ MatrixAPI = (*ASMatrixAPI)(nil)

func (a *ASMatrixAPI) intent(asUser id.UserID) *appservice.IntentAPI {
	if asUser == "" {
		return a.AS.BotIntent()
	}
	return a.AS.Intent(asUser)
}

func (a *ASMatrixAPI) BotUserID() id.UserID {
	return a.AS.BotMXID()
}

func (a *ASMatrixAPI) SendMessage(ctx context.Context, roomID id.RoomID, asUser id.UserID, evtType event.Type, content any) (id.EventID, error) {
	resp, err := a.intent(asUser).SendMessageEvent(ctx, roomID, evtType, content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (a *ASMatrixAPI) SendReaction(ctx context.Context, roomID id.RoomID, asUser id.UserID, target id.EventID, key string) (id.EventID, error) {
	content := &event.ReactionEventContent{
		RelatesTo: event.RelatesTo{
			Type:    event.RelAnnotation,
			EventID: target,
			Key:     key,
		},
	}
	return a.SendMessage(ctx, roomID, asUser, event.EventReaction, content)
}

func (a *ASMatrixAPI) Redact(ctx context.Context, roomID id.RoomID, eventID id.EventID, reason string) error {
	_, err := a.AS.BotIntent().RedactEvent(ctx, roomID, eventID, mautrix.ReqRedact{Reason: reason})
	return err
}

func (a *ASMatrixAPI) GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error) {
	return a.AS.BotIntent().GetEvent(ctx, roomID, eventID)
}

func (a *ASMatrixAPI) GetStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, out any) error {
	return a.AS.BotIntent().StateEvent(ctx, roomID, evtType, stateKey, out)
}

func (a *ASMatrixAPI) SetStateEvent(ctx context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) error {
	_, err := a.AS.BotIntent().SendStateEvent(ctx, roomID, evtType, stateKey, content)
	return err
}

func (a *ASMatrixAPI) GetFullState(ctx context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error) {
	return a.AS.BotIntent().State(ctx, roomID)
}

func (a *ASMatrixAPI) GetJoinedMembers(ctx context.Context, roomID id.RoomID) ([]id.UserID, error) {
	resp, err := a.AS.BotIntent().JoinedMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members := make([]id.UserID, 0, len(resp.Joined))
	for userID := range resp.Joined {
		members = append(members, userID)
	}
	return members, nil
}

func (a *ASMatrixAPI) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := a.AS.BotIntent().JoinRoomByID(ctx, roomID)
	return err
}

func (a *ASMatrixAPI) CreateDM(ctx context.Context, userID id.UserID) (id.RoomID, error) {
	resp, err := a.AS.BotIntent().CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Invite:   []id.UserID{userID},
		IsDirect: true,
		Preset:   "trusted_private_chat",
	})
	if err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

func (a *ASMatrixAPI) DownloadMedia(ctx context.Context, uri id.ContentURIString) ([]byte, error) {
	parsed, err := uri.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse content URI: %w", err)
	}
	return a.AS.BotIntent().DownloadBytes(ctx, parsed)
}

func (a *ASMatrixAPI) EnsureGhost(ctx context.Context, userID id.UserID, displayname string) error {
	intent := a.AS.Intent(userID)
	if err := intent.EnsureRegistered(ctx); err != nil {
		return fmt.Errorf("failed to register ghost: %w", err)
	}
	if displayname == "" {
		return nil
	}
	if err := intent.SetDisplayName(ctx, displayname); err != nil {
		return fmt.Errorf("failed to set ghost displayname: %w", err)
	}
	return nil
}

// isMatrixNotFound reports whether err is an M_NOT_FOUND response.
func isMatrixNotFound(err error) bool {
	return errors.Is(err, mautrix.MNotFound)
}
