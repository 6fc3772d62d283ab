// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// GhostUserID creates the Matrix user ID of the ghost for a Mattermost user.
func (mc *MattermostConnector) GhostUserID(mmUserID string) id.UserID {
	return id.NewUserID(mc.Config.Bridge.GhostPrefix+strings.ToLower(mmUserID), mc.Config.Homeserver.Domain)
}

// ParseGhostUserID extracts the Mattermost user ID from a ghost MXID.
func (mc *MattermostConnector) ParseGhostUserID(userID id.UserID) (string, bool) {
	localpart, server, err := userID.Parse()
	if err != nil || server != mc.Config.Homeserver.Domain {
		return "", false
	}
	if !strings.HasPrefix(localpart, mc.Config.Bridge.GhostPrefix) {
		return "", false
	}
	return strings.TrimPrefix(localpart, mc.Config.Bridge.GhostPrefix), true
}

// IsBridgeUser reports whether a Matrix user belongs to the bridge's reserved
// namespace: the bot itself or any ghost.
func (mc *MattermostConnector) IsBridgeUser(userID id.UserID) bool {
	if userID == mc.Matrix.BotUserID() {
		return true
	}
	_, isGhost := mc.ParseGhostUserID(userID)
	return isGhost
}
