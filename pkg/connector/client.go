// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

const wsReconnectDelay = 5 * time.Second

// MattermostClient is the bridge bot's Mattermost session. It serves REST
// calls and keeps a WebSocket open for real-time events.
type MattermostClient struct {
	client    *model.Client4
	wsClient  *model.WebSocketClient
	userID    string
	username  string
	serverURL string

	stopOnce sync.Once
	stopChan chan struct{}
	log      zerolog.Logger
}

// NewMattermostClient creates a client for the given server and bot token.
func NewMattermostClient(serverURL, token string, log zerolog.Logger) *MattermostClient {
	client := model.NewAPIv4Client(serverURL)
	client.SetToken(token)
	return &MattermostClient{
		client:    client,
		serverURL: serverURL,
		stopChan:  make(chan struct{}),
		log:       log.With().Str("component", "mm_client").Logger(),
	}
}

// Connect verifies the token and remembers the bot's own user ID.
func (m *MattermostClient) Connect(ctx context.Context) error {
	m.log.Info().Str("server_url", m.serverURL).Msg("Connecting to Mattermost")
	me, _, err := m.client.GetMe(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to verify Mattermost session: %w", err)
	}
	m.userID = me.Id
	m.username = me.Username
	m.log.Info().Str("user_id", me.Id).Str("username", me.Username).Msg("Authenticated")
	return nil
}

func (m *MattermostClient) connectWebSocket() error {
	wsURL := httpToWS(m.serverURL)
	var err error
	m.wsClient, err = model.NewWebSocketClient4(wsURL, m.client.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to create websocket client: %w", err)
	}
	m.wsClient.Listen()
	m.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return nil
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

// Listen delivers WebSocket events to handle until ctx is done or Disconnect
// is called. Dropped connections are re-established after a short delay.
func (m *MattermostClient) Listen(ctx context.Context, handle func(*model.WebSocketEvent)) error {
	if err := m.connectWebSocket(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			m.Disconnect()
			return nil
		case <-m.stopChan:
			return nil
		case evt, ok := <-m.wsClient.EventChannel:
			if !ok {
				m.log.Warn().Msg("WebSocket event channel closed, reconnecting")
				if !m.reconnect(ctx) {
					return nil
				}
				continue
			}
			if evt == nil {
				continue
			}
			handle(evt)
		}
	}
}

func (m *MattermostClient) reconnect(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-m.stopChan:
			return false
		case <-time.After(wsReconnectDelay):
		}
		if err := m.connectWebSocket(); err != nil {
			m.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
			continue
		}
		return true
	}
}

// Disconnect closes the WebSocket connection and stops the event loop.
func (m *MattermostClient) Disconnect() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	if m.wsClient != nil {
		m.wsClient.Close()
	}
}

// UserID returns the Mattermost user ID of the bridge bot.
func (m *MattermostClient) UserID() string {
	return m.userID
}

// Username returns the Mattermost username of the bridge bot.
func (m *MattermostClient) Username() string {
	return m.username
}
