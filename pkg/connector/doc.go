// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector implements the synchronization core of a bridge between
// Matrix rooms and Mattermost channels.
//
// # Core Types
//
// [MattermostConnector] owns the correlation database, the emoji resolver and
// the confirmation registry, and talks to both networks through the
// [MatrixAPI] and [MattermostAPI] interfaces.
//
// [Dispatcher] routes inbound Matrix events and Mattermost WebSocket events to
// their handlers. Every handler runs inside a guard that recovers panics,
// logs the failure and, at most once per cooldown across all rooms, posts a
// failure notice into the affected room. Reacting to that notice with the
// retry key re-dispatches the original event.
//
// [MattermostClient] maintains the Mattermost WebSocket connection and
// implements [MattermostAPI] over the REST client.
//
// # Echo Prevention
//
// Matrix events sent by the bridge bot or by ghosts are dropped before their
// handler runs, except membership events which drive room upgrades.
// Mattermost events from the bot account or from bridge usernames are
// dropped by the parse helpers. These layers must not be simplified or
// removed.
//
// # Room Upgrades
//
// A tombstone in a bridged room records a pending upgrade. When the bot is
// invited to or joins the replacement room, the channel binding moves to the
// new room in one transaction and the old room is kept as a historical
// binding so that redactions, reactions and pins there still resolve.
package connector
