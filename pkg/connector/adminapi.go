// Copyright 2024-2026 Aiku AI

package connector

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxResyncBodySize is the maximum allowed request body for a resync (1 MB).
const maxResyncBodySize = 1 << 20

type resyncRequest struct {
	ChannelID string `json:"channel_id,omitempty"`
}

type resyncResponse struct {
	Synced int      `json:"synced"`
	Failed []string `json:"failed,omitempty"`
}

// AdminHandler returns the mux of the bridge admin API.
func (mc *MattermostConnector) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/resync", mc.HandleResync)
	return mux
}

// HandleResync is an HTTP handler for POST /api/resync. It accepts an optional
// JSON body naming a single channel; without one every bound room is resynced.
func (mc *MattermostConnector) HandleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := mc.Log.WithContext(r.Context())

	var req resyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxResyncBodySize)
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		if len(body) > 0 {
			if err = json.Unmarshal(body, &req); err != nil {
				http.Error(w, "invalid JSON", http.StatusBadRequest)
				return
			}
		}
	}

	mc.Log.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("channel_id", req.ChannelID).
		Msg("Room resync requested")

	var resp resyncResponse
	if req.ChannelID != "" {
		cr, err := mc.DB.ChannelRoom.GetByChannelID(ctx, req.ChannelID)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		} else if cr == nil {
			http.Error(w, "channel not bridged", http.StatusNotFound)
			return
		}
		if err = mc.syncRoom(ctx, cr); err != nil {
			resp.Failed = append(resp.Failed, cr.ChannelID)
		} else {
			resp.Synced++
		}
	} else {
		all, err := mc.DB.ChannelRoom.GetAll(ctx)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		for _, cr := range all {
			if err = mc.syncRoom(ctx, cr); err != nil {
				mc.Log.Warn().Err(err).Str("channel_id", cr.ChannelID).Msg("Failed to resync room")
				resp.Failed = append(resp.Failed, cr.ChannelID)
			} else {
				resp.Synced++
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		mc.Log.Warn().Err(err).Msg("Failed to write resync response")
	}
}
