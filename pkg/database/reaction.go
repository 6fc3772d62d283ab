// Copyright 2024-2026 Aiku AI

package database

import (
	"context"

	"go.mau.fi/util/dbutil"
)

type ReactionQuery struct {
	*dbutil.QueryHelper[*Reaction]
}

// Reaction correlates a Matrix reaction event, keyed by its hashed event id,
// with the Mattermost post it was placed on.
type Reaction struct {
	HashedEventID    int64
	MessageID        string
	EncodedEmoji     string
	OriginalEncoding string
}

const (
	getReactionQuery = `
		SELECT hashed_event_id, message_id, encoded_emoji, original_encoding FROM reaction WHERE hashed_event_id=$1
	`
	upsertReactionQuery = `
		INSERT INTO reaction (hashed_event_id, message_id, encoded_emoji, original_encoding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hashed_event_id) DO UPDATE
			SET message_id=excluded.message_id,
			    encoded_emoji=excluded.encoded_emoji,
			    original_encoding=excluded.original_encoding
	`
	deleteReactionQuery = `DELETE FROM reaction WHERE hashed_event_id=$1`
)

func (rq *ReactionQuery) Get(ctx context.Context, hashedEventID int64) (*Reaction, error) {
	return rq.QueryOne(ctx, getReactionQuery, hashedEventID)
}

func (rq *ReactionQuery) Upsert(ctx context.Context, r *Reaction) error {
	return rq.Exec(ctx, upsertReactionQuery, r.HashedEventID, r.MessageID, r.EncodedEmoji, r.OriginalEncoding)
}

func (rq *ReactionQuery) Delete(ctx context.Context, hashedEventID int64) error {
	return rq.Exec(ctx, deleteReactionQuery, hashedEventID)
}

func (r *Reaction) Scan(row dbutil.Scannable) (*Reaction, error) {
	err := row.Scan(&r.HashedEventID, &r.MessageID, &r.EncodedEmoji, &r.OriginalEncoding)
	if err != nil {
		return nil, err
	}
	return r, nil
}
