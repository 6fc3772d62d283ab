// Copyright 2024-2026 Aiku AI

package database

import (
	"context"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

type EmojiQuery struct {
	*dbutil.QueryHelper[*Emoji]
}

// Emoji is a Mattermost custom emoji with a Matrix copy of its image.
type Emoji struct {
	EmojiID string
	Name    string
	MXC     id.ContentURIString
}

const (
	getEmojiBaseQuery   = `SELECT emoji_id, name, mxc FROM emoji `
	getEmojiByMXCQuery  = getEmojiBaseQuery + `WHERE mxc=$1`
	getEmojiByNameQuery = getEmojiBaseQuery + `WHERE name=$1`
	getEmojiByIDQuery   = getEmojiBaseQuery + `WHERE emoji_id=$1`
	upsertEmojiQuery    = `
		INSERT INTO emoji (emoji_id, name, mxc) VALUES ($1, $2, $3)
		ON CONFLICT (emoji_id) DO UPDATE SET name=excluded.name, mxc=excluded.mxc
	`
)

func (eq *EmojiQuery) GetByMXC(ctx context.Context, mxc id.ContentURIString) (*Emoji, error) {
	return eq.QueryOne(ctx, getEmojiByMXCQuery, mxc)
}

func (eq *EmojiQuery) GetByName(ctx context.Context, name string) (*Emoji, error) {
	return eq.QueryOne(ctx, getEmojiByNameQuery, name)
}

func (eq *EmojiQuery) GetByID(ctx context.Context, emojiID string) (*Emoji, error) {
	return eq.QueryOne(ctx, getEmojiByIDQuery, emojiID)
}

func (eq *EmojiQuery) Upsert(ctx context.Context, e *Emoji) error {
	return eq.Exec(ctx, upsertEmojiQuery, e.EmojiID, e.Name, e.MXC)
}

func (e *Emoji) Scan(row dbutil.Scannable) (*Emoji, error) {
	err := row.Scan(&e.EmojiID, &e.Name, &e.MXC)
	if err != nil {
		return nil, err
	}
	return e, nil
}
