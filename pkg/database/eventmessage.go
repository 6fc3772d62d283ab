// Copyright 2024-2026 Aiku AI

package database

import (
	"context"
	"database/sql"

	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix/id"
)

// Source tells which side an event_message row originated on.
type Source int

const (
	SourceMatrix     Source = 0
	SourceMattermost Source = 1
)

type EventMessageQuery struct {
	*dbutil.QueryHelper[*EventMessage]
}

// EventMessage is one Matrix event that represents (part of) a Mattermost post.
type EventMessage struct {
	EventID      id.EventID
	MessageID    string
	EventType    string
	EventSubtype string
	Part         int
	Source       Source
}

const (
	getEventMessageBaseQuery = `
		SELECT event_id, message_id, event_type, event_subtype, part, source FROM event_message
	`
	getEventMessageByEventQuery   = getEventMessageBaseQuery + `WHERE event_id=$1`
	getEventMessageByMessageQuery = getEventMessageBaseQuery + `WHERE message_id=$1 ORDER BY part`
	getEventMessagePartQuery      = getEventMessageBaseQuery + `WHERE message_id=$1 AND part=$2`
	// The part is computed in the same statement so that parts stay contiguous
	// per message in creation order.
	insertEventMessageQuery = `
		INSERT INTO event_message (event_id, message_id, event_type, event_subtype, part, source)
		SELECT CAST($1 AS TEXT), CAST($2 AS TEXT), CAST($3 AS TEXT), CAST($4 AS TEXT),
		       COALESCE(MAX(part)+1, 0), CAST($5 AS INTEGER)
		FROM event_message WHERE message_id=$2
		RETURNING part
	`
	deleteEventMessagesByMessageQuery = `DELETE FROM event_message WHERE message_id=$1`
)

func (emq *EventMessageQuery) GetByEventID(ctx context.Context, eventID id.EventID) (*EventMessage, error) {
	return emq.QueryOne(ctx, getEventMessageByEventQuery, eventID)
}

func (emq *EventMessageQuery) GetByMessageID(ctx context.Context, messageID string) ([]*EventMessage, error) {
	return emq.QueryMany(ctx, getEventMessageByMessageQuery, messageID)
}

func (emq *EventMessageQuery) GetPart(ctx context.Context, messageID string, part int) (*EventMessage, error) {
	return emq.QueryOne(ctx, getEventMessagePartQuery, messageID, part)
}

// Insert stores em and sets em.Part to the next free part of its message.
func (emq *EventMessageQuery) Insert(ctx context.Context, em *EventMessage) error {
	return emq.GetDB().QueryRow(ctx, insertEventMessageQuery,
		em.EventID, em.MessageID, dbutil.StrPtr(em.EventType), dbutil.StrPtr(em.EventSubtype), em.Source,
	).Scan(&em.Part)
}

func (emq *EventMessageQuery) DeleteByMessageID(ctx context.Context, messageID string) error {
	return emq.Exec(ctx, deleteEventMessagesByMessageQuery, messageID)
}

func (em *EventMessage) Scan(row dbutil.Scannable) (*EventMessage, error) {
	var eventType, eventSubtype sql.NullString
	err := row.Scan(&em.EventID, &em.MessageID, &eventType, &eventSubtype, &em.Part, &em.Source)
	if err != nil {
		return nil, err
	}
	em.EventType = eventType.String
	em.EventSubtype = eventSubtype.String
	return em, nil
}
