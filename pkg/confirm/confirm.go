// Copyright 2024-2026 Aiku AI

// Package confirm keeps track of yes/no prompts that are answered by reacting
// to a bridge message. Entries only live in memory and are lost on restart.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	DefaultRetention     = 6 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

// ErrExpired is delivered to handles that were swept before being answered.
var ErrExpired = errors.New("confirmation expired")

// Key identifies the reaction that answers a prompt.
type Key struct {
	RoomID  id.RoomID
	EventID id.EventID
	UserID  id.UserID
	Emoji   string
}

// Prompter places the initial reaction on the prompt so the user only has
// to click it.
type Prompter interface {
	SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, key string) error
}

type result struct {
	evt *event.Event
	err error
}

// Handle is the pending side of a registration.
type Handle struct {
	ID        uuid.UUID
	Key       Key
	CreatedAt time.Time

	ch chan result
}

// Wait blocks until the prompt is answered, expires, or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*event.Event, error) {
	select {
	case res := <-h.ch:
		return res.evt, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Registry holds outstanding prompts. The zero value is not usable, use New.
type Registry struct {
	Retention time.Duration

	log     zerolog.Logger
	now     func() time.Time
	lock    sync.Mutex
	pending []*Handle
}

func New(log zerolog.Logger) *Registry {
	return &Registry{
		Retention: DefaultRetention,
		log:       log.With().Str("component", "confirmations").Logger(),
		now:       time.Now,
	}
}

// Register reacts to the prompt with key.Emoji and stores a pending entry.
func (r *Registry) Register(ctx context.Context, prompter Prompter, key Key) (*Handle, error) {
	if err := prompter.SendReaction(ctx, key.RoomID, key.EventID, key.Emoji); err != nil {
		return nil, fmt.Errorf("failed to send confirmation reaction: %w", err)
	}
	h := &Handle{
		ID:        uuid.New(),
		Key:       key,
		CreatedAt: r.now(),
		ch:        make(chan result, 1),
	}
	r.lock.Lock()
	r.pending = append(r.pending, h)
	r.lock.Unlock()
	r.log.Debug().
		Stringer("handle_id", h.ID).
		Stringer("event_id", key.EventID).
		Stringer("user_id", key.UserID).
		Msg("Registered confirmation")
	return h, nil
}

// Resolve fulfils the oldest entry matching key with evt. It returns false
// if nothing was waiting, including when the entry was already resolved.
func (r *Registry) Resolve(key Key, evt *event.Event) bool {
	r.lock.Lock()
	var found *Handle
	for i, h := range r.pending {
		if h.Key == key {
			found = h
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	r.lock.Unlock()
	if found == nil {
		return false
	}
	found.ch <- result{evt: evt}
	return true
}

// Len returns the number of outstanding entries.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// Sweep expires every entry older than the retention window.
func (r *Registry) Sweep(now time.Time) int {
	r.lock.Lock()
	var expired []*Handle
	kept := r.pending[:0]
	for _, h := range r.pending {
		if now.Sub(h.CreatedAt) > r.Retention {
			expired = append(expired, h)
		} else {
			kept = append(kept, h)
		}
	}
	clear(r.pending[len(kept):])
	r.pending = kept
	r.lock.Unlock()
	for _, h := range expired {
		h.ch <- result{err: ErrExpired}
	}
	if len(expired) > 0 {
		r.log.Debug().Int("count", len(expired)).Msg("Swept expired confirmations")
	}
	return len(expired)
}

// Run sweeps on every interval tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
