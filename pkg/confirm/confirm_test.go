// Copyright 2024-2026 Aiku AI

package confirm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type fakePrompter struct {
	lock      sync.Mutex
	reactions []string
	err       error
}

func (f *fakePrompter) SendReaction(_ context.Context, _ id.RoomID, eventID id.EventID, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reactions = append(f.reactions, string(eventID)+"/"+key)
	return nil
}

var testKey = Key{RoomID: "!room:example.com", EventID: "$prompt", UserID: "@alice:example.com", Emoji: "✅"}

func TestRegister_ReactsFirst(t *testing.T) {
	t.Parallel()
	p := &fakePrompter{}
	r := New(zerolog.Nop())
	h, err := r.Register(context.Background(), p, testKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"$prompt/✅"}, p.reactions)
	assert.Equal(t, testKey, h.Key)
	assert.Equal(t, 1, r.Len())
}

func TestRegister_PrompterError(t *testing.T) {
	t.Parallel()
	boom := errors.New("forbidden")
	r := New(zerolog.Nop())
	_, err := r.Register(context.Background(), &fakePrompter{err: boom}, testKey)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_OnlyOnce(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	h, err := r.Register(context.Background(), &fakePrompter{}, testKey)
	require.NoError(t, err)

	evt := &event.Event{ID: "$reaction"}
	assert.True(t, r.Resolve(testKey, evt))
	assert.False(t, r.Resolve(testKey, evt), "duplicate trigger must not resolve again")

	got, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, evt, got)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_Mismatch(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	_, err := r.Register(context.Background(), &fakePrompter{}, testKey)
	require.NoError(t, err)

	other := testKey
	other.UserID = "@mallory:example.com"
	assert.False(t, r.Resolve(other, &event.Event{}))
	other = testKey
	other.Emoji = "❌"
	assert.False(t, r.Resolve(other, &event.Event{}))
	assert.Equal(t, 1, r.Len())
}

func TestResolve_ConcurrentTriggers(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	_, err := r.Register(context.Background(), &fakePrompter{}, testKey)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Resolve(testKey, &event.Event{}) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestSweep(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return start }
	old, err := r.Register(context.Background(), &fakePrompter{}, testKey)
	require.NoError(t, err)

	fresh := testKey
	fresh.EventID = "$fresh"
	r.now = func() time.Time { return start.Add(5 * time.Hour) }
	newer, err := r.Register(context.Background(), &fakePrompter{}, fresh)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep(start.Add(DefaultRetention)))
	assert.Equal(t, 1, r.Sweep(start.Add(DefaultRetention+time.Minute)))
	assert.Equal(t, 1, r.Len())

	_, err = old.Wait(context.Background())
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, r.Resolve(testKey, &event.Event{}))
	assert.True(t, r.Resolve(fresh, &event.Event{}))
	_, err = newer.Wait(context.Background())
	assert.NoError(t, err)
}

func TestWait_ContextCancelled(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	h, err := r.Register(context.Background(), &fakePrompter{}, testKey)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()
	r := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
