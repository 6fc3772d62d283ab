// Copyright 2024-2026 Aiku AI

package emoji

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustom struct {
	byMXC  map[string]*Custom
	byName map[string]*Custom
	err    error
}

func (f *fakeCustom) CustomByMXC(_ context.Context, mxc string) (*Custom, error) {
	return f.byMXC[mxc], f.err
}

func (f *fakeCustom) CustomByName(_ context.Context, name string) (*Custom, error) {
	return f.byName[name], f.err
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"exact", "🦄", "🦄", true},
		{"extraneous selector", "👍️", "👍", true},
		{"missing trailing selector", "❤", "❤️", true},
		{"keycap", "1⃣", "1️⃣", true},
		{"hash keycap", "#⃣", "#️⃣", true},
		{"zwj heart on fire", "❤‍🔥", "❤️‍🔥", true},
		{"selector in wrong place", "❤‍🔥️", "❤️‍🔥", true},
		{"rainbow flag", "🏳‍🌈", "🏳️‍🌈", true},
		{"couple with heart", "👩‍❤‍👨", "👩‍❤️‍👨", true},
		{"kiss", "👩‍❤‍💋‍👨", "👩‍❤️‍💋‍👨", true},
		{"skin toned couple", "🧑🏻‍❤‍🧑🏼", "🧑🏻‍❤️‍🧑🏼", true},
		{"family without selectors", "👨‍👩‍👧", "👨‍👩‍👧", true},
		{"detective missing internal selector", "🕵\u200d♂\ufe0f", "🕵\ufe0f\u200d♂\ufe0f", true},
		{"detective without selectors", "🕵\u200d♂", "🕵\ufe0f\u200d♂\ufe0f", true},
		{"ball player without internal selector", "⛹\u200d♂\ufe0f", "⛹\ufe0f\u200d♂\ufe0f", true},
		{"eye in speech bubble", "👁\u200d🗨\ufe0f", "👁\ufe0f\u200d🗨\ufe0f", true},
		{"walking facing right", "🚶\u200d♀\u200d➡", "🚶\u200d♀\ufe0f\u200d➡\ufe0f", true},
		{"skin toned runner facing right", "🏃🏻\u200d♀\u200d➡", "🏃🏻\u200d♀\ufe0f\u200d➡\ufe0f", true},
		{"trans flag", "🏳\u200d⚧", "🏳\ufe0f\u200d⚧\ufe0f", true},
		{"trailing selector misplaced", "👨\ufe0f\u200d⚕", "👨\u200d⚕\ufe0f", true},
		{"skin tone component", "🏻", "🏻", true},
		{"ascii letters", "ha", "", false},
		{"emoji with letter", "💩x", "", false},
		{"bare digit", "1", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Canonicalize(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicTableTargetsCanonicalSequences(t *testing.T) {
	t.Parallel()
	for key, positions := range vs16Positions {
		require.NotEmpty(t, positions)
		assert.IsIncreasing(t, positions, "positions for %+v", key)
		assert.LessOrEqual(t, positions[len(positions)-1], key.length, "positions for %+v", key)
	}
}

func TestResolve_Unicode(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil)
	got, err := r.Resolve(context.Background(), "🦄", "")
	require.NoError(t, err)
	assert.Equal(t, "%F0%9F%A6%84", got)

	_, err = r.Resolve(context.Background(), "ha", "")
	assert.ErrorIs(t, err, ErrNoMapping)
}

func TestResolve_Custom(t *testing.T) {
	t.Parallel()
	src := &fakeCustom{
		byMXC:  map[string]*Custom{"mxc://example.com/party": {ID: "abc123", Name: "party"}},
		byName: map[string]*Custom{"blob": {ID: "def456", Name: "blob"}},
	}
	r := NewResolver(src)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "mxc://example.com/party", ":whatever:")
	require.NoError(t, err)
	assert.Equal(t, "party%3Aabc123", got)

	got, err = r.Resolve(ctx, "mxc://example.com/unknown", ":blob:")
	require.NoError(t, err)
	assert.Equal(t, "blob%3Adef456", got)

	_, err = r.Resolve(ctx, "mxc://example.com/unknown", ":nope:")
	assert.ErrorIs(t, err, ErrNoMapping)

	_, err = r.Resolve(ctx, "mxc://example.com/unknown", "")
	assert.ErrorIs(t, err, ErrNoMapping)
}

func TestResolve_CustomLookupError(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	r := NewResolver(&fakeCustom{err: boom})
	_, err := r.Resolve(context.Background(), "mxc://example.com/x", "x")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoMapping)
}

func TestResolve_CustomWithoutSource(t *testing.T) {
	t.Parallel()
	_, err := NewResolver(nil).Resolve(context.Background(), "mxc://example.com/x", "x")
	assert.ErrorIs(t, err, ErrNoMapping)
}
