// Copyright 2024-2026 Aiku AI

// Package emoji translates Matrix reaction keys into the encoding used for
// Mattermost reactions.
//
// Unicode keys are matched against the canonical list of fully-qualified
// emoji sequences bundled in emojis.txt. Clients are sloppy with variation
// selector 16, so a key that does not match exactly is retried with the
// selector stripped, appended, or re-inserted at a known position before
// giving up. Custom emoji (mxc:// keys) are looked up in a local table.
package emoji

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"go.mau.fi/util/variationselector"
)

//go:generate go run ./generate.go

//go:embed emojis.txt
var rawEmojis string

// ErrNoMapping is returned when a key cannot be translated.
var ErrNoMapping = errors.New("no emoji mapping")

var canonical = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{}, 4096)
	scanner := bufio.NewScanner(strings.NewReader(rawEmojis))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			set[line] = struct{}{}
		}
	}
	return set
})

// IsCanonical reports whether s is exactly one sequence of the canonical list.
func IsCanonical(s string) bool {
	_, ok := canonical()[s]
	return ok
}

// Custom is a custom emoji known to both sides.
type Custom struct {
	ID   string
	Name string
}

// CustomSource looks up custom emoji. Both methods return nil, nil on a miss.
type CustomSource interface {
	CustomByMXC(ctx context.Context, mxc string) (*Custom, error)
	CustomByName(ctx context.Context, name string) (*Custom, error)
}

// Resolver translates reaction keys.
type Resolver struct {
	Custom CustomSource
}

func NewResolver(custom CustomSource) *Resolver {
	return &Resolver{Custom: custom}
}

// Resolve returns the URL-encoded form of key. Custom emoji resolve to
// "name:id", falling back to the shortcode when the mxc URI is unknown.
func (r *Resolver) Resolve(ctx context.Context, key, shortcode string) (string, error) {
	if strings.HasPrefix(key, "mxc://") {
		return r.resolveCustom(ctx, key, shortcode)
	}
	found, ok := Canonicalize(key)
	if !ok {
		return "", fmt.Errorf("%w for %q", ErrNoMapping, key)
	}
	return url.QueryEscape(found), nil
}

func (r *Resolver) resolveCustom(ctx context.Context, mxc, shortcode string) (string, error) {
	if r.Custom == nil {
		return "", fmt.Errorf("%w for %s", ErrNoMapping, mxc)
	}
	custom, err := r.Custom.CustomByMXC(ctx, mxc)
	if err != nil {
		return "", fmt.Errorf("failed to look up custom emoji by mxc: %w", err)
	}
	if custom == nil {
		if name := strings.Trim(shortcode, ":"); name != "" {
			custom, err = r.Custom.CustomByName(ctx, name)
			if err != nil {
				return "", fmt.Errorf("failed to look up custom emoji by name: %w", err)
			}
		}
	}
	if custom == nil {
		return "", fmt.Errorf("%w for %s", ErrNoMapping, mxc)
	}
	return url.QueryEscape(custom.Name + ":" + custom.ID), nil
}

// Canonicalize finds the canonical sequence a Unicode reaction key stands for.
func Canonicalize(key string) (string, bool) {
	if key == "" || hasASCIILetter(key) {
		return "", false
	}
	if IsCanonical(key) {
		return key, true
	}
	stripped := variationselector.Remove(key)
	if stripped != key && IsCanonical(stripped) {
		return stripped, true
	}
	if withVS := stripped + variationselector.VS16; IsCanonical(withVS) {
		return withVS, true
	}
	if candidate, ok := insertVS16(stripped); ok && IsCanonical(candidate) {
		return candidate, true
	}
	return "", false
}

// vs16Key groups stripped sequences by byte length, using the leading rune
// to tell apart shapes of the same length.
type vs16Key struct {
	length int
	lead   rune
}

func keyOf(stripped string) vs16Key {
	lead, _ := utf8.DecodeRuneInString(stripped)
	return vs16Key{length: len(stripped), lead: lead}
}

// insertVS16 puts a VS16 back at every position the canonical form of a
// sequence shaped like stripped carries one.
func insertVS16(stripped string) (string, bool) {
	positions, ok := vs16Positions[keyOf(stripped)]
	if !ok {
		return "", false
	}
	var sb strings.Builder
	sb.Grow(len(stripped) + len(positions)*len(variationselector.VS16))
	prev := 0
	for _, pos := range positions {
		if pos < prev || pos > len(stripped) {
			return "", false
		}
		sb.WriteString(stripped[prev:pos])
		sb.WriteString(variationselector.VS16)
		prev = pos
	}
	sb.WriteString(stripped[prev:])
	return sb.String(), true
}

func hasASCIILetter(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			return true
		}
	}
	return false
}
