// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"go.mau.fi/util/variationselector"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
	"github.com/aiku/matrix-mattermost-bridge/pkg/emoji"
)

// systemEmojiNames maps Unicode sequences to Mattermost system emoji names.
// Sequences are stored both as-is and with variation selectors removed.
var systemEmojiNames = sync.OnceValue(func() map[string]string {
	names := make([]string, 0, len(model.SystemEmojis))
	for name := range model.SystemEmojis {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make(map[string]string, len(names)*2)
	for _, name := range names {
		seq, ok := hexToUnicode(model.SystemEmojis[name])
		if !ok {
			continue
		}
		if _, exists := out[seq]; !exists {
			out[seq] = name
		}
		if stripped := variationselector.Remove(seq); stripped != seq {
			if _, exists := out[stripped]; !exists {
				out[stripped] = name
			}
		}
	}
	return out
})

func hexToUnicode(codepoints string) (string, bool) {
	var sb strings.Builder
	for _, part := range strings.Split(codepoints, "-") {
		cp, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return "", false
		}
		sb.WriteRune(rune(cp))
	}
	return sb.String(), true
}

// systemEmojiUnicode returns the canonical Unicode form of a Mattermost system emoji.
func systemEmojiUnicode(name string) (string, bool) {
	codepoints, ok := model.SystemEmojis[name]
	if !ok {
		return "", false
	}
	seq, ok := hexToUnicode(codepoints)
	if !ok {
		return "", false
	}
	if canonical, found := emoji.Canonicalize(seq); found {
		return canonical, true
	}
	return seq, true
}

// emojiNameFromEncoded converts a resolved reaction key into the emoji name
// Mattermost expects in reactions.
func emojiNameFromEncoded(encoded string) (string, error) {
	decoded, err := url.QueryUnescape(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode emoji key: %w", err)
	}
	if name, _, isCustom := strings.Cut(decoded, ":"); isCustom {
		return name, nil
	}
	names := systemEmojiNames()
	if name, ok := names[decoded]; ok {
		return name, nil
	}
	if name, ok := names[variationselector.Remove(decoded)]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q is not a Mattermost system emoji", emoji.ErrNoMapping, decoded)
}

// reactionKeyForEmojiName converts a Mattermost emoji name into a Matrix
// reaction key. Custom emoji become their mxc URI when known.
func (mc *MattermostConnector) reactionKeyForEmojiName(ctx context.Context, name string) (key, shortcode string, err error) {
	if uni, ok := systemEmojiUnicode(name); ok {
		return uni, "", nil
	}
	custom, err := mc.DB.Emoji.GetByName(ctx, name)
	if err != nil {
		return "", "", fmt.Errorf("failed to get custom emoji: %w", err)
	} else if custom != nil && custom.MXC != "" {
		return string(custom.MXC), ":" + name + ":", nil
	}
	return ":" + name + ":", "", nil
}

// customEmojiSource serves the emoji table to the resolver.
type customEmojiSource struct {
	db *database.Database
}

var _ emoji.CustomSource = (*customEmojiSource)(nil)

func (c *customEmojiSource) CustomByMXC(ctx context.Context, mxc string) (*emoji.Custom, error) {
	e, err := c.db.Emoji.GetByMXC(ctx, id.ContentURIString(mxc))
	if err != nil || e == nil {
		return nil, err
	}
	return &emoji.Custom{ID: e.EmojiID, Name: e.Name}, nil
}

func (c *customEmojiSource) CustomByName(ctx context.Context, name string) (*emoji.Custom, error) {
	e, err := c.db.Emoji.GetByName(ctx, name)
	if err != nil || e == nil {
		return nil, err
	}
	return &emoji.Custom{ID: e.EmojiID, Name: e.Name}, nil
}
