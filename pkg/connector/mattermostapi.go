// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mattermost/mattermost/server/public/model"
	"go.mau.fi/util/ptr"
)

// MattermostAPI is the subset of the Mattermost REST API the bridge uses.
type MattermostAPI interface {
	UserID() string
	CreatePost(ctx context.Context, post *model.Post) (*model.Post, error)
	PatchPost(ctx context.Context, postID, message string) error
	GetPost(ctx context.Context, postID string) (*model.Post, error)
	DeletePost(ctx context.Context, postID string) error
	AddReaction(ctx context.Context, postID, emojiName string) error
	DeleteOwnReaction(ctx context.Context, postID, emojiName string) error
	PinPost(ctx context.Context, postID string) error
	UnpinPost(ctx context.Context, postID string) error
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetFileInfo(ctx context.Context, fileID string) (*model.FileInfo, error)
	CreateEmoji(ctx context.Context, name string, image []byte, filename string) (*model.Emoji, error)
	OwnPermissions(ctx context.Context) (map[string]bool, error)
}

var _ MattermostAPI = (*MattermostClient)(nil)

func (m *MattermostClient) CreatePost(ctx context.Context, post *model.Post) (*model.Post, error) {
	created, _, err := m.client.CreatePost(ctx, post)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return created, nil
}

func (m *MattermostClient) PatchPost(ctx context.Context, postID, message string) error {
	_, _, err := m.client.PatchPost(ctx, postID, &model.PostPatch{Message: ptr.Ptr(message)})
	if err != nil {
		return fmt.Errorf("failed to edit post: %w", err)
	}
	return nil
}

func (m *MattermostClient) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	post, _, err := m.client.GetPost(ctx, postID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

func (m *MattermostClient) DeletePost(ctx context.Context, postID string) error {
	_, err := m.client.DeletePost(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return nil
}

func (m *MattermostClient) AddReaction(ctx context.Context, postID, emojiName string) error {
	_, _, err := m.client.SaveReaction(ctx, &model.Reaction{
		UserId:    m.userID,
		PostId:    postID,
		EmojiName: emojiName,
	})
	if err != nil {
		return fmt.Errorf("failed to save reaction: %w", err)
	}
	return nil
}

func (m *MattermostClient) DeleteOwnReaction(ctx context.Context, postID, emojiName string) error {
	_, err := m.client.DeleteReaction(ctx, &model.Reaction{
		UserId:    m.userID,
		PostId:    postID,
		EmojiName: emojiName,
	})
	if err != nil {
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

func (m *MattermostClient) PinPost(ctx context.Context, postID string) error {
	if _, err := m.client.PinPost(ctx, postID); err != nil {
		return fmt.Errorf("failed to pin post: %w", err)
	}
	return nil
}

func (m *MattermostClient) UnpinPost(ctx context.Context, postID string) error {
	if _, err := m.client.UnpinPost(ctx, postID); err != nil {
		return fmt.Errorf("failed to unpin post: %w", err)
	}
	return nil
}

func (m *MattermostClient) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	channel, _, err := m.client.GetChannel(ctx, channelID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get channel info: %w", err)
	}
	return channel, nil
}

func (m *MattermostClient) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, _, err := m.client.GetUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return user, nil
}

func (m *MattermostClient) GetFileInfo(ctx context.Context, fileID string) (*model.FileInfo, error) {
	info, _, err := m.client.GetFileInfo(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return info, nil
}

func (m *MattermostClient) CreateEmoji(ctx context.Context, name string, image []byte, filename string) (*model.Emoji, error) {
	created, _, err := m.client.CreateEmoji(ctx, &model.Emoji{
		CreatorId: m.userID,
		Name:      name,
	}, image, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom emoji: %w", err)
	}
	return created, nil
}

// OwnPermissions returns the union of the permissions granted by the bot's
// system roles.
func (m *MattermostClient) OwnPermissions(ctx context.Context) (map[string]bool, error) {
	me, _, err := m.client.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get own user: %w", err)
	}
	roleNames := strings.Fields(me.Roles)
	perms := make(map[string]bool)
	if len(roleNames) == 0 {
		return perms, nil
	}
	roles, _, err := m.client.GetRolesByNames(ctx, roleNames)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	for _, role := range roles {
		for _, perm := range role.Permissions {
			perms[perm] = true
		}
	}
	return perms, nil
}

// isMattermostNotFound reports whether err is a 404 from the Mattermost API.
func isMattermostNotFound(err error) bool {
	var appErr *model.AppError
	return errors.As(err, &appErr) && appErr.StatusCode == http.StatusNotFound
}

// swallowedReactionErrors are fragments of Mattermost error IDs and messages
// for reactions that are refused by server policy rather than by a fault.
var swallowedReactionErrors = []string{
	"too_many_reactions",
	"reaction limit",
	"emoji.get_by_name",
	"emoji.disabled",
	"unknown emoji",
	"emoji does not exist",
	"restricted",
}

// isReactionRuleError reports whether a reaction failure is a Mattermost
// business rule that users cannot act on.
func isReactionRuleError(err error) bool {
	if err == nil {
		return false
	}
	var text string
	var appErr *model.AppError
	if errors.As(err, &appErr) {
		text = strings.ToLower(appErr.Id + " " + appErr.Message + " " + appErr.DetailedError)
	} else {
		text = strings.ToLower(err.Error())
	}
	for _, fragment := range swallowedReactionErrors {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}
