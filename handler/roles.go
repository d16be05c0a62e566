package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"OnboardBot/model"
)

// TelegramRoleAdapter maps the workflow's role operations onto Telegram
// chat management. Telegram has no role objects, so the guest role is a
// send-restricted membership and the completed role lifts the restriction.
// The manage role is chat administrator status.
type TelegramRoleAdapter struct {
	b *bot.Bot
}

// NewTelegramRoleAdapter creates a role adapter for one bot.
func NewTelegramRoleAdapter(b *bot.Bot) *TelegramRoleAdapter {
	return &TelegramRoleAdapter{b: b}
}

var guestPermissions = &models.ChatPermissions{
	CanSendMessages: true,
}

var completedPermissions = &models.ChatPermissions{
	CanSendMessages:       true,
	CanSendPhotos:         true,
	CanSendVideos:         true,
	CanSendOtherMessages:  true,
	CanAddWebPagePreviews: true,
	CanInviteUsers:        true,
	CanPinMessages:        true,
}

// GrantRole applies the permission set behind a role identifier.
func (a *TelegramRoleAdapter) GrantRole(ctx context.Context, chatID, userID int64, roleID string) error {
	switch roleID {
	case model.RoleGuest:
		return a.restrict(ctx, chatID, userID, guestPermissions)
	case model.RoleCompleted:
		return a.restrict(ctx, chatID, userID, completedPermissions)
	default:
		return fmt.Errorf("unknown role %q", roleID)
	}
}

// RevokeRole removes a role. Revoking guest while completed is held is a
// no-op on Telegram since the grant already replaced the permission set.
func (a *TelegramRoleAdapter) RevokeRole(ctx context.Context, chatID, userID int64, roleID string) error {
	if roleID == model.RoleCompleted {
		return a.restrict(ctx, chatID, userID, guestPermissions)
	}
	return nil
}

func (a *TelegramRoleAdapter) restrict(ctx context.Context, chatID, userID int64, perms *models.ChatPermissions) error {
	_, err := a.b.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      chatID,
		UserID:      userID,
		Permissions: perms,
	})
	if err != nil {
		return fmt.Errorf("error updating member permissions: %w", err)
	}
	return nil
}

// SetDisplayName syncs the onboarded nickname. Telegram only allows custom
// titles for administrators, so this fails for regular members; the engine
// tolerates that.
func (a *TelegramRoleAdapter) SetDisplayName(ctx context.Context, chatID, userID int64, name string) error {
	_, err := a.b.SetChatAdministratorCustomTitle(ctx, &bot.SetChatAdministratorCustomTitleParams{
		ChatID:      chatID,
		UserID:      userID,
		CustomTitle: name,
	})
	if err != nil {
		return fmt.Errorf("error setting member title: %w", err)
	}
	return nil
}

// HasRole reports whether a member currently holds a role.
func (a *TelegramRoleAdapter) HasRole(ctx context.Context, chatID, userID int64, roleID string) (bool, error) {
	member, err := a.b.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chatID, UserID: userID})
	if err != nil {
		return false, fmt.Errorf("error fetching chat member: %w", err)
	}
	switch roleID {
	case model.RoleManage:
		return member.Owner != nil || member.Administrator != nil, nil
	case model.RoleGuest:
		return member.Restricted != nil && member.Restricted.IsMember, nil
	case model.RoleCompleted:
		return member.Member != nil || member.Administrator != nil || member.Owner != nil, nil
	default:
		return false, fmt.Errorf("unknown role %q", roleID)
	}
}

// IsMember reports whether the user is still present in the chat.
func (a *TelegramRoleAdapter) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	member, err := a.b.GetChatMember(ctx, &bot.GetChatMemberParams{ChatID: chatID, UserID: userID})
	if err != nil {
		return false, fmt.Errorf("error fetching chat member: %w", err)
	}
	if member.Left != nil || member.Banned != nil {
		return false, nil
	}
	if member.Restricted != nil {
		return member.Restricted.IsMember, nil
	}
	return true, nil
}

// Kick removes a member on their own request. The unban that follows lets
// them rejoin later.
func (a *TelegramRoleAdapter) Kick(ctx context.Context, chatID, userID int64) error {
	if _, err := a.b.BanChatMember(ctx, &bot.BanChatMemberParams{ChatID: chatID, UserID: userID}); err != nil {
		return fmt.Errorf("error removing chat member: %w", err)
	}
	if _, err := a.b.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{ChatID: chatID, UserID: userID, OnlyIfBanned: true}); err != nil {
		return fmt.Errorf("error lifting removal ban: %w", err)
	}
	return nil
}
