// Package workflow contains the onboarding state machine: the normalizer
// that collapses inbound events into canonical participant actions, the
// engine that applies them, and the reminder sweep.
package workflow

import (
	"context"

	"OnboardBot/model"
)

// Actor identifies the participant an action is being handled for.
type Actor struct {
	UserID   int64
	ChatID   int64 // community chat
	Username string
	// CanShowForm reports whether the channel the action arrived on can
	// collect a structured multi-field form.
	CanShowForm bool
}

// RecordStore persists participant records. Find returns the highest
// revision, which is what the wizard advances; FindAuthoritative prefers a
// completed revision over a newer in-progress one.
type RecordStore interface {
	Find(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error)
	FindAuthoritative(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error)
	Upsert(ctx context.Context, rec *model.MemberRecord) error
	DeleteAll(ctx context.Context, userID int64) (int, error)
	ListIncomplete(ctx context.Context, chatID int64) ([]*model.MemberRecord, error)
	Page(ctx context.Context, chatID int64, page, pageSize int) ([]*model.MemberRecord, int, error)
}

// AssetStore reads per-community onboarding configuration and assets.
type AssetStore interface {
	Config(ctx context.Context, chatID int64) (*model.OnboardingConfig, error)
	Steps(ctx context.Context, chatID int64) ([]model.Step, error)
	Reminder(ctx context.Context, chatID int64) (*model.MessageAsset, error)
	ViewTemplate(ctx context.Context, chatID int64) (*model.MessageAsset, error)
}

// Presenter renders workflow output on the chat platform. Implementations
// must tolerate being invoked for a channel that cannot show a structured
// form and degrade to a plain-text explanation.
type Presenter interface {
	RenderStep(ctx context.Context, actor Actor, step *model.Step, rec *model.MemberRecord) error
	RenderRetry(ctx context.Context, actor Actor, step *model.Step, errs []string) error
	SendDirect(ctx context.Context, actor Actor, text string) error
	SendList(ctx context.Context, actor Actor, lines []string) error
	SendChannel(ctx context.Context, channelID int64, asset *model.MessageAsset) error
}

// RoleAdapter applies identity and role changes on the chat platform.
type RoleAdapter interface {
	GrantRole(ctx context.Context, chatID, userID int64, roleID string) error
	RevokeRole(ctx context.Context, chatID, userID int64, roleID string) error
	SetDisplayName(ctx context.Context, chatID, userID int64, name string) error
	HasRole(ctx context.Context, chatID, userID int64, roleID string) (bool, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	Kick(ctx context.Context, chatID, userID int64) error
}

// Mailer dispatches verification codes out-of-band.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// ListSync adds verified addresses to the community mailing list.
type ListSync interface {
	AddGroupMember(ctx context.Context, groupID, email string) error
}
