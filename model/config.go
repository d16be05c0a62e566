package model

import "regexp"

// Role identifiers used by the onboarding config. The role adapter decides
// what each means on the chat platform.
const (
	RoleGuest     = "guest"
	RoleCompleted = "completed"
	RoleManage    = "manage"
)

// OnboardingConfig is the per-community onboarding configuration. Exactly
// one exists per community; it is loaded once and cached for the process
// lifetime, so config changes require a restart or an explicit cache bust.
type OnboardingConfig struct {
	ChatID          int64  `firestore:"chatID" yaml:"chatID"`
	ChannelID       int64  `firestore:"channelID" yaml:"channelID"`
	GuestRoleID     string `firestore:"guestRoleID" yaml:"guestRoleID"`
	CompletedRoleID string `firestore:"completedRoleID" yaml:"completedRoleID"`
	ManageRoleID    string `firestore:"manageRoleID" yaml:"manageRoleID"`
	PromptTime      string `firestore:"promptTime" yaml:"promptTime"`
	MailerGroupID   string `firestore:"mailerGroupID" yaml:"mailerGroupID"`
}

var templateVar = regexp.MustCompile(`\$\$(\w+)\$\$`)

// FillConfigVars substitutes $$key$$ placeholders in prompt text with values
// from the community config.
func FillConfigVars(text string, cfg *OnboardingConfig) string {
	return templateVar.ReplaceAllStringFunc(text, func(m string) string {
		key := templateVar.FindStringSubmatch(m)[1]
		switch key {
		case "guestRoleID":
			return cfg.GuestRoleID
		case "completedRoleID":
			return cfg.CompletedRoleID
		case "manageRoleID":
			return cfg.ManageRoleID
		case "promptTime":
			return cfg.PromptTime
		default:
			return m
		}
	})
}

// FillRecordVars substitutes $$field$$ placeholders in a view template with
// record values, marking unfilled fields as incomplete.
func FillRecordVars(text string, rec *MemberRecord) string {
	return templateVar.ReplaceAllStringFunc(text, func(m string) string {
		field := templateVar.FindStringSubmatch(m)[1]
		if v := rec.Field(field); v != "" {
			return v
		}
		return "*Incomplete*"
	})
}
