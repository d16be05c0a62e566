package workflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OnboardBot/model"
	"OnboardBot/repo"
	"OnboardBot/validate"
)

const testChatID = int64(-100123)

func fixedNow() time.Time { return time.UnixMilli(1700000000000) }

type fakeRecords struct {
	rec           *model.MemberRecord
	authoritative *model.MemberRecord
	findErr       error
	upserts       []model.MemberRecord
	upsertErr     error
	incomplete    []*model.MemberRecord
	pageRecs      []*model.MemberRecord
	pageTotal     int
	deleted       int
}

func (f *fakeRecords) Find(_ context.Context, userID, chatID int64) (*model.MemberRecord, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.rec == nil || f.rec.UserID != userID || f.rec.ChatID != chatID {
		return nil, model.ErrNoRecord
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeRecords) FindAuthoritative(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error) {
	if f.authoritative != nil && f.authoritative.UserID == userID && f.authoritative.ChatID == chatID {
		cp := *f.authoritative
		return &cp, nil
	}
	return f.Find(ctx, userID, chatID)
}

func (f *fakeRecords) Upsert(_ context.Context, rec *model.MemberRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := *rec
	f.upserts = append(f.upserts, cp)
	f.rec = &cp
	return nil
}

func (f *fakeRecords) DeleteAll(_ context.Context, _ int64) (int, error) {
	return f.deleted, nil
}

func (f *fakeRecords) ListIncomplete(_ context.Context, _ int64) ([]*model.MemberRecord, error) {
	return f.incomplete, nil
}

func (f *fakeRecords) Page(_ context.Context, _ int64, _, _ int) ([]*model.MemberRecord, int, error) {
	return f.pageRecs, f.pageTotal, nil
}

type fakeAssets struct {
	cfg      *model.OnboardingConfig
	steps    []model.Step
	reminder *model.MessageAsset
	viewTpl  *model.MessageAsset
}

func (f *fakeAssets) Config(_ context.Context, _ int64) (*model.OnboardingConfig, error) {
	return f.cfg, nil
}

func (f *fakeAssets) Steps(_ context.Context, _ int64) ([]model.Step, error) {
	return f.steps, nil
}

func (f *fakeAssets) Reminder(_ context.Context, _ int64) (*model.MessageAsset, error) {
	return f.reminder, nil
}

func (f *fakeAssets) ViewTemplate(_ context.Context, _ int64) (*model.MessageAsset, error) {
	return f.viewTpl, nil
}

type renderedStep struct {
	userID int64
	stepID string
}

type fakePresenter struct {
	directs []string
	steps   []renderedStep
	retries [][]string
	lists   [][]string
	channel []string
}

func (f *fakePresenter) RenderStep(_ context.Context, actor Actor, step *model.Step, _ *model.MemberRecord) error {
	f.steps = append(f.steps, renderedStep{userID: actor.UserID, stepID: step.Identifier})
	return nil
}

func (f *fakePresenter) RenderRetry(_ context.Context, _ Actor, _ *model.Step, errs []string) error {
	f.retries = append(f.retries, errs)
	return nil
}

func (f *fakePresenter) SendDirect(_ context.Context, _ Actor, text string) error {
	f.directs = append(f.directs, text)
	return nil
}

func (f *fakePresenter) SendList(_ context.Context, _ Actor, lines []string) error {
	f.lists = append(f.lists, lines)
	return nil
}

func (f *fakePresenter) SendChannel(_ context.Context, channelID int64, asset *model.MessageAsset) error {
	f.channel = append(f.channel, fmt.Sprintf("%d: %s", channelID, asset.Text))
	return nil
}

func (f *fakePresenter) lastStep(t *testing.T) renderedStep {
	t.Helper()
	require.NotEmpty(t, f.steps)
	return f.steps[len(f.steps)-1]
}

type fakeRoles struct {
	granted []string
	revoked []string
	names   map[int64]string
	has     map[string]bool
	members map[int64]bool
	kicked  []int64
	nameErr error
}

func (f *fakeRoles) GrantRole(_ context.Context, _, userID int64, roleID string) error {
	f.granted = append(f.granted, fmt.Sprintf("%s:%d", roleID, userID))
	return nil
}

func (f *fakeRoles) RevokeRole(_ context.Context, _, userID int64, roleID string) error {
	f.revoked = append(f.revoked, fmt.Sprintf("%s:%d", roleID, userID))
	return nil
}

func (f *fakeRoles) SetDisplayName(_ context.Context, _, userID int64, name string) error {
	if f.nameErr != nil {
		return f.nameErr
	}
	if f.names == nil {
		f.names = map[int64]string{}
	}
	f.names[userID] = name
	return nil
}

func (f *fakeRoles) HasRole(_ context.Context, _, _ int64, roleID string) (bool, error) {
	return f.has[roleID], nil
}

func (f *fakeRoles) IsMember(_ context.Context, _, userID int64) (bool, error) {
	if f.members == nil {
		return true, nil
	}
	return f.members[userID], nil
}

func (f *fakeRoles) Kick(_ context.Context, _, userID int64) error {
	f.kicked = append(f.kicked, userID)
	return nil
}

type sentMail struct {
	to, code string
}

type fakeMailer struct {
	sent []sentMail
}

func (f *fakeMailer) SendVerificationCode(_ context.Context, to, code string) error {
	f.sent = append(f.sent, sentMail{to: to, code: code})
	return nil
}

type fakeListSync struct {
	added []string
}

func (f *fakeListSync) AddGroupMember(_ context.Context, groupID, email string) error {
	f.added = append(f.added, fmt.Sprintf("%s:%s", groupID, email))
	return nil
}

type stubGeocoder struct {
	candidate *repo.AddressCandidate
}

func (s *stubGeocoder) FindAddress(_ context.Context, _ string) (*repo.AddressCandidate, error) {
	return s.candidate, nil
}

type engineHarness struct {
	engine  *Engine
	records *fakeRecords
	assets  *fakeAssets
	present *fakePresenter
	roles   *fakeRoles
	mailer  *fakeMailer
	list    *fakeListSync
}

func testConfig() *model.OnboardingConfig {
	return &model.OnboardingConfig{
		ChatID:          testChatID,
		ChannelID:       -200456,
		GuestRoleID:     model.RoleGuest,
		CompletedRoleID: model.RoleCompleted,
		ManageRoleID:    model.RoleManage,
		PromptTime:      "09:00",
		MailerGroupID:   "grp-1",
	}
}

func testSteps() []model.Step {
	return []model.Step{
		{
			Identifier: "0000", ChatID: testChatID, Order: 0,
			Fields: []string{"started"},
			Prompt: &model.MessageAsset{
				Text:    "Welcome! Press Start to begin.",
				Buttons: [][]model.StepButton{{{Label: "Start", Data: "OnboardingAsset.0000.started"}}},
			},
		},
		{
			Identifier: "0001", ChatID: testChatID, Order: 1,
			Fields: []string{"nickname"},
			Form: &model.FormAsset{
				Title:  "About you",
				Inputs: []model.FormInput{{Field: "nickname", Label: "Nickname"}},
			},
		},
		{
			Identifier: "0002", ChatID: testChatID, Order: 2,
			Fields: []string{"email", "emailVerification"},
			Form: &model.FormAsset{
				Title: "Contact",
				Inputs: []model.FormInput{
					{Field: "email", Label: "Email"},
					{Field: "emailVerification", Label: "Verification code", Optional: true},
				},
			},
		},
		{
			Identifier: "0005", ChatID: testChatID, Order: 5,
			Fields: []string{"feedback"},
			Form: &model.FormAsset{
				Title:  "Feedback",
				Inputs: []model.FormInput{{Field: "feedback", Label: "Feedback", Optional: true}},
			},
		},
	}
}

func newHarness(t *testing.T) *engineHarness {
	t.Helper()
	h := &engineHarness{
		records: &fakeRecords{},
		assets:  &fakeAssets{cfg: testConfig(), steps: testSteps()},
		present: &fakePresenter{},
		roles:   &fakeRoles{has: map[string]bool{}},
		mailer:  &fakeMailer{},
		list:    &fakeListSync{},
	}
	h.engine = New(Deps{
		Records:    h.records,
		Assets:     h.assets,
		Presenter:  h.present,
		Roles:      h.roles,
		Mailer:     h.mailer,
		ListSync:   h.list,
		Validators: validate.NewRegistry(&stubGeocoder{}, fixedNow),
		Now:        fixedNow,
		Logger:     zerolog.Nop(),
	})
	return h
}

func participant() Actor {
	return Actor{UserID: 42, ChatID: testChatID, Username: "alex", CanShowForm: true}
}

func TestEngineFullRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := participant()
	h.roles.has[model.RoleGuest] = true

	// first contact creates the record and renders the first step; role
	// changes stay with the join handler
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{Kind: model.ActionIdentify}))
	require.NotNil(t, h.records.rec)
	assert.Empty(t, h.roles.granted)
	assert.Equal(t, renderedStep{userID: 42, stepID: "0000"}, h.present.lastStep(t))

	// pressing Start fills started and moves to the nickname step
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{Kind: model.ActionSignal, Signal: model.SignalStarted}))
	assert.Positive(t, h.records.rec.Started)
	assert.Equal(t, "0001", h.present.lastStep(t).stepID)

	// nickname submit persists and syncs the display name
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0001",
		Fields: map[string]string{"nickname": "Alex"},
	}))
	assert.Equal(t, "Alex", h.records.rec.Nickname)
	assert.Equal(t, "Alex", h.roles.names[42])
	assert.Equal(t, "0002", h.present.lastStep(t).stepID)

	// email submit mints a code and mails it after the write commits
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0002",
		Fields: map[string]string{"email": "alex@example.com"},
	}))
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "alex@example.com", h.mailer.sent[0].to)
	assert.Regexp(t, `^\d{6}$`, h.mailer.sent[0].code)
	assert.Equal(t, h.mailer.sent[0].code, h.records.rec.EmailVerificationCode)
	// still on the contact step until the code is confirmed
	assert.Equal(t, "0002", h.present.lastStep(t).stepID)

	// matching code clears the transient and syncs the mailing list
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0002",
		Fields: map[string]string{"emailVerification": h.mailer.sent[0].code},
	}))
	assert.Empty(t, h.records.rec.EmailVerificationCode)
	assert.True(t, h.records.rec.EmailVerified)
	assert.Equal(t, []string{"grp-1:alex@example.com"}, h.list.added)
	assert.Equal(t, "0005", h.present.lastStep(t).stepID)

	// final submit completes the record and swaps guest for completed
	require.NoError(t, h.engine.Handle(ctx, actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0005",
		Fields: map[string]string{"feedback": "great onboarding"},
	}))
	assert.Positive(t, h.records.rec.Completed)
	assert.Contains(t, h.roles.granted, "completed:42")
	assert.Contains(t, h.roles.revoked, "guest:42")
	assert.Contains(t, h.present.directs, "Onboarding complete. Thank you!")
}

func TestEnginePartialSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := participant()
	h.assets.steps = []model.Step{
		{
			Identifier: "0003", ChatID: testChatID, Order: 0,
			Fields: []string{"sms", "voice"},
			Form: &model.FormAsset{Title: "Phones", Inputs: []model.FormInput{
				{Field: "sms", Label: "SMS number"},
				{Field: "voice", Label: "Voice number"},
			}},
			Prompt: &model.MessageAsset{Text: "Phones"},
		},
	}
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID}

	err := h.engine.Handle(ctx, actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0003",
		Fields: map[string]string{"sms": "555-123-4567", "voice": "bogus"},
	})
	require.NoError(t, err)

	// the valid field persisted even though its sibling failed
	assert.Equal(t, "555.123.4567", h.records.rec.SMS)
	assert.Empty(t, h.records.rec.Voice)
	require.Len(t, h.present.retries, 1)
	require.Len(t, h.present.retries[0], 1)
	assert.Contains(t, h.present.retries[0][0], "voice")
}

func TestEngineUnknownSignal(t *testing.T) {
	h := newHarness(t)
	actor := participant()
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID, Started: 1, Version: 7}

	err := h.engine.Handle(context.Background(), actor, model.Action{Kind: model.ActionSignal, Signal: "bogus"})
	assert.ErrorIs(t, err, model.ErrUnhandledAction)
	// nothing written, participant told
	assert.Empty(t, h.records.upserts)
	require.NotEmpty(t, h.present.directs)
	assert.Contains(t, h.present.directs[0], "not handled")
}

func TestEngineSubmitWrongStep(t *testing.T) {
	h := newHarness(t)
	actor := participant()
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID, Started: 1}

	err := h.engine.Handle(context.Background(), actor, model.Action{
		Kind: model.ActionSubmit, StepID: "0005",
		Fields: map[string]string{"feedback": "early"},
	})
	assert.ErrorIs(t, err, model.ErrUnhandledAction)
	assert.Empty(t, h.records.upserts)
}

func TestEngineRecordConflict(t *testing.T) {
	h := newHarness(t)
	actor := participant()
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID}
	h.records.upsertErr = model.ErrRecordConflict

	err := h.engine.Handle(context.Background(), actor, model.Action{Kind: model.ActionSignal, Signal: model.SignalStarted})
	assert.ErrorIs(t, err, model.ErrRecordConflict)
	require.NotEmpty(t, h.present.directs)
	assert.Contains(t, h.present.directs[0], "retry")
	// no notifications fire when the write is rejected
	assert.Empty(t, h.mailer.sent)
}

func TestEngineNoStepsConfigured(t *testing.T) {
	h := newHarness(t)
	h.assets.steps = nil

	err := h.engine.Handle(context.Background(), participant(), model.Action{Kind: model.ActionIdentify})
	assert.ErrorIs(t, err, model.ErrNoStepsConfigured)
	require.NotEmpty(t, h.present.directs)
	assert.Contains(t, h.present.directs[0], "not configured")
}

func TestEngineFormNeedsDirectChannel(t *testing.T) {
	h := newHarness(t)
	actor := participant()
	actor.CanShowForm = false
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID}

	// started moves the cursor to the nickname step, which needs a form
	err := h.engine.Handle(context.Background(), actor, model.Action{Kind: model.ActionSignal, Signal: model.SignalStarted})
	assert.ErrorIs(t, err, model.ErrPresentationMismatch)
	assert.Empty(t, h.present.steps)
	require.NotEmpty(t, h.present.directs)
	assert.Contains(t, h.present.directs[len(h.present.directs)-1], "direct message")
}

func TestEngineCompletedMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	actor := participant()
	h.records.rec = completedRecord()

	t.Run("identify points at edit", func(t *testing.T) {
		require.NoError(t, h.engine.Handle(ctx, actor, model.Action{Kind: model.ActionIdentify}))
		require.NotEmpty(t, h.present.directs)
		assert.Contains(t, h.present.directs[len(h.present.directs)-1], "/onboard edit")
	})

	t.Run("view renders the template", func(t *testing.T) {
		h.assets.viewTpl = &model.MessageAsset{Text: "Nickname: $$nickname$$"}
		require.NoError(t, h.engine.Handle(ctx, actor, model.Action{Kind: model.ActionSignal, Signal: model.SignalView}))
		assert.Contains(t, h.present.directs[len(h.present.directs)-1], "Nickname: Alex")
	})

	t.Run("submits are rejected", func(t *testing.T) {
		err := h.engine.Handle(ctx, actor, model.Action{
			Kind: model.ActionSubmit, StepID: "0005",
			Fields: map[string]string{"feedback": "more"},
		})
		assert.ErrorIs(t, err, model.ErrUnhandledAction)
	})
}

func TestEngineLeaveSignal(t *testing.T) {
	h := newHarness(t)
	h.records.rec = &model.MemberRecord{UserID: 42, ChatID: testChatID}

	require.NoError(t, h.engine.Handle(context.Background(), participant(),
		model.Action{Kind: model.ActionSignal, Signal: model.SignalLeave}))
	assert.Equal(t, []int64{42}, h.roles.kicked)
	assert.Empty(t, h.records.upserts)
}

// completedRecord is a record with every catalog-visible field filled.
func completedRecord() *model.MemberRecord {
	return &model.MemberRecord{
		UserID: 42, ChatID: testChatID,
		Started: 1, Nickname: "Alex", LegalName: "Alex Doe",
		LegalAddress: "123 Main St, Springfield, IL, 62701",
		Email:        "alex@example.com", EmailVerified: true, EmailVerification: "424242",
		SMS: "555.123.4567", Voice: "555.123.4567",
		Social: []string{"@alex"}, ContactVerified: 1,
		Feedback: "great", Completed: 1700000000000,
	}
}
