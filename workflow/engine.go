package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"OnboardBot/model"
	"OnboardBot/validate"
)

// Engine drives the onboarding state machine. The participant's position is
// derived from the record's filled fields on every action; nothing stores a
// step cursor.
type Engine struct {
	records    RecordStore
	assets     AssetStore
	present    Presenter
	roles      RoleAdapter
	mailer     Mailer
	list       ListSync
	validators *validate.Registry
	now        func() time.Time
	log        zerolog.Logger
}

// Deps carries the engine's collaborators. Lifecycle is owned by whoever
// assembles the process.
type Deps struct {
	Records    RecordStore
	Assets     AssetStore
	Presenter  Presenter
	Roles      RoleAdapter
	Mailer     Mailer
	ListSync   ListSync
	Validators *validate.Registry
	Now        func() time.Time
	Logger     zerolog.Logger
}

// New creates a workflow engine.
func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		records:    deps.Records,
		assets:     deps.Assets,
		present:    deps.Presenter,
		roles:      deps.Roles,
		mailer:     deps.Mailer,
		list:       deps.ListSync,
		validators: deps.Validators,
		now:        deps.Now,
		log:        deps.Logger.With().Str("component", "workflow").Logger(),
	}
}

// Handle applies one canonical participant action.
func (e *Engine) Handle(ctx context.Context, actor Actor, act model.Action) error {
	if act.Kind == model.ActionScheduled {
		return e.remind(ctx, actor, act)
	}
	return e.advance(ctx, actor, act)
}

func (e *Engine) advance(ctx context.Context, actor Actor, act model.Action) error {
	cfg, steps, err := e.loadCommunity(ctx, actor)
	if err != nil {
		return err
	}

	rec, created, err := e.loadOrCreateRecord(ctx, actor)
	if err != nil {
		return fmt.Errorf("error loading member record: %w", err)
	}
	prevNickname := rec.Nickname
	wasCompleted := rec.Completed > 0

	cur, err := model.CurrentStep(rec, steps)
	if err != nil {
		e.terse(ctx, actor, "Onboarding is not configured for this community.")
		return err
	}
	if cur == nil {
		return e.handleCompleted(ctx, actor, act, rec)
	}
	if act.Kind == model.ActionIdentify && !created && wasCompleted {
		e.log.Info().Int64("user", actor.UserID).Int64("chat", actor.ChatID).Msg("completed member re-identified")
	}

	var fieldErrs []string
	var notifs []*validate.Notification
	mutated := created

	switch act.Kind {
	case model.ActionIdentify:
		// evaluation only; the record mutates through submits and signals

	case model.ActionSignal:
		done, err := e.applySignal(ctx, actor, act.Signal, rec, &mutated)
		if done || err != nil {
			return err
		}

	case model.ActionSubmit:
		if act.StepID != cur.Identifier {
			e.terse(ctx, actor, "That submission is not handled at this time.")
			return model.ErrUnhandledAction
		}
		for _, field := range cur.Fields {
			raw, ok := act.Fields[field]
			if !ok {
				continue
			}
			res, err := e.validators.Validate(ctx, field, raw, rec, cfg)
			if err != nil {
				var fe *model.FieldError
				if errors.As(err, &fe) {
					fieldErrs = append(fieldErrs, fe.Message)
				} else {
					e.log.Error().Err(err).Str("field", field).Msg("validator failure")
					fieldErrs = append(fieldErrs, fmt.Sprintf("could not validate %s", field))
				}
				continue
			}
			rec.SetField(field, res.Value)
			for k, v := range res.Extra {
				rec.SetField(k, v)
			}
			if res.Notify != nil {
				notifs = append(notifs, res.Notify)
			}
			mutated = true
		}

	default:
		e.terse(ctx, actor, "That action is not handled at this time.")
		return model.ErrUnhandledAction
	}

	next, _ := model.CurrentStep(rec, steps)
	if len(fieldErrs) == 0 && next == nil && rec.Completed == 0 {
		rec.Completed = e.now().UnixMilli()
		mutated = true
	}

	if mutated {
		if err := e.records.Upsert(ctx, rec); err != nil {
			if errors.Is(err, model.ErrRecordConflict) {
				e.terse(ctx, actor, "Your submission raced with another update and was not saved. Please retry.")
				return err
			}
			return fmt.Errorf("error persisting member record: %w", err)
		}
	}

	// Post-commit notifications are best-effort and never roll back the
	// record write.
	e.dispatchNotifications(ctx, cfg, notifs)
	e.applyRoleEffects(ctx, actor, cfg, rec, prevNickname)

	if len(fieldErrs) > 0 {
		return e.present.RenderRetry(ctx, actor, e.filledPrompt(cur, cfg), fieldErrs)
	}
	if next == nil {
		return e.present.SendDirect(ctx, actor, "Onboarding complete. Thank you!")
	}
	if next.Form != nil && !actor.CanShowForm {
		e.terse(ctx, actor, "The next step needs a structured form that this channel cannot show. Send me a direct message to continue.")
		return model.ErrPresentationMismatch
	}
	return e.present.RenderStep(ctx, actor, e.filledPrompt(next, cfg), rec)
}

// applySignal mutates the record for a recognized signal. It returns done
// when the signal fully handled the action (no render follows).
func (e *Engine) applySignal(ctx context.Context, actor Actor, signal string, rec *model.MemberRecord, mutated *bool) (bool, error) {
	switch signal {
	case model.SignalStarted:
		if rec.Started == 0 {
			rec.Started = e.now().UnixMilli()
			*mutated = true
		}
	case model.SignalLeave:
		if err := e.roles.Kick(ctx, actor.ChatID, actor.UserID); err != nil {
			e.log.Error().Err(err).Int64("user", actor.UserID).Msg("side effect failed: kick on leave")
		}
		return true, nil
	case model.SignalEmailVerified:
		rec.EmailVerified = true
		*mutated = true
	case model.SignalContactVerified:
		rec.ContactVerified = e.now().UnixMilli()
		*mutated = true
	case model.SignalRetry:
		// fall through to re-render the current step
	case model.SignalView:
		return true, e.renderView(ctx, actor, rec)
	default:
		e.terse(ctx, actor, "That action is not handled at this time.")
		return true, model.ErrUnhandledAction
	}
	return false, nil
}

// handleCompleted serves actions arriving after every step is satisfied.
func (e *Engine) handleCompleted(ctx context.Context, actor Actor, act model.Action, rec *model.MemberRecord) error {
	switch {
	case act.Kind == model.ActionSignal && act.Signal == model.SignalView:
		return e.renderView(ctx, actor, rec)
	case act.Kind == model.ActionIdentify:
		return e.present.SendDirect(ctx, actor,
			"Your onboarding application is complete. Use /onboard edit to revise your answers.")
	default:
		e.terse(ctx, actor, "That action is not handled at this time.")
		return model.ErrUnhandledAction
	}
}

func (e *Engine) dispatchNotifications(ctx context.Context, cfg *model.OnboardingConfig, notifs []*validate.Notification) {
	for _, n := range notifs {
		var err error
		switch n.Kind {
		case validate.NotifyVerificationMail:
			err = e.mailer.SendVerificationCode(ctx, n.Email, n.Code)
		case validate.NotifyListSync:
			err = e.list.AddGroupMember(ctx, cfg.MailerGroupID, n.Email)
		}
		if err != nil {
			e.log.Error().Err(err).Str("email", n.Email).Msg("side effect failed: notification")
		}
	}
}

func (e *Engine) applyRoleEffects(ctx context.Context, actor Actor, cfg *model.OnboardingConfig, rec *model.MemberRecord, prevNickname string) {
	if rec.Completed > 0 {
		guest, err := e.roles.HasRole(ctx, actor.ChatID, actor.UserID, cfg.GuestRoleID)
		if err != nil {
			e.log.Error().Err(err).Int64("user", actor.UserID).Msg("side effect failed: guest role check")
		} else if guest {
			if err := e.roles.GrantRole(ctx, actor.ChatID, actor.UserID, cfg.CompletedRoleID); err != nil {
				e.log.Error().Err(err).Int64("user", actor.UserID).Msg("side effect failed: completed role grant")
			}
			if err := e.roles.RevokeRole(ctx, actor.ChatID, actor.UserID, cfg.GuestRoleID); err != nil {
				e.log.Error().Err(err).Int64("user", actor.UserID).Msg("side effect failed: guest role revoke")
			}
		}
	}
	if rec.Nickname != "" && rec.Nickname != prevNickname {
		if err := e.roles.SetDisplayName(ctx, actor.ChatID, actor.UserID, rec.Nickname); err != nil {
			// the platform may not allow renaming this member
			e.log.Warn().Err(err).Int64("user", actor.UserID).Msg("could not sync display name")
		}
	}
}

func (e *Engine) renderView(ctx context.Context, actor Actor, rec *model.MemberRecord) error {
	tpl, err := e.assets.ViewTemplate(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading view template: %w", err)
	}
	return e.present.SendDirect(ctx, actor, viewText(tpl, rec))
}

// viewText renders a record through the community's view template, falling
// back to a plain field dump when none is configured.
func viewText(tpl *model.MessageAsset, rec *model.MemberRecord) string {
	if tpl != nil {
		return model.FillRecordVars(tpl.Text, rec)
	}
	var b strings.Builder
	for _, f := range model.RecordFields {
		v := rec.Field(f)
		if v == "" {
			v = "*Incomplete*"
		}
		fmt.Fprintf(&b, "%s: %s\n", f, v)
	}
	return b.String()
}

// filledPrompt copies a step with its prompt's config placeholders resolved.
func (e *Engine) filledPrompt(step *model.Step, cfg *model.OnboardingConfig) *model.Step {
	if step.Prompt == nil {
		return step
	}
	filled := *step
	prompt := *step.Prompt
	prompt.Text = model.FillConfigVars(prompt.Text, cfg)
	filled.Prompt = &prompt
	return &filled
}

func (e *Engine) loadCommunity(ctx context.Context, actor Actor) (*model.OnboardingConfig, []model.Step, error) {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading onboarding config: %w", err)
	}
	steps, err := e.assets.Steps(ctx, actor.ChatID)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading step catalog: %w", err)
	}
	if len(steps) == 0 {
		e.terse(ctx, actor, "Onboarding is not configured for this community.")
		return nil, nil, model.ErrNoStepsConfigured
	}
	return cfg, steps, nil
}

func (e *Engine) loadOrCreateRecord(ctx context.Context, actor Actor) (*model.MemberRecord, bool, error) {
	rec, err := e.records.Find(ctx, actor.UserID, actor.ChatID)
	if errors.Is(err, model.ErrNoRecord) {
		return &model.MemberRecord{UserID: actor.UserID, ChatID: actor.ChatID}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// terse sends a short failure message to the actor, logging delivery
// problems instead of propagating them.
func (e *Engine) terse(ctx context.Context, actor Actor, text string) {
	if err := e.present.SendDirect(ctx, actor, text); err != nil {
		e.log.Error().Err(err).Int64("user", actor.UserID).Msg("could not deliver message")
	}
}
