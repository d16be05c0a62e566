package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"

	"OnboardBot/model"
)

const listPageSize = 10

// Administrative operations. These are reads and overrides, not state
// transitions; each is gated on the community's management role unless the
// actor is operating on their own record.

// List sends the actor one page of the community's applications, sorted by
// completion percentage. A field name lists that field instead.
func (e *Engine) List(ctx context.Context, actor Actor, page int, field string) error {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	if err := e.requireManager(ctx, actor, cfg, "list onboarding applications"); err != nil {
		return err
	}

	if page < 1 {
		page = 1
	}
	recs, total, err := e.records.Page(ctx, actor.ChatID, page, listPageSize)
	if err != nil {
		return fmt.Errorf("error paging member records: %w", err)
	}

	pages := int(math.Ceil(float64(total) / float64(listPageSize)))
	lines := []string{fmt.Sprintf("Page (%d / %d)", page, pages)}
	for _, rec := range recs {
		if field == "" {
			lines = append(lines, fmt.Sprintf("user %d: %.1f%%", rec.UserID, rec.PercentComplete()))
			continue
		}
		v := rec.Field(field)
		if v == "" {
			v = "*Incomplete*"
		}
		lines = append(lines, fmt.Sprintf("user %d: %s", rec.UserID, v))
	}
	return e.present.SendList(ctx, actor, lines)
}

// Post publishes the first step's prompt to a channel, defaulting to the
// community's configured onboarding channel.
func (e *Engine) Post(ctx context.Context, actor Actor, channelID int64) error {
	cfg, steps, err := e.loadCommunity(ctx, actor)
	if err != nil {
		return err
	}
	if err := e.requireManager(ctx, actor, cfg, "post onboarding applications"); err != nil {
		return err
	}

	first := model.FirstStep(steps)
	if first.Prompt == nil {
		return fmt.Errorf("first step %q has no prompt asset", first.Identifier)
	}
	if channelID == 0 {
		channelID = cfg.ChannelID
	}
	prompt := *first.Prompt
	prompt.Text = model.FillConfigVars(prompt.Text, cfg)
	return e.present.SendChannel(ctx, channelID, &prompt)
}

// Pending re-invokes the reminder path: for one named participant when a
// target is given, otherwise for every incomplete member of the community.
func (e *Engine) Pending(ctx context.Context, actor Actor, targetUserID int64) error {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	if err := e.requireManager(ctx, actor, cfg, "force an onboarding reminder"); err != nil {
		return err
	}
	return e.remind(ctx, actor, model.Action{
		Kind:         model.ActionScheduled,
		ChatID:       actor.ChatID,
		TargetUserID: targetUserID,
	})
}

// Delete removes every revision of a participant's record.
func (e *Engine) Delete(ctx context.Context, actor Actor, targetUserID int64) error {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	if err := e.requireManager(ctx, actor, cfg, "delete onboarding applications"); err != nil {
		return err
	}

	deleted, err := e.records.DeleteAll(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("error deleting member records: %w", err)
	}
	return e.present.SendDirect(ctx, actor, fmt.Sprintf("Deleted (%d) applications for user.", deleted))
}

// Edit opens a fresh record at the next revision for the target participant
// and re-enters the workflow. The prior completed revision stays
// authoritative until the new one completes.
func (e *Engine) Edit(ctx context.Context, actor Actor, targetUserID int64) error {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	if targetUserID == 0 || targetUserID == actor.UserID {
		targetUserID = actor.UserID
	} else if err := e.requireManager(ctx, actor, cfg, "edit others' onboarding applications"); err != nil {
		return err
	}

	prev, err := e.records.Find(ctx, targetUserID, actor.ChatID)
	if errors.Is(err, model.ErrNoRecord) {
		e.terse(ctx, actor, "No application exists for that user; onboarding will start fresh.")
		prev = &model.MemberRecord{UserID: targetUserID, ChatID: actor.ChatID, Revision: -1}
	} else if err != nil {
		return fmt.Errorf("error loading member record: %w", err)
	}

	next := &model.MemberRecord{
		UserID:   targetUserID,
		ChatID:   actor.ChatID,
		Revision: prev.Revision + 1,
	}
	if err := e.records.Upsert(ctx, next); err != nil {
		return fmt.Errorf("error opening edit revision: %w", err)
	}

	target := Actor{UserID: targetUserID, ChatID: actor.ChatID, CanShowForm: true}
	return e.advance(ctx, target, model.Action{Kind: model.ActionIdentify})
}

// View renders a participant's application from the community's view
// template, to the actor directly or publicly to the onboarding channel.
func (e *Engine) View(ctx context.Context, actor Actor, targetUserID int64, public bool) error {
	cfg, err := e.assets.Config(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	if targetUserID == 0 || targetUserID == actor.UserID {
		targetUserID = actor.UserID
	} else if err := e.requireManager(ctx, actor, cfg, "view others' onboarding applications"); err != nil {
		return err
	}

	rec, err := e.records.FindAuthoritative(ctx, targetUserID, actor.ChatID)
	if errors.Is(err, model.ErrNoRecord) {
		e.terse(ctx, actor, fmt.Sprintf("No application exists for user %d.", targetUserID))
		return err
	}
	if err != nil {
		return fmt.Errorf("error loading member record: %w", err)
	}

	if !public {
		return e.renderView(ctx, actor, rec)
	}
	tpl, err := e.assets.ViewTemplate(ctx, actor.ChatID)
	if err != nil {
		return fmt.Errorf("error loading view template: %w", err)
	}
	return e.present.SendChannel(ctx, cfg.ChannelID, &model.MessageAsset{Text: viewText(tpl, rec)})
}

func (e *Engine) requireManager(ctx context.Context, actor Actor, cfg *model.OnboardingConfig, action string) error {
	ok, err := e.roles.HasRole(ctx, actor.ChatID, actor.UserID, cfg.ManageRoleID)
	if err != nil {
		return fmt.Errorf("error checking management role: %w", err)
	}
	if !ok {
		e.terse(ctx, actor, fmt.Sprintf("You do not have permission to %s.", action))
		return model.ErrPermissionDenied
	}
	return nil
}
