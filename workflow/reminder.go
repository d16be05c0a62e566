package workflow

import (
	"context"
	"errors"
	"fmt"

	"OnboardBot/model"
)

// remind serves the scheduled action: re-send the first step's prompt plus
// a reminder message to every community member without a completed record,
// or to one named participant regardless of completeness.
func (e *Engine) remind(ctx context.Context, actor Actor, act model.Action) error {
	chatID := act.ChatID
	cfg, err := e.assets.Config(ctx, chatID)
	if err != nil {
		return fmt.Errorf("error loading onboarding config: %w", err)
	}
	steps, err := e.assets.Steps(ctx, chatID)
	if err != nil {
		return fmt.Errorf("error loading step catalog: %w", err)
	}
	if len(steps) == 0 {
		return model.ErrNoStepsConfigured
	}

	first := e.filledPrompt(model.FirstStep(steps), cfg)
	reminder, err := e.assets.Reminder(ctx, chatID)
	if err != nil {
		return fmt.Errorf("error loading reminder asset: %w", err)
	}
	var reminderText string
	if reminder != nil {
		reminderText = model.FillConfigVars(reminder.Text, cfg)
	}

	if act.TargetUserID != 0 {
		return e.remindOne(ctx, actor, chatID, act.TargetUserID, first, reminderText)
	}
	return e.remindSweep(ctx, chatID, first, reminderText)
}

// remindOne prompts a single participant on demand. The documented override:
// the prompt is sent regardless of the record's completeness.
func (e *Engine) remindOne(ctx context.Context, actor Actor, chatID, targetUserID int64, first *model.Step, reminderText string) error {
	target := Actor{UserID: targetUserID, ChatID: chatID, CanShowForm: true}
	rec, err := e.records.Find(ctx, targetUserID, chatID)
	if errors.Is(err, model.ErrNoRecord) {
		rec = &model.MemberRecord{UserID: targetUserID, ChatID: chatID}
	} else if err != nil {
		return fmt.Errorf("error loading member record: %w", err)
	}

	if err := e.present.RenderStep(ctx, target, first, rec); err != nil {
		return fmt.Errorf("error sending onboarding prompt: %w", err)
	}
	if reminderText != "" {
		if err := e.present.SendDirect(ctx, target, reminderText); err != nil {
			e.log.Error().Err(err).Int64("user", targetUserID).Msg("could not deliver reminder")
		}
	}
	if actor.UserID != 0 {
		e.terse(ctx, actor, fmt.Sprintf("Onboarding message sent to user %d.", targetUserID))
	}
	return nil
}

func (e *Engine) remindSweep(ctx context.Context, chatID int64, first *model.Step, reminderText string) error {
	e.log.Info().Int64("chat", chatID).Msg("prompting incomplete members")

	incomplete, err := e.records.ListIncomplete(ctx, chatID)
	if err != nil {
		return fmt.Errorf("error listing incomplete records: %w", err)
	}

	// Audit which known participants are still present. Departures are
	// logged for operators; nothing destructive happens here.
	var present, departed []int64
	for _, rec := range incomplete {
		member, err := e.roles.IsMember(ctx, chatID, rec.UserID)
		if err != nil {
			e.log.Error().Err(err).Int64("user", rec.UserID).Msg("membership check failed")
			continue
		}
		if !member {
			departed = append(departed, rec.UserID)
			continue
		}
		present = append(present, rec.UserID)

		target := Actor{UserID: rec.UserID, ChatID: chatID, CanShowForm: true}
		if err := e.present.RenderStep(ctx, target, first, rec); err != nil {
			e.log.Error().Err(err).Int64("user", rec.UserID).Msg("could not deliver onboarding prompt")
			continue
		}
		if reminderText != "" {
			if err := e.present.SendDirect(ctx, target, reminderText); err != nil {
				e.log.Error().Err(err).Int64("user", rec.UserID).Msg("could not deliver reminder")
			}
		}
	}

	e.log.Info().
		Int64("chat", chatID).
		Ints64("prompted", present).
		Ints64("departed", departed).
		Int("incomplete", len(incomplete)).
		Msg("onboarding reminder sweep finished")
	return nil
}
