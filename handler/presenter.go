package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/go-telegram/ui/paginator"

	"OnboardBot/model"
	"OnboardBot/workflow"
)

// TelegramPresenter renders workflow output as Telegram messages. Step
// prompts and retries go to the participant's private chat; structured
// forms are collected over a message session since Telegram has no modal
// forms.
type TelegramPresenter struct {
	b        *bot.Bot
	sessions *SessionManager
}

// NewTelegramPresenter creates a presenter bound to one bot.
func NewTelegramPresenter(b *bot.Bot, sessions *SessionManager) *TelegramPresenter {
	return &TelegramPresenter{b: b, sessions: sessions}
}

// RenderStep sends a step's prompt. A step with a form opens a collect
// session when the channel supports one; otherwise the prompt text alone is
// sent with a note, degrading instead of failing.
func (p *TelegramPresenter) RenderStep(ctx context.Context, actor workflow.Actor, step *model.Step, rec *model.MemberRecord) error {
	if step.Prompt != nil {
		params := &bot.SendMessageParams{
			ChatID: actor.UserID,
			Text:   step.Prompt.Text,
		}
		if kb := buttonMarkup(step.Prompt.Buttons); kb != nil {
			params.ReplyMarkup = kb
		}
		if _, err := p.b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("error sending step prompt: %w", err)
		}
	}

	if step.Form == nil {
		return nil
	}
	if !actor.CanShowForm {
		_, err := p.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: actor.UserID,
			Text:   "This step needs a few structured answers. Send me a direct message to continue.",
		})
		return err
	}
	prompt := p.sessions.Begin(actor.UserID, actor.ChatID, *step, rec)
	_, err := p.b.SendMessage(ctx, &bot.SendMessageParams{ChatID: actor.UserID, Text: prompt})
	if err != nil {
		return fmt.Errorf("error starting form session: %w", err)
	}
	return nil
}

// RenderRetry re-offers the same step with the collected field errors and a
// retry button. Previously valid answers are already on the record, so the
// retry pre-fills them.
func (p *TelegramPresenter) RenderRetry(ctx context.Context, actor workflow.Actor, step *model.Step, errs []string) error {
	text := fmt.Sprintf(
		"There was an error processing your responses.\n\n%s\n\nClick the button below to retry.",
		strings.Join(errs, "\n"),
	)
	retryData := fmt.Sprintf("%s.%s.%s", workflow.CallbackPrefix, step.Identifier, model.SignalRetry)
	_, err := p.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: actor.UserID,
		Text:   text,
		ReplyMarkup: &models.InlineKeyboardMarkup{
			InlineKeyboard: [][]models.InlineKeyboardButton{{
				{Text: "Retry", CallbackData: retryData},
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("error sending retry prompt: %w", err)
	}
	return nil
}

// SendDirect sends plain text to the participant's private chat.
func (p *TelegramPresenter) SendDirect(ctx context.Context, actor workflow.Actor, text string) error {
	_, err := p.b.SendMessage(ctx, &bot.SendMessageParams{ChatID: actor.UserID, Text: text})
	if err != nil {
		return fmt.Errorf("error sending direct message: %w", err)
	}
	return nil
}

// SendList shows a paginated list in the actor's private chat.
func (p *TelegramPresenter) SendList(ctx context.Context, actor workflow.Actor, lines []string) error {
	if len(lines) == 0 {
		return p.SendDirect(ctx, actor, "No additional records")
	}
	pg := paginator.New(p.b, lines, paginator.PerPage(10))
	if _, err := pg.Show(ctx, p.b, fmt.Sprintf("%d", actor.UserID)); err != nil {
		return fmt.Errorf("error showing list: %w", err)
	}
	return nil
}

// SendChannel posts a message asset to a community channel.
func (p *TelegramPresenter) SendChannel(ctx context.Context, channelID int64, asset *model.MessageAsset) error {
	params := &bot.SendMessageParams{ChatID: channelID, Text: asset.Text}
	if kb := buttonMarkup(asset.Buttons); kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := p.b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("error posting to channel: %w", err)
	}
	return nil
}

// buttonMarkup builds an inline keyboard from a prompt's signal buttons.
// Built raw rather than with the ui keyboard helper because callbacks must
// carry the pressing user's identity through the normalizer.
func buttonMarkup(rows [][]model.StepButton) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, models.InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
		}
		kb = append(kb, btns)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kb}
}
