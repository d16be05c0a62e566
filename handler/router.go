package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"OnboardBot/model"
	"OnboardBot/workflow"
)

// communityResolver finds the community a direct message belongs to and
// looks up existing records on join events.
type communityResolver interface {
	Find(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error)
	FindByUser(ctx context.Context, userID int64) (*model.MemberRecord, error)
}

// configSource reads community configs, for resolution fallback and the
// join-time guest role.
type configSource interface {
	Config(ctx context.Context, chatID int64) (*model.OnboardingConfig, error)
	AllConfigs(ctx context.Context) ([]*model.OnboardingConfig, error)
}

// Router receives every Telegram update, reduces it to a raw inbound event
// and hands it to the normalizer and workflow engine.
type Router struct {
	engine   *workflow.Engine
	sessions *SessionManager
	records  communityResolver
	configs  configSource
	roles    workflow.RoleAdapter
	log      zerolog.Logger
}

// NewRouter creates the update router.
func NewRouter(engine *workflow.Engine, sessions *SessionManager, records communityResolver, configs configSource, roles workflow.RoleAdapter, logger zerolog.Logger) *Router {
	return &Router{
		engine:   engine,
		sessions: sessions,
		records:  records,
		configs:  configs,
		roles:    roles,
		log:      logger.With().Str("component", "handler").Logger(),
	}
}

// Handle is the bot's default update handler.
func (r *Router) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		r.handleCallback(ctx, b, update.CallbackQuery)
	case update.Message != nil:
		r.handleMessage(ctx, b, update.Message)
	}
}

func (r *Router) handleMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	if len(msg.NewChatMembers) > 0 {
		for _, joined := range msg.NewChatMembers {
			if joined.IsBot {
				continue
			}
			r.handleJoin(ctx, msg.Chat.ID, joined)
		}
		return
	}
	if msg.From == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	private := msg.Chat.Type == models.ChatTypePrivate

	switch {
	case strings.HasPrefix(text, "/onboard"):
		r.sessions.Abort(msg.From.ID)
		r.handleCommand(ctx, b, msg, text)
	case private && text == "/start":
		r.handleCommand(ctx, b, msg, "/onboard start")
	case private && r.sessions.Active(msg.From.ID):
		r.continueSession(ctx, b, msg, text)
	}
}

// handleJoin grants the guest role to first-time joiners before the
// workflow sees them. A member with an existing record is rejoining; they
// keep whatever role they hold and the rejoin is logged.
func (r *Router) handleJoin(ctx context.Context, chatID int64, joined models.User) {
	if _, err := r.records.Find(ctx, joined.ID, chatID); err == nil {
		r.log.Info().Int64("user", joined.ID).Int64("chat", chatID).Msg("known member rejoined")
	} else if cfg, err := r.configs.Config(ctx, chatID); err != nil {
		r.log.Error().Err(err).Int64("chat", chatID).Msg("could not load config for join")
	} else if err := r.roles.GrantRole(ctx, chatID, joined.ID, cfg.GuestRoleID); err != nil {
		r.log.Error().Err(err).Int64("user", joined.ID).Msg("could not grant guest role")
	}

	r.dispatch(ctx, workflow.Inbound{
		Kind:     workflow.InboundJoin,
		UserID:   joined.ID,
		ChatID:   chatID,
		Username: joined.Username,
	})
}

func (r *Router) continueSession(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	prompt, submit := r.sessions.HandleMessage(msg.From.ID, text)
	if prompt != "" {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.From.ID, Text: prompt}); err != nil {
			r.log.Error().Err(err).Int64("user", msg.From.ID).Msg("could not send form prompt")
		}
		return
	}
	if submit == nil {
		return
	}
	submit.UserID = msg.From.ID
	submit.Username = msg.From.Username
	r.dispatch(ctx, *submit)
}

func (r *Router) handleCallback(ctx context.Context, b *bot.Bot, cq *models.CallbackQuery) {
	if !strings.HasPrefix(cq.Data, workflow.CallbackPrefix+".") {
		return
	}
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID}); err != nil {
		r.log.Warn().Err(err).Msg("could not answer callback query")
	}

	chatID := int64(0)
	private := true
	if cq.Message.Message != nil {
		chat := cq.Message.Message.Chat
		private = chat.Type == models.ChatTypePrivate
		if !private {
			chatID = chat.ID
		}
	}
	if chatID == 0 {
		chatID = r.resolveCommunity(ctx, cq.From.ID)
	}

	r.dispatch(ctx, workflow.Inbound{
		Kind:         workflow.InboundButton,
		UserID:       cq.From.ID,
		ChatID:       chatID,
		Username:     cq.From.Username,
		CallbackData: cq.Data,
		CanShowForm:  private,
	})
}

func (r *Router) handleCommand(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	args := strings.Fields(text)
	sub := "start"
	if len(args) > 1 {
		sub = args[1]
	}

	private := msg.Chat.Type == models.ChatTypePrivate
	chatID := msg.Chat.ID
	if private {
		chatID = r.resolveCommunity(ctx, msg.From.ID)
	}
	if chatID == 0 {
		r.reply(ctx, b, msg, "I can't tell which community this is for. Run the command in your community chat first.")
		return
	}

	actor := workflow.Actor{
		UserID:      msg.From.ID,
		ChatID:      chatID,
		Username:    msg.From.Username,
		CanShowForm: private,
	}

	var err error
	switch sub {
	case "start":
		r.dispatch(ctx, workflow.Inbound{
			Kind:        workflow.InboundCommand,
			UserID:      msg.From.ID,
			ChatID:      chatID,
			Username:    msg.From.Username,
			CanShowForm: private,
		})
		return
	case "list":
		page := optionalInt(args, 2)
		field := optionalArg(args, 3)
		err = r.engine.List(ctx, actor, page, field)
	case "post":
		err = r.engine.Post(ctx, actor, int64(optionalInt(args, 2)))
	case "pending":
		err = r.engine.Pending(ctx, actor, r.targetUser(msg, args, 2))
	case "delete":
		target := r.targetUser(msg, args, 2)
		if target == 0 {
			r.reply(ctx, b, msg, "Usage: /onboard delete <user id>")
			return
		}
		err = r.engine.Delete(ctx, actor, target)
	case "edit":
		err = r.engine.Edit(ctx, actor, r.targetUser(msg, args, 2))
	case "view":
		target := r.targetUser(msg, args, 2)
		public := optionalArg(args, 3) == "public" || optionalArg(args, 2) == "public"
		err = r.engine.View(ctx, actor, target, public)
	default:
		r.reply(ctx, b, msg, "Invalid subcommand for /onboard: "+sub)
		return
	}
	if err != nil {
		r.log.Error().Err(err).Str("subcommand", sub).Int64("user", msg.From.ID).Msg("command failed")
	}
}

// dispatch normalizes a raw inbound event and runs it through the engine.
func (r *Router) dispatch(ctx context.Context, ev workflow.Inbound) {
	actor, act, err := workflow.Normalize(ev)
	if err != nil {
		r.log.Warn().Err(err).Int64("user", ev.UserID).Msg("could not normalize inbound event")
		return
	}
	if err := r.engine.Handle(ctx, actor, act); err != nil {
		if errors.Is(err, model.ErrUnhandledAction) || errors.Is(err, model.ErrRecordConflict) || errors.Is(err, model.ErrPresentationMismatch) {
			// already surfaced to the participant
			r.log.Debug().Err(err).Int64("user", ev.UserID).Msg("action rejected")
			return
		}
		r.log.Error().Err(err).Int64("user", ev.UserID).Msg("action failed")
	}
}

// resolveCommunity maps a direct-message user onto a community: their
// existing record wins, else a sole configured community.
func (r *Router) resolveCommunity(ctx context.Context, userID int64) int64 {
	if rec, err := r.records.FindByUser(ctx, userID); err == nil {
		return rec.ChatID
	}
	configs, err := r.configs.AllConfigs(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("could not list community configs")
		return 0
	}
	if len(configs) == 1 {
		return configs[0].ChatID
	}
	return 0
}

// targetUser reads a target participant from a numeric argument or the
// replied-to message.
func (r *Router) targetUser(msg *models.Message, args []string, idx int) int64 {
	if id, err := strconv.ParseInt(optionalArg(args, idx), 10, 64); err == nil {
		return id
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID
	}
	return 0
}

func (r *Router) reply(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text}); err != nil {
		r.log.Error().Err(err).Msg("could not send reply")
	}
}

func optionalArg(args []string, idx int) string {
	if idx < len(args) {
		return args[idx]
	}
	return ""
}

func optionalInt(args []string, idx int) int {
	n, err := strconv.Atoi(optionalArg(args, idx))
	if err != nil {
		return 0
	}
	return n
}
