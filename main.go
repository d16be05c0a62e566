package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"OnboardBot/handler"
	"OnboardBot/repo"
	"OnboardBot/scheduler"
	"OnboardBot/validate"
	"OnboardBot/workflow"
)

// Config is the process environment.
type Config struct {
	BotToken string `env:"BOT_TOKEN,required"`

	FirebaseProjectID     string `env:"FIREBASE_PROJECT_ID,required"`
	ServiceAccountKeyPath string `env:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	MailFrom string `env:"MAIL_FROM" envDefault:"no-reply@onboardbot.local"`

	MailerLiteAPIKey string `env:"MAILERLITE_API_KEY"`

	Debug bool `env:"DEBUG"`
}

func main() {
	seedFile := flag.String("seed", "", "seed onboarding assets from a YAML file and exit")
	flag.Parse()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("error parsing environment")
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fc, err := repo.NewFirestoreConnector(ctx, cfg.FirebaseProjectID, cfg.ServiceAccountKeyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("error initializing Firestore")
	}
	defer fc.Close()

	members := repo.NewMemberStore(fc)
	assets := repo.NewAssetStore(fc)

	if *seedFile != "" {
		if err := assets.SeedFromFile(ctx, *seedFile); err != nil {
			log.Fatal().Err(err).Str("file", *seedFile).Msg("error seeding assets")
		}
		log.Info().Str("file", *seedFile).Msg("assets seeded")
		return
	}

	sessions := handler.NewSessionManager()
	var router *handler.Router

	// the router is assembled after the bot exists; updates only flow once
	// b.Start runs, so the late assignment is safe
	b, err := bot.New(cfg.BotToken, bot.WithDefaultHandler(
		func(ctx context.Context, b *bot.Bot, update *models.Update) {
			router.Handle(ctx, b, update)
		},
	))
	if err != nil {
		log.Fatal().Err(err).Msg("error creating bot")
	}

	presenter := handler.NewTelegramPresenter(b, sessions)
	roles := handler.NewTelegramRoleAdapter(b)

	engine := workflow.New(workflow.Deps{
		Records:    members,
		Assets:     assets,
		Presenter:  presenter,
		Roles:      roles,
		Mailer:     repo.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom),
		ListSync:   repo.NewMailerLiteClient(cfg.MailerLiteAPIKey),
		Validators: validate.NewRegistry(repo.NewGeoClient(), nil),
		Logger:     log.Logger,
	})

	router = handler.NewRouter(engine, sessions, members, assets, roles, log.Logger)

	sched := scheduler.New(engine, assets, log.Logger)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("error starting scheduler")
	}
	defer sched.Stop()

	log.Info().Msg("bot started")
	b.Start(ctx)
	log.Info().Msg("bot stopped")
}
