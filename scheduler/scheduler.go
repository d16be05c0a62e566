// Package scheduler wakes the workflow engine on each community's
// configured prompt time.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"OnboardBot/model"
	"OnboardBot/workflow"
)

// ConfigSource lists every community config at startup.
type ConfigSource interface {
	AllConfigs(ctx context.Context) ([]*model.OnboardingConfig, error)
}

// Scheduler runs one cron entry per community, firing the engine's
// scheduled action at the configured local time of day.
type Scheduler struct {
	engine  *workflow.Engine
	configs ConfigSource
	cron    *cron.Cron
	log     zerolog.Logger
}

// New creates a scheduler.
func New(engine *workflow.Engine, configs ConfigSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:  engine,
		configs: configs,
		cron:    cron.New(),
		log:     logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers an entry per community and starts the cron loop. The
// schedule is read once; config changes require a restart.
func (s *Scheduler) Start(ctx context.Context) error {
	configs, err := s.configs.AllConfigs(ctx)
	if err != nil {
		return fmt.Errorf("error loading community configs: %w", err)
	}

	for _, cfg := range configs {
		if cfg.PromptTime == "" {
			continue
		}
		spec, err := PromptSpec(cfg.PromptTime)
		if err != nil {
			s.log.Error().Err(err).Int64("chat", cfg.ChatID).Msg("invalid prompt time, skipping community")
			continue
		}
		chatID := cfg.ChatID
		if _, err := s.cron.AddFunc(spec, func() { s.fire(chatID) }); err != nil {
			return fmt.Errorf("error scheduling community %d: %w", chatID, err)
		}
		s.log.Info().Int64("chat", chatID).Str("spec", spec).Msg("scheduled onboarding reminder")
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(chatID int64) {
	act := model.Action{Kind: model.ActionScheduled, ChatID: chatID}
	if err := s.engine.Handle(context.Background(), workflow.Actor{}, act); err != nil {
		s.log.Error().Err(err).Int64("chat", chatID).Msg("scheduled reminder failed")
	}
}

// PromptSpec converts an "HH:MM" time of day to a daily cron spec.
func PromptSpec(promptTime string) (string, error) {
	parts := strings.Split(promptTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("prompt time %q is not HH:MM", promptTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("prompt time %q has an invalid hour", promptTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("prompt time %q has an invalid minute", promptTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
