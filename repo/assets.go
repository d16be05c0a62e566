package repo

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"OnboardBot/model"
)

// SeedFile is the YAML layout for seeding one community's onboarding assets.
type SeedFile struct {
	Config       *model.OnboardingConfig `yaml:"config"`
	Steps        []model.Step            `yaml:"steps"`
	Reminder     *model.MessageAsset     `yaml:"reminder"`
	ViewTemplate *model.MessageAsset     `yaml:"viewTemplate"`
}

// ParseSeedFile decodes a seed document and checks its catalog invariants:
// a config must be present, step orders must be unique, no two steps may
// claim the same record field, and a form asset must carry inputs.
func ParseSeedFile(r io.Reader) (*SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("error decoding seed file: %w", err)
	}

	if seed.Config == nil {
		return nil, fmt.Errorf("seed file has no config section")
	}
	orders := make(map[int]string)
	fields := make(map[string]string)
	for _, step := range seed.Steps {
		if prev, ok := orders[step.Order]; ok {
			return nil, fmt.Errorf("steps %q and %q share order %d", prev, step.Identifier, step.Order)
		}
		orders[step.Order] = step.Identifier
		if step.Form != nil && len(step.Form.Inputs) == 0 {
			return nil, fmt.Errorf("step %q has a form with no inputs", step.Identifier)
		}
		for _, f := range step.Fields {
			if prev, ok := fields[f]; ok {
				return nil, fmt.Errorf("steps %q and %q both claim field %q", prev, step.Identifier, f)
			}
			fields[f] = step.Identifier
		}
	}
	return &seed, nil
}

// SeedFromFile loads a YAML seed document into the assets collection and
// busts the community's cache.
func (s *AssetStore) SeedFromFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening seed file: %w", err)
	}
	defer f.Close()

	seed, err := ParseSeedFile(f)
	if err != nil {
		return err
	}
	return s.Seed(ctx, seed)
}

// Seed writes one community's config, step catalog and message assets.
func (s *AssetStore) Seed(ctx context.Context, seed *SeedFile) error {
	chatID := seed.Config.ChatID
	assets := s.client.Collection(assetsCollection)

	docID := fmt.Sprintf("config-%d", chatID)
	if _, err := assets.Doc(docID).Set(ctx, &configDoc{Type: typeConfig, OnboardingConfig: *seed.Config}); err != nil {
		return fmt.Errorf("error seeding config: %w", err)
	}

	for _, step := range seed.Steps {
		step.ChatID = chatID
		docID := fmt.Sprintf("step-%d-%s", chatID, step.Identifier)
		if _, err := assets.Doc(docID).Set(ctx, &stepDoc{Type: typeStep, Step: step}); err != nil {
			return fmt.Errorf("error seeding step %q: %w", step.Identifier, err)
		}
	}

	if seed.Reminder != nil {
		docID := fmt.Sprintf("reminder-%d", chatID)
		if _, err := assets.Doc(docID).Set(ctx, &messageDoc{Type: typeReminder, ChatID: chatID, MessageAsset: *seed.Reminder}); err != nil {
			return fmt.Errorf("error seeding reminder asset: %w", err)
		}
	}

	if seed.ViewTemplate != nil {
		docID := fmt.Sprintf("view-%d", chatID)
		if _, err := assets.Doc(docID).Set(ctx, &messageDoc{Type: typeViewTemplate, ChatID: chatID, MessageAsset: *seed.ViewTemplate}); err != nil {
			return fmt.Errorf("error seeding view template: %w", err)
		}
	}

	s.InvalidateCommunity(chatID)
	return nil
}
