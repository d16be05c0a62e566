package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"OnboardBot/model"
)

const (
	membersCollection = "members"
	assetsCollection  = "assets"

	typeConfig       = "OnboardingConfig"
	typeStep         = "OnboardingStep"
	typeReminder     = "OnboardingReminderAsset"
	typeViewTemplate = "OnboardingViewTemplate"
)

// FirestoreConnector holds the Firebase app and Firestore client shared by
// the member and asset stores.
type FirestoreConnector struct {
	app    *firebase.App
	client *firestore.Client
}

// NewFirestoreConnector creates a new Firestore connector.
func NewFirestoreConnector(ctx context.Context, projectID, serviceAccountKeyPath string) (*FirestoreConnector, error) {
	var opts []option.ClientOption
	if serviceAccountKeyPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountKeyPath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}

	return &FirestoreConnector{app: app, client: client}, nil
}

// Close closes the Firestore client.
func (fc *FirestoreConnector) Close() error {
	return fc.client.Close()
}

// MemberStore persists onboarding records in the members collection.
type MemberStore struct {
	client *firestore.Client
}

// NewMemberStore creates a member store on an existing connector.
func NewMemberStore(fc *FirestoreConnector) *MemberStore {
	return &MemberStore{client: fc.client}
}

// Find returns the highest-revision record for a participant in a
// community, or model.ErrNoRecord.
func (s *MemberStore) Find(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error) {
	iter := s.client.Collection(membersCollection).
		Where("userID", "==", userID).
		Where("chatID", "==", chatID).
		Documents(ctx)
	recs, err := collectRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("error reading member records: %w", err)
	}
	return latestRevision(recs)
}

// FindByUser returns the participant's highest-revision record in any
// community. Used to resolve the community for direct messages.
func (s *MemberStore) FindByUser(ctx context.Context, userID int64) (*model.MemberRecord, error) {
	iter := s.client.Collection(membersCollection).
		Where("userID", "==", userID).
		Documents(ctx)
	recs, err := collectRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("error reading member records: %w", err)
	}
	return latestRevision(recs)
}

// FindAuthoritative returns the revision that speaks for the participant:
// the highest completed revision when one exists, else the highest
// revision. A member mid-edit keeps their completed record authoritative
// until the new revision completes.
func (s *MemberStore) FindAuthoritative(ctx context.Context, userID, chatID int64) (*model.MemberRecord, error) {
	iter := s.client.Collection(membersCollection).
		Where("userID", "==", userID).
		Where("chatID", "==", chatID).
		Documents(ctx)
	recs, err := collectRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("error reading member records: %w", err)
	}
	return authoritativeRevision(recs)
}

// Upsert writes the record back with an optimistic version check. A stale
// Version returns model.ErrRecordConflict and writes nothing.
func (s *MemberStore) Upsert(ctx context.Context, rec *model.MemberRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	ref := s.client.Collection(membersCollection).Doc(rec.ID)
	expected := rec.Version

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return fmt.Errorf("error reading member record: %w", err)
		}
		if err == nil {
			var stored model.MemberRecord
			if err := snap.DataTo(&stored); err != nil {
				return fmt.Errorf("error decoding member record: %w", err)
			}
			if stored.Version != expected {
				return model.ErrRecordConflict
			}
		}
		next := *rec
		next.Version = expected + 1
		return tx.Set(ref, &next)
	})
	if err != nil {
		return err
	}
	rec.Version = expected + 1
	return nil
}

// DeleteAll removes every record (all revisions) for a participant and
// returns the number deleted.
func (s *MemberStore) DeleteAll(ctx context.Context, userID int64) (int, error) {
	iter := s.client.Collection(membersCollection).
		Where("userID", "==", userID).
		Documents(ctx)
	deleted := 0
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return deleted, fmt.Errorf("error listing member records: %w", err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return deleted, fmt.Errorf("error deleting member record: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// ListIncomplete returns the authoritative record of every community member
// that has no completed timestamp. A member editing a completed application
// is not listed; their completed revision still speaks for them.
func (s *MemberStore) ListIncomplete(ctx context.Context, chatID int64) ([]*model.MemberRecord, error) {
	latest, err := s.latestForChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	var incomplete []*model.MemberRecord
	for _, rec := range latest {
		if rec.Completed == 0 {
			incomplete = append(incomplete, rec)
		}
	}
	return incomplete, nil
}

// Page returns one page of a community's records, the authoritative
// revision per participant, sorted by completion percentage descending,
// plus the total participant count.
func (s *MemberStore) Page(ctx context.Context, chatID int64, page, pageSize int) ([]*model.MemberRecord, int, error) {
	latest, err := s.latestForChat(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(latest, func(i, j int) bool {
		return latest[i].PercentComplete() > latest[j].PercentComplete()
	})
	total := len(latest)
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return latest[start:end], total, nil
}

func (s *MemberStore) latestForChat(ctx context.Context, chatID int64) ([]*model.MemberRecord, error) {
	iter := s.client.Collection(membersCollection).
		Where("chatID", "==", chatID).
		Documents(ctx)
	recs, err := collectRecords(iter)
	if err != nil {
		return nil, fmt.Errorf("error listing member records: %w", err)
	}
	byUser := make(map[int64]*model.MemberRecord)
	for _, rec := range recs {
		if cur, ok := byUser[rec.UserID]; !ok || supersedes(rec, cur) {
			byUser[rec.UserID] = rec
		}
	}
	latest := make([]*model.MemberRecord, 0, len(byUser))
	for _, rec := range byUser {
		latest = append(latest, rec)
	}
	return latest, nil
}

func collectRecords(iter *firestore.DocumentIterator) ([]*model.MemberRecord, error) {
	var recs []*model.MemberRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		var rec model.MemberRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

func latestRevision(recs []*model.MemberRecord) (*model.MemberRecord, error) {
	if len(recs) == 0 {
		return nil, model.ErrNoRecord
	}
	latest := recs[0]
	for _, rec := range recs[1:] {
		if rec.Revision > latest.Revision {
			latest = rec
		}
	}
	return latest, nil
}

// supersedes reports whether a outranks b as a participant's authoritative
// record: a completed revision outranks an in-progress one, then the higher
// revision wins.
func supersedes(a, b *model.MemberRecord) bool {
	if (a.Completed > 0) != (b.Completed > 0) {
		return a.Completed > 0
	}
	return a.Revision > b.Revision
}

func authoritativeRevision(recs []*model.MemberRecord) (*model.MemberRecord, error) {
	if len(recs) == 0 {
		return nil, model.ErrNoRecord
	}
	best := recs[0]
	for _, rec := range recs[1:] {
		if supersedes(rec, best) {
			best = rec
		}
	}
	return best, nil
}

type communityAssets struct {
	config   *model.OnboardingConfig
	steps    []model.Step
	reminder *model.MessageAsset
	view     *model.MessageAsset
}

// AssetStore reads onboarding configuration, step catalogs and message
// assets, cached per community for the process lifetime. Asset changes
// require a restart or InvalidateCommunity.
type AssetStore struct {
	client *firestore.Client

	mu    sync.RWMutex
	cache map[int64]*communityAssets
}

// NewAssetStore creates an asset store on an existing connector.
func NewAssetStore(fc *FirestoreConnector) *AssetStore {
	return &AssetStore{client: fc.client, cache: make(map[int64]*communityAssets)}
}

// Config returns the community's onboarding config.
func (s *AssetStore) Config(ctx context.Context, chatID int64) (*model.OnboardingConfig, error) {
	assets, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return assets.config, nil
}

// Steps returns the community's step catalog, sorted by order.
func (s *AssetStore) Steps(ctx context.Context, chatID int64) ([]model.Step, error) {
	assets, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return assets.steps, nil
}

// Reminder returns the community's reminder message asset, nil if none is
// configured.
func (s *AssetStore) Reminder(ctx context.Context, chatID int64) (*model.MessageAsset, error) {
	assets, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return assets.reminder, nil
}

// ViewTemplate returns the community's record view template, nil if none is
// configured.
func (s *AssetStore) ViewTemplate(ctx context.Context, chatID int64) (*model.MessageAsset, error) {
	assets, err := s.load(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return assets.view, nil
}

// AllConfigs returns every community's onboarding config, uncached. Used by
// the scheduler at startup.
func (s *AssetStore) AllConfigs(ctx context.Context) ([]*model.OnboardingConfig, error) {
	iter := s.client.Collection(assetsCollection).
		Where("type", "==", typeConfig).
		Documents(ctx)
	var configs []*model.OnboardingConfig
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error listing onboarding configs: %w", err)
		}
		var cfg model.OnboardingConfig
		if err := snap.DataTo(&cfg); err != nil {
			return nil, fmt.Errorf("error decoding onboarding config: %w", err)
		}
		configs = append(configs, &cfg)
	}
	return configs, nil
}

// InvalidateCommunity drops the cached assets for one community.
func (s *AssetStore) InvalidateCommunity(chatID int64) {
	s.mu.Lock()
	delete(s.cache, chatID)
	s.mu.Unlock()
}

func (s *AssetStore) load(ctx context.Context, chatID int64) (*communityAssets, error) {
	s.mu.RLock()
	cached, ok := s.cache[chatID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	assets := &communityAssets{}

	iter := s.client.Collection(assetsCollection).
		Where("chatID", "==", chatID).
		Documents(ctx)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error loading assets: %w", err)
		}
		data := snap.Data()
		switch data["type"] {
		case typeConfig:
			var cfg model.OnboardingConfig
			if err := snap.DataTo(&cfg); err != nil {
				return nil, fmt.Errorf("error decoding onboarding config: %w", err)
			}
			assets.config = &cfg
		case typeStep:
			var step model.Step
			if err := snap.DataTo(&step); err != nil {
				return nil, fmt.Errorf("error decoding onboarding step: %w", err)
			}
			assets.steps = append(assets.steps, step)
		case typeReminder:
			var msg messageDoc
			if err := snap.DataTo(&msg); err != nil {
				return nil, fmt.Errorf("error decoding reminder asset: %w", err)
			}
			assets.reminder = &msg.MessageAsset
		case typeViewTemplate:
			var msg messageDoc
			if err := snap.DataTo(&msg); err != nil {
				return nil, fmt.Errorf("error decoding view template: %w", err)
			}
			assets.view = &msg.MessageAsset
		}
	}

	if assets.config == nil {
		return nil, fmt.Errorf("no onboarding config found for chat %d", chatID)
	}
	model.SortSteps(assets.steps)

	s.mu.Lock()
	s.cache[chatID] = assets
	s.mu.Unlock()
	return assets, nil
}

type configDoc struct {
	Type string `firestore:"type"`
	model.OnboardingConfig
}

type stepDoc struct {
	Type string `firestore:"type"`
	model.Step
}

type messageDoc struct {
	Type   string `firestore:"type"`
	ChatID int64  `firestore:"chatID"`
	model.MessageAsset
}
