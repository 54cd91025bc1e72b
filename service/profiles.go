package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stevemurr/grocery-chat-server/record"
)

// ProfileService manages the profiles a user owns and their preferences.
type ProfileService struct {
	engine *record.Engine
	logger *slog.Logger
}

func NewProfileService(e *record.Engine, logger *slog.Logger) *ProfileService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{engine: e, logger: logger}
}

func (p *ProfileService) Create(ctx context.Context, owner, name string) (record.Record, error) {
	return p.engine.CreateOwned(ctx, Profiles, owner, map[string]string{"name": name})
}

func (p *ProfileService) List(ctx context.Context, owner string) ([]record.Record, error) {
	return p.engine.ListOwned(ctx, Profiles, owner)
}

func (p *ProfileService) Get(ctx context.Context, owner, id string) (record.Record, error) {
	return p.engine.FetchOwned(ctx, Profiles, owner, id)
}

// Delete removes the profile and its preferences.
func (p *ProfileService) Delete(ctx context.Context, owner, id string) error {
	if err := p.engine.DeleteOwned(ctx, Profiles, owner, id); err != nil {
		return err
	}
	return p.deletePreferences(ctx, id)
}

// DeleteAll removes every profile of owner and their preferences.
func (p *ProfileService) DeleteAll(ctx context.Context, owner string) error {
	profiles, err := p.engine.ListOwned(ctx, Profiles, owner)
	if err != nil {
		return err
	}
	if _, err := p.engine.DeleteAllOwned(ctx, Profiles, owner); err != nil {
		return err
	}
	for _, prof := range profiles {
		if err := p.deletePreferences(ctx, prof.ID()); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProfileService) deletePreferences(ctx context.Context, profileID string) error {
	err := p.engine.Delete(ctx, preferencesCollection, profileID)
	if errors.Is(err, record.ErrNotFound) {
		return nil
	}
	return err
}

// SetPreferences replaces the preferences of one of owner's profiles.
func (p *ProfileService) SetPreferences(ctx context.Context, owner, profileID string, prefs Preferences) error {
	if _, err := p.engine.FetchOwned(ctx, Profiles, owner, profileID); err != nil {
		return err
	}
	_, err := p.engine.Set(ctx, preferencesCollection, profileID, prefs.fields())
	return err
}

// Preferences returns the preferences of one of owner's profiles.
func (p *ProfileService) Preferences(ctx context.Context, owner, profileID string) (Preferences, error) {
	if _, err := p.engine.FetchOwned(ctx, Profiles, owner, profileID); err != nil {
		return Preferences{}, err
	}
	return loadPreferences(ctx, p.engine, profileID)
}
