package service

import (
	"context"
	"errors"

	"github.com/stevemurr/grocery-chat-server/record"
)

// Preferences are the dietary preferences of a profile.
type Preferences struct {
	Lifestyle string `json:"lifestyle"`
	Allergen  string `json:"allergen"`
	Other     string `json:"other"`
}

// Categories joins lifestyle and allergen into the prompt's category list.
func (p Preferences) Categories() string {
	switch {
	case p.Lifestyle == "":
		return p.Allergen
	case p.Allergen == "":
		return p.Lifestyle
	default:
		return p.Lifestyle + ", " + p.Allergen
	}
}

func (p Preferences) fields() map[string]string {
	return map[string]string{
		"lifestyle": p.Lifestyle,
		"allergen":  p.Allergen,
		"other":     p.Other,
	}
}

func preferencesFrom(rec record.Record) Preferences {
	return Preferences{
		Lifestyle: rec["lifestyle"],
		Allergen:  rec["allergen"],
		Other:     rec["other"],
	}
}

// loadPreferences returns the preferences of profileID, or empty ones if
// none were saved.
func loadPreferences(ctx context.Context, e *record.Engine, profileID string) (Preferences, error) {
	rec, err := e.Get(ctx, preferencesCollection, profileID)
	if errors.Is(err, record.ErrNotFound) {
		return Preferences{}, nil
	}
	if err != nil {
		return Preferences{}, err
	}
	return preferencesFrom(rec), nil
}
