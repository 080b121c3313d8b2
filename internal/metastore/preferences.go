package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/pkg/models"
)

const preferencesPK = "prefs"
const preferencesSK = "global"

// PreferencesStore persists the single process-wide Preferences record
// (§"Preferences (process-wide)") and implements turnloop.PreferencesSource.
type PreferencesStore struct {
	kv kv.Store
}

// NewPreferencesStore builds a PreferencesStore backed by kv.
func NewPreferencesStore(store kv.Store) *PreferencesStore {
	return &PreferencesStore{kv: store}
}

// Preferences returns the current preferences record, or the zero value
// if none has been saved yet.
func (s *PreferencesStore) Preferences(ctx context.Context) (models.Preferences, error) {
	it, err := s.kv.Get(ctx, preferencesPK, preferencesSK)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return models.Preferences{}, nil
		}
		return models.Preferences{}, fmt.Errorf("metastore: get preferences: %w", err)
	}
	raw, _ := it.Attrs["json"].(string)
	if raw == "" {
		return models.Preferences{}, nil
	}
	var prefs models.Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return models.Preferences{}, fmt.Errorf("metastore: decode preferences: %w", err)
	}
	return prefs, nil
}

// Save replaces the preferences record.
func (s *PreferencesStore) Save(ctx context.Context, prefs models.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("metastore: encode preferences: %w", err)
	}
	item := &kv.Item{PK: preferencesPK, SK: preferencesSK, Attrs: map[string]any{"json": string(raw)}}
	if err := s.kv.Put(ctx, item); err != nil {
		return fmt.Errorf("metastore: save preferences: %w", err)
	}
	return nil
}
