// Package metastore implements the small per-session scratch metadata
// described in spec.md's data model (PK="meta-"+workerId, SK=key): ad
// hoc key/value facts set by tools, most notably the repoDirectory a
// clone tool records for the turn loop's system-prompt assembly.
package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweagent/core/internal/kv"
)

const pkPrefix = "meta-"

// Store is a thin keyed scratch area over the generic kv store.
type Store struct {
	kv kv.Store
}

// New builds a Store backed by kv.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Get returns the string value at (workerId, key), or "" if unset.
func (s *Store) Get(ctx context.Context, workerID, key string) (string, error) {
	it, err := s.kv.Get(ctx, pkPrefix+workerID, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("metastore: get: %w", err)
	}
	v, _ := it.Attrs["value"].(string)
	return v, nil
}

// Set persists a string value at (workerId, key).
func (s *Store) Set(ctx context.Context, workerID, key, value string) error {
	item := &kv.Item{PK: pkPrefix + workerID, SK: key, Attrs: map[string]any{"value": value}}
	if err := s.kv.Put(ctx, item); err != nil {
		return fmt.Errorf("metastore: set: %w", err)
	}
	return nil
}

// RepoDirectory is the well-known key a cloneRepository tool sets.
const RepoDirectory = "repo"

// GetRepoDirectory returns the repository directory recorded for
// workerId, if any.
func (s *Store) GetRepoDirectory(ctx context.Context, workerID string) (string, error) {
	return s.Get(ctx, workerID, RepoDirectory)
}
