package metastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweagent/core/internal/kv"
)

func TestStore_GetReturnsEmptyWhenUnset(t *testing.T) {
	s := New(kv.NewMemoryStore())
	v, err := s.Get(context.Background(), "w1", "repo")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestStore_SetThenGetRoundTrips(t *testing.T) {
	s := New(kv.NewMemoryStore())
	require.NoError(t, s.Set(context.Background(), "w1", RepoDirectory, "/srv/repo"))

	v, err := s.GetRepoDirectory(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, "/srv/repo", v)
}
