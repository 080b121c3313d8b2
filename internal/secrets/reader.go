// Package secrets provides the Reader contract the engine uses to
// resolve credentials (Anthropic API key, GitHub PAT) by name, without
// owning how those secrets are actually stored. The concrete
// implementation (SSM, Secrets Manager, Vault, ...) is out of scope; this
// package ships an environment-backed reader and a process-lifetime cache
// wrapper, following the same "accept an interface, cache at the edges"
// shape the teacher's config layer uses for env overlays.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Reader resolves a named parameter to its secret value.
type Reader interface {
	Get(ctx context.Context, parameterName string) (string, error)
}

// EnvReader resolves parameters from environment variables, useful for
// local runs and tests where secrets are injected by the process
// environment rather than a secret store.
type EnvReader struct{}

// Get returns the value of the environment variable named parameterName.
func (EnvReader) Get(ctx context.Context, parameterName string) (string, error) {
	v, ok := os.LookupEnv(parameterName)
	if !ok {
		return "", fmt.Errorf("secrets: environment variable %q is not set", parameterName)
	}
	return v, nil
}

// CachingReader wraps a Reader and caches resolved values for the process
// lifetime, matching §6 ("results may be cached for the process
// lifetime"). A cache entry is never invalidated; secret rotation requires
// a process restart.
type CachingReader struct {
	inner Reader

	mu    sync.RWMutex
	cache map[string]string
}

// NewCachingReader wraps inner with a process-lifetime cache.
func NewCachingReader(inner Reader) *CachingReader {
	return &CachingReader{inner: inner, cache: map[string]string{}}
}

// Get returns the cached value for parameterName, resolving and caching it
// on first use.
func (c *CachingReader) Get(ctx context.Context, parameterName string) (string, error) {
	c.mu.RLock()
	if v, ok := c.cache[parameterName]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err := c.inner.Get(ctx, parameterName)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[parameterName] = v
	c.mu.Unlock()
	return v, nil
}
