// Package messagestore implements the Message Store component: the
// append-only per-session conversation log with atomic toolUse/toolResult
// pair append and incremental token-count bookkeeping.
package messagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/pkg/models"
)

const (
	counterSK = "\x00seq" // sorts before any zero-padded numeric SK
	skDigits  = 15
)

// Store implements the Message Store operations over a generic kv.Store.
type Store struct {
	kv kv.Store
}

// New builds a Store backed by kv.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// Append allocates the next sort key for workerId and persists item,
// returning the assigned SK.
func (s *Store) Append(ctx context.Context, workerID string, item *models.Message) (string, error) {
	sk, err := s.nextSK(ctx, workerID)
	if err != nil {
		return "", fmt.Errorf("messagestore: allocate sort key: %w", err)
	}
	item.WorkerID = workerID
	item.SK = sk
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if err := s.kv.Put(ctx, toKVItem(item)); err != nil {
		return "", fmt.Errorf("messagestore: put item: %w", err)
	}
	return sk, nil
}

// AppendPair persists a toolUse item and its matching toolResult item in
// a single transaction, so no reader can observe a toolUse without its
// toolResult (the P1 pair-atomicity invariant).
func (s *Store) AppendPair(ctx context.Context, workerID string, toolUse, toolResult *models.Message) (string, string, error) {
	useSK, err := s.nextSK(ctx, workerID)
	if err != nil {
		return "", "", fmt.Errorf("messagestore: allocate sort key: %w", err)
	}
	resultSK, err := s.nextSK(ctx, workerID)
	if err != nil {
		return "", "", fmt.Errorf("messagestore: allocate sort key: %w", err)
	}

	now := time.Now()
	toolUse.WorkerID, toolUse.SK = workerID, useSK
	toolResult.WorkerID, toolResult.SK = workerID, resultSK
	if toolUse.CreatedAt.IsZero() {
		toolUse.CreatedAt = now
	}
	if toolResult.CreatedAt.IsZero() {
		toolResult.CreatedAt = now
	}

	err = s.kv.TransactWrite(ctx, []*kv.Item{toKVItem(toolUse), toKVItem(toolResult)})
	if err != nil {
		return "", "", fmt.Errorf("messagestore: transact write pair: %w", err)
	}
	return useSK, resultSK, nil
}

// List returns every item for workerId, oldest first. The turn loop
// relies on this returning the complete history, since context-window
// truncation happens in memory (internal/contextmgr), not at the store.
func (s *Store) List(ctx context.Context, workerID string) ([]*models.Message, error) {
	return s.ListPage(ctx, workerID, 0, "")
}

// ListPage returns items for workerId in a page: at most limit items
// (0 means unbounded) strictly after afterSK, oldest first. Intended for
// callers that need to page through a large history (e.g. a transcript
// export) without loading it all at once.
func (s *Store) ListPage(ctx context.Context, workerID string, limit int, afterSK string) ([]*models.Message, error) {
	if afterSK == "" {
		// counterSK sorts before every message SK; starting after it keeps
		// the counter item from taking one of the limit slots.
		afterSK = counterSK
	}
	items, err := s.kv.Query(ctx, workerID, kv.QueryOptions{Limit: limit, After: afterSK})
	if err != nil {
		return nil, fmt.Errorf("messagestore: query: %w", err)
	}
	out := make([]*models.Message, 0, len(items))
	for _, it := range items {
		if it.SK == counterSK {
			continue
		}
		msg, err := fromKVItem(it)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// UpdateTokenCount overwrites only the tokenCount field of the item at
// (workerId, sk). Used to attribute the real billed-token delta to the
// triggering user item (§4.A token-count semantics).
func (s *Store) UpdateTokenCount(ctx context.Context, workerID, sk string, n int) error {
	if err := s.kv.Update(ctx, workerID, sk, map[string]any{"tokenCount": float64(n)}); err != nil {
		return fmt.Errorf("messagestore: update token count: %w", err)
	}
	return nil
}

// nextSK atomically increments a per-session counter and formats it as a
// zero-padded decimal string so lexicographic and numeric order agree.
func (s *Store) nextSK(ctx context.Context, workerID string) (string, error) {
	if err := s.kv.Add(ctx, workerID, counterSK, "n", 1); err != nil {
		return "", err
	}
	it, err := s.kv.Get(ctx, workerID, counterSK)
	if err != nil {
		return "", err
	}
	n, _ := it.Attrs["n"].(float64)
	return fmt.Sprintf("%0*d", skDigits, int64(n)), nil
}

func toKVItem(m *models.Message) *kv.Item {
	content, _ := json.Marshal(m.Content)
	return &kv.Item{
		PK: m.WorkerID,
		SK: m.SK,
		Attrs: map[string]any{
			"role":           string(m.Role),
			"messageType":    string(m.Type),
			"content":        string(content),
			"tokenCount":     float64(m.TokenCount),
			"modelOverride":  m.ModelOverride,
			"thinkingBudget": float64(m.ThinkingBudget),
			"createdAt":      m.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func fromKVItem(it *kv.Item) (*models.Message, error) {
	m := &models.Message{WorkerID: it.PK, SK: it.SK}
	if v, ok := it.Attrs["role"].(string); ok {
		m.Role = models.Role(v)
	}
	if v, ok := it.Attrs["messageType"].(string); ok {
		m.Type = models.MessageType(v)
	}
	if v, ok := it.Attrs["content"].(string); ok && v != "" {
		if err := json.Unmarshal([]byte(v), &m.Content); err != nil {
			return nil, fmt.Errorf("messagestore: unmarshal content: %w", err)
		}
	}
	if v, ok := it.Attrs["tokenCount"].(float64); ok {
		m.TokenCount = int(v)
	}
	if v, ok := it.Attrs["modelOverride"].(string); ok {
		m.ModelOverride = v
	}
	if v, ok := it.Attrs["thinkingBudget"].(float64); ok {
		m.ThinkingBudget = int(v)
	}
	if v, ok := it.Attrs["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.CreatedAt = t
		}
	}
	return m, nil
}
