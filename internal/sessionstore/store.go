// Package sessionstore implements the Session Store component: per-worker
// metadata (status, title, cost, visibility) backed by the generic kv
// store, with best-effort title generation via an injected completion
// function.
package sessionstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/pkg/models"
)

const (
	sessionPK  = "sessions"
	lsi1Digits = 15

	// MaxTitleRunes is the display-character cap on a generated title (P10).
	MaxTitleRunes = 15
)

// TitleGenerator produces a session title from the accumulated transcript
// text, using a cheap model. Implemented by the LLM Client package; kept
// as an interface here so Session Store has no dependency on the LLM
// Client's request/response types.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, workerID, transcript string) (string, error)
}

// Store implements the Session Store operations.
type Store struct {
	kv     kv.Store
	titles TitleGenerator
	logger *slog.Logger
}

// New builds a Store. titles may be nil, in which case title generation is
// skipped (useful for tests that don't exercise it).
func New(store kv.Store, titles TitleGenerator, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: store, titles: titles, logger: logger}
}

// Get returns the session for workerId.
func (s *Store) Get(ctx context.Context, workerID string) (*models.Session, error) {
	it, err := s.kv.Get(ctx, sessionPK, workerID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get: %w", err)
	}
	return fromKVItem(it), nil
}

// Create persists a new session, assigning CreatedAt/UpdatedAt if unset.
func (s *Store) Create(ctx context.Context, session *models.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	if session.AgentStatus == "" {
		session.AgentStatus = models.AgentStatusPending
	}
	if err := s.kv.Put(ctx, toKVItem(session)); err != nil {
		return fmt.Errorf("sessionstore: create: %w", err)
	}
	return nil
}

// List returns up to limit sessions ordered newest-first by LSI1
// (updatedAt), excluding hidden sessions. limit=0 pages internally and
// returns everything.
func (s *Store) List(ctx context.Context, limit int, rng *models.ListRange) ([]*models.Session, error) {
	items, err := s.kv.Query(ctx, sessionPK, kv.QueryOptions{Index: "LSI1", Reverse: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list: %w", err)
	}
	out := make([]*models.Session, 0, len(items))
	for _, it := range items {
		sess := fromKVItem(it)
		if sess.IsHidden {
			continue
		}
		if rng != nil {
			if !rng.Since.IsZero() && sess.UpdatedAt.Before(rng.Since) {
				continue
			}
			if !rng.Until.IsZero() && sess.UpdatedAt.After(rng.Until) {
				continue
			}
		}
		out = append(out, sess)
	}
	return out, nil
}

// Update applies a partial field set and refreshes UpdatedAt/LSI1.
func (s *Store) Update(ctx context.Context, workerID string, partial map[string]any) error {
	partial["lsi1"] = lsi1(time.Now())
	partial["updatedAt"] = time.Now().Format(time.RFC3339Nano)
	if err := s.kv.Update(ctx, sessionPK, workerID, partial); err != nil {
		return fmt.Errorf("sessionstore: update: %w", err)
	}
	return nil
}

// UpdateStatus sets agentStatus.
func (s *Store) UpdateStatus(ctx context.Context, workerID string, status models.AgentStatus) error {
	return s.Update(ctx, workerID, map[string]any{"agentStatus": string(status)})
}

// UpdateTitle sets title directly (used when the caller already has a
// vetted title, e.g. in tests).
func (s *Store) UpdateTitle(ctx context.Context, workerID, title string) error {
	return s.Update(ctx, workerID, map[string]any{"title": truncateTitle(title)})
}

// UpdateVisibility sets isHidden.
func (s *Store) UpdateVisibility(ctx context.Context, workerID string, isHidden bool) error {
	return s.Update(ctx, workerID, map[string]any{"isHidden": isHidden})
}

// UpdateCost adds delta to the session's running cost using the store's
// atomic increment (kv.Store.Add).
func (s *Store) UpdateCost(ctx context.Context, workerID string, delta float64) error {
	if err := s.kv.Add(ctx, sessionPK, workerID, "cost", delta); err != nil {
		return fmt.Errorf("sessionstore: update cost: %w", err)
	}
	return nil
}

// MaybeGenerateTitle generates and persists a title for workerId if the
// session currently has no title (§4.B, open question (ii): regenerate
// only while title is unset). Failures are logged and swallowed.
func (s *Store) MaybeGenerateTitle(ctx context.Context, workerID, transcript string) (string, bool) {
	if s.titles == nil {
		return "", false
	}
	sess, err := s.Get(ctx, workerID)
	if err != nil {
		s.logger.Warn("sessionstore: title lookup failed", "worker", workerID, "error", err)
		return "", false
	}
	if sess.Title != "" || strings.TrimSpace(transcript) == "" {
		return "", false
	}

	title, err := s.titles.GenerateTitle(ctx, workerID, transcript)
	if err != nil || strings.TrimSpace(title) == "" {
		s.logger.Warn("sessionstore: title generation failed", "worker", workerID, "error", err)
		return "", false
	}
	title = truncateTitle(title)
	if err := s.UpdateTitle(ctx, workerID, title); err != nil {
		s.logger.Warn("sessionstore: title persist failed", "worker", workerID, "error", err)
		return "", false
	}
	return title, true
}

func truncateTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= MaxTitleRunes {
		return title
	}
	runes := []rune(title)
	return string(runes[:MaxTitleRunes])
}

func lsi1(t time.Time) string {
	return fmt.Sprintf("%0*d", lsi1Digits, t.UnixNano()/int64(time.Millisecond))
}

func toKVItem(s *models.Session) *kv.Item {
	return &kv.Item{
		PK:   sessionPK,
		SK:   s.WorkerID,
		LSI1: lsi1(s.UpdatedAt),
		Attrs: map[string]any{
			"agentStatus":   string(s.AgentStatus),
			"title":         s.Title,
			"createdAt":     s.CreatedAt.Format(time.RFC3339Nano),
			"updatedAt":     s.UpdatedAt.Format(time.RFC3339Nano),
			"isHidden":      s.IsHidden,
			"cost":          s.Cost,
			"initiator":     s.Initiator,
			"slackUserId":   s.SlackUserID,
			"customAgentId": s.CustomAgentID,
			"modelOverride": s.ModelOverride,
		},
	}
}

func fromKVItem(it *kv.Item) *models.Session {
	s := &models.Session{WorkerID: it.SK}
	if v, ok := it.Attrs["agentStatus"].(string); ok {
		s.AgentStatus = models.AgentStatus(v)
	}
	if v, ok := it.Attrs["title"].(string); ok {
		s.Title = v
	}
	if v, ok := it.Attrs["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			s.CreatedAt = t
		}
	}
	if v, ok := it.Attrs["updatedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			s.UpdatedAt = t
		}
	}
	if v, ok := it.Attrs["isHidden"].(bool); ok {
		s.IsHidden = v
	}
	if v, ok := it.Attrs["cost"].(float64); ok {
		s.Cost = v
	}
	if v, ok := it.Attrs["initiator"].(string); ok {
		s.Initiator = v
	}
	if v, ok := it.Attrs["slackUserId"].(string); ok {
		s.SlackUserID = v
	}
	if v, ok := it.Attrs["customAgentId"].(string); ok {
		s.CustomAgentID = v
	}
	if v, ok := it.Attrs["modelOverride"].(string); ok {
		s.ModelOverride = v
	}
	return s
}
