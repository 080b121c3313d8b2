// Package ledger implements the Cost & Token Ledger component: per
// (session, model) token accumulation and USD cost rollup, following the
// teacher's internal/usage package's Usage/Cost shape.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/internal/sessionstore"
	"github.com/sweagent/core/pkg/models"
)

const tokenLedgerPKPrefix = "token-"

// PriceTable maps a model ID to its per-million-token USD rates.
type PriceTable map[string]ModelPrice

// ModelPrice is the per-million-token rate for one model, mirroring
// internal/usage/usage.go's Cost struct.
type ModelPrice struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// Estimate returns the USD cost of usage at this model's rates.
func (p ModelPrice) Estimate(u models.Usage) float64 {
	total := float64(u.InputTokens)*p.Input +
		float64(u.OutputTokens)*p.Output +
		float64(u.CacheReadInputTokens)*p.CacheRead +
		float64(u.CacheWriteInputTokens)*p.CacheWrite
	return total / 1_000_000
}

// Ledger implements the Cost & Token Ledger operations: recording each
// LLM response's usage against (workerId, modelId) and rolling up session
// cost.
type Ledger struct {
	kv       kv.Store
	prices   PriceTable
	sessions *sessionstore.Store
	metrics  *Metrics
	logger   *slog.Logger
}

// New builds a Ledger. metrics may be nil to disable Prometheus
// instrumentation (e.g. in unit tests that don't register a registry).
func New(store kv.Store, prices PriceTable, sessions *sessionstore.Store, metrics *Metrics, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{kv: store, prices: prices, sessions: sessions, metrics: metrics, logger: logger}
}

// Record increments the ledger counters for (workerId, modelId) by usage,
// then runs a best-effort cost rollup against the session. Per §4.C /
// §7.6, ledger/cost failures are logged and swallowed, never surfaced.
func (l *Ledger) Record(ctx context.Context, workerID, modelID string, usage models.Usage) {
	pk := tokenLedgerPKPrefix + workerID
	if err := l.kv.Add(ctx, pk, modelID, "inputTokens", float64(usage.InputTokens)); err != nil {
		l.logger.Warn("ledger: increment input tokens failed", "worker", workerID, "model", modelID, "error", err)
	}
	if err := l.kv.Add(ctx, pk, modelID, "outputTokens", float64(usage.OutputTokens)); err != nil {
		l.logger.Warn("ledger: increment output tokens failed", "worker", workerID, "model", modelID, "error", err)
	}
	if err := l.kv.Add(ctx, pk, modelID, "cacheReadInputTokens", float64(usage.CacheReadInputTokens)); err != nil {
		l.logger.Warn("ledger: increment cache-read tokens failed", "worker", workerID, "model", modelID, "error", err)
	}
	if err := l.kv.Add(ctx, pk, modelID, "cacheWriteInputTokens", float64(usage.CacheWriteInputTokens)); err != nil {
		l.logger.Warn("ledger: increment cache-write tokens failed", "worker", workerID, "model", modelID, "error", err)
	}

	if l.metrics != nil {
		l.metrics.RecordTokens(modelID, usage)
	}

	l.rollup(ctx, workerID, modelID, usage)
}

// Counters returns the accumulated token counters for (workerId, modelId).
func (l *Ledger) Counters(ctx context.Context, workerID, modelID string) (models.TokenLedgerCounters, error) {
	it, err := l.kv.Get(ctx, tokenLedgerPKPrefix+workerID, modelID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return models.TokenLedgerCounters{}, nil
		}
		return models.TokenLedgerCounters{}, fmt.Errorf("ledger: get counters: %w", err)
	}
	return models.TokenLedgerCounters{
		InputTokens:           int64(asFloat(it.Attrs["inputTokens"])),
		OutputTokens:          int64(asFloat(it.Attrs["outputTokens"])),
		CacheReadInputTokens:  int64(asFloat(it.Attrs["cacheReadInputTokens"])),
		CacheWriteInputTokens: int64(asFloat(it.Attrs["cacheWriteInputTokens"])),
	}, nil
}

// rollup computes the incremental USD cost of this single response and
// adds it to the session's running cost; non-fatal on any error.
func (l *Ledger) rollup(ctx context.Context, workerID, modelID string, usage models.Usage) {
	if l.sessions == nil {
		return
	}
	price, ok := l.prices[modelID]
	if !ok {
		l.logger.Warn("ledger: no price entry for model, skipping cost rollup", "worker", workerID, "model", modelID)
		return
	}
	delta := price.Estimate(usage)
	if delta <= 0 {
		return
	}
	if err := l.sessions.UpdateCost(ctx, workerID, delta); err != nil {
		l.logger.Warn("ledger: cost rollup failed", "worker", workerID, "model", modelID, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.RecordCost(modelID, delta)
	}
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
