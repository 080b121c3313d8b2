package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweagent/core/pkg/models"
)

// Metrics exposes the ledger's Prometheus counters, following the
// teacher's observability.Metrics constructor pattern (promauto-registered
// vectors created once at startup).
type Metrics struct {
	// TokensTotal counts tokens by model and direction
	// (input|output|cacheRead|cacheWrite).
	TokensTotal *prometheus.CounterVec

	// CostUSDTotal accumulates estimated USD cost by model.
	CostUSDTotal *prometheus.CounterVec
}

// NewMetrics registers and returns the ledger's counters against the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the ledger's counters against reg, letting
// tests use an isolated prometheus.NewRegistry() instead of the process
// -wide default.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tokens_total",
				Help: "Total number of tokens accounted for, by model and direction",
			},
			[]string{"model", "direction"},
		),
		CostUSDTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_cost_usd_total",
				Help: "Total estimated USD cost, by model",
			},
			[]string{"model"},
		),
	}
}

// RecordTokens adds one response's usage to the per-direction counters.
func (m *Metrics) RecordTokens(modelID string, usage models.Usage) {
	m.TokensTotal.WithLabelValues(modelID, "input").Add(float64(usage.InputTokens))
	m.TokensTotal.WithLabelValues(modelID, "output").Add(float64(usage.OutputTokens))
	m.TokensTotal.WithLabelValues(modelID, "cacheRead").Add(float64(usage.CacheReadInputTokens))
	m.TokensTotal.WithLabelValues(modelID, "cacheWrite").Add(float64(usage.CacheWriteInputTokens))
}

// RecordCost adds deltaUSD to the running cost counter for modelID.
func (m *Metrics) RecordCost(modelID string, deltaUSD float64) {
	m.CostUSDTotal.WithLabelValues(modelID).Add(deltaUSD)
}
