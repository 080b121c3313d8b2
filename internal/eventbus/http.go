package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sweagent/core/pkg/models"
)

// HTTPPublisher posts each event as a JSON body to a configured endpoint
// (EVENT_HTTP_ENDPOINT). Delivery is best-effort: a failed POST is logged
// and swallowed, never surfaced to the turn loop, matching the teacher's
// "observability must not perturb the main path" posture.
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

type httpEventBody struct {
	WorkerID string       `json:"workerId"`
	Event    models.Event `json:"event"`
}

// NewHTTPPublisher builds a publisher posting to endpoint with a bounded
// per-request timeout.
func NewHTTPPublisher(endpoint string, logger *slog.Logger) *HTTPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPPublisher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

func (h *HTTPPublisher) Publish(ctx context.Context, workerID string, event models.Event) {
	if h.endpoint == "" {
		return
	}
	body, err := json.Marshal(httpEventBody{WorkerID: workerID, Event: event})
	if err != nil {
		h.logger.Warn("eventbus: marshal event failed", "worker", workerID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		h.logger.Warn("eventbus: build request failed", "worker", workerID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("eventbus: publish failed", "worker", workerID, "event", event.Type, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		h.logger.Warn("eventbus: publish non-2xx", "worker", workerID, "event", event.Type, "status", resp.StatusCode)
	}
}
