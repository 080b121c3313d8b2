package turnloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweagent/core/internal/backoff"
	"github.com/sweagent/core/internal/llmclient"
)

// errCancelled signals that invoke or dispatchTools observed
// cancellation mid-operation; RunTurn treats it as a clean exit, not a
// failure.
var errCancelled = errors.New("turnloop: cancelled")

// errMaxTokensEscalationsExhausted is returned when a single turn has
// doubled its output budget maxTokensEscalations times without the
// model finishing (§4.F "Abort after 5 such escalations").
var errMaxTokensEscalationsExhausted = errors.New("turnloop: max-tokens escalation budget exhausted")

// invoke wraps LLM.Converse in the outer retry loop: up to retryAttempts
// attempts with a 1-5s randomized backoff, retrying on throttling and on
// a max-tokens sentinel (which bumps maxTokensRetryCount, doubling the
// requested budget), and aborting immediately on any other error.
func (l *Loop) invoke(ctx context.Context, workerID string, meta sessionMeta, req llmclient.Request, maxTokensRetryCount *int, cancel *CancelToken) (*llmclient.Result, error) {
	candidateModels := l.candidateModels(meta)

	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if cancel != nil && cancel.IsCancelled() {
			return nil, errCancelled
		}

		spanCtx, span := l.startSpan(ctx, "turnloop.llm_call")
		result, err := l.LLM.Converse(spanCtx, workerID, candidateModels, req, *maxTokensRetryCount)
		span.End()

		if err == nil {
			return result, nil
		}

		var throttled *llmclient.ThrottlingError
		var maxTokens *llmclient.MaxTokensExceededError
		switch {
		case errors.As(err, &throttled):
			// fall through to backoff and retry
		case errors.As(err, &maxTokens):
			*maxTokensRetryCount++
			if *maxTokensRetryCount > maxTokensEscalations {
				return nil, errMaxTokensEscalationsExhausted
			}
		default:
			return nil, fmt.Errorf("turnloop: non-retryable converse error: %w", err)
		}

		if attempt == retryAttempts {
			break
		}
		if sleepErr := backoff.SleepWithContext(ctx, backoff.ComputeBackoff(retryPolicy, attempt)); sleepErr != nil {
			return nil, errCancelled
		}
	}

	return nil, fmt.Errorf("turnloop: exhausted %d retry attempts", retryAttempts)
}

// candidateModels resolves the model pool for this turn: a session-level
// override pins a single model; otherwise the configured pool is used.
func (l *Loop) candidateModels(meta sessionMeta) []string {
	if meta.session.ModelOverride != "" {
		return []string{meta.session.ModelOverride}
	}
	return l.CandidateModels
}
