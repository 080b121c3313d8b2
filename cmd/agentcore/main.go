// Package main wires the engine's components into a running process:
// it loads configuration, constructs the KV-backed stores, the chosen
// LLM provider, the tool dispatcher, and the turn loop, then serves the
// onMessageReceived/resume trigger points described in spec.md §4.F over
// a small HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweagent/core/internal/config"
	"github.com/sweagent/core/internal/eventbus"
	"github.com/sweagent/core/internal/kv"
	"github.com/sweagent/core/internal/ledger"
	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/llmclient/providers"
	"github.com/sweagent/core/internal/messagestore"
	"github.com/sweagent/core/internal/metastore"
	"github.com/sweagent/core/internal/observability"
	"github.com/sweagent/core/internal/secrets"
	"github.com/sweagent/core/internal/sessionstore"
	"github.com/sweagent/core/internal/tools"
	"github.com/sweagent/core/internal/turnloop"
	"github.com/sweagent/core/pkg/models"
)

// candidateModels is the model pool Converse selects from absent a
// session-level override.
var candidateModels = []string{
	"claude-opus-4-20250514",
	"claude-sonnet-4-20250514",
}

func main() {
	configPath := os.Getenv("AGENTCORE_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentcore: load config:", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName: "agentcore",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("agentcore: tracer shutdown error", "error", err)
		}
	}()

	loop, err := wire(context.Background(), cfg, logger, tracer)
	if err != nil {
		logger.Error("agentcore: wiring failed", "error", err)
		os.Exit(1)
	}

	srv := newServer(loop, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("agentcore: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("agentcore: server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("agentcore: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("agentcore: shutdown error", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// wire constructs every collaborator the Agent Turn Loop needs, following
// the sequence described in spec.md §6 (external interfaces) and §4.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, tracer *observability.Tracer) (*turnloop.Loop, error) {
	store, err := kv.NewDynamoStore(ctx, kv.DynamoConfig{Table: cfg.Store.TableName})
	if err != nil {
		return nil, fmt.Errorf("kv store: %w", err)
	}

	var publisher eventbus.Publisher = eventbus.NopPublisher{}
	if cfg.Events.HTTPEndpoint != "" {
		publisher = eventbus.NewHTTPPublisher(cfg.Events.HTTPEndpoint, logger)
	}

	messages := messagestore.New(store)
	meta := metastore.New(store)
	preferences := metastore.NewPreferencesStore(store)

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	metrics := ledger.NewMetrics()
	sessions := sessionstore.New(store, nil, logger)
	led := ledger.New(store, defaultPriceTable(), sessions, metrics, logger)
	llm := llmclient.New(provider, led, logger)
	sessions = sessionstore.New(store, &llmclient.TitleGenerator{Client: llm}, logger)
	led = ledger.New(store, defaultPriceTable(), sessions, metrics, logger)
	llm = llmclient.New(provider, led, logger)

	todos := tools.NewTodoStore()
	registry, err := tools.NewBuiltinRegistry(todos)
	if err != nil {
		return nil, fmt.Errorf("tool registry: %w", err)
	}
	progress := tools.NewProgressRecorder()
	dispatcher := tools.NewDispatcher(nil, registry, progress)

	loop := &turnloop.Loop{
		Messages:        messages,
		Sessions:        sessions,
		Ledger:          led,
		LLM:             llm,
		Dispatcher:      dispatcher,
		Events:          publisher,
		Preferences:     preferences,
		Meta:            meta,
		CandidateModels: candidateModels,
		Logger:          logger,
		Tracer:          tracer,
	}
	return loop, nil
}

// buildProvider constructs the configured llmclient.Provider. Secrets are
// resolved through a process-lifetime caching reader over the
// environment, matching §6's "a secret reader" external collaborator.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (llmclient.Provider, error) {
	reader := secrets.NewCachingReader(secrets.EnvReader{})

	switch cfg.LLM.Provider {
	case "anthropic":
		apiKey := cfg.LLM.Anthropic.APIKey
		if apiKey == "" {
			resolved, err := reader.Get(ctx, cfg.LLM.Anthropic.APIKeyParameterName)
			if err != nil {
				return nil, fmt.Errorf("resolve anthropic api key: %w", err)
			}
			apiKey = resolved
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		})
	case "bedrock":
		accounts := make([]providers.BedrockAccount, 0, len(cfg.LLM.Bedrock.Accounts))
		for _, accountID := range cfg.LLM.Bedrock.Accounts {
			accounts = append(accounts, providers.BedrockAccount{
				AccountID: accountID,
				RoleARN:   fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, cfg.LLM.Bedrock.RoleName),
			})
		}
		return providers.NewBedrockProvider(ctx, providers.BedrockConfig{
			Region:            cfg.LLM.Bedrock.Region,
			CriRegionOverride: cfg.LLM.Bedrock.CRIRegionOverride,
			Accounts:          accounts,
			Logger:            logger,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

// defaultPriceTable is a conservative placeholder rate card; operators
// are expected to override it from real provider pricing.
func defaultPriceTable() ledger.PriceTable {
	return ledger.PriceTable{
		"claude-opus-4-20250514":     {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
		"claude-sonnet-4-20250514":   {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
		"claude-3-7-sonnet-20250219": {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
		"claude-3-5-haiku-20241022":  {Input: 0.8, Output: 4, CacheRead: 0.08, CacheWrite: 1},
	}
}

// newServer exposes onMessageReceived/resume over HTTP, the minimal
// surface a chat-app ingress (out of scope per spec.md §1) would call
// into.
func newServer(loop *turnloop.Loop, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /workers/{workerId}/messages", func(w http.ResponseWriter, r *http.Request) {
		workerID := r.PathValue("workerId")
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := onMessageReceived(r.Context(), loop, workerID, body.Text); err != nil {
			logger.Error("agentcore: onMessageReceived failed", "worker", workerID, "error", err)
			http.Error(w, "turn failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /workers/{workerId}/resume", func(w http.ResponseWriter, r *http.Request) {
		workerID := r.PathValue("workerId")
		if err := loop.Resume(r.Context(), workerID, turnloop.NewCancelToken()); err != nil {
			logger.Error("agentcore: resume failed", "worker", workerID, "error", err)
			http.Error(w, "resume failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// onMessageReceived implements the onMessageReceived(workerId,
// cancellationToken) trigger (spec.md §4.F "Triggers"): persist the
// inbound user message, creating the session if this is its first
// message, then run one turn.
func onMessageReceived(ctx context.Context, loop *turnloop.Loop, workerID, text string) error {
	if _, err := loop.Sessions.Get(ctx, workerID); err != nil {
		if err := loop.Sessions.Create(ctx, &models.Session{WorkerID: workerID, Initiator: "external"}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	msg := &models.Message{
		Role:    models.RoleUser,
		Type:    models.MessageTypeUserMessage,
		Content: []models.ContentBlock{models.Text(text)},
	}
	if _, err := loop.Messages.Append(ctx, workerID, msg); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	return loop.RunTurn(ctx, workerID, turnloop.NewCancelToken())
}
