// Package providers implements the concrete LLM Client backends: Amazon
// Bedrock's Converse API and Anthropic's native Messages API. Both
// satisfy llmclient.Provider; input is already normalized by the time it
// reaches either one.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/sweagent/core/internal/llmclient"
	"github.com/sweagent/core/internal/llmclient/toolconv"
	"github.com/sweagent/core/pkg/models"
)

// BedrockAccount is one entry of the configured AWS account list the
// client rotates across on throttling (§4.D step 5, §9 "process-wide
// mutable state").
type BedrockAccount struct {
	AccountID string
	RoleARN   string
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region            string
	CriRegionOverride string // operator override for the regional inference profile
	Accounts          []BedrockAccount
	Logger            *slog.Logger
}

// BedrockProvider implements llmclient.Provider and llmclient.AccountRotator
// against Amazon Bedrock's Converse API.
type BedrockProvider struct {
	cfg    BedrockConfig
	logger *slog.Logger

	mu          sync.Mutex
	accountIdx  int
	client      *bedrockruntime.Client
	clientRegion string
	credsCache  map[string]*cachedCredentials // accountID -> cached AssumeRole result
}

type cachedCredentials struct {
	creds  aws.Credentials
	client *bedrockruntime.Client
}

// NewBedrockProvider builds a provider bound to account index 0 (or a
// single implicit account if none are configured, relying on the
// ambient credential chain).
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	p := &BedrockProvider{cfg: cfg, logger: cfg.Logger, credsCache: map[string]*cachedCredentials{}}
	if err := p.RotateAccount(ctx, 0); err != nil {
		return nil, fmt.Errorf("bedrock: initial account setup: %w", err)
	}
	return p, nil
}

// AccountCount implements llmclient.AccountRotator.
func (p *BedrockProvider) AccountCount() int {
	if len(p.cfg.Accounts) == 0 {
		return 1
	}
	return len(p.cfg.Accounts)
}

// RotateAccount implements llmclient.AccountRotator: it assumes the role
// for the account at accountIndex (caching the resulting credentials for
// their lifetime) and swaps the active client to use them.
func (p *BedrockProvider) RotateAccount(ctx context.Context, accountIndex int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.cfg.Accounts) == 0 {
		if p.client != nil {
			return nil
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.cfg.Region))
		if err != nil {
			return fmt.Errorf("load default aws config: %w", err)
		}
		p.client = bedrockruntime.NewFromConfig(awsCfg)
		p.clientRegion = p.cfg.Region
		return nil
	}

	account := p.cfg.Accounts[accountIndex%len(p.cfg.Accounts)]
	p.accountIdx = accountIndex % len(p.cfg.Accounts)

	if cached, ok := p.credsCache[account.AccountID]; ok && !cached.creds.Expired() {
		p.client = cached.client
		return nil
	}

	baseCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(p.cfg.Region))
	if err != nil {
		return fmt.Errorf("load base aws config: %w", err)
	}
	stsClient := sts.NewFromConfig(baseCfg)
	provider := stscreds.NewAssumeRoleProvider(stsClient, account.RoleARN)

	creds, err := provider.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("assume role %s: %w", account.RoleARN, err)
	}

	assumedCfg := baseCfg.Copy()
	assumedCfg.Credentials = aws.NewCredentialsCache(provider)

	client := bedrockruntime.NewFromConfig(assumedCfg)
	p.credsCache[account.AccountID] = &cachedCredentials{creds: creds, client: client}
	p.client = client
	p.clientRegion = p.cfg.Region
	return nil
}

// Call implements llmclient.Provider.
func (p *BedrockProvider) Call(ctx context.Context, modelID string, req llmclient.Request) (*llmclient.Response, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("bedrock: provider not initialized")
	}

	resolvedModel := p.resolveModelID(modelID, req)

	messages, err := toolconv.MessagesToBedrock(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(resolvedModel),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.Inference.MaxTokens)),
		},
	}

	if len(req.System) > 0 {
		in.System = toolconv.SystemToBedrock(req.System)
	}
	if len(req.Tools) > 0 {
		toolConfig, err := toolconv.ToolsToBedrock(req.Tools, req.ToolChoice)
		if err != nil {
			return nil, fmt.Errorf("bedrock: convert tools: %w", err)
		}
		in.ToolConfig = toolConfig
	}
	if req.ReasoningEnabled {
		in.AdditionalModelRequestFields = bedrockReasoningField(req.ReasoningBudget, req.InterleavedThinking)
	}

	out, err := client.Converse(ctx, in)
	if err != nil {
		if isThrottlingError(err) {
			return nil, &llmclient.ThrottlingError{Err: err}
		}
		return nil, fmt.Errorf("bedrock: converse: %w", err)
	}

	return bedrockResponseToNeutral(resolvedModel, out)
}

// resolveModelID prepends the regional inference-profile tag chosen for
// this call (§4.D step 2: region/profile selection, Bedrock-only).
func (p *BedrockProvider) resolveModelID(modelID string, req llmclient.Request) string {
	capDesc := llmclient.CapabilitiesFor(modelID)
	bedrockModel := modelIDToBedrock(modelID)

	profile := p.cfg.CriRegionOverride
	if profile == "" && len(capDesc.SupportedCriProfiles) > 0 {
		profile = capDesc.SupportedCriProfiles[0]
	}
	if profile == "" {
		return bedrockModel
	}
	for _, supported := range capDesc.SupportedCriProfiles {
		if supported == profile {
			return profile + "." + bedrockModel
		}
	}
	return bedrockModel
}

// modelIDToBedrock maps an Anthropic-native model id to the id Bedrock
// expects in its Converse API.
func modelIDToBedrock(modelID string) string {
	if strings.HasPrefix(modelID, "anthropic.") {
		return modelID
	}
	return "anthropic." + modelID + "-v1:0"
}

func bedrockReasoningField(budgetTokens int, interleavedThinking bool) document.Interface {
	fields := map[string]any{
		"thinking": map[string]any{
			"type":          "enabled",
			"budget_tokens": budgetTokens,
		},
	}
	if interleavedThinking {
		fields["anthropic_beta"] = []string{"interleaved-thinking-2025-05-14"}
	}
	return document.NewLazyDocument(fields)
}

func isThrottlingError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "throttl") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate exceeded")
}

func bedrockResponseToNeutral(modelID string, out *bedrockruntime.ConverseOutput) (*llmclient.Response, error) {
	resp := &llmclient.Response{ModelID: modelID}

	switch out.StopReason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		resp.StopReason = llmclient.StopEndTurn
	case types.StopReasonToolUse:
		resp.StopReason = llmclient.StopToolUse
	case types.StopReasonMaxTokens:
		resp.StopReason = llmclient.StopMaxTokens
	default:
		resp.StopReason = llmclient.StopEndTurn
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("bedrock: unexpected output member %T", out.Output)
	}
	blocks, err := toolconv.BedrockContentToNeutral(msg.Value.Content)
	if err != nil {
		return nil, err
	}
	resp.Content = blocks

	if out.Usage != nil {
		resp.Usage = models.Usage{
			InputTokens:  int64(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int64(aws.ToInt32(out.Usage.OutputTokens)),
		}
		if out.Usage.CacheReadInputTokens != nil {
			resp.Usage.CacheReadInputTokens = int64(aws.ToInt32(out.Usage.CacheReadInputTokens))
		}
		if out.Usage.CacheWriteInputTokens != nil {
			resp.Usage.CacheWriteInputTokens = int64(aws.ToInt32(out.Usage.CacheWriteInputTokens))
		}
	}

	return resp, nil
}
