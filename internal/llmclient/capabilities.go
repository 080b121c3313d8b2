package llmclient

// defaultMaxOutputTokens is the floor adjusted max-output is scaled from
// (§4.D step 3), doubled once per maxTokensRetryCount.
const defaultMaxOutputTokens = 8192

// defaultReasoningBudget is the reasoning token budget used when the
// caller's last user text did not request the escalated ("ultrathink")
// budget.
const defaultReasoningBudget = 2000

// ultrathinkBudgetCap bounds the escalated reasoning budget regardless
// of how large maxOutputTokens is.
const ultrathinkBudgetCap = 31999

func allChoices() map[ToolChoiceKind]bool {
	return map[ToolChoiceKind]bool{ToolChoiceAuto: true, ToolChoiceAny: true, ToolChoiceTool: true}
}

func allCacheLocations() map[CachePointLocation]bool {
	return map[CachePointLocation]bool{CacheLocationSystem: true, CacheLocationTool: true, CacheLocationMessage: true}
}

// capabilities is the fixed descriptor table for models this client
// knows how to drive. It is consulted by model selection (§4.D step 1).
// Model ids are Anthropic's native ids; the Bedrock path maps these
// through modelIDToBedrock before the call and may prepend a regional
// inference-profile tag (step 2).
var capabilities = map[string]CapabilityDescriptor{
	"claude-opus-4-20250514": {
		ModelID:                    "claude-opus-4-20250514",
		MaxOutputTokens:            32000,
		ReasoningSupport:           true,
		InterleavedThinkingSupport: true,
		ToolChoiceSupport:          allChoices(),
		CacheSupport:               allCacheLocations(),
		SupportedCriProfiles:       []string{"us", "eu"},
	},
	"claude-sonnet-4-20250514": {
		ModelID:                    "claude-sonnet-4-20250514",
		MaxOutputTokens:            64000,
		ReasoningSupport:           true,
		InterleavedThinkingSupport: true,
		ToolChoiceSupport:          allChoices(),
		CacheSupport:               allCacheLocations(),
		SupportedCriProfiles:       []string{"us", "eu", "apac"},
	},
	"claude-3-7-sonnet-20250219": {
		ModelID:                    "claude-3-7-sonnet-20250219",
		MaxOutputTokens:            64000,
		ReasoningSupport:           true,
		InterleavedThinkingSupport: false,
		ToolChoiceSupport:          allChoices(),
		CacheSupport:               allCacheLocations(),
		SupportedCriProfiles:       []string{"us"},
	},
	"claude-3-5-haiku-20241022": {
		ModelID:                    "claude-3-5-haiku-20241022",
		MaxOutputTokens:            8192,
		ReasoningSupport:           false,
		InterleavedThinkingSupport: false,
		ToolChoiceSupport:          allChoices(),
		CacheSupport:               allCacheLocations(),
		SupportedCriProfiles:       []string{"us"},
	},
}

// CapabilitiesFor looks up a model's descriptor, falling back to a
// conservative no-reasoning, no-cache, auto-only descriptor for unlisted
// model ids so operators can point candidateModels at a new model id
// without this table lagging a deploy behind.
func CapabilitiesFor(modelID string) CapabilityDescriptor {
	if c, ok := capabilities[modelID]; ok {
		return c
	}
	return CapabilityDescriptor{
		ModelID:           modelID,
		MaxOutputTokens:   defaultMaxOutputTokens,
		ToolChoiceSupport: map[ToolChoiceKind]bool{ToolChoiceAuto: true},
		CacheSupport:      map[CachePointLocation]bool{},
	}
}

// criProfileTag maps a logical region profile name to the prefix
// Bedrock expects prepended to a model id for cross-region inference
// profiles, e.g. "us.anthropic.claude-sonnet-4-20250514-v1:0".
var criProfileTag = map[string]string{
	"us":   "us",
	"eu":   "eu",
	"apac": "apac",
}
