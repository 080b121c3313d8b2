// Package contextmgr implements the Context Manager component: building a
// provider-ready message window from the append-only log, enforcing the
// context-window cap via middle-out truncation, and placing cache points.
package contextmgr

import (
	"unicode/utf8"

	"github.com/sweagent/core/pkg/models"
)

// tokensPerChar is the conservative local estimate ratio used only to
// decide whether middle-out must run, grounded on the teacher's
// internal/context/window.go: EstimateTokens. The authoritative,
// persisted token count always comes from the provider's billed usage
// (see the Message Store's token-count semantics), never from this
// estimator.
const tokensPerChar = 0.25

// DefaultTokenCap is the soft context cap middle-out truncation enforces,
// ~95% of a 200k-token context window (§4.E).
const DefaultTokenCap = 190_000

// EstimateTokens is a conservative chars-per-token estimate used only for
// local decisions (whether to run middle-out), never persisted.
func EstimateTokens(text string) int {
	charCount := utf8.RuneCountInString(text)
	tokens := int(float64(charCount) * tokensPerChar)
	if tokens == 0 && charCount > 0 {
		return 1
	}
	return tokens
}

// estimateItemTokens uses the item's persisted tokenCount when it is
// authoritative (billed) and positive; otherwise falls back to the local
// text estimate. Items appended by the Message Store normally carry a
// real tokenCount once the Ledger has attributed billed usage to them.
func estimateItemTokens(item *models.Message) int {
	if item.TokenCount > 0 {
		return item.TokenCount
	}
	return EstimateTokens(item.VisibleText())
}
