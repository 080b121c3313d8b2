package contextmgr

import "github.com/sweagent/core/pkg/models"

// Projection is the result of running a filtering pass over the session
// log: the surviving log items (in their original order), the same items
// projected into the provider message shape, and their estimated total
// token count.
type Projection struct {
	Items       []*models.Message
	Messages    []*models.Message
	TotalTokens int
}

// NoOpFiltering is the identity projection: every item is kept, in order.
func NoOpFiltering(items []*models.Message) Projection {
	total := 0
	for _, it := range items {
		total += estimateItemTokens(it)
	}
	return Projection{Items: items, Messages: items, TotalTokens: total}
}

// isPairedBoundary reports whether cutting the log between index i-1 and i
// would split a toolUse/toolResult pair (§3 invariant: a toolUse item is
// always immediately followed by exactly one toolResult item referencing
// the same tool-use IDs).
func isPairedBoundary(items []*models.Message, i int) bool {
	if i <= 0 || i >= len(items) {
		return false
	}
	prev := items[i-1]
	return prev.Type == models.MessageTypeToolUse
}

// MiddleOutFiltering enforces a soft token cap by removing a contiguous
// range from the middle of the log, preserving the earliest items (system
// framing, initial task statement) and the latest items (current tool
// chain). The removed range is the smallest one whose remaining
// prefix+suffix token sum fits the cap; it never splits a toolUse/
// toolResult pair, and keeping a pair whole can leave the kept set over
// the cap.
func MiddleOutFiltering(items []*models.Message, cap int) Projection {
	if cap <= 0 {
		cap = DefaultTokenCap
	}

	tokens := make([]int, len(items))
	total := 0
	for i, it := range items {
		tokens[i] = estimateItemTokens(it)
		total += tokens[i]
	}
	if total <= cap || len(items) == 0 {
		return Projection{Items: items, Messages: items, TotalTokens: total}
	}

	n := len(items)

	// Reserve at least the first item (earliest framing) unconditionally,
	// then grow the suffix backward from the end (current tool chain) to
	// fill the remaining budget, then grow the prefix forward with
	// whatever budget is left. Never stop at a boundary that splits a
	// toolUse/toolResult pair; in that case include one more item so the
	// pair stays whole, even if that pushes the kept set over cap (the
	// cap is soft; the pairing invariant is not).
	prefixEnd := 1
	prefixTokens := tokens[0]

	suffixStart := n
	suffixTokens := 0
	for suffixStart-1 > prefixEnd {
		candidate := suffixStart - 1
		cost := tokens[candidate]
		if prefixTokens+suffixTokens+cost > cap {
			break
		}
		suffixStart = candidate
		suffixTokens += cost
	}
	for isPairedBoundary(items, suffixStart) && suffixStart > prefixEnd {
		suffixStart--
		suffixTokens += tokens[suffixStart]
	}

	for prefixEnd < suffixStart {
		cost := tokens[prefixEnd]
		if prefixTokens+suffixTokens+cost > cap {
			break
		}
		prefixEnd++
		prefixTokens += cost
	}
	for isPairedBoundary(items, prefixEnd) && prefixEnd < suffixStart {
		prefixEnd++
		prefixTokens += tokens[prefixEnd-1]
	}

	kept := make([]*models.Message, 0, prefixEnd+(n-suffixStart))
	kept = append(kept, items[:prefixEnd]...)
	kept = append(kept, items[suffixStart:]...)

	return Projection{Items: kept, Messages: kept, TotalTokens: prefixTokens + suffixTokens}
}
