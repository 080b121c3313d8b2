package contextmgr

import "github.com/sweagent/core/pkg/models"

// PlaceCachePoints returns a copy of items with up to two cache-point
// markers inserted, following the two-slot sliding scheme of §4.E:
//
//   - secondCachePoint = the last item.
//   - firstCachePoint = the item at index len-3 if the log has more than
//     two items, else it collapses onto the last item too.
//   - After a middle-out pass both points collapse onto the last item,
//     since all prior cache points are considered invalidated.
//
// Because each turn appends exactly two items (toolUse, toolResult)
// before the next call, the len-3 item of the new, longer list is exactly
// the previous call's last item — so this purely index-based rule
// reproduces the "first advances to previous second" sliding behavior
// without any cross-call state.
func PlaceCachePoints(items []*models.Message, didMiddleOut bool) []*models.Message {
	n := len(items)
	if n == 0 {
		return items
	}

	out := make([]*models.Message, n)
	copy(out, items)

	secondIdx := n - 1
	firstIdx := secondIdx
	if !didMiddleOut && n > 2 {
		firstIdx = n - 3
	}

	out[secondIdx] = withCachePoint(out[secondIdx])
	if firstIdx != secondIdx {
		out[firstIdx] = withCachePoint(out[firstIdx])
	}
	return out
}

// withCachePoint returns a shallow copy of m with a trailing cache-point
// marker block appended to its content, leaving the original untouched.
func withCachePoint(m *models.Message) *models.Message {
	clone := *m
	clone.Content = append(append([]models.ContentBlock{}, m.Content...), models.CachePoint())
	return &clone
}
