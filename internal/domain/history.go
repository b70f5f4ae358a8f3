package domain

// HistoryLimit bounds the per-user recent-query list.
const HistoryLimit = 5

// SearchHistory holds a user's most recent distinct queries,
// most-recent first.
type SearchHistory struct {
	Meta

	UserID  string   `json:"userId"`
	Queries []string `json:"queries"`
}

// Push prepends the query, deduplicates preserving first occurrence
// (a repeated query moves to the front rather than duplicating), and
// truncates to HistoryLimit. Callers run this inside a store-side
// atomic transform to avoid a fetch-then-write race between
// concurrent searches by the same user.
func (h *SearchHistory) Push(query string) {
	merged := make([]string, 0, HistoryLimit)
	seen := make(map[string]bool, HistoryLimit+1)

	for _, q := range append([]string{query}, h.Queries...) {
		if seen[q] {
			continue
		}
		seen[q] = true
		merged = append(merged, q)
		if len(merged) == HistoryLimit {
			break
		}
	}

	h.Queries = merged
}
