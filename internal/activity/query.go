package activity

import "time"

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time
	Categories []string // filter to specific categories
	MinWeight  string   // minimum weight threshold (default: "info")
	Limit      int      // max results (default: 50, max: 500)
	Cursor     string   // occurred_at of the last entry of the previous page
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{MinWeight: "info", Limit: 50}
}

var weightOrder = map[string]int{"info": 0, "minor": 1, "major": 2}

// AtLeast reports whether weight is at or above min. Unknown weights rank as
// "info".
func AtLeast(weight, min string) bool {
	return weightOrder[weight] >= weightOrder[min]
}
