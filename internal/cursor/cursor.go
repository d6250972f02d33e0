// Package cursor implements time-anchored pagination over records ordered by
// a timestamp column descending. A page is requested with either a before or
// an after bound; the store fetches limit+1 rows and the extra row, when
// present, signals that another page exists.
package cursor

import "time"

// DefaultLimit is the page size when the caller does not pass one.
const DefaultLimit = 10

// Query is a resolved page request ready to hand to a store.
type Query struct {
	// Anchor is the timestamp to compare records against. When neither
	// before nor after is given it is the current time.
	Anchor time.Time
	// Before selects the comparison operator: <= when paging backwards from
	// Anchor, >= otherwise. Ordering is by timestamp descending either way.
	Before bool
	// Limit is the page size requested by the caller.
	Limit int
}

// Resolve normalizes raw cursor arguments. A before bound wins over after;
// with neither set, paging anchors to now and uses the >= comparison.
func Resolve(before, after *time.Time, limit int) Query {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := Query{Limit: limit}
	switch {
	case before != nil:
		q.Anchor = *before
		q.Before = true
	case after != nil:
		q.Anchor = *after
	default:
		q.Anchor = time.Now().UTC()
	}
	return q
}

// Sign returns the SQL comparison operator for the anchor column.
func (q Query) Sign() string {
	if q.Before {
		return "<="
	}
	return ">="
}

// FetchLimit is how many rows the store should fetch: one more than the page
// size, to detect whether a next page exists without a count query.
func (q Query) FetchLimit() int {
	return q.Limit + 1
}

// Trim drops the probe row fetched beyond the page size and reports whether
// more pages exist.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	if len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}
