package store

import (
	"fmt"
	"time"

	"mercator-hq/exporter/pkg/export"
)

const (
	// DefaultLimit is the default number of records a query returns.
	DefaultLimit = 1000

	// MaxLimit is the maximum number of records a single query may return.
	MaxLimit = 100000
)

// Sort fields.
const (
	OrderByTimestamp = "timestamp"
	OrderByStoredAt  = "stored_at"
)

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Limits bounds query result sizes and, for backends that honor it, query
// duration.
type Limits struct {
	Default int
	Max     int
	Timeout time.Duration
}

// DefaultLimits are used by Validate and ApplyDefaults.
var DefaultLimits = Limits{Default: DefaultLimit, Max: MaxLimit}

func (l Limits) normalized() Limits {
	if l.Default <= 0 {
		l.Default = DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = MaxLimit
	}
	return l
}

// Validate validates a query against the default limits.
func Validate(q *Query) error {
	return DefaultLimits.Validate(q)
}

// ApplyDefaults applies default values to a query.
func ApplyDefaults(q *Query) {
	DefaultLimits.ApplyDefaults(q)
}

// Validate validates a query and returns a QueryError for the first invalid
// parameter.
func (l Limits) Validate(q *Query) error {
	l = l.normalized()

	if q.Limit < 0 {
		return export.NewQueryError("limit", fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > l.Max {
		return export.NewQueryError("limit", fmt.Errorf("limit must be <= %d, got %d", l.Max, q.Limit))
	}
	if q.Offset < 0 {
		return export.NewQueryError("offset", fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	switch q.OrderBy {
	case "", OrderByTimestamp, OrderByStoredAt:
	default:
		return export.NewQueryError("order_by", fmt.Errorf("invalid sort field: %s", q.OrderBy))
	}
	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return export.NewQueryError("sort_order", fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.Since != nil && q.Until != nil && !q.Since.Before(*q.Until) {
		return export.NewQueryError("since", fmt.Errorf("since must be before until"))
	}

	for _, k := range q.Kinds {
		if k == "" {
			return export.NewQueryError("kinds", fmt.Errorf("kind must be non-empty"))
		}
	}
	for _, id := range q.IDs {
		if id == "" {
			return export.NewQueryError("ids", fmt.Errorf("id must be non-empty"))
		}
	}

	return nil
}

// ApplyDefaults fills in the limit, sort field and sort order.
func (l Limits) ApplyDefaults(q *Query) {
	l = l.normalized()

	if q.Limit == 0 {
		q.Limit = l.Default
	}
	if q.OrderBy == "" {
		q.OrderBy = OrderByTimestamp
	}
	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}
}
