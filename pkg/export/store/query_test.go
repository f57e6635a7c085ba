package store

import (
	"errors"
	"testing"
	"time"

	"mercator-hq/exporter/pkg/export"
)

func TestValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	tests := []struct {
		name      string
		query     Query
		wantField string
	}{
		{"zero query", Query{}, ""},
		{"full query", Query{Limit: 10, Offset: 5, OrderBy: OrderByStoredAt, SortOrder: "desc", Since: &earlier, Until: &now}, ""},
		{"negative limit", Query{Limit: -1}, "limit"},
		{"limit over max", Query{Limit: MaxLimit + 1}, "limit"},
		{"negative offset", Query{Offset: -1}, "offset"},
		{"bad order by", Query{OrderBy: "kind"}, "order_by"},
		{"bad sort order", Query{SortOrder: "up"}, "sort_order"},
		{"inverted window", Query{Since: &now, Until: &earlier}, "since"},
		{"empty window", Query{Since: &now, Until: &now}, "since"},
		{"empty kind", Query{Kinds: []export.Kind{""}}, "kinds"},
		{"empty id", Query{IDs: []string{"a", ""}}, "ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.query)
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			var queryErr *export.QueryError
			if !errors.As(err, &queryErr) {
				t.Fatalf("Validate() error = %v, want QueryError", err)
			}
			if queryErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", queryErr.Field, tt.wantField)
			}
		})
	}
}

func TestLimits_Validate(t *testing.T) {
	limits := Limits{Default: 10, Max: 50}

	if err := limits.Validate(&Query{Limit: 50}); err != nil {
		t.Errorf("limit at max: %v", err)
	}
	if err := limits.Validate(&Query{Limit: 51}); err == nil {
		t.Error("limit over custom max accepted")
	}
}

func TestApplyDefaults(t *testing.T) {
	q := &Query{}
	ApplyDefaults(q)

	if q.Limit != DefaultLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultLimit)
	}
	if q.OrderBy != OrderByTimestamp {
		t.Errorf("OrderBy = %q, want %q", q.OrderBy, OrderByTimestamp)
	}
	if q.SortOrder != "asc" {
		t.Errorf("SortOrder = %q, want asc", q.SortOrder)
	}

	q = &Query{Limit: 7, SortOrder: "desc"}
	Limits{Default: 20}.ApplyDefaults(q)
	if q.Limit != 7 || q.SortOrder != "desc" {
		t.Errorf("ApplyDefaults overwrote explicit values: %+v", q)
	}

	q = &Query{}
	Limits{Default: 20}.ApplyDefaults(q)
	if q.Limit != 20 {
		t.Errorf("Limit = %d, want custom default 20", q.Limit)
	}
}
