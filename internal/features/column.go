// Package features implements the feature-column model: deterministic column
// enumeration from event shards, column-name parsing and typing, schema
// normalization, the inclusion filter, and persistence of the canonical
// column set.
package features

import (
	"sort"
	"strings"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

// Key column names, canonical across the whole pipeline.
const (
	KeySubjectID = "subject_id"
	KeyTimestamp = "timestamp"
)

// StaticPrefix marks columns derived from facts without a timestamp.
const StaticPrefix = "static/"

// aggregationDTypes is the closed enumeration of aggregation kinds. The final
// segment of every feature column's aggregation must be one of these; the
// mapped type is invariant and never inferred from data.
var aggregationDTypes = map[string]tabular.DType{
	"sum":              tabular.Float32,
	"sum_sqd":          tabular.Float32,
	"min":              tabular.Float32,
	"max":              tabular.Float32,
	"value":            tabular.Float32,
	"first":            tabular.Float32,
	"present":          tabular.Bool,
	"count":            tabular.UInt32,
	"has_values_count": tabular.UInt32,
}

// ValidateAggregation checks that an aggregation name (possibly multi-segment,
// e.g. "value/sum") ends in a member of the closed enumeration.
func ValidateAggregation(agg string) error {
	parts := strings.Split(agg, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return errors.E(errors.KindMalformedColumn, "empty aggregation name %q", agg)
	}
	if _, ok := aggregationDTypes[last]; !ok {
		return errors.E(errors.KindMalformedColumn, "unknown aggregation %q", agg)
	}
	return nil
}

// DTypeFor returns the numeric type of a feature column, determined purely by
// its final aggregation segment. Unknown aggregations fail fast.
func DTypeFor(column string) (tabular.DType, error) {
	parts := strings.Split(column, "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return 0, errors.E(errors.KindMalformedColumn, "column name %q malformed", column)
	}
	dt, ok := aggregationDTypes[parts[len(parts)-1]]
	if !ok {
		return 0, errors.E(errors.KindMalformedColumn, "column name %q malformed", column)
	}
	return dt, nil
}

// FeatureColumn is the parsed identity of one feature column: its code, its
// aggregation, and whether it is a static column. Immutable once constructed.
type FeatureColumn struct {
	Code   string
	Agg    string
	Static bool

	dtype tabular.DType
}

// Name serializes the column back to its wire format.
func (c FeatureColumn) Name() string {
	if c.Static {
		return StaticPrefix + c.Code + "/" + c.Agg
	}
	return c.Code + "/" + c.Agg
}

// DType returns the column's numeric type.
func (c FeatureColumn) DType() tabular.DType { return c.dtype }

// aggCandidates returns the known aggregation names ordered so the most
// specific suffix is tried first: more segments before fewer, longer before
// shorter.
func aggCandidates(knownAggs []string) []string {
	seen := make(map[string]struct{}, len(knownAggs)+len(aggregationDTypes))
	var cands []string
	add := func(a string) {
		if a == "" {
			return
		}
		if _, dup := seen[a]; dup {
			return
		}
		seen[a] = struct{}{}
		cands = append(cands, a)
	}
	for _, a := range knownAggs {
		add(a)
	}
	for a := range aggregationDTypes {
		add(a)
	}
	sort.Slice(cands, func(i, j int) bool {
		si := strings.Count(cands[i], "/")
		sj := strings.Count(cands[j], "/")
		if si != sj {
			return si > sj
		}
		if len(cands[i]) != len(cands[j]) {
			return len(cands[i]) > len(cands[j])
		}
		return cands[i] < cands[j]
	})
	return cands
}

// ParseColumn decomposes a feature column name into (code, aggregation).
// Codes may contain '/' characters, so the split happens on the longest known
// aggregation suffix, not the first separator. knownAggs supplies configured
// multi-segment aggregations (e.g. "value/sum"); the closed enumeration is
// always consulted as well. Malformed names fail, never get skipped.
func ParseColumn(name string, knownAggs []string) (FeatureColumn, error) {
	rest := name
	static := false
	if strings.HasPrefix(name, StaticPrefix) {
		static = true
		rest = strings.TrimPrefix(name, StaticPrefix)
	}
	for _, agg := range aggCandidates(knownAggs) {
		suffix := "/" + agg
		if !strings.HasSuffix(rest, suffix) {
			continue
		}
		code := strings.TrimSuffix(rest, suffix)
		if code == "" {
			continue
		}
		dt, err := DTypeFor(name)
		if err != nil {
			return FeatureColumn{}, err
		}
		return FeatureColumn{Code: code, Agg: agg, Static: static, dtype: dt}, nil
	}
	return FeatureColumn{}, errors.E(errors.KindMalformedColumn, "column name %q malformed", name)
}
