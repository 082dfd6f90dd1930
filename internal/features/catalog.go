package features

import (
	"sort"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

// Raw event shard column names (MEDS-shaped corpus).
const (
	rawCodeColumn      = "code"
	rawTimestampColumn = "timestamp"
)

func eventColumns(shard *tabular.Frame) (*tabular.Series, *tabular.Series, error) {
	codes := shard.Column(rawCodeColumn)
	if codes == nil || codes.Type != tabular.String {
		return nil, nil, errors.E(errors.KindSchemaMismatch,
			"event shard missing string column %q", rawCodeColumn)
	}
	ts := shard.Column(rawTimestampColumn)
	if ts == nil {
		return nil, nil, errors.E(errors.KindSchemaMismatch,
			"event shard missing column %q", rawTimestampColumn)
	}
	return codes, ts, nil
}

// StaticFeatureColumns enumerates the static columns of one event shard: for
// every distinct code observed without a timestamp, static/<code>/present and
// static/<code>/first, sorted lexicographically.
func StaticFeatureColumns(shard *tabular.Frame) ([]string, error) {
	codes, ts, err := eventColumns(shard)
	if err != nil {
		return nil, err
	}
	distinct := make(map[string]struct{})
	for i := 0; i < codes.Len(); i++ {
		if codes.IsNull(i) || !ts.IsNull(i) {
			continue
		}
		distinct[codes.Values[i].(string)] = struct{}{}
	}
	columns := make([]string, 0, 2*len(distinct))
	for code := range distinct {
		columns = append(columns, StaticPrefix+code+"/present", StaticPrefix+code+"/first")
	}
	sort.Strings(columns)
	return columns, nil
}

// DynamicFeatureColumns enumerates the dynamic columns of one event shard:
// <code>/<agg> for every distinct timestamped code and every configured
// aggregation, sorted lexicographically.
func DynamicFeatureColumns(aggregations []string, shard *tabular.Frame) ([]string, error) {
	for _, agg := range aggregations {
		if err := ValidateAggregation(agg); err != nil {
			return nil, err
		}
	}
	codes, ts, err := eventColumns(shard)
	if err != nil {
		return nil, err
	}
	distinct := make(map[string]struct{})
	for i := 0; i < codes.Len(); i++ {
		if codes.IsNull(i) || ts.IsNull(i) {
			continue
		}
		distinct[codes.Values[i].(string)] = struct{}{}
	}
	columns := make([]string, 0, len(distinct)*len(aggregations))
	for code := range distinct {
		for _, agg := range aggregations {
			columns = append(columns, code+"/"+agg)
		}
	}
	sort.Strings(columns)
	return columns, nil
}

// CatalogColumns derives the canonical ordered feature-column set from a
// corpus of event shards: the union of static columns followed by the union
// of dynamic columns, each block sorted lexicographically. The result depends
// only on the set of observed codes and the aggregation list, never on row or
// shard order.
func CatalogColumns(aggregations []string, shards ...*tabular.Frame) ([]string, error) {
	staticSet := make(map[string]struct{})
	dynamicSet := make(map[string]struct{})
	for _, shard := range shards {
		st, err := StaticFeatureColumns(shard)
		if err != nil {
			return nil, err
		}
		for _, c := range st {
			staticSet[c] = struct{}{}
		}
		dyn, err := DynamicFeatureColumns(aggregations, shard)
		if err != nil {
			return nil, err
		}
		for _, c := range dyn {
			dynamicSet[c] = struct{}{}
		}
	}
	staticCols := make([]string, 0, len(staticSet))
	for c := range staticSet {
		staticCols = append(staticCols, c)
	}
	sort.Strings(staticCols)
	dynamicCols := make([]string, 0, len(dynamicSet))
	for c := range dynamicSet {
		dynamicCols = append(dynamicCols, c)
	}
	sort.Strings(dynamicCols)
	return append(staticCols, dynamicCols...), nil
}
