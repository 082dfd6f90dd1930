package features

import (
	"context"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

// InclusionSet holds up to three independent membership sets: explicit codes,
// explicit aggregations, and frequency-qualified codes. A nil set means the
// axis is unrestricted; a column is included iff it passes every present axis.
type InclusionSet struct {
	codes     map[string]struct{}
	aggs      map[string]struct{}
	freqCodes map[string]struct{}

	knownAggs []string
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// BuildInclusionSet assembles the three axes. codes and aggs come verbatim
// from configuration (empty means unrestricted). When minFrequency is
// non-nil, the corpus-wide frequency table at freqPath is scanned and codes
// at or above the threshold form the third axis.
func BuildInclusionSet(ctx context.Context, codes, aggs []string, minFrequency *int64, freqPath string) (*InclusionSet, error) {
	set := &InclusionSet{
		codes:     toSet(codes),
		aggs:      toSet(aggs),
		knownAggs: aggs,
	}
	if minFrequency == nil {
		return set, nil
	}

	freq, err := tabular.ReadFrame(ctx, freqPath)
	if err != nil {
		return nil, err
	}
	codeCol := freq.Column("code")
	if codeCol == nil || codeCol.Type != tabular.String {
		return nil, errors.E(errors.KindSchemaMismatch,
			"frequency table %s missing string column %q", freqPath, "code")
	}
	freqCol := freq.Column("frequency")
	if freqCol == nil {
		return nil, errors.E(errors.KindSchemaMismatch,
			"frequency table %s missing column %q", freqPath, "frequency")
	}
	counts, err := freqCol.CastChecked(tabular.Int64)
	if err != nil {
		return nil, err
	}

	set.freqCodes = make(map[string]struct{})
	for i := 0; i < freq.NumRows(); i++ {
		if codeCol.IsNull(i) || counts.IsNull(i) {
			continue
		}
		if counts.Values[i].(int64) >= *minFrequency {
			set.freqCodes[codeCol.Values[i].(string)] = struct{}{}
		}
	}
	return set, nil
}

// ColumnPasses decomposes a feature column name and applies the three axes:
// the code must be in the explicit-code set or that axis unrestricted, the
// code must be in the frequency set or that axis unrestricted, and the
// aggregation must be in the aggregation set or that axis unrestricted.
func (s *InclusionSet) ColumnPasses(name string) (bool, error) {
	col, err := ParseColumn(name, s.knownAggs)
	if err != nil {
		return false, err
	}
	if s.codes != nil {
		if _, ok := s.codes[col.Code]; !ok {
			return false, nil
		}
	}
	if s.freqCodes != nil {
		if _, ok := s.freqCodes[col.Code]; !ok {
			return false, nil
		}
	}
	if s.aggs != nil {
		if _, ok := s.aggs[col.Agg]; !ok {
			return false, nil
		}
	}
	return true, nil
}
