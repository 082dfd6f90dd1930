package features

import (
	"strings"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

// Normalize reshapes a shard to exactly key columns ++ canonical columns, in
// that order. The key set is (subject_id) or (subject_id, timestamp) depending
// on whether the input carries a timestamp column, never on configuration.
// Canonical columns absent from the input are added as typed
// all-null columns; present ones are cast to their canonical type with loud
// overflow failures; input columns outside the canonical set are dropped.
//
// With zeroToNull set, every column whose name ends in "count" has zero
// values replaced by nulls afterwards. That pass predicates on realized
// values, so it runs over the materialized columns.
func Normalize(f *tabular.Frame, canonical []string, zeroToNull bool) (*tabular.Frame, error) {
	subject := f.Column(KeySubjectID)
	if subject == nil {
		return nil, errors.E(errors.KindSchemaMismatch,
			"table missing key column %q", KeySubjectID)
	}
	keyCols := []*tabular.Series{subject}
	if ts := f.Column(KeyTimestamp); ts != nil {
		keyCols = append(keyCols, ts)
	}

	rows := f.NumRows()
	cols := make([]*tabular.Series, 0, len(keyCols)+len(canonical))
	cols = append(cols, keyCols...)
	for _, name := range canonical {
		dtype, err := DTypeFor(name)
		if err != nil {
			return nil, err
		}
		existing := f.Column(name)
		if existing == nil {
			cols = append(cols, tabular.NullSeries(name, dtype, rows))
			continue
		}
		cast, err := existing.CastChecked(dtype)
		if err != nil {
			return nil, err
		}
		cols = append(cols, cast)
	}

	if zeroToNull {
		for i, c := range cols {
			if !strings.HasSuffix(c.Name, "count") {
				continue
			}
			zeroed := c.Clone()
			for j, v := range zeroed.Values {
				if u, ok := v.(uint32); ok && u == 0 {
					zeroed.Values[j] = nil
				}
			}
			cols[i] = zeroed
		}
	}
	return tabular.NewFrame(cols...)
}
