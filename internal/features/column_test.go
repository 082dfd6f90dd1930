package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

func TestDTypeFor(t *testing.T) {
	cases := []struct {
		column string
		want   tabular.DType
	}{
		{"static/HEIGHT/first", tabular.Float32},
		{"static/SEX//MALE/present", tabular.Bool},
		{"LAB//GLUCOSE/value/sum", tabular.Float32},
		{"LAB//GLUCOSE/value/sum_sqd", tabular.Float32},
		{"LAB//GLUCOSE/value/min", tabular.Float32},
		{"LAB//GLUCOSE/value/max", tabular.Float32},
		{"DX//I10/code/count", tabular.UInt32},
		{"LAB//GLUCOSE/value/has_values_count", tabular.UInt32},
	}
	for _, tc := range cases {
		t.Run(tc.column, func(t *testing.T) {
			dt, err := DTypeFor(tc.column)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dt)
		})
	}
}

func TestDTypeForMalformed(t *testing.T) {
	for _, column := range []string{
		"",
		"count",
		"DX//I10/code/mean",
		"DX//I10/code/",
		"noslash",
	} {
		t.Run(column, func(t *testing.T) {
			_, err := DTypeFor(column)
			assert.Equal(t, errors.KindMalformedColumn, errors.KindOf(err))
		})
	}
}

func TestValidateAggregation(t *testing.T) {
	assert.NoError(t, ValidateAggregation("code/count"))
	assert.NoError(t, ValidateAggregation("value/sum"))
	assert.NoError(t, ValidateAggregation("present"))

	err := ValidateAggregation("value/mean")
	assert.Equal(t, errors.KindMalformedColumn, errors.KindOf(err))
	err = ValidateAggregation("")
	assert.Equal(t, errors.KindMalformedColumn, errors.KindOf(err))
}

func TestParseColumn(t *testing.T) {
	known := []string{"code/count", "value/sum"}

	t.Run("Dynamic", func(t *testing.T) {
		col, err := ParseColumn("LAB//GLUCOSE/value/sum", known)
		require.NoError(t, err)
		assert.Equal(t, "LAB//GLUCOSE", col.Code)
		assert.Equal(t, "value/sum", col.Agg)
		assert.False(t, col.Static)
		assert.Equal(t, tabular.Float32, col.DType())
		assert.Equal(t, "LAB//GLUCOSE/value/sum", col.Name())
	})

	t.Run("Static", func(t *testing.T) {
		col, err := ParseColumn("static/SEX//MALE/present", known)
		require.NoError(t, err)
		assert.Equal(t, "SEX//MALE", col.Code)
		assert.Equal(t, "present", col.Agg)
		assert.True(t, col.Static)
		assert.Equal(t, tabular.Bool, col.DType())
		assert.Equal(t, "static/SEX//MALE/present", col.Name())
	})

	t.Run("LongestSuffixWins", func(t *testing.T) {
		// "DX/code/count": the two-segment suffix "code/count" leaves code
		// "DX"; the bare "count" suffix would have left "DX/code".
		col, err := ParseColumn("DX/code/count", known)
		require.NoError(t, err)
		assert.Equal(t, "DX", col.Code)
		assert.Equal(t, "code/count", col.Agg)
	})

	t.Run("FallsBackToEnum", func(t *testing.T) {
		// Aggregation not in the configured list but in the closed enum.
		col, err := ParseColumn("DX/count", nil)
		require.NoError(t, err)
		assert.Equal(t, "DX", col.Code)
		assert.Equal(t, "count", col.Agg)
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, name := range []string{
			"count",              // no code
			"static/present",     // no code after prefix
			"DX/code/mean",       // unknown aggregation
			"",
		} {
			_, err := ParseColumn(name, known)
			assert.Equalf(t, errors.KindMalformedColumn, errors.KindOf(err), "name %q", name)
		}
	})
}
