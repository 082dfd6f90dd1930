package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

func TestNormalize(t *testing.T) {
	canonical := []string{"A/code/count", "A/value/sum", "static/B/present"}
	when := time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)

	input, err := tabular.NewFrame(
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(2)}},
		&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{when, when}},
		// Wrong physical type, right value range.
		&tabular.Series{Name: "A/code/count", Type: tabular.Int64, Values: []any{int64(3), int64(0)}},
		&tabular.Series{Name: "extraneous", Type: tabular.String, Values: []any{"x", "y"}},
	)
	require.NoError(t, err)

	out, err := Normalize(input, canonical, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"subject_id", "timestamp", "A/code/count", "A/value/sum", "static/B/present"}, out.Names())
	assert.Equal(t, 2, out.NumRows())

	counts := out.Column("A/code/count")
	assert.Equal(t, tabular.UInt32, counts.Type)
	assert.Equal(t, uint32(3), counts.Values[0])
	assert.Equal(t, uint32(0), counts.Values[1])

	// Absent canonical columns materialize as typed nulls.
	sums := out.Column("A/value/sum")
	assert.Equal(t, tabular.Float32, sums.Type)
	assert.True(t, sums.IsNull(0))
	present := out.Column("static/B/present")
	assert.Equal(t, tabular.Bool, present.Type)
	assert.True(t, present.IsNull(1))

	t.Run("Idempotent", func(t *testing.T) {
		again, err := Normalize(out, canonical, false)
		require.NoError(t, err)
		assert.Equal(t, out.Names(), again.Names())
		for _, name := range out.Names() {
			assert.Equal(t, out.Column(name).Values, again.Column(name).Values, name)
		}
	})
}

func TestNormalizeStaticShape(t *testing.T) {
	// No timestamp column: the key set is subject_id alone.
	input, err := tabular.NewFrame(
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1)}},
		&tabular.Series{Name: "static/B/first", Type: tabular.Float32, Values: []any{float32(7)}},
	)
	require.NoError(t, err)

	out, err := Normalize(input, []string{"static/B/first"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "static/B/first"}, out.Names())
}

func TestNormalizeZeroToNull(t *testing.T) {
	input, err := tabular.NewFrame(
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(2), int64(3)}},
		&tabular.Series{Name: "A/code/count", Type: tabular.UInt32, Values: []any{uint32(0), uint32(2), nil}},
		&tabular.Series{Name: "A/value/sum", Type: tabular.Float32, Values: []any{float32(0), float32(1), float32(2)}},
	)
	require.NoError(t, err)

	out, err := Normalize(input, []string{"A/code/count", "A/value/sum"}, true)
	require.NoError(t, err)

	counts := out.Column("A/code/count")
	assert.True(t, counts.IsNull(0))
	assert.Equal(t, uint32(2), counts.Values[1])
	assert.True(t, counts.IsNull(2))

	// Only columns named *count are touched.
	sums := out.Column("A/value/sum")
	assert.Equal(t, float32(0), sums.Values[0])
}

func TestNormalizeFailures(t *testing.T) {
	t.Run("MissingSubject", func(t *testing.T) {
		input, err := tabular.NewFrame(
			&tabular.Series{Name: "A/code/count", Type: tabular.UInt32, Values: []any{uint32(1)}},
		)
		require.NoError(t, err)
		_, err = Normalize(input, []string{"A/code/count"}, false)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("OverflowingCast", func(t *testing.T) {
		input, err := tabular.NewFrame(
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1)}},
			&tabular.Series{Name: "A/code/count", Type: tabular.Int64, Values: []any{int64(-1)}},
		)
		require.NoError(t, err)
		_, err = Normalize(input, []string{"A/code/count"}, false)
		assert.Error(t, err)
	})

	t.Run("MalformedCanonicalName", func(t *testing.T) {
		input, err := tabular.NewFrame(
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1)}},
		)
		require.NoError(t, err)
		_, err = Normalize(input, []string{"A/code/mean"}, false)
		assert.Equal(t, errors.KindMalformedColumn, errors.KindOf(err))
	})
}
