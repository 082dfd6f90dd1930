package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

func eventShard(t *testing.T, codes []any, timestamps []any) *tabular.Frame {
	t.Helper()
	subjects := make([]any, len(codes))
	for i := range subjects {
		subjects[i] = int64(i + 1)
	}
	f, err := tabular.NewFrame(
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: subjects},
		&tabular.Series{Name: "code", Type: tabular.String, Values: codes},
		&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: timestamps},
	)
	require.NoError(t, err)
	return f
}

func TestStaticFeatureColumns(t *testing.T) {
	when := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	// A and C appear without a timestamp, B only with one.
	shard := eventShard(t,
		[]any{"A", "B", "C", "A"},
		[]any{nil, when, nil, when},
	)
	columns, err := StaticFeatureColumns(shard)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"static/A/first", "static/A/present",
		"static/C/first", "static/C/present",
	}, columns)
}

func TestDynamicFeatureColumns(t *testing.T) {
	when := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	shard := eventShard(t,
		[]any{"A", "B", "C", "B"},
		[]any{nil, when, when, when},
	)
	columns, err := DynamicFeatureColumns([]string{"code/count", "value/sum"}, shard)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"B/code/count", "B/value/sum",
		"C/code/count", "C/value/sum",
	}, columns)

	t.Run("UnknownAggregation", func(t *testing.T) {
		_, err := DynamicFeatureColumns([]string{"value/mean"}, shard)
		assert.Equal(t, errors.KindMalformedColumn, errors.KindOf(err))
	})
}

func TestCatalogColumns(t *testing.T) {
	when := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	shardA := eventShard(t,
		[]any{"A", "B"},
		[]any{nil, when},
	)
	shardB := eventShard(t,
		[]any{"C", "B", "D"},
		[]any{nil, when, when},
	)
	aggs := []string{"code/count"}

	columns, err := CatalogColumns(aggs, shardA, shardB)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"static/A/first", "static/A/present",
		"static/C/first", "static/C/present",
		"B/code/count",
		"D/code/count",
	}, columns)

	t.Run("RowOrderIndependent", func(t *testing.T) {
		shuffledA := eventShard(t,
			[]any{"B", "A"},
			[]any{when, nil},
		)
		shuffledB := eventShard(t,
			[]any{"D", "C", "B"},
			[]any{when, nil, when},
		)
		again, err := CatalogColumns(aggs, shuffledB, shuffledA)
		require.NoError(t, err)
		assert.Equal(t, columns, again)
	})
}

func TestCatalogColumnsRejectsBadShard(t *testing.T) {
	f, err := tabular.NewFrame(
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1)}},
	)
	require.NoError(t, err)
	_, err = CatalogColumns([]string{"code/count"}, f)
	assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
}
