// Package testutil builds a small on-disk corpus for pipeline tests: raw
// event shards, static and windowed tabularized shards, a task-label table
// and a code-frequency table, laid out the way the pipeline expects them.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medforge/tabtrain/internal/config"
	"github.com/medforge/tabtrain/internal/tabular"
)

// Splits present in the fixture corpus.
var Splits = []string{"train", "tuning", "held_out"}

// Shards present in every split.
var Shards = []string{"shard_a", "shard_b"}

// Event timestamps shared across the fixture tables.
var (
	T1 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	T2 = time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	T3 = time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC)
)

// Canonical feature columns the fixture corpus produces.
var (
	StaticColumns  = []string{"static/DEMO//AGE/first", "static/DEMO//AGE/present"}
	DynamicColumns = []string{"B/code/count", "B/value/sum"}
)

// Fixture is a complete corpus rooted in temporary directories.
type Fixture struct {
	Cfg *config.Config
}

func writeFrame(t *testing.T, path string, cols ...*tabular.Series) {
	t.Helper()
	f, err := tabular.NewFrame(cols...)
	require.NoError(t, err)
	require.NoError(t, tabular.WriteFrame(f, path, false))
}

// NewFixture materializes the corpus under t.TempDir and returns a validated
// configuration pointing at it. The corpus has two subjects: subject 1 with
// task rows at T1 and T3, subject 2 with one at T2. shard_a holds subject 1,
// shard_b holds subject 2; every split carries the same content.
func NewFixture(t *testing.T) *Fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.MEDSCohortDir = t.TempDir()
	cfg.TabularizedDataDir = t.TempDir()
	cfg.CacheDir = t.TempDir()
	cfg.WindowSizes = []string{"1d"}
	cfg.Aggs = []string{"code/count", "value/sum"}
	cfg.Model.Rounds = 20
	cfg.Model.MaxDepth = 3
	require.NoError(t, cfg.Validate())

	// Raw events: one static fact and one timestamped event per subject.
	writeFrame(t, filepath.Join(cfg.MEDSCohortDir, "train", "shard_a.parquet"),
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(1)}},
		&tabular.Series{Name: "code", Type: tabular.String, Values: []any{"DEMO//AGE", "B"}},
		&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{nil, T1}},
		&tabular.Series{Name: "numerical_value", Type: tabular.Float32, Values: []any{float32(40), float32(5)}},
	)
	writeFrame(t, filepath.Join(cfg.MEDSCohortDir, "train", "shard_b.parquet"),
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(2), int64(2)}},
		&tabular.Series{Name: "code", Type: tabular.String, Values: []any{"DEMO//AGE", "B"}},
		&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{nil, T2}},
		&tabular.Series{Name: "numerical_value", Type: tabular.Float32, Values: []any{float32(50), float32(9)}},
	)

	writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "tasks.parquet"),
		&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(1), int64(2)}},
		&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{T1, T3, T2}},
		&tabular.Series{Name: "label", Type: tabular.Float32, Values: []any{float32(1), float32(2), float32(3)}},
	)

	writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "code_frequencies.parquet"),
		&tabular.Series{Name: "code", Type: tabular.String, Values: []any{"B", "RARE"}},
		&tabular.Series{Name: "frequency", Type: tabular.Int64, Values: []any{int64(100), int64(1)}},
	)

	for _, split := range Splits {
		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "static", split, "shard_a.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1)}},
			&tabular.Series{Name: "static/DEMO//AGE/first", Type: tabular.Float32, Values: []any{float32(40)}},
			&tabular.Series{Name: "static/DEMO//AGE/present", Type: tabular.Bool, Values: []any{true}},
		)
		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "static", split, "shard_b.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(2)}},
			&tabular.Series{Name: "static/DEMO//AGE/first", Type: tabular.Float32, Values: []any{float32(50)}},
			&tabular.Series{Name: "static/DEMO//AGE/present", Type: tabular.Bool, Values: []any{true}},
		)

		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "summarize", split, "1d", "shard_a.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(1)}},
			&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{T1, T3}},
			&tabular.Series{Name: "B/code/count", Type: tabular.UInt32, Values: []any{uint32(2), uint32(1)}},
			&tabular.Series{Name: "B/value/sum", Type: tabular.Float32, Values: []any{float32(5), float32(2.5)}},
		)
		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "summarize", split, "1d", "shard_b.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(2)}},
			&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{T2}},
			&tabular.Series{Name: "B/code/count", Type: tabular.UInt32, Values: []any{uint32(3)}},
			&tabular.Series{Name: "B/value/sum", Type: tabular.Float32, Values: []any{float32(9)}},
		)

		// The wider window carries an extra (1, T2) key no task row has, so
		// multi-window assembly exercises the key union.
		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "summarize", split, "7d", "shard_a.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(1), int64(1), int64(1)}},
			&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{T1, T2, T3}},
			&tabular.Series{Name: "B/code/count", Type: tabular.UInt32, Values: []any{uint32(4), uint32(9), uint32(3)}},
			&tabular.Series{Name: "B/value/sum", Type: tabular.Float32, Values: []any{float32(12), float32(30), float32(7.5)}},
		)
		writeFrame(t, filepath.Join(cfg.TabularizedDataDir, "summarize", split, "7d", "shard_b.parquet"),
			&tabular.Series{Name: "subject_id", Type: tabular.Int64, Values: []any{int64(2)}},
			&tabular.Series{Name: "timestamp", Type: tabular.Timestamp, Values: []any{T2}},
			&tabular.Series{Name: "B/code/count", Type: tabular.UInt32, Values: []any{uint32(5)}},
			&tabular.Series{Name: "B/value/sum", Type: tabular.Float32, Values: []any{float32(20)}},
		)
	}
	return &Fixture{Cfg: cfg}
}

// Columns returns the canonical feature-column list of the fixture corpus.
func (f *Fixture) Columns() []string {
	return append(append([]string{}, StaticColumns...), DynamicColumns...)
}
