// Package assemble turns one on-disk shard into an aligned feature/label
// matrix pair: static features, windowed dynamic features and task labels are
// loaded, temporally joined, filtered and split per the canonical column set.
package assemble

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/medforge/tabtrain/internal/config"
	"github.com/medforge/tabtrain/internal/features"
	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
	"github.com/medforge/tabtrain/pkg/metrics"
)

// TaskSuffix marks label columns after the rename step.
const TaskSuffix = "/task"

// TasksFile is the corpus-wide task-label table under the tabularized root.
const TasksFile = "tasks.parquet"

// DirectionFor maps a window specification to the as-of join direction:
// trailing (negative) offsets look forward to the label as of the next event,
// leading offsets look backward to the most recent one. This is a label
// leakage policy, not a convenience.
func DirectionFor(window string) tabular.JoinDirection {
	if strings.Contains(window, "-") {
		return tabular.Forward
	}
	return tabular.Backward
}

// Assembler builds matrices for the shards of one split. The static-shard
// cache is an explicit map owned by the instance, populated once at
// construction when eager caching is configured, and only read afterwards.
type Assembler struct {
	cfg   *config.Config
	split string
	log   *zap.SugaredLogger

	staticDir  string
	dynamicDir string

	staticCanonical []string
	dynamicSelected []string

	tasks       *tabular.Frame
	staticCache map[string]*tabular.Frame
	direction   tabular.JoinDirection
}

// New constructs an assembler for one split over the given shard set.
// columns is the canonical feature-column list; the inclusion set prunes the
// dynamic block before any matrix is built.
func New(ctx context.Context, cfg *config.Config, split string, columns []string, inclusion *features.InclusionSet, shards []string, log *zap.SugaredLogger) (*Assembler, error) {
	a := &Assembler{
		cfg:        cfg,
		split:      split,
		log:        log,
		staticDir:  filepath.Join(cfg.TabularizedDataDir, "static", split),
		dynamicDir: filepath.Join(cfg.TabularizedDataDir, "summarize", split),
		direction:  DirectionFor(cfg.WindowSizes[0]),
	}

	for _, name := range columns {
		if strings.HasPrefix(name, features.StaticPrefix) {
			a.staticCanonical = append(a.staticCanonical, name)
			continue
		}
		pass, err := inclusion.ColumnPasses(name)
		if err != nil {
			return nil, err
		}
		if pass {
			a.dynamicSelected = append(a.dynamicSelected, name)
		}
	}

	tasks, err := tabular.ReadFrame(ctx, filepath.Join(cfg.TabularizedDataDir, TasksFile))
	if err != nil {
		return nil, err
	}
	a.tasks, err = tasks.RenameColumns(func(name string) string {
		if name == features.KeySubjectID || name == features.KeyTimestamp {
			return name
		}
		return name + TaskSuffix
	})
	if err != nil {
		return nil, err
	}

	if cfg.Iterator.KeepStaticDataInMemory {
		a.staticCache = make(map[string]*tabular.Frame, len(shards))
		for _, shard := range shards {
			frame, err := tabular.ReadFrame(ctx, filepath.Join(a.staticDir, shard+".parquet"))
			if err != nil {
				return nil, err
			}
			a.staticCache[shard] = frame
		}
		log.Debugw("cached static shards in memory", "split", split, "shards", len(shards))
	}
	return a, nil
}

func (a *Assembler) staticFrame(ctx context.Context, shard string) (*tabular.Frame, error) {
	if a.staticCache != nil {
		if frame, ok := a.staticCache[shard]; ok {
			return frame, nil
		}
	}
	return tabular.ReadFrame(ctx, filepath.Join(a.staticDir, shard+".parquet"))
}

// Assemble builds the feature and label matrices for one shard. The two
// matrices share row count and (subject, timestamp) key order. Either both
// are returned fully formed or the call fails with a typed error.
func (a *Assembler) Assemble(ctx context.Context, shard string) (*mat.Dense, *mat.Dense, error) {
	start := time.Now()
	x, y, err := a.assemble(ctx, shard)
	if err != nil {
		metrics.AssembleErrors.WithLabelValues(a.split).Inc()
		return nil, nil, err
	}
	rows, cols := x.Dims()
	metrics.ShardsAssembled.WithLabelValues(a.split).Inc()
	metrics.RowsEmitted.WithLabelValues(a.split).Add(float64(rows))
	metrics.AssembleLatency.Observe(time.Since(start).Seconds())
	a.log.Debugw("assembled shard",
		"split", a.split, "shard", shard, "rows", rows, "columns", cols,
		"direction", a.direction.String())
	return x, y, nil
}

func (a *Assembler) assemble(ctx context.Context, shard string) (*mat.Dense, *mat.Dense, error) {
	static, err := a.staticFrame(ctx, shard)
	if err != nil {
		return nil, nil, err
	}
	static, err = features.Normalize(static, a.staticCanonical, a.cfg.SetCountZeroToNull)
	if err != nil {
		return nil, nil, err
	}

	// Labels are aligned once per shard; windows only widen the dynamic block.
	acc, err := tabular.AsofJoin(a.tasks, static, features.KeySubjectID, features.KeyTimestamp, a.direction)
	if err != nil {
		return nil, nil, err
	}

	for _, window := range a.cfg.WindowSizes {
		dynamic, err := tabular.ReadFrame(ctx,
			filepath.Join(a.dynamicDir, window, shard+".parquet"))
		if err != nil {
			return nil, nil, err
		}
		// Malformed feature columns fail here, never get silently dropped.
		for _, name := range dynamic.Names() {
			if name == features.KeySubjectID || name == features.KeyTimestamp {
				continue
			}
			if _, err := features.ParseColumn(name, a.cfg.Aggs); err != nil {
				return nil, nil, err
			}
		}
		dynamic, err = features.Normalize(dynamic, a.dynamicSelected, a.cfg.SetCountZeroToNull)
		if err != nil {
			return nil, nil, err
		}
		if !dynamic.Has(features.KeyTimestamp) {
			return nil, nil, errors.E(errors.KindSchemaMismatch,
				"dynamic table %s/%s missing %q", window, shard, features.KeyTimestamp)
		}
		prefixed, err := dynamic.RenameColumns(func(name string) string {
			if name == features.KeySubjectID || name == features.KeyTimestamp {
				return name
			}
			return window + "/" + name
		})
		if err != nil {
			return nil, nil, err
		}
		acc, err = tabular.OuterAlign(acc, prefixed, features.KeySubjectID, features.KeyTimestamp)
		if err != nil {
			return nil, nil, err
		}
	}

	var labelCols, featureCols []string
	for _, name := range acc.Names() {
		switch {
		case strings.HasSuffix(name, TaskSuffix):
			labelCols = append(labelCols, name)
		case name == features.KeySubjectID || name == features.KeyTimestamp:
		default:
			featureCols = append(featureCols, name)
		}
	}
	x, err := acc.ToDense(featureCols)
	if err != nil {
		return nil, nil, err
	}
	y, err := acc.ToDense(labelCols)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}
