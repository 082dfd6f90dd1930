// Package stream exposes the pull-driven shard iterator an external trainer
// consumes: advance one shard at a time, reset for re-iteration, or collect
// the whole split in memory. The protocol is sequential and single-caller;
// concurrent Advance calls are not supported.
package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/medforge/tabtrain/internal/assemble"
	"github.com/medforge/tabtrain/internal/config"
	"github.com/medforge/tabtrain/internal/features"
	"github.com/medforge/tabtrain/internal/tabular"
	"github.com/medforge/tabtrain/pkg/errors"
)

// Sink receives one shard's matrix pair during Advance.
type Sink func(x, y *mat.Dense) error

// Iterator sequences over the shards of one split. Its state is a single
// shard index in [0, N]; index == N means exhausted.
type Iterator struct {
	split    string
	shards   []string
	index    int
	asm      *assemble.Assembler
	cacheDir string
	log      *zap.SugaredLogger
}

// NewIterator discovers the split's shards, reserves a private scratch
// directory for any native caching the consumer performs, and prepares the
// shard assembler. The scratch directory is not cleaned up by the iterator;
// its lifecycle belongs to the caller.
func NewIterator(ctx context.Context, cfg *config.Config, split string, columns []string, inclusion *features.InclusionSet, log *zap.SugaredLogger) (*Iterator, error) {
	staticDir := filepath.Join(cfg.TabularizedDataDir, "static", split)
	shards, err := tabular.ListShards(staticDir)
	if err != nil {
		return nil, err
	}

	cacheDir := filepath.Join(cfg.CacheDir, fmt.Sprintf("cache-%s-%s", split, uuid.NewString()))
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.KindMissingPath, err, "creating cache dir %s", cacheDir)
	}

	asm, err := assemble.New(ctx, cfg, split, columns, inclusion, shards, log)
	if err != nil {
		return nil, err
	}

	log.Infow("iterator ready",
		"split", split, "shards", len(shards), "cache_dir", cacheDir)
	return &Iterator{
		split:    split,
		shards:   shards,
		asm:      asm,
		cacheDir: cacheDir,
		log:      log,
	}, nil
}

// Split returns the split this iterator serves.
func (it *Iterator) Split() string { return it.split }

// NumShards returns the shard count N.
func (it *Iterator) NumShards() int { return len(it.shards) }

// CacheDir returns the iterator's private scratch directory.
func (it *Iterator) CacheDir() string { return it.cacheDir }

// Advance assembles the current shard and pushes it into sink, then moves to
// the next shard. It returns (false, nil) once exhausted, without side
// effects; errors leave the index unchanged so no shard is silently skipped.
func (it *Iterator) Advance(ctx context.Context, sink Sink) (bool, error) {
	if it.index >= len(it.shards) {
		return false, nil
	}
	x, y, err := it.asm.Assemble(ctx, it.shards[it.index])
	if err != nil {
		return false, fmt.Errorf("advancing over shard %s: %w", it.shards[it.index], err)
	}
	if err := sink(x, y); err != nil {
		return false, fmt.Errorf("sink rejected shard %s: %w", it.shards[it.index], err)
	}
	it.index++
	return true, nil
}

// Reset unconditionally rewinds the iterator to the first shard. Idempotent,
// safe in any state including exhausted.
func (it *Iterator) Reset() { it.index = 0 }

// CollectAll runs Advance to exhaustion from the current index and
// concatenates every pair row-wise. Callers wanting a full pass must Reset
// first. Memory cost is proportional to the remaining corpus.
func (it *Iterator) CollectAll(ctx context.Context) (*mat.Dense, *mat.Dense, error) {
	var xs, ys []*mat.Dense
	for {
		more, err := it.Advance(ctx, func(x, y *mat.Dense) error {
			xs = append(xs, x)
			ys = append(ys, y)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		if !more {
			break
		}
	}
	x, err := StackRows(xs)
	if err != nil {
		return nil, nil, err
	}
	y, err := StackRows(ys)
	if err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

// StackRows concatenates dense blocks row-wise. Every block must share the
// same column count.
func StackRows(blocks []*mat.Dense) (*mat.Dense, error) {
	if len(blocks) == 0 {
		return nil, errors.E(errors.KindMissingPath, "no shard data to collect")
	}
	_, cols := blocks[0].Dims()
	total := 0
	for _, b := range blocks {
		r, c := b.Dims()
		if c != cols {
			return nil, errors.E(errors.KindSchemaMismatch,
				"shard block has %d columns, expected %d", c, cols)
		}
		total += r
	}
	out := mat.NewDense(total, cols, nil)
	row := 0
	for _, b := range blocks {
		r, _ := b.Dims()
		for i := 0; i < r; i++ {
			out.SetRow(row, b.RawRowView(i))
			row++
		}
	}
	return out, nil
}
