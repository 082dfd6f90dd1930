package training

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/medforge/tabtrain/internal/config"
	"github.com/medforge/tabtrain/internal/features"
	"github.com/medforge/tabtrain/internal/stream"
)

// Data splits, named after the directory layout.
const (
	SplitTrain   = "train"
	SplitTuning  = "tuning"
	SplitHeldOut = "held_out"
)

// FrequenciesFile is the corpus-wide (code, frequency) table.
const FrequenciesFile = "code_frequencies.parquet"

// DataIterator is the pull protocol the trainer drives in streaming mode.
// It is the contract of stream.Iterator: sequential, single-caller.
type DataIterator interface {
	Advance(ctx context.Context, sink stream.Sink) (bool, error)
	Reset()
}

// DesignMatrix is the trainer's native data structure: a dense feature
// matrix and one label per row.
type DesignMatrix struct {
	X *mat.Dense
	Y []float64
}

// NewDesignMatrix builds the trainer structure from fully collected matrices.
// The first task column is the regression target.
func NewDesignMatrix(x, y *mat.Dense, log *zap.SugaredLogger) (*DesignMatrix, error) {
	xr, _ := x.Dims()
	rows, cols := y.Dims()
	if xr != rows {
		return nil, fmt.Errorf("feature matrix has %d rows, label matrix %d", xr, rows)
	}
	if cols > 1 {
		log.Warnw("multiple task columns; training on the first", "task_columns", cols)
	}
	labels := make([]float64, rows)
	for i := 0; i < rows; i++ {
		labels[i] = y.At(i, 0)
	}
	return &DesignMatrix{X: x, Y: labels}, nil
}

// DesignMatrixFromIterator builds the trainer structure by driving the pull
// protocol itself: reset, then advance to exhaustion, appending each shard
// block. This is the streaming operating mode.
func DesignMatrixFromIterator(ctx context.Context, it DataIterator, log *zap.SugaredLogger) (*DesignMatrix, error) {
	it.Reset()
	var xs, ys []*mat.Dense
	for {
		more, err := it.Advance(ctx, func(x, y *mat.Dense) error {
			xs = append(xs, x)
			ys = append(ys, y)
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	x, err := stream.StackRows(xs)
	if err != nil {
		return nil, err
	}
	y, err := stream.StackRows(ys)
	if err != nil {
		return nil, err
	}
	return NewDesignMatrix(x, y, log)
}

// Orchestrator wires the three split iterators to the trainer and evaluates
// the result on the held-out split.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.SugaredLogger

	model *GBTModel
}

// NewOrchestrator creates the training orchestrator.
func NewOrchestrator(cfg *config.Config, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{cfg: cfg, logger: logger}
}

// Model returns the trained model, nil before Run completes.
func (o *Orchestrator) Model() *GBTModel { return o.model }

// Run executes the full pipeline: resolve the canonical feature columns,
// build one iterator per split, construct the trainer's structures in the
// configured mode, train, and return the held-out mean absolute error.
func (o *Orchestrator) Run(ctx context.Context) (float64, error) {
	fingerprint, err := o.cfg.Fingerprint()
	if err != nil {
		return 0, err
	}
	columns, err := features.LoadOrComputeColumns(ctx,
		o.cfg.FlatDir(), o.cfg.MEDSCohortDir, o.cfg.Aggs, fingerprint, o.logger)
	if err != nil {
		return 0, err
	}
	inclusion, err := features.BuildInclusionSet(ctx,
		o.cfg.Codes, o.cfg.Aggs, o.cfg.MinCodeInclusionFrequency,
		filepath.Join(o.cfg.TabularizedDataDir, FrequenciesFile))
	if err != nil {
		return 0, err
	}

	iterators := make(map[string]*stream.Iterator, 3)
	for _, split := range []string{SplitTrain, SplitTuning, SplitHeldOut} {
		it, err := stream.NewIterator(ctx, o.cfg, split, columns, inclusion, o.logger)
		if err != nil {
			return 0, fmt.Errorf("building %s iterator: %w", split, err)
		}
		iterators[split] = it
	}

	matrices := make(map[string]*DesignMatrix, 3)
	for split, it := range iterators {
		var dm *DesignMatrix
		if o.cfg.Model.KeepDataInMemory {
			it.Reset()
			x, y, err := it.CollectAll(ctx)
			if err != nil {
				return 0, fmt.Errorf("collecting %s split: %w", split, err)
			}
			dm, err = NewDesignMatrix(x, y, o.logger)
			if err != nil {
				return 0, err
			}
		} else {
			dm, err = DesignMatrixFromIterator(ctx, it, o.logger)
			if err != nil {
				return 0, fmt.Errorf("streaming %s split: %w", split, err)
			}
		}
		matrices[split] = dm
	}

	model, err := TrainGBT(ctx, ParamsFromConfig(o.cfg.Model), matrices[SplitTrain].X, matrices[SplitTrain].Y, o.logger)
	if err != nil {
		return 0, err
	}
	o.model = model

	if tuningMAE, err := MeanAbsoluteError(model.Predict(matrices[SplitTuning].X), matrices[SplitTuning].Y); err == nil {
		o.logger.Infow("tuning evaluation", "mae", tuningMAE)
	}

	heldOutMAE, err := MeanAbsoluteError(model.Predict(matrices[SplitHeldOut].X), matrices[SplitHeldOut].Y)
	if err != nil {
		return 0, fmt.Errorf("held-out evaluation: %w", err)
	}
	o.logger.Infow("held-out evaluation", "mae", heldOutMAE)
	return heldOutMAE, nil
}
