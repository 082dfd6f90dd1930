// Package training contains the gradient-boosted-tree trainer and the
// orchestrator that feeds it from the shard iterators.
package training

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/medforge/tabtrain/internal/config"
)

// GBTParams contains the trainer hyperparameters.
type GBTParams struct {
	Rounds          int
	LearningRate    float64
	MaxDepth        int
	MinChildSamples int
	Lambda          float64
}

// ParamsFromConfig maps the model configuration onto trainer parameters.
func ParamsFromConfig(mc config.ModelConfig) GBTParams {
	return GBTParams{
		Rounds:          mc.Rounds,
		LearningRate:    mc.LearningRate,
		MaxDepth:        mc.MaxDepth,
		MinChildSamples: mc.MinChildSamples,
		Lambda:          mc.Lambda,
	}
}

type treeNode struct {
	leaf  bool
	value float64

	feature     int
	threshold   float64
	missingLeft bool
	left, right *treeNode
}

// GBTModel is a trained gradient-boosted regression tree ensemble with
// squared-error objective. Missing feature values (NaN) follow the default
// direction learned per split.
type GBTModel struct {
	params GBTParams
	base   float64
	trees  []*treeNode
	logger *zap.SugaredLogger
}

// TrainGBT fits the ensemble on a dense design matrix. Rows whose label is
// NaN carry no signal and are excluded from fitting.
func TrainGBT(ctx context.Context, params GBTParams, x *mat.Dense, y []float64, logger *zap.SugaredLogger) (*GBTModel, error) {
	rows, cols := x.Dims()
	if len(y) != rows {
		return nil, fmt.Errorf("label count %d does not match %d matrix rows", len(y), rows)
	}

	var trainRows []int
	var labels []float64
	for i, v := range y {
		if !math.IsNaN(v) {
			trainRows = append(trainRows, i)
			labels = append(labels, v)
		}
	}
	if len(trainRows) == 0 {
		return nil, fmt.Errorf("no labeled rows to train on")
	}

	model := &GBTModel{
		params: params,
		base:   stat.Mean(labels, nil),
		logger: logger,
	}
	logger.Infow("starting gradient boosting",
		"rounds", params.Rounds,
		"learning_rate", params.LearningRate,
		"max_depth", params.MaxDepth,
		"samples", len(trainRows),
		"columns", cols,
	)

	preds := make([]float64, rows)
	for _, i := range trainRows {
		preds[i] = model.base
	}
	grad := make([]float64, rows)

	for round := 0; round < params.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training cancelled at round %d: %w", round, err)
		}
		for _, i := range trainRows {
			grad[i] = preds[i] - y[i]
		}
		root := buildNode(x, grad, trainRows, 0, params)
		model.trees = append(model.trees, root)
		for _, i := range trainRows {
			preds[i] += params.LearningRate * predictNode(root, x.RawRowView(i))
		}
		if (round+1)%10 == 0 || round == params.Rounds-1 {
			logger.Debugw("boosting round complete",
				"round", round+1, "train_rmse", rmse(preds, y, trainRows))
		}
	}

	logger.Infow("gradient boosting completed",
		"trees", len(model.trees), "train_rmse", rmse(preds, y, trainRows))
	return model, nil
}

func rmse(preds, y []float64, rows []int) float64 {
	var sum float64
	for _, i := range rows {
		d := preds[i] - y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(rows)))
}

type splitCandidate struct {
	value float64
	grad  float64
}

func buildNode(x *mat.Dense, grad []float64, rows []int, depth int, params GBTParams) *treeNode {
	var gTotal float64
	for _, i := range rows {
		gTotal += grad[i]
	}
	n := float64(len(rows))
	leaf := &treeNode{leaf: true, value: -gTotal / (n + params.Lambda)}
	if depth >= params.MaxDepth || len(rows) < 2*params.MinChildSamples {
		return leaf
	}

	_, cols := x.Dims()
	parentScore := gTotal * gTotal / (n + params.Lambda)
	bestGain := 0.0
	bestFeature := -1
	var bestThreshold float64
	var bestMissingLeft bool

	for j := 0; j < cols; j++ {
		present := make([]splitCandidate, 0, len(rows))
		var gMissing float64
		nMissing := 0
		for _, i := range rows {
			v := x.At(i, j)
			if math.IsNaN(v) {
				gMissing += grad[i]
				nMissing++
				continue
			}
			present = append(present, splitCandidate{value: v, grad: grad[i]})
		}
		if len(present) < 2 {
			continue
		}
		sort.Slice(present, func(a, b int) bool { return present[a].value < present[b].value })

		var gLeft float64
		for k := 1; k < len(present); k++ {
			gLeft += present[k-1].grad
			if present[k].value == present[k-1].value {
				continue
			}
			gRight := gTotal - gMissing - gLeft
			nLeft := k
			nRight := len(present) - k
			threshold := (present[k-1].value + present[k].value) / 2

			// Missing rows can follow either child; evaluate both routings.
			for _, missingLeft := range []bool{true, false} {
				gl, nl := gLeft, nLeft
				gr, nr := gRight, nRight
				if missingLeft {
					gl += gMissing
					nl += nMissing
				} else {
					gr += gMissing
					nr += nMissing
				}
				if nl < params.MinChildSamples || nr < params.MinChildSamples {
					continue
				}
				gain := gl*gl/(float64(nl)+params.Lambda) +
					gr*gr/(float64(nr)+params.Lambda) - parentScore
				if gain > bestGain {
					bestGain = gain
					bestFeature = j
					bestThreshold = threshold
					bestMissingLeft = missingLeft
				}
			}
		}
	}

	if bestFeature < 0 || bestGain <= 1e-12 {
		return leaf
	}

	var leftRows, rightRows []int
	for _, i := range rows {
		v := x.At(i, bestFeature)
		switch {
		case math.IsNaN(v):
			if bestMissingLeft {
				leftRows = append(leftRows, i)
			} else {
				rightRows = append(rightRows, i)
			}
		case v < bestThreshold:
			leftRows = append(leftRows, i)
		default:
			rightRows = append(rightRows, i)
		}
	}
	if len(leftRows) == 0 || len(rightRows) == 0 {
		return leaf
	}
	return &treeNode{
		feature:     bestFeature,
		threshold:   bestThreshold,
		missingLeft: bestMissingLeft,
		left:        buildNode(x, grad, leftRows, depth+1, params),
		right:       buildNode(x, grad, rightRows, depth+1, params),
	}
}

func predictNode(n *treeNode, row []float64) float64 {
	for !n.leaf {
		v := row[n.feature]
		goLeft := v < n.threshold
		if math.IsNaN(v) {
			goLeft = n.missingLeft
		}
		if goLeft {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

// Predict returns one prediction per matrix row.
func (m *GBTModel) Predict(x *mat.Dense) []float64 {
	rows, _ := x.Dims()
	preds := make([]float64, rows)
	for i := 0; i < rows; i++ {
		p := m.base
		row := x.RawRowView(i)
		for _, tree := range m.trees {
			p += m.params.LearningRate * predictNode(tree, row)
		}
		preds[i] = p
	}
	return preds
}

// NumTrees returns the ensemble size.
func (m *GBTModel) NumTrees() int { return len(m.trees) }

// MeanAbsoluteError computes the MAE over rows with a defined truth value.
func MeanAbsoluteError(preds, truth []float64) (float64, error) {
	if len(preds) != len(truth) {
		return 0, fmt.Errorf("prediction count %d does not match %d labels", len(preds), len(truth))
	}
	var sum float64
	n := 0
	for i := range preds {
		if math.IsNaN(truth[i]) {
			continue
		}
		sum += math.Abs(preds[i] - truth[i])
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no labeled rows to evaluate")
	}
	return sum / float64(n), nil
}
