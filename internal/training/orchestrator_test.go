package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gonum.org/v1/gonum/mat"

	"github.com/medforge/tabtrain/internal/stream"
	"github.com/medforge/tabtrain/testutil"
)

func TestNewDesignMatrix(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	x := mat.NewDense(2, 3, nil)
	y := mat.NewDense(2, 2, []float64{1, 9, 2, 9})

	dm, err := NewDesignMatrix(x, y, log)
	require.NoError(t, err)
	// The first task column is the target; extras are ignored with a warning.
	assert.Equal(t, []float64{1, 2}, dm.Y)

	_, err = NewDesignMatrix(mat.NewDense(3, 1, nil), y, log)
	assert.Error(t, err)
}

type fakeIterator struct {
	blocks []struct{ x, y *mat.Dense }
	index  int
	resets int
}

func (f *fakeIterator) Advance(ctx context.Context, sink stream.Sink) (bool, error) {
	if f.index >= len(f.blocks) {
		return false, nil
	}
	b := f.blocks[f.index]
	if err := sink(b.x, b.y); err != nil {
		return false, err
	}
	f.index++
	return true, nil
}

func (f *fakeIterator) Reset() {
	f.index = 0
	f.resets++
}

func TestDesignMatrixFromIterator(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	it := &fakeIterator{blocks: []struct{ x, y *mat.Dense }{
		{mat.NewDense(2, 1, []float64{1, 2}), mat.NewDense(2, 1, []float64{10, 20})},
		{mat.NewDense(1, 1, []float64{3}), mat.NewDense(1, 1, []float64{30})},
	}}

	dm, err := DesignMatrixFromIterator(context.Background(), it, log)
	require.NoError(t, err)
	assert.Equal(t, 1, it.resets)
	rows, cols := dm.X.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 1, cols)
	assert.Equal(t, []float64{10, 20, 30}, dm.Y)
}

func TestOrchestratorRun(t *testing.T) {
	for _, inMemory := range []bool{true, false} {
		name := "Streaming"
		if inMemory {
			name = "InMemory"
		}
		t.Run(name, func(t *testing.T) {
			fix := testutil.NewFixture(t)
			fix.Cfg.Model.KeepDataInMemory = inMemory
			log := zaptest.NewLogger(t).Sugar()

			orch := NewOrchestrator(fix.Cfg, log)
			mae, err := orch.Run(context.Background())
			require.NoError(t, err)
			assert.False(t, math.IsNaN(mae))
			assert.GreaterOrEqual(t, mae, 0.0)
			require.NotNil(t, orch.Model())
			assert.Equal(t, fix.Cfg.Model.Rounds, orch.Model().NumTrees())
		})
	}
}
