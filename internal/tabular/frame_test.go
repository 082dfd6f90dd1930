package tabular

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/tabtrain/pkg/errors"
)

func TestNewFrame(t *testing.T) {
	a := &Series{Name: "a", Type: Int64, Values: []any{int64(1), int64(2)}}
	b := &Series{Name: "b", Type: Float32, Values: []any{float32(1.5), nil}}

	f, err := NewFrame(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, f.NumRows())
	assert.Equal(t, []string{"a", "b"}, f.Names())
	assert.True(t, f.Column("b").IsNull(1))

	t.Run("RejectsLengthMismatch", func(t *testing.T) {
		short := &Series{Name: "c", Type: Int64, Values: []any{int64(1)}}
		_, err := NewFrame(a, short)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("RejectsDuplicateNames", func(t *testing.T) {
		_, err := NewFrame(a, a)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})
}

func TestCastChecked(t *testing.T) {
	t.Run("Int64ToUInt32", func(t *testing.T) {
		s := &Series{Name: "n", Type: Int64, Values: []any{int64(3), nil, int64(0)}}
		cast, err := s.CastChecked(UInt32)
		require.NoError(t, err)
		assert.Equal(t, uint32(3), cast.Values[0])
		assert.Nil(t, cast.Values[1])
	})

	t.Run("OverflowFailsLoudly", func(t *testing.T) {
		s := &Series{Name: "n", Type: Int64, Values: []any{int64(-1)}}
		_, err := s.CastChecked(UInt32)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))

		big := &Series{Name: "n", Type: Int64, Values: []any{int64(math.MaxUint32) + 1}}
		_, err = big.CastChecked(UInt32)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("FractionalCountFails", func(t *testing.T) {
		s := &Series{Name: "n", Type: Float32, Values: []any{float32(1.5)}}
		_, err := s.CastChecked(UInt32)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("StringToNumericFails", func(t *testing.T) {
		s := &Series{Name: "n", Type: String, Values: []any{"abc"}}
		_, err := s.CastChecked(Float32)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("BoolToFloat", func(t *testing.T) {
		s := &Series{Name: "n", Type: Bool, Values: []any{true, false, nil}}
		cast, err := s.CastChecked(Float32)
		require.NoError(t, err)
		assert.Equal(t, float32(1), cast.Values[0])
		assert.Equal(t, float32(0), cast.Values[1])
		assert.Nil(t, cast.Values[2])
	})
}

func TestToDense(t *testing.T) {
	f, err := NewFrame(
		&Series{Name: "x", Type: Float32, Values: []any{float32(1.5), nil}},
		&Series{Name: "flag", Type: Bool, Values: []any{true, false}},
		&Series{Name: "n", Type: UInt32, Values: []any{uint32(7), uint32(0)}},
	)
	require.NoError(t, err)

	m, err := f.ToDense([]string{"x", "flag", "n"})
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Equal(t, 1.5, m.At(0, 0))
	assert.True(t, math.IsNaN(m.At(1, 0)))
	assert.Equal(t, 1.0, m.At(0, 1))
	assert.Equal(t, 7.0, m.At(0, 2))

	t.Run("ZeroRowsFailLoudly", func(t *testing.T) {
		empty, err := NewFrame(
			&Series{Name: "x", Type: Float32, Values: []any{}},
		)
		require.NoError(t, err)
		_, err = empty.ToDense([]string{"x"})
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})

	t.Run("ZeroColumnsFailLoudly", func(t *testing.T) {
		_, err := f.ToDense(nil)
		assert.Equal(t, errors.KindSchemaMismatch, errors.KindOf(err))
	})
}
