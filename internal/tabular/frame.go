// Package tabular provides the in-memory columnar table the pipeline is built
// on: typed, nullable series grouped into frames, parquet persistence, and the
// temporal join/align verbs the shard assembler needs.
package tabular

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/medforge/tabtrain/pkg/errors"
)

// DType enumerates the column types a Frame can carry.
type DType int

const (
	Float32 DType = iota
	Bool
	UInt32
	Int64
	String
	Timestamp
)

func (t DType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Bool:
		return "bool"
	case UInt32:
		return "uint32"
	case Int64:
		return "int64"
	case String:
		return "string"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("dtype(%d)", int(t))
	}
}

// Series is a single named, typed, nullable column. Values holds one entry per
// row; nil marks a null. Non-nil entries must be the Go value matching Type
// (float32, bool, uint32, int64, string, time.Time).
type Series struct {
	Name   string
	Type   DType
	Values []any
}

// NewSeries builds a series after checking every non-null value against the
// declared type.
func NewSeries(name string, dtype DType, values []any) (*Series, error) {
	for i, v := range values {
		if v == nil {
			continue
		}
		if !valueMatches(dtype, v) {
			return nil, errors.E(errors.KindSchemaMismatch,
				"series %q row %d: value %v (%T) does not match dtype %s", name, i, v, v, dtype)
		}
	}
	return &Series{Name: name, Type: dtype, Values: values}, nil
}

// NullSeries builds an all-null series of the given type and length.
func NullSeries(name string, dtype DType, n int) *Series {
	return &Series{Name: name, Type: dtype, Values: make([]any, n)}
}

func valueMatches(dtype DType, v any) bool {
	switch dtype {
	case Float32:
		_, ok := v.(float32)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case UInt32:
		_, ok := v.(uint32)
		return ok
	case Int64:
		_, ok := v.(int64)
		return ok
	case String:
		_, ok := v.(string)
		return ok
	case Timestamp:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// Len returns the row count.
func (s *Series) Len() int { return len(s.Values) }

// IsNull reports whether row i is null.
func (s *Series) IsNull(i int) bool { return s.Values[i] == nil }

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	vals := make([]any, len(s.Values))
	copy(vals, s.Values)
	return &Series{Name: s.Name, Type: s.Type, Values: vals}
}

// CastChecked converts the series to the target dtype. Lossy conversions fail
// loudly: out-of-range integers, fractional floats cast to counts, and any
// string-to-numeric cast surface a SchemaMismatch instead of truncating.
func (s *Series) CastChecked(to DType) (*Series, error) {
	if s.Type == to {
		return s.Clone(), nil
	}
	out := make([]any, len(s.Values))
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		cv, err := castValue(v, s.Type, to)
		if err != nil {
			return nil, errors.Wrap(errors.KindSchemaMismatch, err,
				"column %q row %d: cannot cast %s to %s", s.Name, i, s.Type, to)
		}
		out[i] = cv
	}
	return &Series{Name: s.Name, Type: to, Values: out}, nil
}

func castValue(v any, from, to DType) (any, error) {
	switch to {
	case Float32:
		switch x := v.(type) {
		case float32:
			return x, nil
		case uint32:
			return float32(x), nil
		case int64:
			return float32(x), nil
		case bool:
			if x {
				return float32(1), nil
			}
			return float32(0), nil
		}
	case UInt32:
		switch x := v.(type) {
		case uint32:
			return x, nil
		case int64:
			if x < 0 || x > math.MaxUint32 {
				return nil, fmt.Errorf("value %d out of uint32 range", x)
			}
			return uint32(x), nil
		case float32:
			if x < 0 || x > math.MaxUint32 || x != float32(math.Trunc(float64(x))) {
				return nil, fmt.Errorf("value %v not representable as uint32", x)
			}
			return uint32(x), nil
		}
	case Int64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case uint32:
			return int64(x), nil
		}
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case uint32:
			if x > 1 {
				return nil, fmt.Errorf("value %d not a boolean", x)
			}
			return x == 1, nil
		case int64:
			if x < 0 || x > 1 {
				return nil, fmt.Errorf("value %d not a boolean", x)
			}
			return x == 1, nil
		}
	case String:
		if x, ok := v.(string); ok {
			return x, nil
		}
	case Timestamp:
		if x, ok := v.(time.Time); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("unsupported cast %s -> %s", from, to)
}

// Frame is an ordered collection of equal-length series with unique names.
type Frame struct {
	cols   []*Series
	byName map[string]int
}

// NewFrame builds a frame, checking length and name uniqueness.
func NewFrame(cols ...*Series) (*Frame, error) {
	f := &Frame{byName: make(map[string]int, len(cols))}
	n := -1
	for _, c := range cols {
		if c.Name == "" {
			return nil, errors.E(errors.KindSchemaMismatch, "unnamed column")
		}
		if _, dup := f.byName[c.Name]; dup {
			return nil, errors.E(errors.KindSchemaMismatch, "duplicate column %q", c.Name)
		}
		if n >= 0 && c.Len() != n {
			return nil, errors.E(errors.KindSchemaMismatch,
				"column %q has %d rows, expected %d", c.Name, c.Len(), n)
		}
		n = c.Len()
		f.byName[c.Name] = len(f.cols)
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// NumRows returns the row count (0 for an empty frame).
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return f.cols[0].Len()
}

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column of the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.byName[name]
	return ok
}

// Column returns the named column, or nil if absent.
func (f *Frame) Column(name string) *Series {
	i, ok := f.byName[name]
	if !ok {
		return nil
	}
	return f.cols[i]
}

// ColumnAt returns the i-th column.
func (f *Frame) ColumnAt(i int) *Series { return f.cols[i] }

// RenameColumns returns a frame with every column name mapped through fn.
func (f *Frame) RenameColumns(fn func(string) string) (*Frame, error) {
	cols := make([]*Series, len(f.cols))
	for i, c := range f.cols {
		renamed := c.Clone()
		renamed.Name = fn(c.Name)
		cols[i] = renamed
	}
	return NewFrame(cols...)
}

// ToDense exports the named columns as a dense float64 matrix with nulls
// mapped to NaN and booleans to 0/1. Row order is preserved.
func (f *Frame) ToDense(names []string) (*mat.Dense, error) {
	if len(names) == 0 {
		return nil, errors.E(errors.KindSchemaMismatch, "no columns to export")
	}
	rows := f.NumRows()
	if rows == 0 {
		return nil, errors.E(errors.KindSchemaMismatch, "no rows to export")
	}
	data := make([]float64, rows*len(names))
	for j, name := range names {
		c := f.Column(name)
		if c == nil {
			return nil, errors.E(errors.KindSchemaMismatch, "column %q not found", name)
		}
		for i := 0; i < rows; i++ {
			v := c.Values[i]
			var fv float64
			switch x := v.(type) {
			case nil:
				fv = math.NaN()
			case float32:
				fv = float64(x)
			case uint32:
				fv = float64(x)
			case int64:
				fv = float64(x)
			case bool:
				if x {
					fv = 1
				}
			default:
				return nil, errors.E(errors.KindSchemaMismatch,
					"column %q: non-numeric value %T in matrix export", name, v)
			}
			data[i*len(names)+j] = fv
		}
	}
	return mat.NewDense(rows, len(names), data), nil
}
