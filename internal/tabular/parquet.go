package tabular

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
	"github.com/apache/arrow/go/v16/parquet"
	"github.com/apache/arrow/go/v16/parquet/compress"
	"github.com/apache/arrow/go/v16/parquet/file"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"

	"github.com/medforge/tabtrain/pkg/errors"
)

const writeChunkSize = 64 * 1024

func arrowType(t DType) arrow.DataType {
	switch t {
	case Float32:
		return arrow.PrimitiveTypes.Float32
	case Bool:
		return arrow.FixedWidthTypes.Boolean
	case UInt32:
		return arrow.PrimitiveTypes.Uint32
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case String:
		return arrow.BinaryTypes.String
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return nil
	}
}

// WriteFrame persists a frame as a parquet file. Writing over an existing
// path is refused unless overwrite is set. Parent directories are created.
func WriteFrame(f *Frame, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.E(errors.KindOverwriteRefused,
				"%s exists and overwrite is not permitted", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.KindMissingPath, err, "creating parent of %s", path)
	}

	mem := memory.DefaultAllocator
	fields := make([]arrow.Field, f.NumCols())
	arrs := make([]arrow.Array, f.NumCols())
	for i := 0; i < f.NumCols(); i++ {
		c := f.ColumnAt(i)
		at := arrowType(c.Type)
		if at == nil {
			return errors.E(errors.KindSchemaMismatch, "column %q: unsupported dtype %s", c.Name, c.Type)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: at, Nullable: true}
		arr, err := buildArray(mem, c)
		if err != nil {
			return err
		}
		arrs[i] = arr
	}
	schema := arrow.NewSchema(fields, nil)
	rec := array.NewRecord(schema, arrs, int64(f.NumRows()))
	tbl := array.NewTableFromRecords(schema, []arrow.Record{rec})
	rec.Release()
	for _, a := range arrs {
		a.Release()
	}
	defer tbl.Release()

	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.KindMissingPath, err, "creating %s", path)
	}
	defer out.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(tbl, out, writeChunkSize, props, pqarrow.DefaultWriterProps()); err != nil {
		return errors.Wrap(errors.KindSchemaMismatch, err, "writing parquet %s", path)
	}
	return nil
}

func buildArray(mem memory.Allocator, c *Series) (arrow.Array, error) {
	switch c.Type {
	case Float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(v.(float32))
			}
		}
		return b.NewArray(), nil
	case Bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(v.(bool))
			}
		}
		return b.NewArray(), nil
	case UInt32:
		b := array.NewUint32Builder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(v.(uint32))
			}
		}
		return b.NewArray(), nil
	case Int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(v.(int64))
			}
		}
		return b.NewArray(), nil
	case String:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(v.(string))
			}
		}
		return b.NewArray(), nil
	case Timestamp:
		b := array.NewTimestampBuilder(mem, arrow.FixedWidthTypes.Timestamp_us.(*arrow.TimestampType))
		defer b.Release()
		for _, v := range c.Values {
			if v == nil {
				b.AppendNull()
			} else {
				b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
			}
		}
		return b.NewArray(), nil
	}
	return nil, errors.E(errors.KindSchemaMismatch, "column %q: unsupported dtype %s", c.Name, c.Type)
}

// ReadFrame loads a parquet file into a frame. Absent files surface as
// MissingPath, columns of unsupported physical type as SchemaMismatch.
func ReadFrame(ctx context.Context, path string) (*Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(errors.KindMissingPath, err, "parquet file %s", path)
	}
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(errors.KindSchemaMismatch, err, "opening parquet %s", path)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(errors.KindSchemaMismatch, err, "reading parquet %s", path)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.KindSchemaMismatch, err, "reading parquet %s", path)
	}
	defer tbl.Release()

	cols := make([]*Series, 0, int(tbl.NumCols()))
	for i := 0; i < int(tbl.NumCols()); i++ {
		field := tbl.Schema().Field(i)
		s, err := seriesFromChunked(field, tbl.Column(i).Data().Chunks())
		if err != nil {
			return nil, errors.Wrap(errors.KindSchemaMismatch, err, "column %q in %s", field.Name, path)
		}
		cols = append(cols, s)
	}
	return NewFrame(cols...)
}

func seriesFromChunked(field arrow.Field, chunks []arrow.Array) (*Series, error) {
	var dtype DType
	switch field.Type.ID() {
	case arrow.FLOAT32, arrow.FLOAT64:
		dtype = Float32
	case arrow.BOOL:
		dtype = Bool
	case arrow.UINT32:
		dtype = UInt32
	case arrow.INT32, arrow.INT64:
		dtype = Int64
	case arrow.STRING, arrow.LARGE_STRING:
		dtype = String
	case arrow.TIMESTAMP:
		dtype = Timestamp
	default:
		return nil, errors.E(errors.KindSchemaMismatch,
			"unsupported arrow type %s", field.Type.Name())
	}
	var vals []any
	for _, chunk := range chunks {
		for i := 0; i < chunk.Len(); i++ {
			if chunk.IsNull(i) {
				vals = append(vals, nil)
				continue
			}
			switch arr := chunk.(type) {
			case *array.Float32:
				vals = append(vals, arr.Value(i))
			case *array.Float64:
				vals = append(vals, float32(arr.Value(i)))
			case *array.Boolean:
				vals = append(vals, arr.Value(i))
			case *array.Uint32:
				vals = append(vals, arr.Value(i))
			case *array.Int32:
				vals = append(vals, int64(arr.Value(i)))
			case *array.Int64:
				vals = append(vals, arr.Value(i))
			case *array.String:
				vals = append(vals, arr.Value(i))
			case *array.LargeString:
				vals = append(vals, arr.Value(i))
			case *array.Timestamp:
				unit := arr.DataType().(*arrow.TimestampType).Unit
				vals = append(vals, arr.Value(i).ToTime(unit).UTC())
			default:
				return nil, errors.E(errors.KindSchemaMismatch,
					"unsupported arrow array %T", chunk)
			}
		}
	}
	if vals == nil {
		vals = []any{}
	}
	return NewSeries(field.Name, dtype, vals)
}

// ListShards returns the sorted stems of every .parquet file in dir.
func ListShards(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.KindMissingPath, err, "shard directory %s", dir)
	}
	var stems []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".parquet"))
	}
	sort.Strings(stems)
	return stems, nil
}
