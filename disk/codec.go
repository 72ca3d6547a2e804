// Package disk saves and loads edge collections. The ordered disk keeps each
// sorted partition in an Arrow IPC file so it can be reloaded without
// sorting. The unordered disk exchanges plain edge rows as Parquet.
package disk

import (
	"encoding/json"
	"slices"

	"github.com/apache/arrow/go/arrow"
	"github.com/apache/arrow/go/arrow/array"
	"github.com/apache/arrow/go/arrow/memory"
	"github.com/juju/errors"
)

var arrowAllocator = memory.NewGoAllocator()

// AttrCodec converts an attribute column to and from Arrow.
type AttrCodec[ED any] interface {
	// TypeName is stored with the data and checked on load.
	TypeName() string
	DataType() arrow.DataType
	Build(mem memory.Allocator, values []ED) (array.Interface, error)
	Read(col array.Interface) ([]ED, error)
}

func wrongColumn(col array.Interface, want string) error {
	return errors.NotValidf("attribute column of type %v (want %v)", col.DataType(), want)
}

type Int64Codec struct{}

func (Int64Codec) TypeName() string         { return "int64" }
func (Int64Codec) DataType() arrow.DataType { return arrow.PrimitiveTypes.Int64 }

func (Int64Codec) Build(mem memory.Allocator, values []int64) (array.Interface, error) {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray(), nil
}

func (Int64Codec) Read(col array.Interface) ([]int64, error) {
	a, ok := col.(*array.Int64)
	if !ok {
		return nil, wrongColumn(col, "int64")
	}
	return slices.Clone(a.Int64Values()), nil
}

type Float64Codec struct{}

func (Float64Codec) TypeName() string         { return "float64" }
func (Float64Codec) DataType() arrow.DataType { return arrow.PrimitiveTypes.Float64 }

func (Float64Codec) Build(mem memory.Allocator, values []float64) (array.Interface, error) {
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray(), nil
}

func (Float64Codec) Read(col array.Interface) ([]float64, error) {
	a, ok := col.(*array.Float64)
	if !ok {
		return nil, wrongColumn(col, "float64")
	}
	return slices.Clone(a.Float64Values()), nil
}

type StringCodec struct{}

func (StringCodec) TypeName() string         { return "string" }
func (StringCodec) DataType() arrow.DataType { return arrow.BinaryTypes.String }

func (StringCodec) Build(mem memory.Allocator, values []string) (array.Interface, error) {
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.AppendValues(values, nil)
	return b.NewArray(), nil
}

func (StringCodec) Read(col array.Interface) ([]string, error) {
	a, ok := col.(*array.String)
	if !ok {
		return nil, wrongColumn(col, "string")
	}
	out := make([]string, a.Len())
	for i := range out {
		out[i] = a.Value(i)
	}
	return out, nil
}

// JSONCodec stores any JSON-serializable attribute as a binary column.
type JSONCodec[ED any] struct{}

func (JSONCodec[ED]) TypeName() string         { return "json" }
func (JSONCodec[ED]) DataType() arrow.DataType { return arrow.BinaryTypes.Binary }

func (JSONCodec[ED]) Build(mem memory.Allocator, values []ED) (array.Interface, error) {
	b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	defer b.Release()
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Annotate(err, "encoding attribute")
		}
		b.Append(data)
	}
	return b.NewArray(), nil
}

func (JSONCodec[ED]) Read(col array.Interface) ([]ED, error) {
	a, ok := col.(*array.Binary)
	if !ok {
		return nil, wrongColumn(col, "binary")
	}
	out := make([]ED, a.Len())
	for i := range out {
		if err := json.Unmarshal(a.Value(i), &out[i]); err != nil {
			return nil, errors.Annotatef(err, "decoding attribute %d", i)
		}
	}
	return out, nil
}
