package ir

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ColumnType tags one dynamic data column on the wire.
type ColumnType uint8

const (
	ColumnEmpty ColumnType = iota
	ColumnBoolean
	ColumnByteArray
	ColumnDouble
	ColumnFloat
	ColumnInteger
	ColumnLong
	ColumnNid
	ColumnString
	ColumnUUID
	ColumnArray
)

var columnTypeNames = [...]string{
	ColumnEmpty:     "empty",
	ColumnBoolean:   "boolean",
	ColumnByteArray: "byte_array",
	ColumnDouble:    "double",
	ColumnFloat:     "float",
	ColumnInteger:   "integer",
	ColumnLong:      "long",
	ColumnNid:       "nid",
	ColumnString:    "string",
	ColumnUUID:      "uuid",
	ColumnArray:     "array",
}

// String returns the lower-case column type name.
func (t ColumnType) String() string {
	if int(t) < len(columnTypeNames) {
		return columnTypeNames[t]
	}
	return fmt.Sprintf("column(%d)", uint8(t))
}

// Known reports whether the type is understood by this version of the codec.
func (t ColumnType) Known() bool {
	return int(t) < len(columnTypeNames)
}

// Column is a sealed interface over the dynamic column value types.
type Column interface {
	ColumnType() ColumnType
	column()
}

type (
	BooleanColumn   bool
	ByteArrayColumn []byte
	DoubleColumn    float64
	FloatColumn     float32
	IntegerColumn   int32
	LongColumn      int64
	NidColumn       Nid
	StringColumn    string
	UUIDColumn      uuid.UUID
	ArrayColumn     []Column
)

// UnknownColumn preserves a column whose type this codec does not know, so
// it survives a decode/encode cycle untouched.
type UnknownColumn struct {
	Type ColumnType
	Data []byte
}

func (BooleanColumn) ColumnType() ColumnType   { return ColumnBoolean }
func (ByteArrayColumn) ColumnType() ColumnType { return ColumnByteArray }
func (DoubleColumn) ColumnType() ColumnType    { return ColumnDouble }
func (FloatColumn) ColumnType() ColumnType     { return ColumnFloat }
func (IntegerColumn) ColumnType() ColumnType   { return ColumnInteger }
func (LongColumn) ColumnType() ColumnType      { return ColumnLong }
func (NidColumn) ColumnType() ColumnType       { return ColumnNid }
func (StringColumn) ColumnType() ColumnType    { return ColumnString }
func (UUIDColumn) ColumnType() ColumnType      { return ColumnUUID }
func (ArrayColumn) ColumnType() ColumnType     { return ColumnArray }
func (c UnknownColumn) ColumnType() ColumnType { return c.Type }

func (BooleanColumn) column()   {}
func (ByteArrayColumn) column() {}
func (DoubleColumn) column()    {}
func (FloatColumn) column()     {}
func (IntegerColumn) column()   {}
func (LongColumn) column()      {}
func (NidColumn) column()       {}
func (StringColumn) column()    {}
func (UUIDColumn) column()      {}
func (ArrayColumn) column()     {}
func (UnknownColumn) column()   {}

// columnsDoc renders columns as typed entries. Floats are rendered as
// strings because canonical JSON forbids them.
func columnsDoc(cols []Column) List {
	out := make(List, len(cols))
	for i, c := range cols {
		out[i] = columnDoc(c)
	}
	return out
}

func columnDoc(c Column) Doc {
	if c == nil {
		return Doc{"type": Str(ColumnEmpty.String())}
	}
	d := Doc{"type": Str(c.ColumnType().String())}
	switch v := c.(type) {
	case BooleanColumn:
		d["value"] = Bool(v)
	case ByteArrayColumn:
		d["value"] = Str(base64.StdEncoding.EncodeToString(v))
	case DoubleColumn:
		d["value"] = Str(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case FloatColumn:
		d["value"] = Str(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case IntegerColumn:
		d["value"] = Int(v)
	case LongColumn:
		d["value"] = Int(v)
	case NidColumn:
		d["value"] = Int(v)
	case StringColumn:
		d["value"] = Str(v)
	case UUIDColumn:
		d["value"] = Str(uuid.UUID(v).String())
	case ArrayColumn:
		d["value"] = columnsDoc(v)
	case UnknownColumn:
		d["value"] = Str(base64.StdEncoding.EncodeToString(v.Data))
	}
	return d
}
