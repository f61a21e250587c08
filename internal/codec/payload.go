package codec

import (
	"fmt"
	"math"

	"github.com/roach88/chronicle/internal/ir"
)

// Semantic payload bodies, by semantic type:
//
//	member         (empty)
//	component nid  component(4)
//	long           value(8)
//	string         len(4) utf8
//	description    case(4) language(4) type(4) len(4) text
//	relationship   destination(4) type(4) group(4) premise(1)
//	logic graph    raw bytes (the whole payload)
//	dynamic        count(2) then per column: type(1) len(4) data
func encodePayload(w *byteWriter, p ir.Payload) error {
	switch v := p.(type) {
	case ir.MemberPayload:
	case ir.ComponentNidPayload:
		w.writeNid(v.Component)
	case ir.LongPayload:
		w.writeUint64(uint64(v.Value))
	case ir.StringPayload:
		return w.writeBytes("string", []byte(v.Value))
	case ir.DescriptionPayload:
		w.writeNid(v.CaseSignificance)
		w.writeNid(v.Language)
		w.writeNid(v.DescriptionType)
		return w.writeBytes("text", []byte(v.Text))
	case ir.RelationshipPayload:
		if v.Premise != ir.PremiseStated && v.Premise != ir.PremiseInferred {
			return &ir.ValidationError{Field: "premise", Message: fmt.Sprintf("unknown premise %d", v.Premise)}
		}
		w.writeNid(v.Destination)
		w.writeNid(v.Type)
		w.writeInt32(v.Group)
		w.writeUint8(uint8(v.Premise))
	case ir.LogicGraphPayload:
		w.buf = append(w.buf, v.Data...)
	case ir.DynamicPayload:
		return encodeColumns(w, v.Columns)
	default:
		return &ir.ValidationError{Field: "payload", Message: fmt.Sprintf("cannot encode payload %T", p)}
	}
	return nil
}

func decodePayload(r *byteReader, st ir.SemanticType) (ir.Payload, error) {
	switch st {
	case ir.SemanticMember:
		return ir.MemberPayload{}, nil
	case ir.SemanticComponentNid:
		n, err := r.readNid("component")
		return ir.ComponentNidPayload{Component: n}, err
	case ir.SemanticLong:
		v, err := r.readUint64("long")
		return ir.LongPayload{Value: int64(v)}, err
	case ir.SemanticString:
		s, err := r.readString("string")
		return ir.StringPayload{Value: s}, err
	case ir.SemanticDescription:
		var d ir.DescriptionPayload
		var err error
		if d.CaseSignificance, err = r.readNid("case_significance"); err != nil {
			return nil, err
		}
		if d.Language, err = r.readNid("language"); err != nil {
			return nil, err
		}
		if d.DescriptionType, err = r.readNid("description_type"); err != nil {
			return nil, err
		}
		if d.Text, err = r.readString("text"); err != nil {
			return nil, err
		}
		return d, nil
	case ir.SemanticRelationship:
		var rel ir.RelationshipPayload
		var err error
		if rel.Destination, err = r.readNid("destination"); err != nil {
			return nil, err
		}
		if rel.Type, err = r.readNid("type"); err != nil {
			return nil, err
		}
		if rel.Group, err = r.readInt32("group"); err != nil {
			return nil, err
		}
		premise, err := r.readUint8("premise")
		if err != nil {
			return nil, err
		}
		if ir.Premise(premise) != ir.PremiseStated && ir.Premise(premise) != ir.PremiseInferred {
			r.pos -= uint8Len
			return nil, r.corrupt("premise", "unknown premise %d", premise)
		}
		rel.Premise = ir.Premise(premise)
		return rel, nil
	case ir.SemanticLogicGraph:
		b, _ := r.take(r.remaining(), "logic_graph")
		if len(b) == 0 {
			return ir.LogicGraphPayload{}, nil
		}
		data := make([]byte, len(b))
		copy(data, b)
		return ir.LogicGraphPayload{Data: data}, nil
	case ir.SemanticDynamic:
		cols, err := decodeColumns(r)
		if err != nil {
			return nil, err
		}
		return ir.DynamicPayload{Columns: cols}, nil
	}
	return nil, r.corrupt("semantic_type", "unknown semantic type %d", st)
}

func encodeColumns(w *byteWriter, cols []ir.Column) error {
	if len(cols) > math.MaxUint16 {
		return &ir.ValidationError{Field: "columns", Message: fmt.Sprintf("%d columns exceed %d", len(cols), math.MaxUint16)}
	}
	w.writeUint16(uint16(len(cols)))
	for i, c := range cols {
		if err := encodeColumn(w, c); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func encodeColumn(w *byteWriter, c ir.Column) error {
	if c == nil {
		w.writeUint8(uint8(ir.ColumnEmpty))
		w.writeUint32(0)
		return nil
	}
	w.writeUint8(uint8(c.ColumnType()))
	lenAt := len(w.buf)
	w.writeUint32(0)

	switch v := c.(type) {
	case ir.BooleanColumn:
		if v {
			w.writeUint8(1)
		} else {
			w.writeUint8(0)
		}
	case ir.ByteArrayColumn:
		w.buf = append(w.buf, v...)
	case ir.DoubleColumn:
		w.writeUint64(math.Float64bits(float64(v)))
	case ir.FloatColumn:
		w.writeUint32(math.Float32bits(float32(v)))
	case ir.IntegerColumn:
		w.writeInt32(int32(v))
	case ir.LongColumn:
		w.writeUint64(uint64(v))
	case ir.NidColumn:
		w.writeNid(ir.Nid(v))
	case ir.StringColumn:
		w.buf = append(w.buf, v...)
	case ir.UUIDColumn:
		w.buf = append(w.buf, v[:]...)
	case ir.ArrayColumn:
		if err := encodeColumns(w, v); err != nil {
			return err
		}
	case ir.UnknownColumn:
		if v.Type.Known() {
			return &ir.ValidationError{Field: "column", Message: fmt.Sprintf("unknown column claims known type %s", v.Type)}
		}
		w.buf = append(w.buf, v.Data...)
	default:
		return &ir.ValidationError{Field: "column", Message: fmt.Sprintf("cannot encode column %T", c)}
	}
	return w.patchLength("column", lenAt)
}

func decodeColumns(r *byteReader) ([]ir.Column, error) {
	count, err := r.readUint16("column_count")
	if err != nil {
		return nil, err
	}
	// Every column needs at least its 5-byte header.
	if int(count)*(uint8Len+uint32Len) > r.remaining() {
		r.pos -= uint16Len
		return nil, r.corrupt("column_count", "%d columns exceed %d remaining bytes", count, r.remaining())
	}
	if count == 0 {
		return nil, nil
	}
	cols := make([]ir.Column, 0, count)
	for i := 0; i < int(count); i++ {
		c, err := decodeColumn(r)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func decodeColumn(r *byteReader) (ir.Column, error) {
	t, err := r.readUint8("column_type")
	if err != nil {
		return nil, err
	}
	ct := ir.ColumnType(t)
	data, err := r.readBytes("column_data")
	if err != nil {
		return nil, err
	}
	base := r.pos - len(data)

	fixed := func(n int) error {
		if len(data) != n {
			return &ir.CorruptRecordError{
				Offset:  int64(base),
				Field:   "column_data",
				Message: fmt.Sprintf("%s column needs %d bytes, got %d", ct, n, len(data)),
			}
		}
		return nil
	}

	sub := &byteReader{buf: data}
	switch ct {
	case ir.ColumnEmpty:
		return nil, fixed(0)
	case ir.ColumnBoolean:
		if err := fixed(uint8Len); err != nil {
			return nil, err
		}
		return ir.BooleanColumn(data[0] != 0), nil
	case ir.ColumnByteArray:
		return ir.ByteArrayColumn(data), nil
	case ir.ColumnDouble:
		if err := fixed(uint64Len); err != nil {
			return nil, err
		}
		v, _ := sub.readUint64("double")
		return ir.DoubleColumn(math.Float64frombits(v)), nil
	case ir.ColumnFloat:
		if err := fixed(uint32Len); err != nil {
			return nil, err
		}
		v, _ := sub.readUint32("float")
		return ir.FloatColumn(math.Float32frombits(v)), nil
	case ir.ColumnInteger:
		if err := fixed(uint32Len); err != nil {
			return nil, err
		}
		v, _ := sub.readInt32("integer")
		return ir.IntegerColumn(v), nil
	case ir.ColumnLong:
		if err := fixed(uint64Len); err != nil {
			return nil, err
		}
		v, _ := sub.readUint64("long")
		return ir.LongColumn(int64(v)), nil
	case ir.ColumnNid:
		if err := fixed(uint32Len); err != nil {
			return nil, err
		}
		v, _ := sub.readNid("nid")
		return ir.NidColumn(v), nil
	case ir.ColumnString:
		return ir.StringColumn(data), nil
	case ir.ColumnUUID:
		if err := fixed(uuidLen); err != nil {
			return nil, err
		}
		v, _ := sub.readUUID("uuid")
		return ir.UUIDColumn(v), nil
	case ir.ColumnArray:
		nested, err := decodeColumns(sub)
		if err != nil {
			return nil, rebase(err, int64(base))
		}
		if sub.remaining() != 0 {
			return nil, &ir.CorruptRecordError{Offset: int64(base + sub.pos), Field: "column_data", Message: "trailing bytes in array column"}
		}
		return ir.ArrayColumn(nested), nil
	}
	return ir.UnknownColumn{Type: ct, Data: data}, nil
}
