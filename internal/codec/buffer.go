package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/ir"
)

const (
	uint8Len  = 1
	uint16Len = 2
	uint32Len = 4
	uint64Len = 8
	uuidLen   = 16
	stampLen  = uint8Len + uint64Len + 3*uint32Len
)

// byteReader walks a payload with bounds checks; every short read becomes
// a CorruptRecordError pointing at the offending offset and field.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) corrupt(field, format string, args ...any) error {
	return &ir.CorruptRecordError{Offset: int64(r.pos), Field: field, Message: fmt.Sprintf(format, args...)}
}

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) take(n int, field string) ([]byte, error) {
	if n < 0 {
		return nil, r.corrupt(field, "negative length %d", n)
	}
	if n > r.remaining() {
		return nil, r.corrupt(field, "need %d bytes, %d remain", n, r.remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) readUint8(field string) (uint8, error) {
	b, err := r.take(uint8Len, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) readUint16(field string) (uint16, error) {
	b, err := r.take(uint16Len, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *byteReader) readUint32(field string) (uint32, error) {
	b, err := r.take(uint32Len, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) readUint64(field string) (uint64, error) {
	b, err := r.take(uint64Len, field)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *byteReader) readInt32(field string) (int32, error) {
	v, err := r.readUint32(field)
	return int32(v), err
}

func (r *byteReader) readNid(field string) (ir.Nid, error) {
	v, err := r.readUint32(field)
	return ir.Nid(int32(v)), err
}

func (r *byteReader) readUUID(field string) (uuid.UUID, error) {
	b, err := r.take(uuidLen, field)
	if err != nil {
		return uuid.Nil, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

// readLength reads a signed 32-bit length and checks it against the
// remaining buffer before anything is allocated.
func (r *byteReader) readLength(field string) (int, error) {
	start := r.pos
	v, err := r.readInt32(field)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		r.pos = start
		return 0, r.corrupt(field, "negative length %d", v)
	}
	if int(v) > r.remaining() {
		r.pos = start
		return 0, r.corrupt(field, "length %d exceeds %d remaining bytes", v, r.remaining())
	}
	return int(v), nil
}

// readBytes reads a length-prefixed byte string into a fresh slice. An
// empty string decodes as nil.
func (r *byteReader) readBytes(field string) ([]byte, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	b, err := r.take(n, field)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *byteReader) readString(field string) (string, error) {
	b, err := r.readBytes(field)
	return string(b), err
}

func (r *byteReader) readStamp(field string) (ir.Stamp, error) {
	var s ir.Stamp
	status, err := r.readUint8(field + ".status")
	if err != nil {
		return s, err
	}
	if !ir.Status(status).Valid() {
		r.pos -= uint8Len
		return s, r.corrupt(field+".status", "invalid status %d", status)
	}
	s.Status = ir.Status(status)
	t, err := r.readUint64(field + ".time")
	if err != nil {
		return s, err
	}
	s.Time = int64(t)
	if s.Author, err = r.readNid(field + ".author"); err != nil {
		return s, err
	}
	if s.Module, err = r.readNid(field + ".module"); err != nil {
		return s, err
	}
	if s.Path, err = r.readNid(field + ".path"); err != nil {
		return s, err
	}
	return s, nil
}

// byteWriter appends big-endian fields to a growing buffer.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) writeUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *byteWriter) writeUint16(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }
func (w *byteWriter) writeUint32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *byteWriter) writeUint64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *byteWriter) writeInt32(v int32)   { w.writeUint32(uint32(v)) }
func (w *byteWriter) writeNid(n ir.Nid)    { w.writeUint32(uint32(int32(n))) }
func (w *byteWriter) writeUUID(u uuid.UUID) {
	w.buf = append(w.buf, u[:]...)
}

func (w *byteWriter) writeBytes(field string, b []byte) error {
	if len(b) > math.MaxInt32 {
		return &ir.ValidationError{Field: field, Message: fmt.Sprintf("length %d exceeds %d", len(b), math.MaxInt32)}
	}
	w.writeInt32(int32(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

func (w *byteWriter) writeStamp(s ir.Stamp) {
	w.writeUint8(uint8(s.Status))
	w.writeUint64(uint64(s.Time))
	w.writeNid(s.Author)
	w.writeNid(s.Module)
	w.writeNid(s.Path)
}

func (w *byteWriter) putUint32(off int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[off:], v)
}

// patchLength overwrites the 4-byte length slot at off with the number of
// bytes written after it.
func (w *byteWriter) patchLength(field string, off int) error {
	n := len(w.buf) - off - uint32Len
	if n > math.MaxInt32 {
		return &ir.ValidationError{Field: field, Message: fmt.Sprintf("length %d exceeds %d", n, math.MaxInt32)}
	}
	w.putUint32(off, uint32(n))
	return nil
}
