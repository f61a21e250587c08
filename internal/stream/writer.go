package stream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/ir"
)

// RecordWriter is a sink for already-encoded records. The decoded object
// travels alongside the payload for sinks that render it.
type RecordWriter interface {
	WriteRecord(payload []byte, obj ir.Object) error
	Flush() error
}

// Writer emits framed binary records sequentially. It is not safe for
// concurrent use.
type Writer struct {
	w     *bufio.Writer
	count int64
}

// NewWriter buffers output to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*1024)}
}

// Write encodes obj and emits it as one frame.
func (w *Writer) Write(obj ir.Object) error {
	payload, err := codec.Encode(obj)
	if err != nil {
		return err
	}
	return w.WriteRecord(payload, obj)
}

// WriteRecord emits an encoded payload as one frame.
func (w *Writer) WriteRecord(payload []byte, _ ir.Object) error {
	if len(payload) > math.MaxInt32 {
		return &ir.ValidationError{Field: "frame_length", Message: fmt.Sprintf("record of %d bytes is too large", len(payload))}
	}
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return &ir.IOError{Op: "write frame header", Err: err}
	}
	if _, err := w.w.Write(payload); err != nil {
		return &ir.IOError{Op: "write frame", Err: err}
	}
	w.count++
	return nil
}

// Flush writes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return &ir.IOError{Op: "flush", Err: err}
	}
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() int64 { return w.count }

// DebugWriter renders each record as one line of canonical JSON.
type DebugWriter struct {
	w     *bufio.Writer
	count int64
}

// NewDebugWriter buffers output to w.
func NewDebugWriter(w io.Writer) *DebugWriter {
	return &DebugWriter{w: bufio.NewWriter(w)}
}

// Write renders obj.
func (d *DebugWriter) Write(obj ir.Object) error {
	return d.WriteRecord(nil, obj)
}

// WriteRecord renders obj; the binary payload is ignored.
func (d *DebugWriter) WriteRecord(_ []byte, obj ir.Object) error {
	doc, err := ir.ObjectDoc(obj)
	if err != nil {
		return err
	}
	line, err := ir.MarshalCanonical(doc)
	if err != nil {
		return fmt.Errorf("debug record: %w", err)
	}
	if _, err := d.w.Write(line); err != nil {
		return &ir.IOError{Op: "write debug record", Err: err}
	}
	if err := d.w.WriteByte('\n'); err != nil {
		return &ir.IOError{Op: "write debug record", Err: err}
	}
	d.count++
	return nil
}

// Flush writes buffered lines to the underlying writer.
func (d *DebugWriter) Flush() error {
	if err := d.w.Flush(); err != nil {
		return &ir.IOError{Op: "flush", Err: err}
	}
	return nil
}

// Count returns the number of lines written.
func (d *DebugWriter) Count() int64 { return d.count }

// MultiWriter fans one record out to several sinks, encoding it once.
type MultiWriter struct {
	sinks []RecordWriter
}

// NewMultiWriter forwards to every sink in order.
func NewMultiWriter(sinks ...RecordWriter) *MultiWriter {
	return &MultiWriter{sinks: sinks}
}

// Write encodes obj once and forwards the payload to every sink.
func (m *MultiWriter) Write(obj ir.Object) error {
	payload, err := codec.Encode(obj)
	if err != nil {
		return err
	}
	return m.WriteRecord(payload, obj)
}

// WriteRecord forwards an encoded payload verbatim. The first failing sink
// stops the fan-out.
func (m *MultiWriter) WriteRecord(payload []byte, obj ir.Object) error {
	for _, s := range m.sinks {
		if err := s.WriteRecord(payload, obj); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink and returns the first error.
func (m *MultiWriter) Flush() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
