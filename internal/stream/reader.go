// Package stream reads and writes framed record streams:
//
//	[uint32 big-endian length][length bytes of codec payload] ...
//
// The reader decodes and applies records concurrently, bounded by a
// weighted semaphore; writers emit the same framing sequentially.
package stream

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/ir"
)

const frameHeaderLen = 4

// ApplyFunc consumes one decoded record. It runs concurrently with other
// records, so it must be safe for concurrent use.
type ApplyFunc func(ctx context.Context, obj ir.Object) error

// Reader dispatches each framed record as an independent unit of work.
type Reader struct {
	src        io.Reader
	permits    int64
	totalBytes int64
	decodeOpts []codec.Option
	logger     *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithPermits bounds the number of records in flight. Values below one are
// ignored.
func WithPermits(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.permits = int64(n)
		}
	}
}

// WithTotalBytes stops reading after exactly n bytes instead of at EOF.
func WithTotalBytes(n int64) ReaderOption {
	return func(r *Reader) { r.totalBytes = n }
}

// WithDecodeOptions passes options to codec.Decode for every record.
func WithDecodeOptions(opts ...codec.Option) ReaderOption {
	return func(r *Reader) { r.decodeOpts = append(r.decodeOpts, opts...) }
}

// WithReaderLogger sets the logger. Default discards.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) { r.logger = l }
}

// DefaultPermits is twice the available parallelism.
func DefaultPermits() int {
	return 2 * runtime.GOMAXPROCS(0)
}

// NewReader wraps src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{
		src:        src,
		permits:    int64(DefaultPermits()),
		totalBytes: -1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// latch keeps the first error reported to it.
type latch struct {
	mu  sync.Mutex
	err error
}

func (l *latch) set(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		l.err = err
	}
}

func (l *latch) get() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Read consumes the whole stream, calling apply for every record. It
// returns the number of records applied.
//
// A unit holds one permit from dispatch until apply returns. Once any
// unit, frame read or context fails, the first error is latched, nothing
// more is dispatched, and Read waits for every in-flight unit before
// returning the latched error.
func (r *Reader) Read(ctx context.Context, apply ApplyFunc) (int64, error) {
	sem := semaphore.NewWeighted(r.permits)
	var (
		failed  latch
		applied atomic.Int64
		offset  int64
	)
	br := bufio.NewReaderSize(r.src, 64*1024)

	for failed.get() == nil {
		if r.totalBytes >= 0 && offset >= r.totalBytes {
			break
		}
		frame, err := r.readFrame(br, offset)
		if err == io.EOF {
			break
		}
		if err != nil {
			failed.set(err)
			break
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			failed.set(fmt.Errorf("read stream: %w", err))
			break
		}
		if failed.get() != nil {
			sem.Release(1)
			break
		}

		recordOffset := offset
		offset += frameHeaderLen + int64(len(frame))
		go func() {
			defer sem.Release(1)
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("recovered from panic in record unit", "offset", recordOffset, "panic", rec)
					failed.set(fmt.Errorf("record at offset %d: panic: %v", recordOffset, rec))
				}
			}()
			obj, err := codec.Decode(frame, r.decodeOpts...)
			if err != nil {
				failed.set(fmt.Errorf("record at offset %d: %w", recordOffset, err))
				return
			}
			if err := apply(ctx, obj); err != nil {
				failed.set(fmt.Errorf("record at offset %d: %w", recordOffset, err))
				return
			}
			applied.Add(1)
		}()
	}

	// Final drain: every permit back means every unit has finished.
	if err := sem.Acquire(context.Background(), r.permits); err == nil {
		sem.Release(r.permits)
	}

	n := applied.Load()
	if err := failed.get(); err != nil {
		r.logger.Debug("stream read failed", "applied", n, "error", err)
		return n, err
	}
	r.logger.Debug("stream read complete", "applied", n, "bytes", offset)
	return n, nil
}

func (r *Reader) readFrame(br *bufio.Reader, offset int64) ([]byte, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		switch {
		case err == io.EOF && r.totalBytes < 0:
			return nil, io.EOF
		case err == io.EOF, errors.Is(err, io.ErrUnexpectedEOF):
			return nil, &ir.CorruptRecordError{Offset: offset, Field: "frame_length", Message: "stream ends inside a frame header"}
		default:
			return nil, &ir.IOError{Op: "read frame header", Err: err}
		}
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if n > math.MaxInt32 {
		return nil, &ir.CorruptRecordError{Offset: offset, Field: "frame_length", Message: fmt.Sprintf("negative frame length %d", int32(n))}
	}
	if r.totalBytes >= 0 && offset+frameHeaderLen+int64(n) > r.totalBytes {
		return nil, &ir.CorruptRecordError{
			Offset:  offset,
			Field:   "frame_length",
			Message: fmt.Sprintf("frame of %d bytes exceeds declared total %d", n, r.totalBytes),
		}
	}

	// Grow with the data actually present so a corrupt length cannot force
	// a huge allocation.
	frame, err := io.ReadAll(io.LimitReader(br, int64(n)))
	if err != nil {
		return nil, &ir.IOError{Op: "read frame", Err: err}
	}
	if len(frame) != int(n) {
		return nil, &ir.CorruptRecordError{Offset: offset, Field: "frame_length", Message: fmt.Sprintf("frame of %d bytes is truncated after %d", n, len(frame))}
	}
	return frame, nil
}
