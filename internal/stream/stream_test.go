package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/ir"
)

func testConcept(i int) *ir.Chronology {
	return &ir.Chronology{
		Kind:        ir.KindConcept,
		Nid:         ir.Nid(-1 - i),
		PrimaryUUID: uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i), byte(i >> 8)}),
		Versions: []ir.Version{{Stamp: ir.Stamp{
			Status: ir.StatusActive, Time: int64(1000 + i), Author: -10, Module: -20, Path: -30,
		}}},
	}
}

func encodeStream(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for i := 0; i < n; i++ {
		require.NoError(t, w.Write(testConcept(i)))
	}
	require.NoError(t, w.Flush())
	assert.Equal(t, int64(n), w.Count())
	return buf.Bytes()
}

func TestRead_RoundTrip(t *testing.T) {
	data := encodeStream(t, 100)

	var mu sync.Mutex
	seen := map[ir.Nid]*ir.Chronology{}
	n, err := NewReader(bytes.NewReader(data)).Read(context.Background(), func(_ context.Context, obj ir.Object) error {
		c := obj.(*ir.Chronology)
		mu.Lock()
		seen[c.Nid] = c
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
	require.Len(t, seen, 100)
	assert.Equal(t, testConcept(42), seen[-43])
}

func TestRead_Empty(t *testing.T) {
	n, err := NewReader(bytes.NewReader(nil)).Read(context.Background(), func(context.Context, ir.Object) error {
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRead_BackpressureBoundsInFlight(t *testing.T) {
	const permits = 3
	data := encodeStream(t, 60)

	var inFlight, peak atomic.Int64
	n, err := NewReader(bytes.NewReader(data), WithPermits(permits)).Read(context.Background(),
		func(context.Context, ir.Object) error {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(60), n)
	assert.LessOrEqual(t, peak.Load(), int64(permits))
	assert.Zero(t, inFlight.Load(), "read returns only after every unit drained")
}

func TestRead_FirstErrorStopsDispatch(t *testing.T) {
	data := encodeStream(t, 20)
	boom := errors.New("boom")

	var calls atomic.Int64
	n, err := NewReader(bytes.NewReader(data), WithPermits(1)).Read(context.Background(),
		func(_ context.Context, obj ir.Object) error {
			calls.Add(1)
			if obj.(*ir.Chronology).Nid == -3 {
				return boom
			}
			return nil
		})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(3), calls.Load(), "nothing is dispatched after the failure")
}

func TestRead_PanicIsLatched(t *testing.T) {
	data := encodeStream(t, 5)
	_, err := NewReader(bytes.NewReader(data), WithPermits(2)).Read(context.Background(),
		func(_ context.Context, obj ir.Object) error {
			if obj.(*ir.Chronology).Nid == -2 {
				panic("unit exploded")
			}
			return nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit exploded")
}

func TestRead_CorruptFrames(t *testing.T) {
	data := encodeStream(t, 3)
	noop := func(context.Context, ir.Object) error { return nil }

	t.Run("truncated payload", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader(data[:len(data)-3])).Read(context.Background(), noop)
		assert.True(t, ir.IsCorrupt(err))
	})

	t.Run("truncated header", func(t *testing.T) {
		bad := append(append([]byte{}, data...), 0, 0)
		_, err := NewReader(bytes.NewReader(bad)).Read(context.Background(), noop)
		assert.True(t, ir.IsCorrupt(err))
	})

	t.Run("negative length", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff})).Read(context.Background(), noop)
		var ce *ir.CorruptRecordError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "frame_length", ce.Field)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte{0, 0, 0, 1, 77})).Read(context.Background(), noop)
		assert.True(t, ir.IsCorrupt(err))
	})
}

func TestRead_AllowUnparsedPassesUnknownTags(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(testConcept(0)))
	require.NoError(t, w.WriteRecord([]byte{77, 1, 2, 3}, nil))
	require.NoError(t, w.Flush())

	var unparsed atomic.Int64
	n, err := NewReader(&buf, WithDecodeOptions(codec.AllowUnparsed())).Read(context.Background(),
		func(_ context.Context, obj ir.Object) error {
			if _, ok := obj.(*ir.Unparsed); ok {
				unparsed.Add(1)
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), unparsed.Load())
}

func TestRead_TotalBytes(t *testing.T) {
	data := encodeStream(t, 4)
	oneFrame := encodeStream(t, 1)
	withJunk := append(append([]byte{}, data...), 0xde, 0xad, 0xbe, 0xef, 0x00)

	noop := func(context.Context, ir.Object) error { return nil }
	n, err := NewReader(bytes.NewReader(withJunk), WithTotalBytes(int64(len(data)))).Read(context.Background(), noop)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	_, err = NewReader(bytes.NewReader(oneFrame), WithTotalBytes(int64(len(oneFrame)-1))).Read(context.Background(), noop)
	assert.True(t, ir.IsCorrupt(err), "a frame crossing the declared total is corrupt")

	_, err = NewReader(bytes.NewReader(oneFrame), WithTotalBytes(int64(len(oneFrame)+10))).Read(context.Background(), noop)
	assert.True(t, ir.IsCorrupt(err), "input ending before the declared total is corrupt")
}

type recordingSink struct {
	payloads [][]byte
	flushed  bool
}

func (s *recordingSink) WriteRecord(payload []byte, _ ir.Object) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *recordingSink) Flush() error {
	s.flushed = true
	return nil
}

func TestMultiWriter_EncodesOnce(t *testing.T) {
	var bin, debug bytes.Buffer
	a, b := &recordingSink{}, &recordingSink{}
	m := NewMultiWriter(a, NewWriter(&bin), NewDebugWriter(&debug), b)

	require.NoError(t, m.Write(testConcept(0)))
	require.NoError(t, m.Write(&ir.StampComment{Stamp: testConcept(0).Versions[0].Stamp, Comment: "c"}))
	require.NoError(t, m.Flush())

	require.Len(t, a.payloads, 2)
	require.Len(t, b.payloads, 2)
	assert.Same(t, &a.payloads[0][0], &b.payloads[0][0], "every sink receives the same encoded bytes")
	assert.True(t, a.flushed)
	assert.True(t, b.flushed)

	var back []ir.Object
	n, err := NewReader(&bin, WithPermits(1)).Read(context.Background(), func(_ context.Context, obj ir.Object) error {
		back = append(back, obj)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	lines := strings.Split(strings.TrimSpace(debug.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `{"kind":"CONCEPT","nid":-1,`), lines[0])
	assert.Contains(t, lines[1], `"comment":"c"`)
}
