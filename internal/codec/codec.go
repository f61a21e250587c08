// Package codec serializes chronologies and stamp records to the binary
// interchange format and back.
//
// Every record starts with a one-byte type tag so a reader can dispatch
// without knowing the type in advance. Integers are big-endian; nids are
// signed 32-bit; times are signed 64-bit epoch milliseconds.
//
// Chronology layout:
//
//	tag(1) primaryUuid(16) aliasCount(2) alias(16)* nid(4)
//	[semantic: assemblage(4) referenced(4) semanticType(1)]
//	versionCount(4)
//	per version: status(1) time(8) author(4) module(4) path(4) payloadLen(4) payload
//
// Stamp alias: tag stamp(21) alias(21). Stamp comment: tag stamp(21)
// commentLen(4) comment.
package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/ir"
)

type decodeConfig struct {
	allowUnparsed bool
}

// Option configures Decode.
type Option func(*decodeConfig)

// AllowUnparsed makes Decode return an *ir.Unparsed for records with an
// unknown type tag instead of failing. Forwarders that only count or
// re-route records use it.
func AllowUnparsed() Option {
	return func(c *decodeConfig) { c.allowUnparsed = true }
}

// Encode serializes obj. An *ir.Unparsed is emitted verbatim.
func Encode(obj ir.Object) ([]byte, error) {
	switch o := obj.(type) {
	case *ir.Chronology:
		return EncodeChronology(o, nil)
	case *ir.StampAlias:
		return encodeStampAlias(o)
	case *ir.StampComment:
		return encodeStampComment(o)
	case *ir.Unparsed:
		return append([]byte(nil), o.Payload...), nil
	case nil:
		return nil, &ir.ValidationError{Field: "object", Message: "nil object"}
	default:
		return nil, &ir.ValidationError{Field: "object", Message: fmt.Sprintf("cannot encode %T", obj)}
	}
}

// EncodeChronology serializes c with only the versions keep accepts. A nil
// keep writes every version.
func EncodeChronology(c *ir.Chronology, keep func(ir.Version) bool) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("encode nid %s: %w", c.Nid, err)
	}
	if len(c.AliasUUIDs) > math.MaxUint16 {
		return nil, &ir.ValidationError{Field: "alias_uuids", Message: fmt.Sprintf("%d aliases exceed %d", len(c.AliasUUIDs), math.MaxUint16)}
	}

	w := &byteWriter{buf: make([]byte, 0, 64+32*len(c.Versions))}
	w.writeUint8(uint8(c.Kind))
	w.writeUUID(c.PrimaryUUID)
	w.writeUint16(uint16(len(c.AliasUUIDs)))
	for _, a := range c.AliasUUIDs {
		w.writeUUID(a)
	}
	w.writeNid(c.Nid)
	if c.Kind == ir.KindSemantic {
		w.writeNid(c.Assemblage)
		w.writeNid(c.ReferencedComponent)
		w.writeUint8(uint8(c.SemanticType))
	}

	countAt := len(w.buf)
	w.writeUint32(0)
	var count uint32
	for _, v := range c.Versions {
		if keep != nil && !keep(v) {
			continue
		}
		w.writeStamp(v.Stamp)
		lenAt := len(w.buf)
		w.writeUint32(0)
		if v.Payload != nil {
			if err := encodePayload(w, v.Payload); err != nil {
				return nil, fmt.Errorf("encode nid %s: %w", c.Nid, err)
			}
		}
		if err := w.patchLength("payload", lenAt); err != nil {
			return nil, err
		}
		count++
	}
	w.putUint32(countAt, count)
	return w.buf, nil
}

func encodeStampAlias(a *ir.StampAlias) ([]byte, error) {
	if err := a.Stamp.Validate(); err != nil {
		return nil, fmt.Errorf("encode stamp alias: %w", err)
	}
	if err := a.Alias.Validate(); err != nil {
		return nil, fmt.Errorf("encode stamp alias: %w", err)
	}
	w := &byteWriter{buf: make([]byte, 0, 1+2*stampLen)}
	w.writeUint8(uint8(ir.KindStampAlias))
	w.writeStamp(a.Stamp)
	w.writeStamp(a.Alias)
	return w.buf, nil
}

func encodeStampComment(c *ir.StampComment) ([]byte, error) {
	if err := c.Stamp.Validate(); err != nil {
		return nil, fmt.Errorf("encode stamp comment: %w", err)
	}
	w := &byteWriter{buf: make([]byte, 0, 1+stampLen+uint32Len+len(c.Comment))}
	w.writeUint8(uint8(ir.KindStampComment))
	w.writeStamp(c.Stamp)
	if err := w.writeBytes("comment", []byte(c.Comment)); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// Decode parses one record. Trailing bytes after a complete record are an
// error.
func Decode(payload []byte, opts ...Option) (ir.Object, error) {
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &byteReader{buf: payload}
	tag, err := r.readUint8("tag")
	if err != nil {
		return nil, err
	}

	var obj ir.Object
	switch ir.ObjectKind(tag) {
	case ir.KindConcept, ir.KindSemantic:
		obj, err = decodeChronology(r, ir.ObjectKind(tag))
	case ir.KindStampAlias:
		obj, err = decodeStampAlias(r)
	case ir.KindStampComment:
		obj, err = decodeStampComment(r)
	default:
		if cfg.allowUnparsed {
			return &ir.Unparsed{Tag: ir.ObjectKind(tag), Payload: append([]byte(nil), payload...)}, nil
		}
		r.pos = 0
		return nil, r.corrupt("tag", "unknown type tag %d", tag)
	}
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, r.corrupt("trailer", "%d unexpected trailing bytes", r.remaining())
	}
	return obj, nil
}

// PeekKind returns the type tag of a payload without decoding the rest.
func PeekKind(payload []byte) (ir.ObjectKind, error) {
	if len(payload) == 0 {
		return 0, &ir.CorruptRecordError{Field: "tag", Message: "empty record"}
	}
	return ir.ObjectKind(payload[0]), nil
}

func decodeChronology(r *byteReader, kind ir.ObjectKind) (*ir.Chronology, error) {
	c := &ir.Chronology{Kind: kind}
	var err error
	if c.PrimaryUUID, err = r.readUUID("primary_uuid"); err != nil {
		return nil, err
	}
	aliases, err := r.readUint16("alias_count")
	if err != nil {
		return nil, err
	}
	if int(aliases)*uuidLen > r.remaining() {
		r.pos -= uint16Len
		return nil, r.corrupt("alias_count", "%d aliases exceed %d remaining bytes", aliases, r.remaining())
	}
	if aliases > 0 {
		c.AliasUUIDs = make([]uuid.UUID, 0, aliases)
		for i := 0; i < int(aliases); i++ {
			u, err := r.readUUID("alias_uuid")
			if err != nil {
				return nil, err
			}
			c.AliasUUIDs = append(c.AliasUUIDs, u)
		}
	}
	if c.Nid, err = r.readNid("nid"); err != nil {
		return nil, err
	}
	if !c.Nid.IsSet() {
		r.pos -= uint32Len
		return nil, r.corrupt("nid", "nid is zero")
	}

	if kind == ir.KindSemantic {
		if c.Assemblage, err = r.readNid("assemblage"); err != nil {
			return nil, err
		}
		if c.ReferencedComponent, err = r.readNid("referenced_component"); err != nil {
			return nil, err
		}
		st, err := r.readUint8("semantic_type")
		if err != nil {
			return nil, err
		}
		if !ir.SemanticType(st).Valid() {
			r.pos -= uint8Len
			return nil, r.corrupt("semantic_type", "unknown semantic type %d", st)
		}
		c.SemanticType = ir.SemanticType(st)
	}

	count, err := r.readUint32("version_count")
	if err != nil {
		return nil, err
	}
	minVersion := stampLen + uint32Len
	if uint64(count)*uint64(minVersion) > uint64(r.remaining()) {
		r.pos -= uint32Len
		return nil, r.corrupt("version_count", "%d versions exceed %d remaining bytes", count, r.remaining())
	}
	if count > 0 {
		c.Versions = make([]ir.Version, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		v, err := decodeVersion(r, c)
		if err != nil {
			return nil, err
		}
		c.Versions = append(c.Versions, v)
	}

	if err := c.Validate(); err != nil {
		return nil, &ir.CorruptRecordError{Offset: int64(r.pos), Field: "chronology", Message: "decoded chronology is invalid", Err: err}
	}
	return c, nil
}

func decodeVersion(r *byteReader, c *ir.Chronology) (ir.Version, error) {
	var v ir.Version
	var err error
	if v.Stamp, err = r.readStamp("stamp"); err != nil {
		return v, err
	}
	n, err := r.readLength("payload_len")
	if err != nil {
		return v, err
	}
	if c.Kind == ir.KindConcept {
		if n != 0 {
			r.pos -= uint32Len
			return v, r.corrupt("payload_len", "concept version carries %d payload bytes", n)
		}
		return v, nil
	}
	body, err := r.take(n, "payload")
	if err != nil {
		return v, err
	}
	sub := &byteReader{buf: body}
	p, err := decodePayload(sub, c.SemanticType)
	if err != nil {
		return v, rebase(err, int64(r.pos-n))
	}
	if sub.remaining() != 0 {
		return v, &ir.CorruptRecordError{
			Offset:  int64(r.pos - sub.remaining()),
			Field:   "payload",
			Message: fmt.Sprintf("%d unexpected trailing payload bytes", sub.remaining()),
		}
	}
	v.Payload = p
	return v, nil
}

// rebase shifts the offset of a corruption found inside a payload sub-buffer
// so it is relative to the whole record.
func rebase(err error, base int64) error {
	var ce *ir.CorruptRecordError
	if errors.As(err, &ce) {
		out := *ce
		out.Offset += base
		return &out
	}
	return err
}

func decodeStampAlias(r *byteReader) (*ir.StampAlias, error) {
	s, err := r.readStamp("stamp")
	if err != nil {
		return nil, err
	}
	a, err := r.readStamp("alias")
	if err != nil {
		return nil, err
	}
	return &ir.StampAlias{Stamp: s, Alias: a}, nil
}

func decodeStampComment(r *byteReader) (*ir.StampComment, error) {
	s, err := r.readStamp("stamp")
	if err != nil {
		return nil, err
	}
	comment, err := r.readString("comment")
	if err != nil {
		return nil, err
	}
	return &ir.StampComment{Stamp: s, Comment: comment}, nil
}
