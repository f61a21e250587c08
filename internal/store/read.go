package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// ReadChronology returns the stored chronology of nid.
// Returns *ir.NotFoundError if nothing is stored under nid.
func (s *Store) ReadChronology(ctx context.Context, nid ir.Nid) (*ir.Chronology, error) {
	return readChronology(ctx, s.db, nid)
}

func readChronology(ctx context.Context, db execer, nid ir.Nid) (*ir.Chronology, error) {
	var payload []byte
	err := db.QueryRowContext(ctx, `SELECT payload FROM chronologies WHERE nid = ?`, int32(nid)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ir.NotFoundError{Kind: "chronology", Key: nid.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("read chronology %s: %w", nid, err)
	}
	return decodeChronology(payload)
}

func decodeChronology(payload []byte) (*ir.Chronology, error) {
	obj, err := codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode stored chronology: %w", err)
	}
	c, ok := obj.(*ir.Chronology)
	if !ok {
		return nil, &ir.CorruptRecordError{Field: "tag", Message: fmt.Sprintf("stored %s in chronologies table", obj.ObjectKind())}
	}
	return c, nil
}

// ReadAllChronologies returns every stored chronology ordered by nid.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ReadAllChronologies(ctx context.Context) ([]*ir.Chronology, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM chronologies ORDER BY nid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query chronologies: %w", err)
	}
	defer rows.Close()

	out := []*ir.Chronology{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan chronology: %w", err)
		}
		c, err := decodeChronology(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chronologies: %w", err)
	}
	return out, nil
}

// CountChronologies returns the number of stored chronologies of kind.
func (s *Store) CountChronologies(ctx context.Context, kind ir.ObjectKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chronologies WHERE kind = ?`, int(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chronologies: %w", err)
	}
	return n, nil
}

// ReadBindings returns every nid binding ordered by nid, UUIDs primary
// first.
func (s *Store) ReadBindings(ctx context.Context) ([]identity.Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT nid, uuid FROM identifiers
		ORDER BY nid ASC, ordinal ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query identifiers: %w", err)
	}
	defer rows.Close()

	var out []identity.Binding
	for rows.Next() {
		var (
			nid int32
			raw []byte
		)
		if err := rows.Scan(&nid, &raw); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		u, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, &ir.CorruptRecordError{Field: "identifiers.uuid", Message: fmt.Sprintf("nid %d", nid), Err: err}
		}
		if n := len(out); n > 0 && out[n-1].Nid == ir.Nid(nid) {
			out[n-1].UUIDs = append(out[n-1].UUIDs, u)
			continue
		}
		out = append(out, identity.Binding{Nid: ir.Nid(nid), UUIDs: []uuid.UUID{u}})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifiers: %w", err)
	}
	return out, nil
}

// ReadStamps returns every stored stamp in token order.
func (s *Store) ReadStamps(ctx context.Context) ([]ir.Stamp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, time, author, module, path FROM stamps
		ORDER BY token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query stamps: %w", err)
	}
	defer rows.Close()

	var out []ir.Stamp
	for rows.Next() {
		var (
			status               int
			time                 int64
			author, module, path int32
		)
		if err := rows.Scan(&status, &time, &author, &module, &path); err != nil {
			return nil, fmt.Errorf("scan stamp: %w", err)
		}
		out = append(out, ir.Stamp{
			Status: ir.Status(status),
			Time:   time,
			Author: ir.Nid(author),
			Module: ir.Nid(module),
			Path:   ir.Nid(path),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stamps: %w", err)
	}
	return out, nil
}

// ReadStampAliases returns every stored alias pair ordered by encoding.
func (s *Store) ReadStampAliases(ctx context.Context) ([]*ir.StampAlias, error) {
	var out []*ir.StampAlias
	err := s.readRecords(ctx, `SELECT payload FROM stamp_aliases ORDER BY payload ASC`, func(obj ir.Object) error {
		a, ok := obj.(*ir.StampAlias)
		if !ok {
			return &ir.CorruptRecordError{Field: "tag", Message: fmt.Sprintf("stored %s in stamp_aliases table", obj.ObjectKind())}
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// ReadStampComments returns every stored comment ordered by stamp.
func (s *Store) ReadStampComments(ctx context.Context) ([]*ir.StampComment, error) {
	var out []*ir.StampComment
	err := s.readRecords(ctx, `SELECT payload FROM stamp_comments ORDER BY stamp ASC`, func(obj ir.Object) error {
		c, ok := obj.(*ir.StampComment)
		if !ok {
			return &ir.CorruptRecordError{Field: "tag", Message: fmt.Sprintf("stored %s in stamp_comments table", obj.ObjectKind())}
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *Store) readRecords(ctx context.Context, query string, fn func(ir.Object) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		obj, err := codec.Decode(payload)
		if err != nil {
			return fmt.Errorf("decode stored record: %w", err)
		}
		if err := fn(obj); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}
