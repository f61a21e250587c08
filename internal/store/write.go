package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WriteBinding records the UUIDs of one nid, primary first.
// Uses ON CONFLICT(uuid) DO NOTHING for idempotency.
func (s *Store) WriteBinding(ctx context.Context, b identity.Binding) error {
	return writeBinding(ctx, s.db, b)
}

func writeBinding(ctx context.Context, db execer, b identity.Binding) error {
	for i, u := range b.UUIDs {
		_, err := db.ExecContext(ctx, `
			INSERT INTO identifiers (uuid, nid, ordinal)
			VALUES (?, ?, ?)
			ON CONFLICT(uuid) DO NOTHING
		`, u[:], int32(b.Nid), i)
		if err != nil {
			return fmt.Errorf("write binding %s: %w", b.Nid, err)
		}
	}
	return nil
}

// WriteStamp records one stamp tuple. Re-writing a known stamp is a no-op,
// so tokens keep their first-write order.
func (s *Store) WriteStamp(ctx context.Context, st ir.Stamp) error {
	return writeStamp(ctx, s.db, st)
}

func writeStamp(ctx context.Context, db execer, st ir.Stamp) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("write stamp: %w", err)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO stamps (status, time, author, module, path)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, int(st.Status), st.Time, int32(st.Author), int32(st.Module), int32(st.Path))
	if err != nil {
		return fmt.Errorf("write stamp: %w", err)
	}
	return nil
}

// WriteStampAlias records one alias pair.
func (s *Store) WriteStampAlias(ctx context.Context, a ir.StampAlias) error {
	return writeStampAlias(ctx, s.db, a)
}

func writeStampAlias(ctx context.Context, db execer, a ir.StampAlias) error {
	payload, err := codec.Encode(&a)
	if err != nil {
		return fmt.Errorf("write stamp alias: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO stamp_aliases (payload) VALUES (?)
		ON CONFLICT DO NOTHING
	`, payload); err != nil {
		return fmt.Errorf("write stamp alias: %w", err)
	}
	return nil
}

// WriteStampComment records the comment of a stamp, replacing any earlier
// comment for the same stamp.
func (s *Store) WriteStampComment(ctx context.Context, c ir.StampComment) error {
	return writeStampComment(ctx, s.db, c)
}

func writeStampComment(ctx context.Context, db execer, c ir.StampComment) error {
	payload, err := codec.Encode(&c)
	if err != nil {
		return fmt.Errorf("write stamp comment: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO stamp_comments (stamp, payload) VALUES (?, ?)
		ON CONFLICT(stamp) DO UPDATE SET payload = excluded.payload
	`, c.Stamp.String(), payload); err != nil {
		return fmt.Errorf("write stamp comment: %w", err)
	}
	return nil
}

// WriteChronology merges chron into the stored record for its nid.
//
// Versions already stored under an equal stamp are kept as they are; new
// versions are appended. Identity fields must match the stored record.
// The read-merge-write runs in one transaction.
func (s *Store) WriteChronology(ctx context.Context, chron *ir.Chronology) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write chronology: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeChronology(ctx, tx, chron); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write chronology: commit: %w", err)
	}
	return nil
}

func writeChronology(ctx context.Context, db execer, chron *ir.Chronology) error {
	if err := chron.Validate(); err != nil {
		return fmt.Errorf("write chronology: %w", err)
	}

	merged := chron
	stored, err := readChronology(ctx, db, chron.Nid)
	switch {
	case ir.IsNotFound(err):
	case err != nil:
		return fmt.Errorf("write chronology: %w", err)
	default:
		if merged, err = mergeStored(stored, chron); err != nil {
			return fmt.Errorf("write chronology: %w", err)
		}
	}

	payload, err := codec.Encode(merged)
	if err != nil {
		return fmt.Errorf("write chronology %s: %w", chron.Nid, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO chronologies (nid, kind, versions, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(nid) DO UPDATE SET versions = excluded.versions, payload = excluded.payload
	`, int32(merged.Nid), int(merged.Kind), len(merged.Versions), payload)
	if err != nil {
		return fmt.Errorf("write chronology %s: %w", chron.Nid, err)
	}
	return nil
}

func mergeStored(stored, chron *ir.Chronology) (*ir.Chronology, error) {
	if stored.Kind != chron.Kind || stored.PrimaryUUID != chron.PrimaryUUID ||
		stored.Assemblage != chron.Assemblage || stored.ReferencedComponent != chron.ReferencedComponent ||
		stored.SemanticType != chron.SemanticType {
		return nil, &ir.ValidationError{
			Field:   "nid",
			Message: fmt.Sprintf("%s is stored with a different identity", chron.Nid),
		}
	}
	out := stored.ShallowCopy()
	have := make(map[ir.Stamp]bool, len(out.Versions))
	for _, v := range out.Versions {
		have[v.Stamp] = true
	}
	for _, v := range chron.Versions {
		if !have[v.Stamp] {
			have[v.Stamp] = true
			out.Versions = append(out.Versions, v)
		}
	}
	for _, a := range chron.AliasUUIDs {
		if !slices.Contains(out.UUIDs(), a) {
			out.AliasUUIDs = append(out.AliasUUIDs, a)
		}
	}
	return out, nil
}
