package store

import (
	"context"
	"fmt"

	"github.com/roach88/chronicle/internal/chronology"
	"github.com/roach88/chronicle/internal/identity"
	"github.com/roach88/chronicle/internal/ir"
)

// SaveStats counts what one SaveStore call wrote.
type SaveStats struct {
	Bindings     int
	Stamps       int
	Aliases      int
	Comments     int
	Chronologies int
}

// SaveStore writes the full state of an in-memory store in one
// transaction. Saving the same state twice leaves the database unchanged.
func (s *Store) SaveStore(ctx context.Context, reg *identity.Registry, chrons *chronology.Store) (SaveStats, error) {
	var stats SaveStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("save store: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, b := range reg.Bindings() {
		if err := writeBinding(ctx, tx, b); err != nil {
			return stats, fmt.Errorf("save store: %w", err)
		}
		stats.Bindings++
	}

	in := chrons.Interner()
	for _, st := range in.Stamps() {
		if err := writeStamp(ctx, tx, st); err != nil {
			return stats, fmt.Errorf("save store: %w", err)
		}
		stats.Stamps++
	}
	for _, a := range in.AliasRecords() {
		if err := writeStampAlias(ctx, tx, a); err != nil {
			return stats, fmt.Errorf("save store: %w", err)
		}
		stats.Aliases++
	}
	for _, c := range in.CommentRecords() {
		if err := writeStampComment(ctx, tx, c); err != nil {
			return stats, fmt.Errorf("save store: %w", err)
		}
		stats.Comments++
	}

	var writeErr error
	chrons.ForEach(func(c *ir.Chronology) bool {
		if err := ctx.Err(); err != nil {
			writeErr = err
			return false
		}
		if err := writeChronology(ctx, tx, c); err != nil {
			writeErr = err
			return false
		}
		stats.Chronologies++
		return true
	})
	if writeErr != nil {
		return stats, fmt.Errorf("save store: %w", writeErr)
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("save store: commit: %w", err)
	}
	return stats, nil
}

// LoadStore rebuilds reg and chrons from the database.
//
// Bindings are restored with their stored nids, stamps are interned in
// token order, and every chronology is merged. Concept nids are marked in
// nid order. Loading into a store that already holds some of the same
// data is idempotent.
func (s *Store) LoadStore(ctx context.Context, reg *identity.Registry, chrons *chronology.Store) error {
	bindings, err := s.ReadBindings(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	for _, b := range bindings {
		if err := reg.Bind(b.Nid, b.UUIDs...); err != nil {
			return fmt.Errorf("load store: bind %s: %w", b.Nid, err)
		}
	}

	in := chrons.Interner()
	stamps, err := s.ReadStamps(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	for _, st := range stamps {
		if _, err := in.Intern(st); err != nil {
			return fmt.Errorf("load store: %w", err)
		}
	}

	aliases, err := s.ReadStampAliases(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	for _, a := range aliases {
		if err := in.AddAlias(a.Stamp, a.Alias); err != nil {
			return fmt.Errorf("load store: %w", err)
		}
	}
	comments, err := s.ReadStampComments(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	for _, c := range comments {
		if err := in.SetComment(c.Stamp, c.Comment); err != nil {
			return fmt.Errorf("load store: %w", err)
		}
	}

	all, err := s.ReadAllChronologies(ctx)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	for _, c := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.IsConcept() {
			if _, err := reg.MarkConcept(c.Nid); err != nil {
				return fmt.Errorf("load store: mark concept %s: %w", c.Nid, err)
			}
		}
		if _, err := chrons.Merge(c); err != nil {
			return fmt.Errorf("load store: %w", err)
		}
	}
	return nil
}
