package diff

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/chronicle/internal/codec"
	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stream"
)

// snapshot is one fully loaded input file, keyed by primary UUID.
type snapshot struct {
	mu       sync.Mutex
	chrons   map[uuid.UUID]*ir.Chronology
	aliases  []*ir.StampAlias
	comments []*ir.StampComment
	unparsed []*ir.Unparsed
	records  int64
}

func loadSnapshot(ctx context.Context, path string, permits int) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ir.IOError{Op: "open " + path, Err: err}
	}
	defer f.Close()

	s := &snapshot{chrons: make(map[uuid.UUID]*ir.Chronology)}
	r := stream.NewReader(f, stream.WithPermits(permits), stream.WithDecodeOptions(codec.AllowUnparsed()))
	n, err := r.Read(ctx, s.apply)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s.records = n

	for _, c := range s.chrons {
		c.Versions = c.SortedVersions()
	}
	slices.SortFunc(s.aliases, func(a, b *ir.StampAlias) int {
		if c := ir.CompareStamps(a.Stamp, b.Stamp); c != 0 {
			return c
		}
		return ir.CompareStamps(a.Alias, b.Alias)
	})
	slices.SortFunc(s.comments, func(a, b *ir.StampComment) int {
		return ir.CompareStamps(a.Stamp, b.Stamp)
	})
	slices.SortFunc(s.unparsed, func(a, b *ir.Unparsed) int {
		return bytes.Compare(a.Payload, b.Payload)
	})
	return s, nil
}

func (s *snapshot) apply(_ context.Context, obj ir.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch o := obj.(type) {
	case *ir.Chronology:
		have, ok := s.chrons[o.PrimaryUUID]
		if !ok {
			s.chrons[o.PrimaryUUID] = o
			return nil
		}
		if have.Kind != o.Kind || have.Nid != o.Nid {
			return &ir.ValidationError{
				Field:   "primary_uuid",
				Message: fmt.Sprintf("%s appears as %s nid %s and %s nid %s", o.PrimaryUUID, have.Kind, have.Nid, o.Kind, o.Nid),
			}
		}
		// A repeated record keeps the first version seen for each stamp.
		for _, ver := range o.Versions {
			if !slices.ContainsFunc(have.Versions, func(v ir.Version) bool { return v.Stamp == ver.Stamp }) {
				have.Versions = append(have.Versions, ver)
			}
		}
	case *ir.StampAlias:
		s.aliases = append(s.aliases, o)
	case *ir.StampComment:
		s.comments = append(s.comments, o)
	case *ir.Unparsed:
		s.unparsed = append(s.unparsed, o)
	}
	return nil
}

// moduleParents reads the module-parent semantics of asm.
func (s *snapshot) moduleParents(asm ir.Nid, into coordinate.ModuleParents) {
	if !asm.IsSet() {
		return
	}
	for _, c := range s.chrons {
		if c.Kind != ir.KindSemantic || c.Assemblage != asm || len(c.Versions) == 0 {
			continue
		}
		latest := c.Versions[len(c.Versions)-1]
		if p, ok := latest.Payload.(ir.ComponentNidPayload); ok && latest.Stamp.Status.IsActive() {
			into[c.ReferencedComponent] = p.Component
		}
	}
}

// firstMultiVersion returns the lowest UUID whose chronology has more than
// one version, with that version count.
func (s *snapshot) firstMultiVersion() (uuid.UUID, int, bool) {
	var found []uuid.UUID
	for u, c := range s.chrons {
		if len(c.Versions) > 1 {
			found = append(found, u)
		}
	}
	if len(found) == 0 {
		return uuid.Nil, 0, false
	}
	slices.SortFunc(found, compareUUID)
	return found[0], len(s.chrons[found[0]].Versions), true
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
