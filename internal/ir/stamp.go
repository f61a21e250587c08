package ir

import (
	"cmp"
	"fmt"
	"math"
)

// Status is the lifecycle state carried by a stamp. The ordinal is part of
// the stamp total order, so the values must never be renumbered.
type Status uint8

const (
	// StatusInactive marks a retired component.
	StatusInactive Status = iota + 1
	// StatusActive marks a live component.
	StatusActive
	// StatusCanceled marks an edit that was abandoned before commit.
	StatusCanceled
	// StatusPrimordial marks the creation point that precedes any stated edit.
	StatusPrimordial
)

// String returns the upper-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "INACTIVE"
	case StatusActive:
		return "ACTIVE"
	case StatusCanceled:
		return "CANCELED"
	case StatusPrimordial:
		return "PRIMORDIAL"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s >= StatusInactive && s <= StatusPrimordial
}

// IsActive reports whether s is StatusActive.
func (s Status) IsActive() bool {
	return s == StatusActive
}

// ParseStatus converts a case-sensitive upper-case name back to a Status.
func ParseStatus(name string) (Status, error) {
	for s := StatusInactive; s <= StatusPrimordial; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// TimeLatest is the coordinate time that admits every committed version.
const TimeLatest int64 = math.MaxInt64

// Stamp is the (status, time, author, module, path) identity of a version.
// Stamps are comparable values; equal tuples are equal stamps.
type Stamp struct {
	Status Status
	Time   int64 // epoch millis, never 0
	Author Nid
	Module Nid
	Path   Nid
}

// Validate checks the stamp invariants: known status, non-zero time and
// non-zero author, module and path.
func (s Stamp) Validate() error {
	switch {
	case !s.Status.Valid():
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %d", s.Status)}
	case s.Time == 0:
		return &ValidationError{Field: "time", Message: "time must not be 0"}
	case !s.Author.IsSet():
		return &ValidationError{Field: "author", Message: "author nid must be set"}
	case !s.Module.IsSet():
		return &ValidationError{Field: "module", Message: "module nid must be set"}
	case !s.Path.IsSet():
		return &ValidationError{Field: "path", Message: "path nid must be set"}
	}
	return nil
}

// String renders the stamp for logs and test failures.
func (s Stamp) String() string {
	return fmt.Sprintf("{%s t:%d a:%d m:%d p:%d}", s.Status, s.Time, s.Author, s.Module, s.Path)
}

// CompareStamps orders stamps by time, then status ordinal, then author,
// module and path. It is a strict total order: it returns 0 only for equal
// tuples.
func CompareStamps(a, b Stamp) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Status, b.Status); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Author, b.Author); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Module, b.Module); c != 0 {
		return c
	}
	return cmp.Compare(a.Path, b.Path)
}

// StampToken is the interned integer form of a Stamp. Tokens start at 1.
type StampToken int32

// StampAlias declares Alias as an alternate stamp for Stamp.
type StampAlias struct {
	Stamp Stamp
	Alias Stamp
}

// ObjectKind implements Object.
func (*StampAlias) ObjectKind() ObjectKind { return KindStampAlias }

// StampComment attaches a free-text comment to a stamp.
type StampComment struct {
	Stamp   Stamp
	Comment string
}

// ObjectKind implements Object.
func (*StampComment) ObjectKind() ObjectKind { return KindStampComment }
