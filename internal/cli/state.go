package cli

import (
	"context"
	"fmt"

	"github.com/roach88/chronicle/internal/compiler"
	"github.com/roach88/chronicle/internal/coordinate"
	"github.com/roach88/chronicle/internal/engine"
	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/store"
)

// session is an engine loaded from a snapshot database.
type session struct {
	eng *engine.Engine
	db  *store.Store
}

// openSession opens (creating if needed) the snapshot database at path and
// loads it into a fresh engine.
func openSession(ctx context.Context, opts *RootOptions, path string) (*session, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(engine.WithLogger(opts.logger()))
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := eng.Load(ctx, db); err != nil {
		eng.Close()
		db.Close()
		return nil, err
	}
	return &session{eng: eng, db: db}, nil
}

func (s *session) save(ctx context.Context) error {
	return s.eng.Save(ctx, s.db)
}

func (s *session) close() {
	s.eng.Close()
	if err := s.db.Close(); err != nil {
		s.eng.Logger().Error("error closing database", "error", err)
	}
}

// env resolves concept references against the session's registry.
func (s *session) env() compiler.Env {
	return compiler.Env{
		Resolve:       compiler.UUIDResolver(s.eng.Registry().NidForUUID),
		ModuleParents: s.eng.Store().ModuleParents,
	}
}

// config loads named coordinates from dir. With no dir it returns the
// built-in "master" coordinate (master path, latest time) and a stated
// "master" taxonomy on it.
func (s *session) config(dir string) (*compiler.Config, error) {
	if dir == "" {
		master := coordinate.New(coordinate.WithPaths(s.eng.Meta(ir.MetaMasterPath)))
		tc := s.eng.TaxonomyCoordinate(ir.PremiseStated)
		tc.Stamp = master
		return &compiler.Config{
			Coordinates: map[string]*coordinate.Coordinate{"master": master},
			Taxonomies:  map[string]coordinate.TaxonomyCoordinate{"master": tc},
		}, nil
	}
	result, errs := LoadConfig(dir, s.env(), LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Config, nil
}

func lookupName[T any](kind string, m map[string]T, name string) (T, error) {
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, &LoadError{Code: ErrCodeUnknownName, Message: fmt.Sprintf("unknown %s %q", kind, name)}
	}
	return v, nil
}
