package diff

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chronicle/internal/ir"
	"github.com/roach88/chronicle/internal/stream"
)

const (
	author     ir.Nid = -10
	retirer    ir.Nid = -11
	master     ir.Nid = -30
	core       ir.Nid = -20
	moduleV7   ir.Nid = -21
	moduleV8   ir.Nid = -22
	moduleBase ir.Nid = -23
	parentAsm  ir.Nid = -40
	stringAsm  ir.Nid = -41

	retireTime int64 = 9_000
)

func uid(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

func st(time int64, module ir.Nid) ir.Stamp {
	return ir.Stamp{Status: ir.StatusActive, Time: time, Author: author, Module: module, Path: master}
}

func concept(name string, nid ir.Nid, stamps ...ir.Stamp) *ir.Chronology {
	c := &ir.Chronology{Kind: ir.KindConcept, Nid: nid, PrimaryUUID: uid(name)}
	for _, s := range stamps {
		c.Versions = append(c.Versions, ir.Version{Stamp: s})
	}
	return c
}

func description(name string, nid, referenced ir.Nid, versions ...ir.Version) *ir.Chronology {
	return &ir.Chronology{
		Kind: ir.KindSemantic, Nid: nid, PrimaryUUID: uid(name),
		Assemblage: stringAsm, ReferencedComponent: referenced,
		SemanticType: ir.SemanticString, Versions: versions,
	}
}

func text(s ir.Stamp, value string) ir.Version {
	return ir.Version{Stamp: s, Payload: ir.StringPayload{Value: value}}
}

func moduleParent(name string, nid, module ir.Nid) *ir.Chronology {
	return &ir.Chronology{
		Kind: ir.KindSemantic, Nid: nid, PrimaryUUID: uid(name),
		Assemblage: parentAsm, ReferencedComponent: module,
		SemanticType: ir.SemanticComponentNid,
		Versions:     []ir.Version{{Stamp: st(1, core), Payload: ir.ComponentNidPayload{Component: moduleBase}}},
	}
}

func writeSnapshot(t *testing.T, dir, name string, objs ...ir.Object) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	w := stream.NewWriter(f)
	for _, o := range objs {
		require.NoError(t, w.Write(o))
	}
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())
	return path
}

func readOutput(t *testing.T, path string) []*ir.Chronology {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []*ir.Chronology
	_, err = stream.NewReader(bytes.NewReader(data), stream.WithPermits(1)).Read(context.Background(),
		func(_ context.Context, obj ir.Object) error {
			if c, ok := obj.(*ir.Chronology); ok {
				out = append(out, c)
			}
			return nil
		})
	require.NoError(t, err)
	return out
}

type env struct {
	t   *testing.T
	dir string
	out string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	return &env{t: t, dir: dir, out: out}
}

func (e *env) options(initial, next string) Options {
	return Options{
		OutputDir:              e.out,
		InitialPath:            initial,
		NewPath:                next,
		Author:                 retirer,
		RetireTime:             retireTime,
		ModuleParentAssemblage: parentAsm,
		Permits:                4,
	}
}

func (e *env) outputEntries() []string {
	entries, err := os.ReadDir(e.out)
	require.NoError(e.t, err)
	var names []string
	for _, en := range entries {
		names = append(names, en.Name())
	}
	return names
}

func TestRun_AddedRemovedChanged(t *testing.T) {
	e := newEnv(t)
	a1 := description("A", -101, -1, text(st(100, core), "heart attack"))
	b := description("B", -102, -1, text(st(100, core), "MI"))
	a2 := description("A", -101, -1, text(st(100, core), "heart attack"), text(st(200, core), "myocardial infarction"))
	c := description("C", -103, -1, text(st(200, core), "cardiac infarction"))

	initial := writeSnapshot(t, e.dir, "initial.ibdf", a1, b)
	next := writeSnapshot(t, e.dir, "new.ibdf", a2, c)

	var debug bytes.Buffer
	opts := e.options(initial, next)
	opts.Debug = &debug
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.RetirementsCreated)
	assert.Equal(t, 1, res.Changed)
	assert.Equal(t, 1, res.ChangedVersions)
	assert.Zero(t, res.RetainedModuleMetadata)
	assert.Equal(t, filepath.Join(e.out, DefaultOutputName), res.OutputPath)
	assert.Equal(t, []string{DefaultOutputName}, e.outputEntries())

	got := readOutput(t, res.OutputPath)
	require.Len(t, got, 3)
	byUUID := map[uuid.UUID]*ir.Chronology{}
	for _, c := range got {
		byUUID[c.PrimaryUUID] = c
	}

	assert.Equal(t, c, byUUID[uid("C")])

	changed := byUUID[uid("A")]
	require.Len(t, changed.Versions, 1)
	assert.Equal(t, ir.StringPayload{Value: "myocardial infarction"}, changed.Versions[0].Payload)

	retired := byUUID[uid("B")]
	require.Len(t, retired.Versions, 1)
	assert.Equal(t, ir.Stamp{Status: ir.StatusInactive, Time: retireTime, Author: retirer, Module: core, Path: master}, retired.Versions[0].Stamp)
	assert.Equal(t, ir.StringPayload{Value: "MI"}, retired.Versions[0].Payload)

	lines := strings.Split(strings.TrimSpace(debug.String()), "\n")
	assert.Len(t, lines, 3)

	for i := 1; i < len(got); i++ {
		assert.Negative(t, compareUUID(got[i-1].PrimaryUUID, got[i].PrimaryUUID), "output is ordered by UUID")
	}
}

func TestRun_SameSnapshotIsEmpty(t *testing.T) {
	e := newEnv(t)
	objs := []ir.Object{
		concept("X", -1, st(10, core)),
		description("D", -2, -1, text(st(10, core), "x"), text(st(20, core), "y")),
		&ir.StampComment{Stamp: st(10, core), Comment: "first load"},
	}
	a := writeSnapshot(t, e.dir, "a.ibdf", objs...)
	b := writeSnapshot(t, e.dir, "b.ibdf", objs...)

	res, err := Run(context.Background(), e.options(a, b))
	require.NoError(t, err)
	assert.Equal(t, Result{OutputPath: res.OutputPath}, *res)
	assert.Empty(t, readOutput(t, res.OutputPath))
}

func TestRun_AddedRemovedSymmetry(t *testing.T) {
	e := newEnv(t)
	x := writeSnapshot(t, e.dir, "x.ibdf",
		concept("1", -1, st(10, core)),
		concept("2", -2, st(10, core)),
		concept("3", -3, st(10, core)),
	)
	y := writeSnapshot(t, e.dir, "y.ibdf",
		concept("2", -2, st(10, core)),
		concept("4", -4, st(10, core)),
		concept("5", -5, st(10, core)),
		concept("6", -6, st(10, core)),
	)

	forward, err := Run(context.Background(), e.options(x, y))
	require.NoError(t, err)
	opts := e.options(y, x)
	opts.OutputName = "reverse.ibdf"
	reverse, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 3, forward.Added)
	assert.Equal(t, forward.Added, reverse.Removed)
	assert.Equal(t, forward.Removed, reverse.Added)
}

func TestRun_AlreadyInactiveNeedsNoRetirement(t *testing.T) {
	e := newEnv(t)
	gone := concept("gone", -1, st(10, core), ir.Stamp{Status: ir.StatusInactive, Time: 20, Author: author, Module: core, Path: master})
	initial := writeSnapshot(t, e.dir, "initial.ibdf", gone)
	next := writeSnapshot(t, e.dir, "new.ibdf")

	res, err := Run(context.Background(), e.options(initial, next))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Zero(t, res.RetirementsCreated)
	assert.Empty(t, readOutput(t, res.OutputPath))
}

func TestRun_IgnoreTimeInCompare(t *testing.T) {
	e := newEnv(t)
	initial := writeSnapshot(t, e.dir, "initial.ibdf", description("A", -1, -5, text(st(100, core), "same")))
	next := writeSnapshot(t, e.dir, "new.ibdf", description("A", -1, -5, text(st(555, core), "same")))

	strict, err := Run(context.Background(), e.options(initial, next))
	require.NoError(t, err)
	assert.Equal(t, 1, strict.Changed)

	opts := e.options(initial, next)
	opts.IgnoreTimeInCompare = true
	relaxed, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, relaxed.Changed)
}

func TestRun_RepeatedRecordsMergeByStamp(t *testing.T) {
	e := newEnv(t)
	a := description("A", -1, -5, text(st(100, core), "same"))
	initial := writeSnapshot(t, e.dir, "initial.ibdf", a, a)
	next := writeSnapshot(t, e.dir, "new.ibdf", a, description("A", -1, -5, text(st(100, core), "other")))

	opts := e.options(initial, next)
	opts.IgnoreTimeInCompare = true
	res, err := Run(context.Background(), opts)
	require.NoError(t, err, "a record written twice still has one version")
	assert.Zero(t, res.Changed)
	assert.Zero(t, res.Added)
	assert.Zero(t, res.Removed)
}

func TestRun_IgnoreTimeRejectsMultiVersionInitial(t *testing.T) {
	e := newEnv(t)
	initial := writeSnapshot(t, e.dir, "initial.ibdf",
		description("A", -1, -5, text(st(100, core), "a"), text(st(200, core), "b")))
	next := writeSnapshot(t, e.dir, "new.ibdf")

	opts := e.options(initial, next)
	opts.IgnoreTimeInCompare = true
	_, err := Run(context.Background(), opts)
	assert.True(t, ir.IsConfiguration(err))
	assert.Empty(t, e.outputEntries(), "no output on configuration errors")
}

func TestRun_IgnoreSiblingModules(t *testing.T) {
	e := newEnv(t)
	parents := []ir.Object{
		moduleParent("v7-parent", -70, moduleV7),
		moduleParent("v8-parent", -80, moduleV8),
	}
	initial := writeSnapshot(t, e.dir, "initial.ibdf",
		append([]ir.Object{description("A", -1, -5, text(st(100, moduleV7), "same"))}, parents...)...)
	next := writeSnapshot(t, e.dir, "new.ibdf",
		append([]ir.Object{description("A", -1, -5, text(st(100, moduleV8), "same"))}, parents...)...)

	strict, err := Run(context.Background(), e.options(initial, next))
	require.NoError(t, err)
	assert.Equal(t, 1, strict.Changed)

	opts := e.options(initial, next)
	opts.IgnoreSiblingModules = true
	relaxed, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, relaxed.Changed)
}

func TestRun_ModuleMetadataRetention(t *testing.T) {
	e := newEnv(t)
	initial := writeSnapshot(t, e.dir, "initial.ibdf",
		concept("module-v7", moduleV7, st(1, core)),
		moduleParent("v7-parent", -70, moduleV7),
		concept("plain", -1, st(1, core)),
	)
	next := writeSnapshot(t, e.dir, "new.ibdf")

	retired, err := Run(context.Background(), e.options(initial, next))
	require.NoError(t, err)
	assert.Zero(t, retired.RetainedModuleMetadata, "default options retire module metadata")
	assert.Equal(t, 3, retired.Removed)
	assert.Equal(t, 3, retired.RetirementsCreated)

	opts := e.options(initial, next)
	opts.KeepMissingModuleMetadata = true
	kept, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, kept.RetainedModuleMetadata)
	assert.Equal(t, 1, kept.Removed)
	assert.Equal(t, 1, kept.RetirementsCreated)
}

func TestRun_Failures(t *testing.T) {
	e := newEnv(t)
	good := writeSnapshot(t, e.dir, "good.ibdf", concept("X", -1, st(10, core)))

	t.Run("missing input", func(t *testing.T) {
		_, err := Run(context.Background(), e.options(good, filepath.Join(e.dir, "nope.ibdf")))
		assert.True(t, ir.IsIO(err))
	})

	t.Run("corrupt input", func(t *testing.T) {
		bad := filepath.Join(e.dir, "bad.ibdf")
		require.NoError(t, os.WriteFile(bad, []byte{0, 0, 0, 3, byte(ir.KindConcept), 1, 2}, 0o644))
		_, err := Run(context.Background(), e.options(good, bad))
		assert.True(t, ir.IsCorrupt(err))
	})

	t.Run("bad options", func(t *testing.T) {
		opts := e.options(good, good)
		opts.Author = 0
		_, err := Run(context.Background(), opts)
		assert.True(t, ir.IsConfiguration(err))

		opts = e.options(good, good)
		opts.OutputName = "../escape.ibdf"
		_, err = Run(context.Background(), opts)
		assert.True(t, ir.IsConfiguration(err))
	})

	assert.Empty(t, e.outputEntries(), "failures leave no partial output")
}

func TestRun_ForwardsNewStampRecordsAndUnparsed(t *testing.T) {
	e := newEnv(t)
	comment := &ir.StampComment{Stamp: st(10, core), Comment: "release"}
	initial := writeSnapshot(t, e.dir, "initial.ibdf")

	path := filepath.Join(e.dir, "new.ibdf")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := stream.NewWriter(f)
	require.NoError(t, w.Write(comment))
	require.NoError(t, w.WriteRecord([]byte{99, 1}, nil))
	require.NoError(t, w.Flush())
	require.NoError(t, f.Close())

	res, err := Run(context.Background(), e.options(initial, path))
	require.NoError(t, err)

	data, err := os.ReadFile(res.OutputPath)
	require.NoError(t, err)
	var kinds []ir.ObjectKind
	_, err = stream.NewReader(bytes.NewReader(data), stream.WithPermits(1)).Read(context.Background(),
		func(_ context.Context, obj ir.Object) error {
			kinds = append(kinds, obj.ObjectKind())
			return nil
		})
	require.Error(t, err, "strict readers reject the forwarded unknown record")
	assert.Equal(t, []ir.ObjectKind{ir.KindStampComment}, kinds)
}
