// Package engine wires the chronicle components into one store.
//
// An Engine owns an identifier registry, a stamp interner, the chronology
// store and the cached taxonomy records, constructed explicitly and in
// that order. There are no process-wide singletons: two engines in one
// process are fully independent.
//
// Data enters through ApplyParsedObject, either directly or from a binary
// stream via Import, and through the edit helpers (NewConcept,
// NewSemantic, Commit), which stamp versions with the engine Clock. Data
// leaves through Export, Resolve and the taxonomy builder.
//
// Every engine bootstraps the well-known metadata concepts in ir.Metadata
// first, so their nids are identical across engines and across processes.
package engine
