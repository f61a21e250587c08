// Package store provides the SQLite-backed snapshot substrate for a
// chronicle store.
//
// A snapshot holds everything needed to rebuild an in-memory store in a
// later process:
//   - Identifiers: UUID to nid bindings, primary UUID first
//   - Stamps: the interned stamp tuples in token order
//   - Stamp aliases and comments, in their wire encoding
//   - Chronologies: one wire record per nid
//
// # Determinism
//
// Every read orders its rows explicitly (nid, ordinal, token or payload),
// so two loads of the same database rebuild identical stores.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Chronology and stamp-record payloads use the binary codec in
// internal/codec, the same bytes a stream file carries.
package store
