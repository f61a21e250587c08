// Package ir provides the foundational record types for the chronicle store.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal. This keeps IR the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Nids are dense negative int32 values; zero is never a valid nid
//   - A Stamp is an immutable (status, time, author, module, path) tuple and
//     time is never zero
//   - Versions are immutable once committed; edits append new versions
//   - Ambiguity is a value (zero/one/many versions), never an error
//   - Canonical JSON (RFC 8785, NFC strings) is the only text rendering used
//     for digests and debug output
package ir
