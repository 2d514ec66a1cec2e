// Package store provides persistent storage for scope-relay using SQLite.
//
// # Data Models
//
//   - Scope: the community identity that owns all other records
//   - Member: a community member with a canonical identity anchor
//   - IdentityClaim: a member's platform handle plus verification state
//   - Connector: inbound platform integration record
//   - Binding: outbound platform integration record
//   - RelayMessage: canonical, platform-agnostic stored message
//   - Provenance: immutable append-only action record
//
// # Invariants
//
// RelayMessage rows are unique per (scope, source platform, native
// message id); SaveRelayMessage absorbs duplicate inserts silently and
// reports whether a row was actually written. Provenance rows are
// append-only: the package exposes no update or delete operation for
// them.
//
// # SQLite Configuration
//
// The store uses SQLite via modernc.org/sqlite with WAL mode for
// concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 text in UTC.
package store
