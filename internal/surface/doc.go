// Package surface implements the HTTP registration surface: the JSON
// API where communities are created and members, connectors, and
// bindings are registered.
//
// The surface is deliberately separate from the relay path. Relay
// traffic flows connector → pipeline → bindings and never passes
// through this package; the surface only manages the records the
// pipeline reads. Every successful mutation emits a provenance record.
package surface
