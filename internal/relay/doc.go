// Package relay implements the message relay pipeline: filtering
// inbound platform events, resolving author identity, recording
// provenance, persisting the canonical message, and fanning out to
// every other active platform binding of the scope.
//
// The pipeline is deliberately linear and per-message. Each inbound
// event either becomes exactly one stored RelayMessage plus its
// provenance records, or is silently dropped by the filter. Duplicate
// deliveries of the same platform message are absorbed, and a failure
// to deliver to one destination never blocks the others.
package relay
