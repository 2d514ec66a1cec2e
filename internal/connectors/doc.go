// Package connectors groups the per-platform integrations. Each
// subpackage implements both halves of a platform on one client:
// the inbound watcher feeding events into the relay pipeline and the
// outbound relay.Binding posting relayed text.
package connectors
