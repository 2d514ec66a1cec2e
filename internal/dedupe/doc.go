// Package dedupe provides a small TTL cache used to absorb duplicate
// inbound message deliveries before they reach the relay pipeline.
package dedupe
