// Package history is a webhook-fed message history cache for relay clients.
//
// Clients register a webhook with the relay through History, the relay
// delivers signed watch events back to it, and History stores each event as
// a message that clients can later page through by topic.
//
// Key features:
//   - Cache-aside registration lookup with weighted, TTL/TTI-bounded caching
//   - EdDSA claim verification on every inbound webhook and API call
//   - Idempotent message upserts keyed by client, topic and content id
//   - Stable bidirectional cursor pagination
//   - Composable store pattern with multiple backends (MongoDB, Postgres, Redis, Memory)
package history
