// Package security screens inbound queries and scrubs outbound error text.
//
// QueryGuard rejects oversized queries, control characters and prompt-injection
// attempts before a run is started. ClientLimiter throttles callers by client id.
// Redact removes paths, addresses, secrets and stack traces from messages that
// leave the process.
package security
