// Package stores contains the Redis-backed revocation registry. Keys carry
// their own TTL so the store self-prunes; nothing here is read at startup.
package stores
