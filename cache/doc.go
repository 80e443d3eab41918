// Package cache stores computed results under deterministic keys.
//
// KeyBuilder derives "{namespace}:{version}:{sha256-hex}" keys from a request's
// url, method, version and options. Backend is the storage contract shared by
// RemoteBackend (redis), LocalBackend (bounded LRU with per-entry TTL) and
// RistrettoBackend. CreateWithFallback picks the remote store when it is
// configured and answers a health check, and the local store otherwise.
//
// Get never returns an error: a remote failure reads as a miss.
package cache
