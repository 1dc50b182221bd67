// Package token stores the per-workspace auth tokens handed to an addon
// during the INSTALLED lifecycle callback. The token is the only credential
// the addon ever receives, so it must be persisted before the lifecycle
// response is written; three backends cover the deployment spectrum:
//
//	MemoryStore    tests and throwaway instances
//	BoltStore      single instance with a local data file
//	PostgresStore  multiple replicas sharing a database
//
// Rotation keeps the previous token acceptable for a short grace window so
// webhook deliveries already in flight do not fail verification.
package token
