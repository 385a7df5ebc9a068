// Package memory holds map-backed stores for running without a database
// and for tests. Transactions are serialized but not rolled back; every
// write is an idempotent upsert, so re-running an aborted batch is safe.
package memory
