// Package viewcount buffers story views in the coordination cache and
// flushes them to Postgres in batches.
//
// Buffer.Increment is called on every view. With the cache available it is
// a single HINCRBY; without it the view goes straight to the Counter as an
// additive update. Syncer.Run, scheduled twice a day and exposed for manual
// runs, moves buffered amounts into stories.read_count.
package viewcount
