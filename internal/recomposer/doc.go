// Package recomposer schedules recomposition for a set of compositions
// sharing one state.Tracker.
//
// State writes anywhere in the process invalidate scopes; the tracker
// reports each affected composition to the Recomposer, which queues it.
// Run drains the queue in a single loop. Each batch holds distinct
// compositions, which are recomposed concurrently by a bounded worker
// group, while passes over any one composition stay strictly sequential.
//
// Thread-safety model:
//   - NewComposition, Compose, Dispose, RecomposeNow: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//   - state writes (Cell.Set): safe from any goroutine
package recomposer
