// Package store provides SQLite-backed durable storage for pass logs and
// saved state.
//
// The store keeps:
//   - Passes: one record per committed pass with its counters and digest
//   - Changes: the ordered change list of each pass
//   - Snapshots: saved state of a composition, keyed by pass sequence
//
// # Ordering
//
// All ordering uses the seq column (the logical pass clock), never
// timestamps. Every query that returns several rows orders by
// seq ASC, id ASC COLLATE BINARY, or by position within a pass, so reads
// are identical across runs.
//
// # Idempotency
//
// Writing a pass whose id is already stored is a no-op. Snapshots are
// unique per (composition, seq).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Change values and snapshots are encoded with ir.MarshalCanonical and
// digested with ir.Hash.
package store
