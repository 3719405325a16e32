// Package ir provides the canonical value representation used wherever the
// engine's output leaves process memory: attribute values in persisted change
// lists, state snapshots, golden traces and content digests.
//
// Key design constraints:
//   - NO float types anywhere; numbers are int64
//   - NO null; absent values are omitted
//   - Canonical JSON follows RFC 8785 key ordering with NFC-normalized strings
//
// ir imports nothing internal.
package ir
