package store

import (
	"context"
	"fmt"

	"github.com/roach88/recompose/internal/ir"
)

// Snapshot is the saved state of a composition after a pass.
type Snapshot struct {
	Composition string
	Seq         int64
	Values      map[string]any
	Digest      string
}

// SaveSnapshot stores values, as produced by state.SaveRegistry.Snapshot,
// for composition at seq. Values must be representable as ir values.
// Saving the same (composition, seq) again replaces the snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, composition string, seq int64, values map[string]any) (Snapshot, error) {
	obj := make(ir.Object, len(values))
	for k, v := range values {
		val, err := ir.FromGo(v)
		if err != nil {
			return Snapshot{}, fmt.Errorf("save snapshot: value %q: %w", k, err)
		}
		obj[k] = val
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	digest, err := ir.Hash(ir.DomainSnapshot, obj)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (composition, seq, data, digest)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(composition, seq) DO UPDATE SET data = excluded.data, digest = excluded.digest
	`, composition, seq, string(data), digest)
	if err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}
	return Snapshot{Composition: composition, Seq: seq, Values: ir.ToGo(obj).(map[string]any), Digest: digest}, nil
}

// LoadSnapshot returns the latest snapshot of composition.
// Returns sql.ErrNoRows if none exists.
func (s *Store) LoadSnapshot(ctx context.Context, composition string) (Snapshot, error) {
	snap := Snapshot{Composition: composition}
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT seq, data, digest
		FROM snapshots
		WHERE composition = ?
		ORDER BY seq DESC
		LIMIT 1
	`, composition).Scan(&snap.Seq, &data, &snap.Digest)
	if err != nil {
		return Snapshot{}, err
	}

	v, err := ir.Unmarshal([]byte(data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %s@%d: %w", composition, snap.Seq, err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return Snapshot{}, fmt.Errorf("load snapshot %s@%d: not an object", composition, snap.Seq)
	}
	snap.Values = ir.ToGo(obj).(map[string]any)
	return snap, nil
}
