package store

import (
	"context"
	"fmt"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/compose"
)

// PassRecord is a persisted pass.
type PassRecord struct {
	ID          string
	Composition string
	Seq         int64
	Kind        string
	Executed    int
	Skipped     int
	Reentered   int
	Pending     bool
	Error       string
	Digest      string
	Changes     changes.List
}

// RecordFromResult converts a committed pass for storage and computes its
// digest.
func RecordFromResult(res *compose.Result) (PassRecord, error) {
	digest, err := Digest(res.Changes)
	if err != nil {
		return PassRecord{}, fmt.Errorf("digest pass %s: %w", res.PassID, err)
	}
	rec := PassRecord{
		ID:          res.PassID,
		Composition: res.Composition,
		Seq:         res.Seq,
		Kind:        string(res.Kind),
		Executed:    res.Executed,
		Skipped:     res.Skipped,
		Reentered:   res.Reentered,
		Pending:     res.Pending,
		Digest:      digest,
		Changes:     res.Changes,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	return rec, nil
}

// WritePass inserts a pass and its change list in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing a pass id that
// is already stored leaves the stored pass untouched.
func (s *Store) WritePass(ctx context.Context, rec PassRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write pass: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO passes
		(id, composition, seq, kind, executed, skipped, reentered, pending, error, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Composition,
		rec.Seq,
		rec.Kind,
		rec.Executed,
		rec.Skipped,
		rec.Reentered,
		rec.Pending,
		rec.Error,
		rec.Digest,
	)
	if err != nil {
		return fmt.Errorf("write pass %s: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write pass %s: rows affected: %w", rec.ID, err)
	}
	if n == 0 {
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes
		(pass_id, position, op, parent, child, node_type, node_index, from_index, to_index, attr, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write pass %s: prepare changes: %w", rec.ID, err)
	}
	defer stmt.Close()

	for i, c := range rec.Changes {
		value, err := marshalValue(c.Value)
		if err != nil {
			return fmt.Errorf("write pass %s: change %d: %w", rec.ID, i, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID, i, string(c.Op), c.Parent, c.Child, c.Type, c.Index, c.From, c.To, c.Attr, value,
		); err != nil {
			return fmt.Errorf("write pass %s: change %d: %w", rec.ID, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write pass %s: commit: %w", rec.ID, err)
	}
	return nil
}
