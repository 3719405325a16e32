package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/recompose/internal/changes"
)

const passColumns = `id, composition, seq, kind, executed, skipped, reentered, pending, error, digest`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPass(row rowScanner) (PassRecord, error) {
	var rec PassRecord
	err := row.Scan(
		&rec.ID,
		&rec.Composition,
		&rec.Seq,
		&rec.Kind,
		&rec.Executed,
		&rec.Skipped,
		&rec.Reentered,
		&rec.Pending,
		&rec.Error,
		&rec.Digest,
	)
	return rec, err
}

// ReadPass retrieves a pass with its change list.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadPass(ctx context.Context, id string) (PassRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+passColumns+` FROM passes WHERE id = ?`, id)
	rec, err := scanPass(row)
	if err != nil {
		return PassRecord{}, err
	}
	rec.Changes, err = s.ReadChanges(ctx, id)
	if err != nil {
		return PassRecord{}, err
	}
	return rec, nil
}

// ListPasses returns the passes of a composition, or of every composition
// when composition is empty, without their change lists.
// Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no passes exist.
func (s *Store) ListPasses(ctx context.Context, composition string) ([]PassRecord, error) {
	query := `SELECT ` + passColumns + ` FROM passes`
	var args []any
	if composition != "" {
		query += ` WHERE composition = ?`
		args = append(args, composition)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	passes := []PassRecord{}
	for rows.Next() {
		rec, err := scanPass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		passes = append(passes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	return passes, nil
}

// ReadChanges returns the change list of a pass in emission order.
// Attribute values come back as plain Go values (string, int64, bool,
// []any, map[string]any).
func (s *Store) ReadChanges(ctx context.Context, passID string) (changes.List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op, parent, child, node_type, node_index, from_index, to_index, attr, value
		FROM changes
		WHERE pass_id = ?
		ORDER BY position ASC
	`, passID)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	list := changes.List{}
	for rows.Next() {
		var (
			c     changes.Change
			op    string
			value sql.NullString
		)
		if err := rows.Scan(&op, &c.Parent, &c.Child, &c.Type, &c.Index, &c.From, &c.To, &c.Attr, &value); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		c.Op = changes.Op(op)
		if c.Value, err = unmarshalValue(value); err != nil {
			return nil, fmt.Errorf("pass %s: %w", passID, err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return list, nil
}

// MaxSeq returns the highest stored pass sequence, or 0 for an empty store.
// Clock.Advance(MaxSeq) continues numbering after stored passes.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM passes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}
