package store

import (
	"context"

	"github.com/roach88/recompose/internal/compose"
)

// Sink persists committed passes. It satisfies recomposer.PassSink.
type Sink struct {
	store *Store
}

// Sink returns a pass sink writing to s.
func (s *Store) Sink() *Sink {
	return &Sink{store: s}
}

// WritePass stores res with its change list.
func (k *Sink) WritePass(ctx context.Context, res *compose.Result) error {
	rec, err := RecordFromResult(res)
	if err != nil {
		return err
	}
	return k.store.WritePass(ctx, rec)
}
