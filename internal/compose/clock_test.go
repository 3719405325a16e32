package compose

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recompose/internal/slots"
)

func TestClockAdvanceNeverMovesBack(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())

	c.Advance(10)
	assert.Equal(t, int64(11), c.Next())

	c.Advance(3)
	assert.Equal(t, int64(12), c.Next())
}

func TestClockConcurrentNextIsUnique(t *testing.T) {
	c := NewClock()
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[int64]bool)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				n := c.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}

func TestSharedClockOrdersCompositions(t *testing.T) {
	clock := NewClock()
	clock.Advance(4)
	a, _ := newComposition(t, WithClock(clock))
	b, _ := newComposition(t, WithClock(clock))
	leaf := func(c *Composer) { c.Node(slots.K("n"), "n", nil) }

	ra, err := a.Compose(context.Background(), leaf)
	require.NoError(t, err)
	rb, err := b.Compose(context.Background(), leaf)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ra.Seq)
	assert.Equal(t, int64(6), rb.Seq)
}
