package goroutine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/lockset"
)

func TestAlloc(t *testing.T) {
	tests := []struct {
		name string
		tid  access.ThreadID
	}{
		{"zero tid", 0},
		{"small tid", 5},
		{"large tid", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := Alloc(tt.tid)
			assert.Equal(t, tt.tid, ctx.TID)
			assert.Equal(t, access.Clock(1), ctx.Clock(), "own clock starts at 1")
			assert.Equal(t, access.Clock(0), ctx.C.ValueFor(tt.tid+1))
			assert.Zero(t, ctx.Locks.Len())
		})
	}
}

func TestIncrementClock(t *testing.T) {
	ctx := Alloc(3)
	for i := 0; i < 4; i++ {
		ctx.IncrementClock()
	}
	assert.Equal(t, access.Clock(5), ctx.Clock())
	assert.Equal(t, access.Clock(0), ctx.C.Get(2), "other threads unaffected")
}

func TestReleaseAcquire(t *testing.T) {
	t1, t2 := Alloc(1), Alloc(2)

	t1.Acquire(7, nil)
	assert.Equal(t, lockset.Of(7), t1.LockSet())

	published, err := t1.Release(7)
	require.NoError(t, err)
	assert.Equal(t, access.Clock(1), published.Get(1), "published before increment")
	assert.Equal(t, access.Clock(2), t1.Clock())
	assert.Zero(t, t1.Locks.Len())

	t2.Acquire(7, published)
	assert.Equal(t, access.Clock(1), t2.C.ValueFor(1))
	assert.Equal(t, access.Clock(1), t2.Clock())
	assert.True(t, t2.Locks.Holds(7))

	t1.IncrementClock()
	assert.Equal(t, access.Clock(1), published.Get(1), "published clock is a snapshot")
}

func TestReleaseNotHeld(t *testing.T) {
	ctx := Alloc(1)
	_, err := ctx.Release(9)
	require.ErrorIs(t, err, lockset.ErrNotHeld)
	assert.Equal(t, access.Clock(1), ctx.Clock(), "failed release must not tick")
}

func TestForkJoin(t *testing.T) {
	parent, child := Alloc(1), Alloc(2)

	parent.Fork(child)
	assert.Equal(t, access.Clock(1), child.C.ValueFor(1))
	assert.Equal(t, access.Clock(2), parent.Clock())

	child.IncrementClock()
	parent.Join(child)
	assert.Equal(t, access.Clock(2), parent.C.ValueFor(2))
	assert.Equal(t, access.Clock(3), child.Clock())
}

func TestTable(t *testing.T) {
	tab := NewTable()
	a := tab.Get(4)
	assert.Same(t, a, tab.Get(4))
	assert.NotSame(t, a, tab.Get(5))
	assert.Equal(t, 2, tab.Len())
}
