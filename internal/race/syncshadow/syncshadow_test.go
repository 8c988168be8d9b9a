package syncshadow

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/hybridrace/internal/race/access"
	"github.com/kolkov/hybridrace/internal/race/vectorclock"
)

func TestGetOrCreate(t *testing.T) {
	shadow := NewSyncShadow()

	sv := shadow.GetOrCreate(0x1234)
	require.NotNil(t, sv)
	assert.Nil(t, sv.GetReleaseClock(), "no release yet")
	assert.Same(t, sv, shadow.GetOrCreate(0x1234))
	assert.NotSame(t, sv, shadow.GetOrCreate(0x5678))
	assert.Same(t, sv, shadow.Get(0x1234))
	assert.Nil(t, shadow.Get(0x9999))
	assert.Equal(t, 2, shadow.Len())

	shadow.Reset()
	assert.Zero(t, shadow.Len())
}

func TestGetOrCreateConcurrent(t *testing.T) {
	shadow := NewSyncShadow()
	results := make([]*SyncVar, 16)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = shadow.GetOrCreate(42)
		}(i)
	}
	wg.Wait()

	for _, sv := range results {
		assert.Same(t, results[0], sv)
	}
}

func TestReleaseClockIsCopied(t *testing.T) {
	sv := &SyncVar{}
	clock := vectorclock.New()
	clock.Set(1, 3)

	sv.SetReleaseClock(clock)
	clock.Increment(1)

	assert.Equal(t, access.Clock(3), sv.GetReleaseClock().Get(1))

	clock.Set(2, 7)
	sv.SetReleaseClock(clock)
	assert.Equal(t, access.Clock(4), sv.GetReleaseClock().Get(1))
	assert.Equal(t, access.Clock(7), sv.GetReleaseClock().Get(2))
}

func TestSignalClockAccumulates(t *testing.T) {
	sv := &SyncVar{}
	assert.Nil(t, sv.GetSignalClock())

	c1 := vectorclock.New()
	c1.Set(1, 5)
	c2 := vectorclock.New()
	c2.Set(2, 2)
	c2.Set(1, 1)

	sv.MergeSignalClock(c1)
	sv.MergeSignalClock(c2)
	c1.Increment(1)

	got := sv.GetSignalClock()
	assert.Equal(t, access.Clock(5), got.Get(1))
	assert.Equal(t, access.Clock(2), got.Get(2))
	assert.Equal(t, 2, sv.Signals())
}
