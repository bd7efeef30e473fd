package preview

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireGetRelease(t *testing.T) {
	s := NewStore()
	src := []byte("png")
	h := s.Acquire("image/png", src)
	src[0] = 'x'

	ct, data, err := s.Get(h.ID())
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "png", string(data), "store keeps its own copy")
	assert.Equal(t, int64(1), s.Live())

	assert.True(t, h.Release())
	assert.False(t, h.Release())
	assert.True(t, h.Released())
	assert.Equal(t, int64(0), s.Live())

	_, _, err = s.Get(h.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentReleaseHappensOnce(t *testing.T) {
	s := NewStore()
	h := s.Acquire("image/jpeg", []byte{1})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.Release() {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, int64(0), s.Live())
}

func TestIDsAreUnique(t *testing.T) {
	s := NewStore()
	a := s.Acquire("", nil)
	b := s.Acquire("", nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, int64(2), s.Live())
}
