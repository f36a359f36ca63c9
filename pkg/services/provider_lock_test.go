package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderLocks_SerializesOneProvider(t *testing.T) {
	locks := NewProviderLocks()
	var inside, maxInside atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "p")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locks.Len())
}

func TestProviderLocks_OtherProvidersProceed(t *testing.T) {
	locks := NewProviderLocks()
	unlockP, err := locks.Lock(context.Background(), "p")
	require.NoError(t, err)
	defer unlockP()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockQ, err := locks.Lock(ctx, "q")
	require.NoError(t, err)
	unlockQ()
	assert.Equal(t, 1, locks.Len())
}

func TestProviderLocks_ContextCancelled(t *testing.T) {
	locks := NewProviderLocks()
	unlock, err := locks.Lock(context.Background(), "p")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Zero(t, locks.Len())
}
