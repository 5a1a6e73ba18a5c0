package locking

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "customer-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	locker := NewLocalLocker()
	exerciseMutualExclusion(t, locker)
	assert.Zero(t, locker.Held())
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	locker := NewLocalLocker()

	releaseA, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)
	releaseB, err := locker.Acquire(context.Background(), "b")
	require.NoError(t, err)

	releaseA()
	releaseA()
	releaseB()
	assert.Zero(t, locker.Held())
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, locker.Held())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("AML_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("AML_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	locker := NewRedisLocker(client, "aml:test:lock:", time.Second, zaptest.NewLogger(t))
	exerciseMutualExclusion(t, locker)

	release, err := locker.Acquire(context.Background(), "held")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "held")
	assert.ErrorIs(t, err, ErrLockTimeout)
	release()
}
