package futexsync_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelif/futexsync"
)

var (
	_ sync.Locker = (*futexsync.Mutex)(nil)
	_ sync.Locker = (*futexsync.RwLock)(nil)
)

func TestGetEnvKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "FUTEXSYNC_LOG_LEVEL", futexsync.GetEnvKey("LOG_LEVEL"))
	assert.Equal(t, "FUTEXSYNC_LOG_LEVEL=debug", futexsync.GetEnvPair("LOG_LEVEL", "debug"))
}

// queue is the usual monitor pattern over the package-level types.
type queue struct {
	mu    futexsync.Mutex
	ready futexsync.Condvar
	items []int
}

func (q *queue) push(v int) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.ready.NotifyOne()
}

func (q *queue) pop(timeout time.Duration) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	res := q.ready.WaitTimeoutWhile(&q.mu, timeout, func() bool { return len(q.items) == 0 })
	if res.TimedOut() {
		return 0, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

func TestQueue(t *testing.T) {
	t.Parallel()

	var q queue

	_, ok := q.pop(5 * time.Millisecond)
	assert.False(t, ok)

	go func() {
		for i := range 100 {
			q.push(i)
		}
	}()

	for i := range 100 {
		v, ok := q.pop(5 * time.Second)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

var (
	configOnce futexsync.Once
	config     map[string]string
)

func TestPackageLevelOnce(t *testing.T) {
	t.Parallel()

	load := func() {
		config = map[string]string{"mode": "fast"}
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, configOnce.CallOnce(load))
			assert.Equal(t, "fast", config["mode"])
		}()
	}
	wg.Wait()
}

func TestOnceLockAlias(t *testing.T) {
	t.Parallel()

	c := futexsync.NewOnceLock("ready")
	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "ready", v)

	var empty futexsync.OnceLock[int]
	assert.NoError(t, empty.Set(1))
	assert.ErrorIs(t, empty.Set(2), futexsync.ErrInitialized)
}
