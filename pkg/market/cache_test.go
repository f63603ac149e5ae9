package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/logger"
	zladapter "github.com/deagle/cryptodigest/pkg/logger/zerolog"
)

func testLogger() logger.Logger {
	zl := zerolog.Nop()
	return zladapter.NewAdapter(&zl)
}

type stubFetcher struct {
	snapshot core.Snapshot
	err      error
	calls    int
}

func (f *stubFetcher) Fetch(_ context.Context) (*core.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	snapshot := f.snapshot
	return &snapshot, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(fetcher *stubFetcher, clock *fakeClock) *Cache {
	return NewCache(fetcher, testLogger(), WithClock(clock.Now))
}

func TestCacheHitWithinWindow(t *testing.T) {
	fetcher := &stubFetcher{snapshot: core.Snapshot{BTCPrice: 50000}}
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	clock.Advance(299 * time.Second)

	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls, "second call within the window must not fetch")
	assert.Same(t, first, second)
}

func TestCacheRefreshAfterWindow(t *testing.T) {
	fetcher := &stubFetcher{snapshot: core.Snapshot{BTCPrice: 50000}}
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	_, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	clock.Advance(300 * time.Second)

	refreshed, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.calls, "a stale snapshot triggers exactly one new fetch")
	assert.Equal(t, clock.t, refreshed.FetchedAt)
}

func TestServeStaleOnFetchFailure(t *testing.T) {
	fetcher := &stubFetcher{snapshot: core.Snapshot{BTCPrice: 50000}}
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fetcher.err = errors.New("upstream down")

	stale, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, stale, "failed refresh serves the previous snapshot unchanged")
	assert.Equal(t, 2, fetcher.calls)
}

func TestAbsentWhenNeverFetched(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("upstream down")}
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	snapshot, err := cache.Snapshot(context.Background())

	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, core.ErrNoSnapshot)
}

func TestFailedRefreshDoesNotClearSlot(t *testing.T) {
	fetcher := &stubFetcher{snapshot: core.Snapshot{BTCPrice: 50000}}
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache := newTestCache(fetcher, clock)

	_, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fetcher.err = errors.New("upstream down")

	_, err = cache.Snapshot(context.Background())
	require.NoError(t, err)

	// Recovery: the slot survived the failure and refreshes normally.
	fetcher.err = nil
	fetcher.snapshot = core.Snapshot{BTCPrice: 60000}

	refreshed, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(60000), refreshed.BTCPrice)
}
