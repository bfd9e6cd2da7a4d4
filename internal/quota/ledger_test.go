package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/ai-gateway/internal/models"
	"github.com/aman-churiwal/ai-gateway/internal/testutil"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newLedger(t *testing.T) (*Ledger, *clock) {
	t.Helper()
	store, _ := testutil.NewRedis(t)
	c := &clock{t: time.Date(2026, 5, 1, 22, 30, 0, 0, time.UTC)}
	return NewLedger(store, 5, 7).WithClock(c.now), c
}

var free = models.Principal{ID: "user-1", Tier: models.TierFree}

func TestCheckAndConsume_SixthCallDenied(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := ledger.CheckAndConsume(ctx, free)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5-i, d.Remaining)
	}

	d, err := ledger.CheckAndConsume(ctx, free)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	status, err := ledger.Status(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
}

func TestCheckAndConsume_PremiumNeverMutates(t *testing.T) {
	store, mini := testutil.NewRedis(t)
	ledger := NewLedger(store, 5, 7)
	premium := models.Principal{ID: "vip", Tier: models.TierPremium}

	for i := 0; i < 20; i++ {
		d, err := ledger.CheckAndConsume(context.Background(), premium)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.True(t, d.IsUnlimited())
	}
	assert.Empty(t, mini.Keys())
}

func TestStatus_RollsOverAtUTCMidnight(t *testing.T) {
	ledger, c := newLedger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := ledger.CheckAndConsume(ctx, free)
		require.NoError(t, err)
	}

	status, err := ledger.Status(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)

	c.advance(2 * time.Hour)

	status, err = ledger.Status(ctx, free)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Remaining)

	d, err := ledger.CheckAndConsume(ctx, free)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestStatus_IgnoresRecordFromAnotherDay(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	ledger := NewLedger(store, 5, 7).WithClock(func() time.Time { return now })

	stale := []byte(`{"principal_id":"user-1","date":"2026-05-01","count":5}`)
	require.NoError(t, store.Set(context.Background(), recordKey("user-1", "2026-05-02"), stale, 0))

	status, err := ledger.Status(context.Background(), free)
	require.NoError(t, err)
	assert.Equal(t, 5, status.Remaining)
}

func TestCheckAndConsume_SetsRetentionTTL(t *testing.T) {
	store, mini := testutil.NewRedis(t)
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	ledger := NewLedger(store, 5, 3).WithClock(func() time.Time { return now })

	_, err := ledger.CheckAndConsume(context.Background(), free)
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, mini.TTL(recordKey("user-1", "2026-05-02")))
}

func TestCheckAndConsume_ConcurrentBurstNeverExceedsLimit(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	// Two slots already used: R = 3.
	for i := 0; i < 2; i++ {
		_, err := ledger.CheckAndConsume(ctx, free)
		require.NoError(t, err)
	}

	const n = 12
	var allowed, denied, failed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := ledger.CheckAndConsume(ctx, free)
			switch {
			case err != nil:
				failed.Add(1)
			case d.Allowed:
				allowed.Add(1)
			default:
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failed.Load())
	assert.Equal(t, int32(3), allowed.Load())
	assert.Equal(t, int32(n-3), denied.Load())
}

func TestPrincipalsAreIndependent(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()
	other := models.Principal{ID: "user-2", Tier: models.TierFree}

	for i := 0; i < 5; i++ {
		_, err := ledger.CheckAndConsume(ctx, free)
		require.NoError(t, err)
	}

	d, err := ledger.CheckAndConsume(ctx, other)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}
