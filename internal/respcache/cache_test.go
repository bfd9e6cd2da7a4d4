package respcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/ai-gateway/internal/testutil"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "chocolate", Normalize("Chocolate"))
	assert.Equal(t, "chocolate", Normalize("  chocolate "))
	assert.Equal(t, "dark chocolate", Normalize("Dark \t  CHOCOLATE\n"))
	assert.Equal(t, Normalize("STRASSE"), Normalize("straße"))
}

func counting(calls *atomic.Int32, payload string) ComputeFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		calls.Add(1)
		return json.RawMessage(payload), nil
	}
}

func TestGetOrCompute_SecondCallHits(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	cache := New(store, "cache", 0, nil)
	ctx := context.Background()
	var calls atomic.Int32

	first, hit, err := cache.GetOrCompute(ctx, "food", Normalize("Chocolate"), counting(&calls, `{"safetyLevel":"toxic"}`))
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := cache.GetOrCompute(ctx, "food", Normalize("  chocolate "), counting(&calls, `{"safetyLevel":"safe"}`))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCompute_NamespacesAreSeparate(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	cache := New(store, "cache", 0, nil)
	var calls atomic.Int32

	_, _, err := cache.GetOrCompute(context.Background(), "food", "grapes", counting(&calls, `1`))
	require.NoError(t, err)
	_, hit, err := cache.GetOrCompute(context.Background(), "plants", "grapes", counting(&calls, `2`))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetOrCompute_ComputeErrorIsNotCached(t *testing.T) {
	store, mini := testutil.NewRedis(t)
	cache := New(store, "cache", time.Hour, nil)
	boom := errors.New("providers down")

	_, _, err := cache.GetOrCompute(context.Background(), "food", "grapes", func(ctx context.Context) (json.RawMessage, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mini.Keys())
}

func TestGetOrCompute_FirstWriterWins(t *testing.T) {
	store, _ := testutil.NewRedis(t)
	cache := New(store, "cache", 0, nil)
	ctx := context.Background()

	key := cache.key("food", "grapes")
	_, err := store.SetNX(ctx, key, []byte(`{"normalized_key":"grapes","payload":{"v":"first"}}`), 0)
	require.NoError(t, err)

	payload, hit, err := cache.GetOrCompute(ctx, "food", "grapes", func(ctx context.Context) (json.RawMessage, error) {
		t.Fatal("compute must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.JSONEq(t, `{"v":"first"}`, string(payload))
}

func TestGetOrCompute_BackendDownDegradesToMiss(t *testing.T) {
	store, mini := testutil.NewRedis(t)
	cache := New(store, "cache", 0, nil)
	mini.Close()

	var calls atomic.Int32
	payload, hit, err := cache.GetOrCompute(context.Background(), "food", "grapes", counting(&calls, `{"ok":true}`))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.JSONEq(t, `{"ok":true}`, string(payload))
}
