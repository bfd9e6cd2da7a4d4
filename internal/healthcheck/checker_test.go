package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(name string, fail *atomic.Bool) Probe {
	return Probe{Name: name, Check: func(ctx context.Context) error {
		if fail.Load() {
			return errors.New(name + " unreachable")
		}
		return nil
	}}
}

func TestChecker_Overall(t *testing.T) {
	var redisDown, dbDown atomic.Bool
	c := NewChecker(Config{Probes: []Probe{probe("redis", &redisDown), probe("database", &dbDown)}})
	ctx := context.Background()

	assert.Equal(t, Healthy, c.Check(ctx))

	redisDown.Store(true)
	assert.Equal(t, Degraded, c.Check(ctx))

	statuses := c.GetAllStatus()
	require.Len(t, statuses, 2)
	assert.Equal(t, "redis", statuses[0].Name)
	assert.False(t, statuses[0].IsHealthy)
	assert.Equal(t, "redis unreachable", statuses[0].LastError)

	dbDown.Store(true)
	assert.Equal(t, Unhealthy, c.Check(ctx))

	redisDown.Store(false)
	dbDown.Store(false)
	assert.Equal(t, Healthy, c.Check(ctx))
	assert.Empty(t, c.GetAllStatus()[0].LastError)
}

func TestChecker_MaxFailures(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	c := NewChecker(Config{Probes: []Probe{probe("redis", &down)}, MaxFailures: 2})

	assert.Equal(t, Healthy, c.Check(context.Background()))
	assert.Equal(t, Unhealthy, c.Check(context.Background()))
}

func TestChecker_ProbeTimeout(t *testing.T) {
	slow := Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	c := NewChecker(Config{Probes: []Probe{slow}, Timeout: 20 * time.Millisecond})

	start := time.Now()
	assert.Equal(t, Unhealthy, c.Check(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
}

func TestChecker_StartStop(t *testing.T) {
	var calls atomic.Int32
	p := Probe{Name: "redis", Check: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}}
	c := NewChecker(Config{Probes: []Probe{p}, Interval: 10 * time.Millisecond})

	c.Start()
	c.Start()
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}
