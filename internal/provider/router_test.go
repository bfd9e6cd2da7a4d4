package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-churiwal/ai-gateway/internal/circuitbreaker"
	"github.com/aman-churiwal/ai-gateway/internal/credential"
)

type fakeAdapter struct {
	id    string
	calls atomic.Int32
	fn    func(ctx context.Context) (string, error)
}

func (f *fakeAdapter) ID() string { return f.id }

func (f *fakeAdapter) Complete(ctx context.Context, secret credential.Secret, req Request) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func replying(id, text string) *fakeAdapter {
	return &fakeAdapter{id: id, fn: func(ctx context.Context) (string, error) { return text, nil }}
}

func hanging(id string) *fakeAdapter {
	return &fakeAdapter{id: id, fn: func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

func failing(id string, status int) *fakeAdapter {
	return &fakeAdapter{id: id, fn: func(ctx context.Context) (string, error) {
		return "", &ProviderError{Provider: id, StatusCode: status}
	}}
}

type fakeCreds map[string]string

func (f fakeCreds) Resolve(ctx context.Context, id string) (credential.Secret, error) {
	v, ok := f[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", credential.ErrNotConfigured, id)
	}
	if v == "!error" {
		return "", errors.New("secret store unavailable")
	}
	return credential.Secret(v), nil
}

var allCreds = fakeCreds{"a": "ka", "b": "kb", "c": "kc"}

func entry(a Adapter) Entry {
	return Entry{Adapter: a, Timeout: 30 * time.Millisecond}
}

func TestRouter_TimeoutFallsBackAndStops(t *testing.T) {
	a, b, c := hanging("a"), replying("b", "from b"), replying("c", "from c")
	r := NewRouter(allCreds, nil, entry(a), entry(b), entry(c))

	res, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "from b", res.Text)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestRouter_AllTimeOut(t *testing.T) {
	r := NewRouter(allCreds, nil, entry(hanging("a")), entry(hanging("b")), entry(hanging("c")))

	_, err := r.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, ErrAllProvidersFailed)

	var all *AllProvidersFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Failures, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, all.Failures[i].Provider)
		assert.Contains(t, all.Failures[i].Reason, "timeout")
	}
}

func TestRouter_SkipsUnconfigured(t *testing.T) {
	a, b := replying("a", "from a"), replying("b", "from b")
	r := NewRouter(fakeCreds{"b": "kb"}, nil, entry(a), entry(b))

	res, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "from b", res.Text)
	assert.Zero(t, a.calls.Load())
}

func TestRouter_NothingConfigured(t *testing.T) {
	r := NewRouter(fakeCreds{}, nil, entry(replying("a", "x")), entry(replying("b", "y")))

	_, err := r.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, credential.ErrNotConfigured)
	assert.NotErrorIs(t, err, ErrAllProvidersFailed)
}

func TestRouter_MixedFailuresListEveryReason(t *testing.T) {
	creds := fakeCreds{"b": "kb", "c": "!error"}
	r := NewRouter(creds, nil, entry(replying("a", "x")), entry(failing("b", 503)), entry(replying("c", "y")))

	_, err := r.Complete(context.Background(), Request{})
	var all *AllProvidersFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, []Failure{
		{Provider: "a", Reason: "not configured"},
		{Provider: "b", Reason: "upstream status 503"},
		{Provider: "c", Reason: "credential unavailable"},
	}, all.Failures)
}

func TestRouter_CallerCancellationStopsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeAdapter{id: "a", fn: func(ctx context.Context) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}}
	b := replying("b", "from b")
	r := NewRouter(allCreds, nil, Entry{Adapter: a, Timeout: time.Second}, entry(b))

	_, err := r.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.calls.Load())
}

func TestRouter_OpenBreakerSkipsProvider(t *testing.T) {
	a, b := failing("a", 500), replying("b", "from b")
	breaker := circuitbreaker.New("a", circuitbreaker.Config{MaxFailures: 1, OpenTimeout: time.Minute})
	r := NewRouter(allCreds, nil, Entry{Adapter: a, Timeout: time.Second, Breaker: breaker}, entry(b))

	_, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	res, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, int32(1), a.calls.Load(), "open breaker must not call the provider")

	assert.Same(t, breaker, r.Breaker("a"))
	assert.Equal(t, []string{"a", "b"}, r.Providers())
}

func TestRouter_Ready(t *testing.T) {
	ctx := context.Background()

	r := NewRouter(fakeCreds{"b": "kb"}, nil, entry(replying("a", "")), entry(replying("b", "")))
	assert.NoError(t, r.Ready(ctx))

	open := circuitbreaker.New("b", circuitbreaker.Config{MaxFailures: 1, OpenTimeout: time.Minute})
	_ = open.Call(func() error { return assert.AnError }, nil)
	r = NewRouter(fakeCreds{"b": "kb"}, nil,
		entry(replying("a", "")),
		Entry{Adapter: replying("b", ""), Timeout: time.Second, Breaker: open},
	)
	err := r.Ready(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: no credential")
	assert.Contains(t, err.Error(), "b: circuit open")

	assert.Error(t, NewRouter(allCreds, nil).Ready(ctx))
}

func TestRouter_FailureReasonOmitsUpstreamText(t *testing.T) {
	leaky := &fakeAdapter{id: "a", fn: func(ctx context.Context) (string, error) {
		return "", &ProviderError{Provider: "a", StatusCode: 401, Reason: `"Incorrect API key provided: sk-ab***xyz"`}
	}}
	garbled := &fakeAdapter{id: "b", fn: func(ctx context.Context) (string, error) {
		return "", &ProviderError{Provider: "b", StatusCode: 200, Reason: "invalid json", Err: ErrMalformedResponse}
	}}
	broken := &fakeAdapter{id: "c", fn: func(ctx context.Context) (string, error) {
		return "", errors.New("dial tcp 10.0.0.7:443: connection refused")
	}}
	r := NewRouter(allCreds, nil, entry(leaky), entry(garbled), entry(broken))

	_, err := r.Complete(context.Background(), Request{})
	var all *AllProvidersFailedError
	require.ErrorAs(t, err, &all)
	assert.Equal(t, []Failure{
		{Provider: "a", Reason: "upstream status 401"},
		{Provider: "b", Reason: "malformed response"},
		{Provider: "c", Reason: "provider error"},
	}, all.Failures)
	assert.NotContains(t, err.Error(), "sk-")
}
