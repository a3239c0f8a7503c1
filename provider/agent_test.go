package provider

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/data-exchange-registry/interfaces"
)

type fakeRegistry struct {
	mu        sync.Mutex
	requests  []interfaces.Request
	responses map[interfaces.RequestID]interfaces.Response
	clk       clock.Clock

	listErr    error
	provideErr []error
	provided   int
	lists      int
}

func newFakeRegistry(clk clock.Clock, reqs ...interfaces.Request) *fakeRegistry {
	return &fakeRegistry{
		requests:  reqs,
		responses: make(map[interfaces.RequestID]interfaces.Response),
		clk:       clk,
	}
}

func (f *fakeRegistry) GetAllRequests(ctx context.Context) ([]interfaces.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return f.requests, f.listErr
}

func (f *fakeRegistry) GetDataResponse(ctx context.Context, id interfaces.RequestID) (*interfaces.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.responses[id]
	if !ok {
		return nil, nil
	}
	return &resp, nil
}

func (f *fakeRegistry) ProvideData(ctx context.Context, id interfaces.RequestID, result string) (interfaces.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.provideErr) > 0 {
		err := f.provideErr[0]
		f.provideErr = f.provideErr[1:]
		if err != nil {
			return interfaces.Response{}, err
		}
	}
	f.provided++
	resp := interfaces.Response{Result: result, Timestamp: uint64(f.clk.Now().UnixNano())}
	f.responses[id] = resp
	return resp, nil
}

func (f *fakeRegistry) response(id interfaces.RequestID) (interfaces.Response, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.responses[id]
	return resp, ok
}

func (f *fakeRegistry) counts() (lists, provided int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists, f.provided
}

func priceServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"ethereum":{"usd":3000}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(clk clock.Clock) Config {
	return Config{
		PollInterval:         time.Minute,
		Workers:              2,
		MaxRetries:           2,
		RetryInitialInterval: time.Millisecond,
		Clock:                clk,
	}
}

func TestIsDue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	oneShot := interfaces.Request{RequestID: "a"}
	periodic := interfaces.Request{RequestID: "b", Period: interfaces.NewPeriod(60)}

	assert.True(t, IsDue(oneShot, nil, now))
	assert.True(t, IsDue(periodic, nil, now))

	fresh := &interfaces.Response{Timestamp: uint64(now.Add(-30 * time.Second).UnixNano())}
	stale := &interfaces.Response{Timestamp: uint64(now.Add(-61 * time.Second).UnixNano())}
	future := &interfaces.Response{Timestamp: uint64(now.Add(time.Hour).UnixNano())}

	assert.False(t, IsDue(oneShot, stale, now))
	assert.False(t, IsDue(periodic, fresh, now))
	assert.True(t, IsDue(periodic, stale, now))
	assert.False(t, IsDue(periodic, future, now))

	exact := &interfaces.Response{Timestamp: uint64(now.Add(-60 * time.Second).UnixNano())}
	assert.True(t, IsDue(periodic, exact, now))

	// Very long periods must not wrap into "due on every poll"
	recent := &interfaces.Response{Timestamp: uint64(now.Add(-time.Second).UnixNano())}
	for _, period := range []uint64{3600, 10_000_000_000, math.MaxInt64, math.MaxUint64} {
		req := interfaces.Request{RequestID: "c", Period: interfaces.NewPeriod(period)}
		assert.False(t, IsDue(req, recent, now), "period %d", period)
	}
}

func TestAgentPollProvidesDueRequests(t *testing.T) {
	var hits atomic.Int32
	srv := priceServer(t, &hits)

	clk := clock.NewMock()
	clk.Set(time.Unix(1_700_000_000, 0))

	reg := newFakeRegistry(clk,
		interfaces.Request{RequestID: "eth", URI: srv.URL, JSONPath: "$.ethereum.usd", Period: interfaces.NewPeriod(60)},
		interfaces.Request{RequestID: "once", URI: srv.URL, JSONPath: "$.ethereum"},
	)
	agent := NewAgent(reg, NewHTTPFetcher(5*time.Second), testConfig(clk))
	ctx := context.Background()

	require.NoError(t, agent.Poll(ctx))

	resp, ok := reg.response("eth")
	require.True(t, ok)
	assert.Equal(t, "3000", resp.Result)
	resp, ok = reg.response("once")
	require.True(t, ok)
	assert.JSONEq(t, `{"usd":3000}`, resp.Result)
	assert.EqualValues(t, 2, hits.Load())

	// Nothing due yet
	clk.Add(30 * time.Second)
	require.NoError(t, agent.Poll(ctx))
	assert.EqualValues(t, 2, hits.Load())

	// Period elapsed for the periodic request only
	clk.Add(31 * time.Second)
	require.NoError(t, agent.Poll(ctx))
	assert.EqualValues(t, 3, hits.Load())
	_, provided := reg.counts()
	assert.Equal(t, 3, provided)
}

func TestAgentRetriesTransientSubmitFailures(t *testing.T) {
	var hits atomic.Int32
	srv := priceServer(t, &hits)
	clk := clock.NewMock()

	reg := newFakeRegistry(clk, interfaces.Request{RequestID: "eth", URI: srv.URL, JSONPath: "$.ethereum.usd"})
	reg.provideErr = []error{errors.New("connection reset"), nil}

	agent := NewAgent(reg, NewHTTPFetcher(5*time.Second), testConfig(clk))
	require.NoError(t, agent.Poll(context.Background()))

	_, ok := reg.response("eth")
	assert.True(t, ok)
}

func TestAgentDoesNotRetryUnauthorized(t *testing.T) {
	var hits atomic.Int32
	srv := priceServer(t, &hits)
	clk := clock.NewMock()

	unauthorized := &interfaces.UnauthorizedError{Caller: "p", Reason: "only providers are allowed to provide data"}
	reg := newFakeRegistry(clk, interfaces.Request{RequestID: "eth", URI: srv.URL, JSONPath: "$.ethereum.usd"})
	reg.provideErr = []error{unauthorized, nil}

	agent := NewAgent(reg, NewHTTPFetcher(5*time.Second), testConfig(clk))
	require.NoError(t, agent.Poll(context.Background()))

	_, ok := reg.response("eth")
	assert.False(t, ok)
	reg.mu.Lock()
	assert.Len(t, reg.provideErr, 1, "second attempt must not happen")
	reg.mu.Unlock()
}

func TestAgentSkipsMissingPath(t *testing.T) {
	var hits atomic.Int32
	srv := priceServer(t, &hits)
	clk := clock.NewMock()

	reg := newFakeRegistry(clk, interfaces.Request{RequestID: "x", URI: srv.URL, JSONPath: "$.nope"})
	agent := NewAgent(reg, NewHTTPFetcher(5*time.Second), testConfig(clk))
	require.NoError(t, agent.Poll(context.Background()))

	assert.EqualValues(t, 1, hits.Load(), "missing path is not retried")
	_, provided := reg.counts()
	assert.Zero(t, provided)
}

func TestAgentPollUninitializedRegistry(t *testing.T) {
	clk := clock.NewMock()
	reg := newFakeRegistry(clk)
	reg.listErr = interfaces.ErrNotInitialized

	agent := NewAgent(reg, NewHTTPFetcher(time.Second), testConfig(clk))
	assert.NoError(t, agent.Poll(context.Background()))

	reg.listErr = errors.New("boom")
	assert.Error(t, agent.Poll(context.Background()))
}

func TestAgentRunPollsOnTicks(t *testing.T) {
	clk := clock.NewMock()
	reg := newFakeRegistry(clk)
	agent := NewAgent(reg, NewHTTPFetcher(time.Second), testConfig(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx) }()

	require.Eventually(t, func() bool {
		lists, _ := reg.counts()
		return lists == 1
	}, time.Second, 5*time.Millisecond)

	clk.Add(time.Minute)
	require.Eventually(t, func() bool {
		lists, _ := reg.counts()
		return lists == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("agent did not stop")
	}
}
