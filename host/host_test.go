package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/ruteri/data-exchange-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner = interfaces.Identity("owner.near")
	alice = interfaces.Identity("alice.near")
	bob   = interfaces.Identity("bob.near")
	eve   = interfaces.Identity("eve.near")
)

func newTestHost(t *testing.T, backend interfaces.StateBackend, clk clock.Clock) *Host {
	t.Helper()
	h, err := New(context.Background(), Config{
		Backend: backend,
		Clock:   clk,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return h
}

func setupRoles(t *testing.T, h *Host) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.Initialize(ctx, owner))
	require.NoError(t, h.AddRequesters(ctx, owner, []interfaces.Identity{alice}))
	require.NoError(t, h.AddProviders(ctx, owner, []interfaces.Identity{bob}))
}

func TestHostScenario(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Unix(0, 1000))
	h := newTestHost(t, storage.NewMemoryBackend("scenario"), clk)

	_, err := h.GetAllRequests(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotInitialized)

	setupRoles(t, h)

	req := interfaces.Request{URI: "https://example.com/price", JSONPath: "$.usd"}
	require.NoError(t, h.CreateRequest(ctx, alice, "r1", req))

	resp, err := h.ProvideData(ctx, bob, "r1", "42")
	require.NoError(t, err)
	assert.Equal(t, interfaces.Response{Result: "42", Timestamp: 1000}, resp)

	stored, err := h.GetDataResponse(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, resp, *stored)

	err = h.CreateRequest(ctx, eve, "r2", req)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	_, err = h.ProvideData(ctx, alice, "r1", "0")
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	missing, err := h.GetDataResponse(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	requests, err := h.GetAllRequests(ctx)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "r1", requests[0].RequestID)

	members, err := h.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, members.Owner)
	assert.Equal(t, []interfaces.Identity{alice}, members.Requesters)
	assert.Equal(t, []interfaces.Identity{bob}, members.Providers)

	assert.ErrorIs(t, h.Initialize(ctx, eve), interfaces.ErrAlreadyInitialized)
}

func TestHostRestoresState(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend("restore")
	clk := clock.NewMock()
	clk.Set(time.Unix(100, 0))

	h := newTestHost(t, backend, clk)
	setupRoles(t, h)
	require.NoError(t, h.CreateRequest(ctx, alice, "r1", interfaces.Request{URI: "u", JSONPath: "p", Period: interfaces.NewPeriod(60)}))
	_, err := h.ProvideData(ctx, bob, "r1", "first")
	require.NoError(t, err)

	// A restarted host with a clock behind the stored data keeps timestamps monotonic
	clk.Set(time.Unix(50, 0))
	restarted := newTestHost(t, backend, clk)
	assert.True(t, restarted.Initialized())

	req, err := restarted.GetRequest(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, req)
	require.NotNil(t, req.Period)
	assert.Equal(t, uint64(60), *req.Period)

	resp, err := restarted.ProvideData(ctx, bob, "r1", "second")
	require.NoError(t, err)
	assert.Equal(t, uint64(time.Unix(100, 0).UnixNano()), resp.Timestamp)

	assert.ErrorIs(t, restarted.Initialize(ctx, eve), interfaces.ErrAlreadyInitialized)
}

func TestHostTimestampsNonDecreasing(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Set(time.Unix(10, 0))
	h := newTestHost(t, nil, clk)
	setupRoles(t, h)

	first, err := h.ProvideData(ctx, bob, "r1", "a")
	require.NoError(t, err)

	clk.Set(time.Unix(5, 0))
	second, err := h.ProvideData(ctx, bob, "r1", "b")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, second.Timestamp, first.Timestamp)

	clk.Add(time.Minute)
	third, err := h.ProvideData(ctx, bob, "r1", "c")
	require.NoError(t, err)
	assert.Equal(t, uint64(time.Unix(65, 0).UnixNano()), third.Timestamp)
}

func TestHostRollsBackOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend("rollback")
	h := newTestHost(t, backend, clock.NewMock())
	setupRoles(t, h)

	backend.SetAvailable(false)
	err := h.CreateRequest(ctx, alice, "r1", interfaces.Request{URI: "u", JSONPath: "p"})
	assert.ErrorIs(t, err, ErrPersistFailed)

	backend.SetAvailable(true)
	req, err := h.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, req, "failed mutation must not be visible")

	require.NoError(t, h.CreateRequest(ctx, alice, "r1", interfaces.Request{URI: "u", JSONPath: "p"}))
	req, err = h.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, req)
}

func TestHostMultiBackendOutageKeepsCommittedState(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	primary := storage.NewMemoryBackend("primary")
	secondary := storage.NewMemoryBackend("secondary")
	backend := storage.NewMultiStorageBackend([]interfaces.StateBackend{primary, secondary}, logger)

	clk := clock.NewMock()
	clk.Set(time.Unix(100, 0))
	h := newTestHost(t, backend, clk)
	setupRoles(t, h)
	require.NoError(t, h.CreateRequest(ctx, alice, "r1", interfaces.Request{URI: "u", JSONPath: "p"}))

	primary.SetAvailable(false)
	err := h.CreateRequest(ctx, alice, "r2", interfaces.Request{URI: "u", JSONPath: "p"})
	assert.ErrorIs(t, err, ErrPersistFailed)
	primary.SetAvailable(true)

	// The primary is stale but still holds every acknowledged mutation
	reloaded := newTestHost(t, backend, clk)
	req, err := reloaded.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.NotNil(t, req)
	req, err = reloaded.GetRequest(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, req)

	clk.Add(time.Second)
	require.NoError(t, h.CreateRequest(ctx, alice, "r3", interfaces.Request{URI: "u", JSONPath: "p"}))
	_, err = h.ProvideData(ctx, bob, "r3", "42")
	require.NoError(t, err)

	restarted := newTestHost(t, backend, clk)
	requests, err := restarted.GetAllRequests(ctx)
	require.NoError(t, err)
	var ids []string
	for _, req := range requests {
		ids = append(ids, req.RequestID)
	}
	assert.ElementsMatch(t, []string{"r1", "r3"}, ids)

	resp, err := restarted.GetDataResponse(ctx, "r3")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "42", resp.Result)
}

func TestHostRollsBackFailedInit(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend("init")
	h := newTestHost(t, backend, clock.NewMock())

	backend.SetAvailable(false)
	assert.ErrorIs(t, h.Initialize(ctx, owner), ErrPersistFailed)
	assert.False(t, h.Initialized())

	backend.SetAvailable(true)
	require.NoError(t, h.Initialize(ctx, eve))
	members, err := h.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, eve, members.Owner)
}

func TestHostBootstrapOwner(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryBackend("bootstrap")
	cfg := Config{
		Backend:        backend,
		Clock:          clock.NewMock(),
		BootstrapOwner: owner,
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	h, err := New(ctx, cfg)
	require.NoError(t, err)
	members, err := h.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, members.Owner)
	require.NoError(t, h.AddProviders(ctx, owner, []interfaces.Identity{bob}))

	// Existing state wins over the bootstrap owner
	cfg.BootstrapOwner = eve
	h, err = New(ctx, cfg)
	require.NoError(t, err)
	members, err = h.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, members.Owner)
	assert.Equal(t, []interfaces.Identity{bob}, members.Providers)
}

func TestHostLoadFailures(t *testing.T) {
	ctx := context.Background()

	unavailable := storage.NewMemoryBackend("down")
	unavailable.SetAvailable(false)
	_, err := New(ctx, Config{Backend: unavailable, Log: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	corrupted := storage.NewMemoryBackend("corrupted")
	_, err = corrupted.Save(ctx, []byte("garbage"))
	require.NoError(t, err)
	_, err = New(ctx, Config{Backend: corrupted, Log: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)
}

func TestHostRejectsEmptyRequestID(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, nil, clock.NewMock())
	setupRoles(t, h)

	assert.ErrorIs(t, h.CreateRequest(ctx, alice, "", interfaces.Request{}), interfaces.ErrInvalidRequestID)
	_, err := h.ProvideData(ctx, bob, "", "x")
	assert.ErrorIs(t, err, interfaces.ErrInvalidRequestID)
}

func TestHostConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	h := newTestHost(t, storage.NewMemoryBackend("concurrent"), clock.New())
	setupRoles(t, h)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- h.CreateRequest(ctx, alice, fmt.Sprintf("r%d", i), interfaces.Request{URI: "u", JSONPath: "p"})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := h.ProvideData(ctx, bob, fmt.Sprintf("r%d", i), "v")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.False(t, errors.Is(err, ErrPersistFailed))
		require.NoError(t, err)
	}

	requests, err := h.GetAllRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, requests, 50)
}
