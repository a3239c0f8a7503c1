package clients

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/data-exchange-registry/api/handlers"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/host"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/ruteri/data-exchange-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mode handlers.AuthMode) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registryHost, err := host.New(context.Background(), host.Config{
		Backend: storage.NewMemoryBackend("clients"),
		Log:     logger,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	handlers.NewHandler(registryHost, handlers.NewAuthenticator(mode, 0, nil, logger), logger).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newKeyClient(t *testing.T, baseURL string) *RegistryClient {
	t.Helper()
	key, _, err := cryptoutils.GenerateSigningKey()
	require.NoError(t, err)
	return NewRegistryClient(baseURL, key)
}

func TestRegistryClientEndToEnd(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, handlers.AuthModeSignature)

	owner := newKeyClient(t, srv.URL)
	requester := newKeyClient(t, srv.URL)
	provider := newKeyClient(t, srv.URL)
	reader := NewRegistryClient(srv.URL, nil)

	_, err := reader.GetAllRequests(ctx)
	assert.ErrorIs(t, err, interfaces.ErrNotInitialized)

	ownerID, err := owner.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner.Identity(), ownerID)

	_, err = requester.Init(ctx)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyInitialized)

	require.NoError(t, owner.AddRequesters(ctx, []string{requester.Identity().String()}))
	require.NoError(t, owner.AddProviders(ctx, []string{provider.Identity().String()}))

	err = requester.AddProviders(ctx, []string{requester.Identity().String()})
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	// Request ids are escaped on the way in and out
	id := "eth/usd price"
	req, err := requester.CreateRequest(ctx, id, "https://example.com/price", "$.usd", interfaces.NewPeriod(60))
	require.NoError(t, err)
	assert.Equal(t, id, req.RequestID)

	_, err = provider.CreateRequest(ctx, "other", "u", "p", nil)
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	missing, err := reader.GetDataResponse(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, missing)

	provided, err := provider.ProvideData(ctx, id, "3150.25")
	require.NoError(t, err)
	assert.NotZero(t, provided.Timestamp)

	_, err = requester.ProvideData(ctx, id, "0")
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	stored, err := reader.GetDataResponse(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, provided, *stored)

	fetched, err := reader.GetRequest(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "$.usd", fetched.JSONPath)

	none, err := reader.GetRequest(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, none)

	requests, err := reader.GetAllRequests(ctx)
	require.NoError(t, err)
	assert.Len(t, requests, 1)

	members, err := reader.Members(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner.Identity(), members.Owner)
	assert.Equal(t, []interfaces.Identity{requester.Identity()}, members.Requesters)
	assert.Equal(t, []interfaces.Identity{provider.Identity()}, members.Providers)

	// Reads need no key, writes do
	_, err = reader.Init(ctx)
	assert.Error(t, err)
}

func TestRegistryClientTrustedHeader(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, handlers.AuthModeTrustedHeader)

	owner := NewRegistryClient(srv.URL, nil).WithCallerHeader("owner.near")
	alice := NewRegistryClient(srv.URL, nil).WithCallerHeader("alice.near")

	_, err := owner.Init(ctx)
	require.NoError(t, err)
	require.NoError(t, owner.AddRequesters(ctx, []string{"alice.near"}))

	_, err = alice.CreateRequest(ctx, "r1", "u", "p", nil)
	require.NoError(t, err)

	_, err = alice.ProvideData(ctx, "r1", "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "only providers are allowed to provide data")
}

func TestRegistryClientUnauthenticated(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, handlers.AuthModeTrustedHeader)

	client := newKeyClient(t, srv.URL)
	_, err := client.Init(ctx)
	assert.ErrorIs(t, err, handlers.ErrUnauthenticated)
}
