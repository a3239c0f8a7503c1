package handlers

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unsealFixture struct {
	handler *UnsealHandler
	router  http.Handler
	admins  []*ecdsa.PrivateKey
	key     cryptoutils.StateKey
	shares  [][]byte
}

func newUnsealFixture(t *testing.T, verify KeyVerifier) *unsealFixture {
	t.Helper()

	f := &unsealFixture{}
	for i := range f.key {
		f.key[i] = byte(i * 7)
	}
	var err error
	f.shares, err = cryptoutils.SplitStateKey(f.key, 3, 2)
	require.NoError(t, err)

	ids := make([]interfaces.Identity, 0, 3)
	for range 3 {
		key, _, err := cryptoutils.GenerateSigningKey()
		require.NoError(t, err)
		f.admins = append(f.admins, key)
		ids = append(ids, cryptoutils.SigningIdentity(key))
	}

	clk := clock.NewMock()
	clk.Set(testNow)
	auth := NewAuthenticator(AuthModeSignature, 0, clk, testLogger())

	f.handler, err = NewUnsealHandler(ids, 2, verify, auth, testLogger())
	require.NoError(t, err)

	r := chi.NewRouter()
	f.handler.RegisterRoutes(r)
	f.router = r
	return f
}

func (f *unsealFixture) submit(t *testing.T, admin *ecdsa.PrivateKey, share []byte) (int, api.UnsealStatus) {
	t.Helper()
	req := signedRequest(t, admin, http.MethodPost, "/admin/unseal/share", api.UnsealShareRequest{Share: hex.EncodeToString(share)})
	rr := serve(f.router, req)

	var status api.UnsealStatus
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	}
	return rr.Code, status
}

func TestUnsealHandlerReconstructsKey(t *testing.T) {
	f := newUnsealFixture(t, nil)

	code, status := f.submit(t, f.admins[0], f.shares[0])
	require.Equal(t, http.StatusOK, code)
	assert.True(t, status.Sealed)
	assert.Equal(t, 1, status.Submitted)

	// Resubmission replaces the admin's share
	code, status = f.submit(t, f.admins[0], f.shares[0])
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, status.Submitted)

	code, status = f.submit(t, f.admins[2], f.shares[2])
	require.Equal(t, http.StatusOK, code)
	assert.False(t, status.Sealed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	key, err := f.handler.WaitForKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.key, key)

	code, _ = f.submit(t, f.admins[1], f.shares[1])
	assert.Equal(t, http.StatusConflict, code)
}

func TestUnsealHandlerRejectsNonAdmins(t *testing.T) {
	f := newUnsealFixture(t, nil)

	outsider, _, err := cryptoutils.GenerateSigningKey()
	require.NoError(t, err)

	code, _ := f.submit(t, outsider, f.shares[0])
	assert.Equal(t, http.StatusForbidden, code)

	rr := serve(f.router, headerRequest(t, "anyone", http.MethodPost, "/admin/unseal/share", api.UnsealShareRequest{Share: "00"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnsealHandlerDiscardsWrongShares(t *testing.T) {
	verify := func(ctx context.Context, key cryptoutils.StateKey) error {
		var want cryptoutils.StateKey
		for i := range want {
			want[i] = byte(i * 7)
		}
		if key != want {
			return cryptoutils.ErrStateDecryption
		}
		return nil
	}
	f := newUnsealFixture(t, verify)

	other, err := cryptoutils.SplitStateKey(cryptoutils.StateKey{1}, 3, 2)
	require.NoError(t, err)

	code, _ := f.submit(t, f.admins[0], f.shares[0])
	require.Equal(t, http.StatusOK, code)
	code, _ = f.submit(t, f.admins[1], other[1])
	assert.Equal(t, http.StatusBadRequest, code)

	rr := serve(f.router, signedRequest(t, f.admins[0], http.MethodGet, "/admin/unseal/status", nil))
	var status api.UnsealStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.True(t, status.Sealed)
	assert.Zero(t, status.Submitted)

	code, _ = f.submit(t, f.admins[1], f.shares[1])
	require.Equal(t, http.StatusOK, code)
	code, status = f.submit(t, f.admins[2], f.shares[2])
	require.Equal(t, http.StatusOK, code)
	assert.False(t, status.Sealed)
}

func TestUnsealHandlerKeepsSharesWhenBackendIsDown(t *testing.T) {
	verify := func(ctx context.Context, key cryptoutils.StateKey) error {
		return interfaces.ErrBackendUnavailable
	}
	f := newUnsealFixture(t, verify)

	code, _ := f.submit(t, f.admins[0], f.shares[0])
	require.Equal(t, http.StatusOK, code)
	code, _ = f.submit(t, f.admins[1], f.shares[1])
	assert.Equal(t, http.StatusInternalServerError, code)

	f.handler.mu.Lock()
	assert.Len(t, f.handler.shares, 2)
	f.handler.mu.Unlock()
}

func TestNewUnsealHandlerValidation(t *testing.T) {
	auth := NewAuthenticator(AuthModeSignature, 0, nil, testLogger())

	_, err := NewUnsealHandler([]interfaces.Identity{"a", "b"}, 1, nil, auth, testLogger())
	assert.Error(t, err)

	_, err = NewUnsealHandler([]interfaces.Identity{"a", "b"}, 3, nil, auth, testLogger())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := NewUnsealHandler([]interfaces.Identity{"a", "b"}, 2, nil, auth, testLogger())
	require.NoError(t, err)
	_, err = h.WaitForKey(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}
