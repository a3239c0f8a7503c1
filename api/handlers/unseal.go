package handlers

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// KeyVerifier checks a reconstructed state key, typically by decrypting the
// stored state with it.
type KeyVerifier func(ctx context.Context, key cryptoutils.StateKey) error

// UnsealHandler collects Shamir shares of the state key from a fixed set of
// admins. Once threshold shares are in and the combined key verifies, the
// key is released to WaitForKey.
type UnsealHandler struct {
	mu        sync.Mutex
	admins    map[interfaces.Identity]struct{}
	threshold int
	shares    map[interfaces.Identity][]byte
	key       *cryptoutils.StateKey
	done      chan struct{}

	verify KeyVerifier
	auth   *Authenticator
	log    *slog.Logger
}

func NewUnsealHandler(admins []interfaces.Identity, threshold int, verify KeyVerifier, auth *Authenticator, log *slog.Logger) (*UnsealHandler, error) {
	if threshold < 2 {
		return nil, errors.New("unseal threshold must be at least 2")
	}

	set := make(map[interfaces.Identity]struct{}, len(admins))
	for _, admin := range admins {
		set[cryptoutils.NormalizeIdentity(admin.String())] = struct{}{}
	}
	if threshold > len(set) {
		return nil, fmt.Errorf("unseal threshold %d exceeds the %d admins", threshold, len(set))
	}

	return &UnsealHandler{
		admins:    set,
		threshold: threshold,
		shares:    make(map[interfaces.Identity][]byte),
		done:      make(chan struct{}),
		verify:    verify,
		auth:      auth,
		log:       log,
	}, nil
}

// RegisterRoutes mounts the admin unseal API.
//
//	GET  /admin/unseal/status
//	POST /admin/unseal/share
func (h *UnsealHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/unseal", func(r chi.Router) {
		r.Get("/status", h.HandleStatus)
		r.With(h.auth.Middleware).Post("/share", h.HandleSubmitShare)
	})
}

// WaitForKey blocks until the state key is reconstructed or ctx is done.
func (h *UnsealHandler) WaitForKey(ctx context.Context) (cryptoutils.StateKey, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return *h.key, nil
	case <-ctx.Done():
		return cryptoutils.StateKey{}, ctx.Err()
	}
}

func (h *UnsealHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	status := h.statusLocked()
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, status)
}

func (h *UnsealHandler) HandleSubmitShare(w http.ResponseWriter, r *http.Request) {
	admin, _ := CallerFromContext(r.Context())
	if _, ok := h.admins[admin]; !ok {
		h.fail(w, r, &interfaces.UnauthorizedError{Caller: admin, Reason: "only unseal admins may submit shares"})
		return
	}

	var body api.UnsealShareRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	share, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(body.Share), "0x"))
	if err != nil || len(share) == 0 {
		h.fail(w, r, badRequest(errors.New("share must be non-empty hex")))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.key != nil {
		h.fail(w, r, &RequestError{StatusCode: http.StatusConflict, Err: errors.New("state key already reconstructed")})
		return
	}

	h.shares[admin] = share
	h.log.Info("Unseal share accepted",
		slog.String("admin", admin.String()),
		slog.Int("submitted", len(h.shares)),
		slog.Int("threshold", h.threshold))

	if len(h.shares) >= h.threshold {
		if err := h.reconstructLocked(r.Context()); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.statusLocked())
}

// reconstructLocked combines the collected shares. If they do not yield the
// state key every share is discarded so admins can start over.
func (h *UnsealHandler) reconstructLocked(ctx context.Context) error {
	shares := make([][]byte, 0, len(h.shares))
	for _, share := range h.shares {
		shares = append(shares, share)
	}

	key, err := cryptoutils.CombineStateKeyShares(shares)
	if err == nil && h.verify != nil {
		err = h.verify(ctx, key)
		if errors.Is(err, interfaces.ErrBackendUnavailable) {
			return fmt.Errorf("could not verify state key: %w", err)
		}
	}
	if err != nil {
		h.shares = make(map[interfaces.Identity][]byte)
		h.log.Warn("Submitted shares do not reconstruct the state key, discarding them", "err", err)
		return badRequest(fmt.Errorf("shares do not reconstruct the state key: %w", err))
	}

	h.key = &key
	close(h.done)
	h.log.Info("State key reconstructed")
	return nil
}

func (h *UnsealHandler) statusLocked() api.UnsealStatus {
	return api.UnsealStatus{
		Sealed:    h.key == nil,
		Threshold: h.threshold,
		Submitted: len(h.shares),
	}
}

func (h *UnsealHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqErr := classify(err)
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Unseal request failed", slog.String("path", r.URL.Path), "err", err)
	}
	writeError(w, reqErr)
}
