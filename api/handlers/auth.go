package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// AuthMode selects how the caller identity of mutating requests is established.
type AuthMode string

const (
	// AuthModeSignature recovers the caller from a request signature.
	AuthModeSignature AuthMode = "signature"

	// AuthModeTrustedHeader takes the caller from the X-Registry-Caller
	// header. Only safe behind a proxy that authenticates callers and
	// overwrites the header.
	AuthModeTrustedHeader AuthMode = "header"
)

// ErrUnauthenticated is returned when no caller identity can be established.
var ErrUnauthenticated = errors.New("unauthenticated")

// ParseAuthMode validates a mode name.
func ParseAuthMode(s string) (AuthMode, error) {
	switch AuthMode(s) {
	case AuthModeSignature, AuthModeTrustedHeader:
		return AuthMode(s), nil
	default:
		return "", fmt.Errorf("unknown auth mode %q", s)
	}
}

type callerKey struct{}

// WithCaller stores the authenticated caller in ctx.
func WithCaller(ctx context.Context, caller interfaces.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by the authentication middleware.
func CallerFromContext(ctx context.Context) (interfaces.Identity, bool) {
	caller, ok := ctx.Value(callerKey{}).(interfaces.Identity)
	return caller, ok && caller != ""
}

// Authenticator is the middleware establishing the caller of mutating routes.
type Authenticator struct {
	mode    AuthMode
	maxSkew time.Duration
	clock   clock.Clock
	log     *slog.Logger
}

// NewAuthenticator creates an authenticator. A zero maxSkew means
// cryptoutils.DefaultMaxClockSkew; a nil clock means the wall clock.
func NewAuthenticator(mode AuthMode, maxSkew time.Duration, clk clock.Clock, log *slog.Logger) *Authenticator {
	if maxSkew == 0 {
		maxSkew = cryptoutils.DefaultMaxClockSkew
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Authenticator{
		mode:    mode,
		maxSkew: maxSkew,
		clock:   clk,
		log:     log,
	}
}

// Middleware rejects requests without a valid caller and stores the caller
// in the request context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.authenticate(r)
		if err != nil {
			a.log.Debug("Rejected unauthenticated request",
				slog.String("path", r.URL.Path),
				"err", err)
			writeError(w, &RequestError{StatusCode: http.StatusUnauthorized, Err: err})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (interfaces.Identity, error) {
	switch a.mode {
	case AuthModeTrustedHeader:
		caller := r.Header.Get(cryptoutils.CallerHeader)
		if caller == "" {
			return "", fmt.Errorf("%w: missing %s header", ErrUnauthenticated, cryptoutils.CallerHeader)
		}
		return cryptoutils.NormalizeIdentity(caller), nil

	default:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			return "", fmt.Errorf("%w: failed to read body: %v", ErrUnauthenticated, err)
		}
		if len(body) > maxBodySize {
			return "", fmt.Errorf("%w: request body too large", ErrUnauthenticated)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		caller, err := cryptoutils.VerifyRequest(
			r.Header.Get(cryptoutils.SignatureHeader),
			r.Header.Get(cryptoutils.TimestampHeader),
			r.Method,
			r.URL.EscapedPath(),
			body,
			a.clock.Now(),
			a.maxSkew,
		)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return caller, nil
	}
}
