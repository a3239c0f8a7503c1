package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/ruteri/data-exchange-registry/metrics"
)

// RegistryAPI is the part of the registry the agent needs.
// clients.RegistryClient implements it.
type RegistryAPI interface {
	GetAllRequests(ctx context.Context) ([]interfaces.Request, error)
	GetDataResponse(ctx context.Context, id interfaces.RequestID) (*interfaces.Response, error)
	ProvideData(ctx context.Context, id interfaces.RequestID, result string) (interfaces.Response, error)
}

// Config configures an Agent.
type Config struct {
	// PollInterval between request list scans.
	PollInterval time.Duration

	// Workers bounds concurrent fetches.
	Workers int

	// MaxRetries per request and poll, for transient failures.
	MaxRetries uint64

	// RetryInitialInterval is the first backoff delay.
	RetryInitialInterval time.Duration

	Clock   clock.Clock
	Metrics *metrics.ProviderMetrics
	Log     *slog.Logger
}

// Agent is an off-chain data provider: it scans the registry for requests
// that need a (fresh) response, fetches their resources, extracts the
// requested value and submits it.
type Agent struct {
	registry RegistryAPI
	fetcher  Fetcher
	cfg      Config
	log      *slog.Logger
}

func NewAgent(registry RegistryAPI, fetcher Fetcher, cfg Config) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Agent{
		registry: registry,
		fetcher:  fetcher,
		cfg:      cfg,
		log:      cfg.Log,
	}
}

// Run polls until ctx is done. Poll failures are logged and retried on the
// next tick.
func (a *Agent) Run(ctx context.Context) error {
	ticker := a.cfg.Clock.Ticker(a.cfg.PollInterval)
	defer ticker.Stop()

	a.log.Info("Provider agent started",
		slog.Duration("poll_interval", a.cfg.PollInterval),
		slog.Int("workers", a.cfg.Workers))

	for {
		if err := a.Poll(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("Poll failed", "err", err)
		}

		select {
		case <-ctx.Done():
			a.log.Info("Provider agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll scans the request list once and serves every due request.
func (a *Agent) Poll(ctx context.Context) error {
	requests, err := a.registry.GetAllRequests(ctx)
	if errors.Is(err, interfaces.ErrNotInitialized) {
		a.log.Debug("Registry not initialized yet")
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to list requests: %w", err)
	}

	sem := make(chan struct{}, a.cfg.Workers)
	var wg sync.WaitGroup

	for _, req := range requests {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(req interfaces.Request) {
			defer wg.Done()
			defer func() { <-sem }()
			a.serve(ctx, req)
		}(req)
	}

	wg.Wait()
	a.cfg.Metrics.Polled()
	return nil
}

func (a *Agent) serve(ctx context.Context, req interfaces.Request) {
	log := a.log.With(slog.String("request_id", req.RequestID))

	resp, err := a.registry.GetDataResponse(ctx, req.RequestID)
	if err != nil {
		log.Warn("Failed to read current response", "err", err)
		return
	}

	if !IsDue(req, resp, a.cfg.Clock.Now()) {
		return
	}

	result, err := a.fetchWithRetry(ctx, req)
	a.cfg.Metrics.Fetched(err)
	if err != nil {
		log.Warn("Failed to fetch resource",
			slog.String("uri", req.URI),
			"err", err)
		return
	}

	stored, err := a.submitWithRetry(ctx, req.RequestID, result)
	a.cfg.Metrics.Submitted(err)
	if err != nil {
		log.Error("Failed to provide data", "err", err)
		return
	}

	log.Info("Provided data",
		slog.String("result", result),
		slog.Uint64("timestamp", stored.Timestamp))
}

func (a *Agent) fetchWithRetry(ctx context.Context, req interfaces.Request) (string, error) {
	var result string
	err := backoff.Retry(func() error {
		body, err := a.fetcher.Fetch(ctx, req.URI)
		if err != nil {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) && !statusErr.Temporary() {
				return backoff.Permanent(err)
			}
			return err
		}

		result, err = Extract(body, req.JSONPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, a.backoff(ctx))
	return result, err
}

func (a *Agent) submitWithRetry(ctx context.Context, id interfaces.RequestID, result string) (interfaces.Response, error) {
	var stored interfaces.Response
	err := backoff.Retry(func() error {
		var err error
		stored, err = a.registry.ProvideData(ctx, id, result)
		if errors.Is(err, interfaces.ErrUnauthorized) || errors.Is(err, interfaces.ErrNotInitialized) {
			return backoff.Permanent(err)
		}
		return err
	}, a.backoff(ctx))
	return stored, err
}

func (a *Agent) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.RetryInitialInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, a.cfg.MaxRetries), ctx)
}

// IsDue reports whether req needs a response at now: it has none yet, or
// its period has elapsed since the stored one. Requests without a period
// are served once.
func IsDue(req interfaces.Request, resp *interfaces.Response, now time.Time) bool {
	if resp == nil {
		return true
	}
	if req.Period == nil {
		return false
	}

	nowNanos := now.UnixNano()
	if nowNanos < 0 || uint64(nowNanos) < resp.Timestamp {
		return false
	}
	// Periods are whole seconds and may exceed the time.Duration range.
	elapsed := (uint64(nowNanos) - resp.Timestamp) / uint64(time.Second)
	return elapsed >= *req.Period
}
