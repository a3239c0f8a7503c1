package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/data-exchange-registry/interfaces"
)

// MultiStorageBackend implements interfaces.StateBackend using multiple backends with fallback
type MultiStorageBackend struct {
	backends []interfaces.StateBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.StateBackend, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Load returns the snapshot from the first available backend that has one.
// ErrStateNotFound is only returned when every available backend reported
// it; any other failure is surfaced so that an outage is never mistaken for
// an empty registry.
func (m *MultiStorageBackend) Load(ctx context.Context) ([]byte, error) {
	start := time.Now()
	var errs []error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := backend.Load(ctx)
		if err == nil {
			m.log.Info("Loaded state",
				slog.String("backend_name", backend.Name()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrStateNotFound) {
			notFound++
			continue
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to load from backend",
			slog.String("backend_name", backend.Name()),
			"err", err)
	}

	if len(errs) == 0 && notFound > 0 {
		return nil, interfaces.ErrStateNotFound
	}

	m.log.Error("All backends failed to load state",
		slog.Int("failed_backends", len(errs)),
		slog.Int("empty_backends", notFound),
		slog.Duration("duration", time.Since(start)))

	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}
	return nil, fmt.Errorf("all backends failed to load state: %w", errors.Join(errs...))
}

// Save stores data to every backend. It fails if any backend is unavailable
// or rejects the snapshot, so a reported success means Load returns this
// snapshot whichever backend it is read from. Backends that did accept it
// are left as they are; the next successful Save overwrites them.
func (m *MultiStorageBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	start := time.Now()
	var result interfaces.ContentID
	var saved int
	var errs []error

	if len(m.backends) == 0 {
		return interfaces.ContentID{}, interfaces.ErrBackendUnavailable
	}

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Warn("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		id, err := backend.Save(ctx, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to save to backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if saved == 0 {
			result = id
		} else if !result.Equal(id) {
			m.log.Warn("Inconsistent content IDs from backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_id", result.String()),
				slog.String("actual_id", id.String()))
		}
		saved++
	}

	if len(errs) > 0 {
		m.log.Error("Failed to save state to every backend",
			slog.Int("saved_backends", saved),
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return interfaces.ContentID{}, fmt.Errorf("failed to save state to %d of %d backends: %w",
			len(errs), len(m.backends), errors.Join(errs...))
	}

	m.log.Debug("Saved state",
		slog.Int("backends", saved),
		slog.String("content_id", result.Short()),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

// Available checks if any backend is available for reading
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns the URI of this backend
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
