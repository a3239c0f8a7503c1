package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/ruteri/data-exchange-registry/metrics"
	"github.com/ruteri/data-exchange-registry/registry"
)

var _ interfaces.RegistryService = (*Host)(nil)

// ErrPersistFailed is returned when a mutation could not be saved. The
// mutation is rolled back before the error is returned.
var ErrPersistFailed = errors.New("failed to persist registry state")

// Config configures a Host.
type Config struct {
	// Backend persists snapshots. Nil keeps the registry in memory only.
	Backend interfaces.StateBackend

	// Clock supplies the block time. Defaults to the wall clock.
	Clock clock.Clock

	// BootstrapOwner, when set and no state exists yet, initializes the
	// registry with this owner at startup.
	BootstrapOwner interfaces.Identity

	Metrics *metrics.RegistryMetrics
	Log     *slog.Logger
}

// Host runs a single registry: it applies one call at a time, supplies the
// caller identity and the time, and persists every successful mutation
// before the call returns.
type Host struct {
	mu sync.Mutex

	reg       *registry.Registry
	lastSaved []byte

	// lastTimestamp keeps response timestamps non-decreasing even if the
	// wall clock steps backwards.
	lastTimestamp uint64

	backend interfaces.StateBackend
	clock   clock.Clock
	metrics *metrics.RegistryMetrics
	log     *slog.Logger
}

// New loads the registry state from cfg.Backend, or starts uninitialized
// when there is none.
func New(ctx context.Context, cfg Config) (*Host, error) {
	h := &Host{
		reg:     registry.NewRegistry(),
		backend: cfg.Backend,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		log:     cfg.Log,
	}
	if h.clock == nil {
		h.clock = clock.New()
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	if err := h.load(ctx); err != nil {
		return nil, err
	}

	if cfg.BootstrapOwner != "" && !h.reg.Initialized() {
		h.log.Info("Bootstrapping registry", slog.String("owner", cfg.BootstrapOwner.String()))
		if err := h.Initialize(ctx, cfg.BootstrapOwner); err != nil {
			return nil, fmt.Errorf("failed to bootstrap registry: %w", err)
		}
	}

	return h, nil
}

func (h *Host) load(ctx context.Context) error {
	if h.backend == nil {
		h.log.Warn("No state backend configured, registry state will not survive a restart")
		return nil
	}

	data, err := h.backend.Load(ctx)
	if errors.Is(err, interfaces.ErrStateNotFound) {
		h.log.Info("No stored registry state, starting uninitialized",
			slog.String("backend", h.backend.Name()))
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load registry state: %w", err)
	}

	reg, err := registry.DecodeState(data)
	if err != nil {
		return fmt.Errorf("failed to decode registry state: %w", err)
	}

	h.reg = reg
	h.lastSaved = data
	h.lastTimestamp = reg.LatestTimestamp()
	h.metrics.SetSizes(reg.RequestCount(), reg.ResponseCount())

	members := reg.Members()
	h.log.Info("Loaded registry state",
		slog.String("backend", h.backend.Name()),
		slog.String("owner", members.Owner.String()),
		slog.Int("requesters", len(members.Requesters)),
		slog.Int("providers", len(members.Providers)),
		slog.Int("requests", reg.RequestCount()))
	return nil
}

// Initialize performs the registry's one-time construction with caller as owner.
func (h *Host) Initialize(ctx context.Context, caller interfaces.Identity) error {
	return h.mutate(ctx, "init", caller, func(env interfaces.Env) error {
		return h.reg.Init(env)
	})
}

func (h *Host) AddRequesters(ctx context.Context, caller interfaces.Identity, ids []interfaces.Identity) error {
	return h.mutate(ctx, "add_requesters", caller, func(env interfaces.Env) error {
		return h.reg.AddRequesters(env, ids)
	})
}

func (h *Host) AddProviders(ctx context.Context, caller interfaces.Identity, ids []interfaces.Identity) error {
	return h.mutate(ctx, "add_providers", caller, func(env interfaces.Env) error {
		return h.reg.AddProviders(env, ids)
	})
}

func (h *Host) CreateRequest(ctx context.Context, caller interfaces.Identity, id interfaces.RequestID, req interfaces.Request) error {
	if id == "" {
		return interfaces.ErrInvalidRequestID
	}
	return h.mutate(ctx, "create_request", caller, func(env interfaces.Env) error {
		return h.reg.CreateRequest(env, id, req)
	})
}

func (h *Host) ProvideData(ctx context.Context, caller interfaces.Identity, id interfaces.RequestID, result string) (interfaces.Response, error) {
	if id == "" {
		return interfaces.Response{}, interfaces.ErrInvalidRequestID
	}

	var resp interfaces.Response
	err := h.mutate(ctx, "provide_data", caller, func(env interfaces.Env) error {
		var err error
		resp, err = h.reg.ProvideData(env, id, result)
		return err
	})
	if err != nil {
		return interfaces.Response{}, err
	}
	return resp, nil
}

func (h *Host) GetDataResponse(ctx context.Context, id interfaces.RequestID) (*interfaces.Response, error) {
	var out *interfaces.Response
	err := h.view("get_data_response", func() {
		if resp, ok := h.reg.GetDataResponse(id); ok {
			out = &resp
		}
	})
	return out, err
}

func (h *Host) GetAllRequests(ctx context.Context) ([]interfaces.Request, error) {
	var out []interfaces.Request
	err := h.view("get_all_requests", func() {
		out = h.reg.GetAllRequests()
	})
	return out, err
}

func (h *Host) GetRequest(ctx context.Context, id interfaces.RequestID) (*interfaces.Request, error) {
	var out *interfaces.Request
	err := h.view("get_request", func() {
		if req, ok := h.reg.GetRequest(id); ok {
			out = &req
		}
	})
	return out, err
}

func (h *Host) Members(ctx context.Context) (interfaces.Membership, error) {
	var out interfaces.Membership
	err := h.view("members", func() {
		out = h.reg.Members()
	})
	return out, err
}

// Initialized reports whether the registry has been constructed.
func (h *Host) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.Initialized()
}

// view runs a read under the lock.
func (h *Host) view(op string, fn func()) error {
	start := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if !h.reg.Initialized() {
		err = interfaces.ErrNotInitialized
	} else {
		fn()
	}

	h.metrics.ObserveOperation(op, err, time.Since(start))
	return err
}

// mutate applies fn under the lock and persists the result. The registry
// leaves its state untouched when fn fails; when saving fails the previous
// snapshot is restored, so either both the in-memory and the stored state
// change or neither does.
func (h *Host) mutate(ctx context.Context, op string, caller interfaces.Identity, fn func(env interfaces.Env) error) (err error) {
	start := time.Now()
	log := h.log.With(slog.String("operation", op), slog.String("caller", caller.String()))

	h.mu.Lock()
	defer h.mu.Unlock()
	defer func() {
		h.metrics.ObserveOperation(op, err, time.Since(start))
	}()

	env := interfaces.Env{
		Caller:    caller,
		Timestamp: h.nextTimestamp(),
	}

	if err := fn(env); err != nil {
		log.Debug("Registry call rejected", "err", err)
		return err
	}

	if err := h.persist(ctx); err != nil {
		h.metrics.PersistFailed()
		log.Error("Failed to persist registry state, rolling back", "err", err)
		if rbErr := h.rollback(); rbErr != nil {
			log.Error("Failed to roll back registry state", "err", rbErr)
		}
		return fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	h.lastTimestamp = env.Timestamp
	h.metrics.SetSizes(h.reg.RequestCount(), h.reg.ResponseCount())
	log.Debug("Registry call applied")
	return nil
}

func (h *Host) persist(ctx context.Context) error {
	data, err := registry.EncodeState(h.reg)
	if err != nil {
		return err
	}

	if h.backend != nil {
		id, err := h.backend.Save(ctx, data)
		if err != nil {
			return err
		}
		h.log.Debug("Saved registry state", slog.String("content_id", id.Short()))
	}

	h.lastSaved = data
	return nil
}

func (h *Host) rollback() error {
	if h.lastSaved == nil {
		h.reg = registry.NewRegistry()
		return nil
	}

	reg, err := registry.DecodeState(h.lastSaved)
	if err != nil {
		return err
	}
	h.reg = reg
	return nil
}

// nextTimestamp returns the current time in Unix nanoseconds, never less
// than the last committed timestamp.
func (h *Host) nextTimestamp() uint64 {
	now := h.clock.Now().UnixNano()
	if now < 0 {
		now = 0
	}
	return max(uint64(now), h.lastTimestamp)
}
