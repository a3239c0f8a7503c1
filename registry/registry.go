package registry

import (
	"maps"
	"slices"

	"github.com/ruteri/data-exchange-registry/interfaces"
)

// Registry holds the owner, the two role sets and the request/response maps.
// The zero value is an uninitialized registry; Init moves it to the
// initialized phase exactly once.
//
// Registry performs no locking. The host must apply one call at a time.
type Registry struct {
	initialized bool
	owner       interfaces.Identity
	requesters  map[interfaces.Identity]struct{}
	providers   map[interfaces.Identity]struct{}
	requests    map[interfaces.RequestID]interfaces.Request
	responses   map[interfaces.RequestID]interfaces.Response
}

// NewRegistry returns an uninitialized registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Initialized reports whether Init has succeeded.
func (r *Registry) Initialized() bool {
	return r.initialized
}

// Init sets the caller as owner and empties all collections.
func (r *Registry) Init(env interfaces.Env) error {
	if r.initialized {
		return interfaces.ErrAlreadyInitialized
	}

	r.owner = env.Caller
	r.requesters = make(map[interfaces.Identity]struct{})
	r.providers = make(map[interfaces.Identity]struct{})
	r.requests = make(map[interfaces.RequestID]interfaces.Request)
	r.responses = make(map[interfaces.RequestID]interfaces.Response)
	r.initialized = true
	return nil
}

// AddRequesters grants the requester role to ids. Only the owner may call it.
func (r *Registry) AddRequesters(env interfaces.Env, ids []interfaces.Identity) error {
	if err := r.requireOwner(env, "only the owner may add requesters"); err != nil {
		return err
	}
	for _, id := range ids {
		r.requesters[id] = struct{}{}
	}
	return nil
}

// AddProviders grants the provider role to ids. Only the owner may call it.
func (r *Registry) AddProviders(env interfaces.Env, ids []interfaces.Identity) error {
	if err := r.requireOwner(env, "only the owner may add providers"); err != nil {
		return err
	}
	for _, id := range ids {
		r.providers[id] = struct{}{}
	}
	return nil
}

// CreateRequest stores req under id, replacing any previous request.
func (r *Registry) CreateRequest(env interfaces.Env, id interfaces.RequestID, req interfaces.Request) error {
	if !r.initialized {
		return interfaces.ErrNotInitialized
	}
	if _, ok := r.requesters[env.Caller]; !ok {
		return &interfaces.UnauthorizedError{Caller: env.Caller, Reason: "only requesters are allowed to create requests"}
	}

	req.RequestID = id
	req.Period = clonePeriod(req.Period)
	r.requests[id] = req
	return nil
}

// ProvideData stores result with the host timestamp under id, replacing any
// previous response. The id does not need a matching request.
func (r *Registry) ProvideData(env interfaces.Env, id interfaces.RequestID, result string) (interfaces.Response, error) {
	if !r.initialized {
		return interfaces.Response{}, interfaces.ErrNotInitialized
	}
	if _, ok := r.providers[env.Caller]; !ok {
		return interfaces.Response{}, &interfaces.UnauthorizedError{Caller: env.Caller, Reason: "only providers are allowed to provide data"}
	}

	resp := interfaces.Response{
		Result:    result,
		Timestamp: env.Timestamp,
	}
	r.responses[id] = resp
	return resp, nil
}

// GetDataResponse returns the stored response for id, if any.
func (r *Registry) GetDataResponse(id interfaces.RequestID) (interfaces.Response, bool) {
	resp, ok := r.responses[id]
	return resp, ok
}

// GetRequest returns the stored request for id, if any.
func (r *Registry) GetRequest(id interfaces.RequestID) (interfaces.Request, bool) {
	req, ok := r.requests[id]
	if !ok {
		return interfaces.Request{}, false
	}
	req.Period = clonePeriod(req.Period)
	return req, true
}

// GetAllRequests returns every stored request. Callers must not rely on the
// order; it happens to be ascending by id.
func (r *Registry) GetAllRequests() []interfaces.Request {
	out := make([]interfaces.Request, 0, len(r.requests))
	for _, id := range slices.Sorted(maps.Keys(r.requests)) {
		req := r.requests[id]
		req.Period = clonePeriod(req.Period)
		out = append(out, req)
	}
	return out
}

// RequestCount returns the number of stored requests.
func (r *Registry) RequestCount() int {
	return len(r.requests)
}

// ResponseCount returns the number of stored responses.
func (r *Registry) ResponseCount() int {
	return len(r.responses)
}

// Owner returns the identity that initialized the registry.
func (r *Registry) Owner() interfaces.Identity {
	return r.owner
}

// IsOwner reports whether id initialized the registry.
func (r *Registry) IsOwner(id interfaces.Identity) bool {
	return r.initialized && r.owner == id
}

// IsRequester reports whether id holds the requester role.
func (r *Registry) IsRequester(id interfaces.Identity) bool {
	_, ok := r.requesters[id]
	return ok
}

// IsProvider reports whether id holds the provider role.
func (r *Registry) IsProvider(id interfaces.Identity) bool {
	_, ok := r.providers[id]
	return ok
}

// Members returns the owner and both role sets, sorted.
func (r *Registry) Members() interfaces.Membership {
	return interfaces.Membership{
		Owner:      r.owner,
		Requesters: sortedIdentities(r.requesters),
		Providers:  sortedIdentities(r.providers),
	}
}

// LatestTimestamp returns the newest response timestamp, zero if none.
func (r *Registry) LatestTimestamp() uint64 {
	var latest uint64
	for _, resp := range r.responses {
		latest = max(latest, resp.Timestamp)
	}
	return latest
}

func (r *Registry) requireOwner(env interfaces.Env, reason string) error {
	if !r.initialized {
		return interfaces.ErrNotInitialized
	}
	if env.Caller != r.owner {
		return &interfaces.UnauthorizedError{Caller: env.Caller, Reason: reason}
	}
	return nil
}

func sortedIdentities(set map[interfaces.Identity]struct{}) []interfaces.Identity {
	return slices.Sorted(maps.Keys(set))
}

func clonePeriod(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
