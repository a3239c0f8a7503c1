package interfaces

import "context"

// RegistryService is the surface the hosting runtime exposes to transports.
// Every mutating call takes the trusted caller identity; the host supplies
// the time itself.
type RegistryService interface {
	// Initialize constructs the registry with caller as its owner.
	Initialize(ctx context.Context, caller Identity) error

	// AddRequesters grants the requester role. Owner only.
	AddRequesters(ctx context.Context, caller Identity, ids []Identity) error

	// AddProviders grants the provider role. Owner only.
	AddProviders(ctx context.Context, caller Identity, ids []Identity) error

	// CreateRequest stores or overwrites a request. Requesters only.
	CreateRequest(ctx context.Context, caller Identity, id RequestID, req Request) error

	// ProvideData stores or overwrites the response for id. Providers only.
	// It returns the stored response, including its timestamp.
	ProvideData(ctx context.Context, caller Identity, id RequestID, result string) (Response, error)

	// GetDataResponse returns the stored response, or nil when there is none.
	GetDataResponse(ctx context.Context, id RequestID) (*Response, error)

	// GetAllRequests returns every stored request, in no particular order.
	GetAllRequests(ctx context.Context) ([]Request, error)

	// GetRequest returns a single request, or nil when there is none.
	GetRequest(ctx context.Context, id RequestID) (*Request, error)

	// Members returns the owner and the role sets.
	Members(ctx context.Context) (Membership, error)
}
