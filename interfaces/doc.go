// Package interfaces defines the core types and contracts of the data
// exchange registry, separating interface definitions from implementations.
//
// # Registry Types
//
//   - Identity: opaque caller name, the subject of every authorization check
//   - Request: a resource locator, an extraction path and an optional period
//   - Response: the latest result for a request and its submission timestamp
//   - Env: the caller identity and time injected by the host for one call
//
// # Service Interfaces
//
// RegistryService: the host-facing surface used by transports. It serializes
// calls, supplies time and persists state around the core registry.
//
// # Storage Interfaces
//
// StateBackend: persists the encoded registry snapshot on a single backend
// (file, S3, IPFS, Vault, memory).
//
// StateBackendFactory: creates backends from URI strings and aggregates
// several of them for redundancy.
//
// # Error Types
//
//   - ErrAlreadyInitialized: construction attempted twice
//   - ErrNotInitialized: operation before construction
//   - ErrUnauthorized: caller lacks the required role (see UnauthorizedError)
//   - ErrStateNotFound: a backend holds no snapshot yet
//   - ErrBackendUnavailable: a backend is not reachable
//   - ErrInvalidLocationURI: a storage URI is malformed or unsupported
package interfaces
