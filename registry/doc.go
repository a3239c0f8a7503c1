/*
Package registry implements the permissioned data exchange registry.

A Registry holds an owner, a set of requester identities, a set of provider
identities, a map of request id to Request and a map of request id to
Response. Requesters create requests, providers submit results, anyone reads.

# Lifecycle

The zero value is uninitialized. Init records the caller as owner; a second
Init fails with interfaces.ErrAlreadyInitialized and changes nothing. Every
other operation on an uninitialized registry fails with
interfaces.ErrNotInitialized.

# Authorization

  - AddRequesters, AddProviders: owner only. Membership only grows.
  - CreateRequest: requesters only.
  - ProvideData: providers only.
  - GetDataResponse, GetRequest, GetAllRequests, Members: anyone.

Checks run before any collection is touched, so a rejected call has no side
effects. Rejections are *interfaces.UnauthorizedError values that satisfy
errors.Is(err, interfaces.ErrUnauthorized).

# Writes

Both maps are last-write-wins. ProvideData does not require a matching
request. Nothing is ever deleted, and the request period is stored but not
acted upon.

# Concurrency

Registry does no locking. The host (see package host) owns exactly one
instance, applies one call at a time and supplies the caller identity and
timestamp through interfaces.Env.

# Persistence

EncodeState and DecodeState convert the five stored fields to and from a
versioned, deterministic RLP encoding.
*/
package registry
