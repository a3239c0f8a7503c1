/*
Package handlers implements the HTTP handlers of the registry API.

Handler translates routes into calls on an interfaces.RegistryService and
maps the resulting errors to HTTP statuses:

	interfaces.ErrUnauthorized        403
	interfaces.ErrAlreadyInitialized  409
	interfaces.ErrNotInitialized      412
	invalid input                     400
	missing or bad signature          401
	anything else                     500

Authenticator establishes the caller of mutating routes, either from a
request signature or, behind a trusted proxy, from the X-Registry-Caller
header. Hex addresses, both in headers and in membership lists, are
normalized to their checksummed form so that they compare equal to
recovered signers.

UnsealHandler serves the admin API of a sealed server, collecting Shamir
shares of the state key until it can be reconstructed.
*/
package handlers
