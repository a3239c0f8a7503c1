/*
Package api exposes the data exchange registry over HTTP.

This package is organized into three subpackages:

1. handlers - route handlers, caller authentication and error mapping
2. servers - HTTP server configuration and lifecycle management
3. clients - a typed client for the registry API

The package itself holds the JSON wire types shared by all of them and the
server configuration.

# Routes

	POST /api/v1/init                      construct the registry, caller becomes owner
	POST /api/v1/requesters                {"ids": [...]}, owner only
	POST /api/v1/providers                 {"ids": [...]}, owner only
	PUT  /api/v1/requests/{request_id}     {"uri", "json_path", "period"}, requesters only
	GET  /api/v1/requests                  every stored request
	GET  /api/v1/requests/{request_id}     a single request
	PUT  /api/v1/responses/{request_id}    {"result"}, providers only
	GET  /api/v1/responses/{request_id}    the latest response, 404 if none
	GET  /api/v1/members                   owner, requesters and providers

# Authentication

Mutating routes need a caller identity. By default callers sign each request
with a secp256k1 key (see cryptoutils.SignRequest) and their identity is the
recovered checksummed address. Deployments behind an authenticating proxy
can instead trust the X-Registry-Caller header.

# Errors

Failures carry an ErrorResponse body. Unauthorized callers get 403, a second
init gets 409, calls before init get 412, malformed input gets 400 and
missing or invalid signatures get 401.
*/
package api
