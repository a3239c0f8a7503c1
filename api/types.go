package api

import "github.com/ruteri/data-exchange-registry/interfaces"

// Error codes carried in ErrorResponse.Code.
const (
	CodeUnauthorized       = "unauthorized"
	CodeUnauthenticated    = "unauthenticated"
	CodeAlreadyInitialized = "already_initialized"
	CodeNotInitialized     = "not_initialized"
	CodeInvalidRequest     = "invalid_request"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal"
)

// IdentitiesRequest is the body of the add-requesters and add-providers calls.
type IdentitiesRequest struct {
	IDs []string `json:"ids"`
}

// CreateRequestRequest is the body of PUT /api/v1/requests/{request_id}.
// The request id is taken from the path.
type CreateRequestRequest struct {
	URI      string  `json:"uri"`
	JSONPath string  `json:"json_path"`
	Period   *uint64 `json:"period,omitempty"`
}

// ProvideDataRequest is the body of PUT /api/v1/responses/{request_id}.
type ProvideDataRequest struct {
	Result string `json:"result"`
}

// DataResponse is a stored response together with the id it belongs to.
type DataResponse struct {
	RequestID interfaces.RequestID `json:"request_id"`
	Result    string               `json:"result"`
	Timestamp uint64               `json:"timestamp"`
}

// InitResponse reports the owner set by POST /api/v1/init.
type InitResponse struct {
	Owner interfaces.Identity `json:"owner"`
}

// RequestsResponse lists stored requests, in no particular order.
type RequestsResponse struct {
	Requests []interfaces.Request `json:"requests"`
}

// StatusResponse acknowledges a mutation that returns no data.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// UnsealShareRequest is the body of POST /admin/unseal/share.
type UnsealShareRequest struct {
	// Share is a hex-encoded Shamir share of the state key.
	Share string `json:"share"`
}

// UnsealStatus reports progress of the state key reconstruction.
type UnsealStatus struct {
	Sealed    bool `json:"sealed"`
	Threshold int  `json:"threshold"`
	Submitted int  `json:"submitted"`
}
