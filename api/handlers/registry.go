package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Handler serves the registry API on top of an interfaces.RegistryService.
type Handler struct {
	service interfaces.RegistryService
	auth    *Authenticator
	log     *slog.Logger
}

// NewHandler creates a new HTTP request handler.
func NewHandler(service interfaces.RegistryService, auth *Authenticator, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		auth:    auth,
		log:     log,
	}
}

// RegisterRoutes mounts the registry API. Mutating routes sit behind the
// authentication middleware; reads are public.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/requests", h.HandleGetAllRequests)
	r.Get("/api/v1/requests/{request_id}", h.HandleGetRequest)
	r.Get("/api/v1/responses/{request_id}", h.HandleGetDataResponse)
	r.Get("/api/v1/members", h.HandleMembers)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Post("/api/v1/init", h.HandleInit)
		r.Post("/api/v1/requesters", h.HandleAddRequesters)
		r.Post("/api/v1/providers", h.HandleAddProviders)
		r.Put("/api/v1/requests/{request_id}", h.HandleCreateRequest)
		r.Put("/api/v1/responses/{request_id}", h.HandleProvideData)
	})
}

// HandleInit constructs the registry with the caller as owner.
//
// URL format: POST /api/v1/init
func (h *Handler) HandleInit(w http.ResponseWriter, r *http.Request) {
	caller := h.caller(r)

	if err := h.service.Initialize(r.Context(), caller); err != nil {
		h.fail(w, r, err)
		return
	}

	h.log.Info("Registry initialized", slog.String("owner", caller.String()))
	writeJSON(w, http.StatusOK, api.InitResponse{Owner: caller})
}

// HandleAddRequesters grants the requester role.
//
// URL format: POST /api/v1/requesters
func (h *Handler) HandleAddRequesters(w http.ResponseWriter, r *http.Request) {
	h.handleAddMembers(w, r, h.service.AddRequesters)
}

// HandleAddProviders grants the provider role.
//
// URL format: POST /api/v1/providers
func (h *Handler) HandleAddProviders(w http.ResponseWriter, r *http.Request) {
	h.handleAddMembers(w, r, h.service.AddProviders)
}

func (h *Handler) handleAddMembers(w http.ResponseWriter, r *http.Request, add func(ctx context.Context, caller interfaces.Identity, ids []interfaces.Identity) error) {
	var body api.IdentitiesRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	ids := make([]interfaces.Identity, 0, len(body.IDs))
	for _, raw := range body.IDs {
		if raw == "" {
			h.fail(w, r, badRequest(errors.New("empty identity in ids")))
			return
		}
		ids = append(ids, cryptoutils.NormalizeIdentity(raw))
	}

	if err := add(r.Context(), h.caller(r), ids); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok"})
}

// HandleCreateRequest stores or overwrites a request.
//
// URL format: PUT /api/v1/requests/{request_id}
func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var body api.CreateRequestRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	req := interfaces.Request{
		RequestID: id,
		URI:       body.URI,
		JSONPath:  body.JSONPath,
		Period:    body.Period,
	}
	if err := h.service.CreateRequest(r.Context(), h.caller(r), id, req); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// HandleProvideData stores or overwrites the response for a request.
// The response carries the timestamp assigned by the host.
//
// URL format: PUT /api/v1/responses/{request_id}
func (h *Handler) HandleProvideData(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var body api.ProvideDataRequest
	if err := decodeBody(r, &body); err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.service.ProvideData(r.Context(), h.caller(r), id, body.Result)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.DataResponse{
		RequestID: id,
		Result:    resp.Result,
		Timestamp: resp.Timestamp,
	})
}

// HandleGetDataResponse returns the latest response for a request.
//
// URL format: GET /api/v1/responses/{request_id}
func (h *Handler) HandleGetDataResponse(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp, err := h.service.GetDataResponse(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if resp == nil {
		writeError(w, &RequestError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("no response for request %q", id)})
		return
	}

	writeJSON(w, http.StatusOK, api.DataResponse{
		RequestID: id,
		Result:    resp.Result,
		Timestamp: resp.Timestamp,
	})
}

// HandleGetRequest returns a single request.
//
// URL format: GET /api/v1/requests/{request_id}
func (h *Handler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := requestIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req == nil {
		writeError(w, &RequestError{StatusCode: http.StatusNotFound, Err: fmt.Errorf("no request %q", id)})
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// HandleGetAllRequests lists every stored request.
//
// URL format: GET /api/v1/requests
func (h *Handler) HandleGetAllRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.GetAllRequests(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if requests == nil {
		requests = []interfaces.Request{}
	}

	writeJSON(w, http.StatusOK, api.RequestsResponse{Requests: requests})
}

// HandleMembers returns the owner and the role sets.
//
// URL format: GET /api/v1/members
func (h *Handler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Members(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if members.Requesters == nil {
		members.Requesters = []interfaces.Identity{}
	}
	if members.Providers == nil {
		members.Providers = []interfaces.Identity{}
	}

	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) caller(r *http.Request) interfaces.Identity {
	caller, _ := CallerFromContext(r.Context())
	return caller
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqErr := classify(err)
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			"err", err)
	} else {
		h.log.Debug("Request rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", reqErr.StatusCode),
			"err", err)
	}
	writeError(w, reqErr)
}

// classify maps registry errors to HTTP statuses.
func classify(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrAlreadyInitialized):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrNotInitialized):
		status = http.StatusPreconditionFailed
	case errors.Is(err, interfaces.ErrInvalidRequestID):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	return &RequestError{StatusCode: status, Err: err}
}

func errorCode(reqErr *RequestError) string {
	switch reqErr.StatusCode {
	case http.StatusForbidden:
		return api.CodeUnauthorized
	case http.StatusUnauthorized:
		return api.CodeUnauthenticated
	case http.StatusConflict:
		return api.CodeAlreadyInitialized
	case http.StatusPreconditionFailed:
		return api.CodeNotInitialized
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return api.CodeInvalidRequest
	case http.StatusNotFound:
		return api.CodeNotFound
	default:
		return api.CodeInternal
	}
}

func writeError(w http.ResponseWriter, reqErr *RequestError) {
	msg := reqErr.Err.Error()
	if reqErr.StatusCode >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, reqErr.StatusCode, api.ErrorResponse{
		Code:  errorCode(reqErr),
		Error: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(err error) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return badRequest(fmt.Errorf("failed to read request body: %w", err))
	}
	if len(body) > maxBodySize {
		return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// requestIDParam returns the decoded {request_id}. chi matches against
// r.URL.RawPath when it is set and against the decoded r.URL.Path otherwise,
// so the param is only unescaped in the first case.
func requestIDParam(r *http.Request) (interfaces.RequestID, error) {
	id := chi.URLParam(r, "request_id")
	if r.URL.RawPath != "" {
		var err error
		id, err = url.PathUnescape(id)
		if err != nil {
			return "", badRequest(fmt.Errorf("invalid request id: %w", err))
		}
	}
	if id == "" {
		return "", badRequest(interfaces.ErrInvalidRequestID)
	}
	return id, nil
}
