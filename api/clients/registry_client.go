package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ruteri/data-exchange-registry/api"
	"github.com/ruteri/data-exchange-registry/api/handlers"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// APIError is a non-2xx answer from the registry API. It unwraps to the
// matching interfaces sentinel where one exists, so callers can use
// errors.Is(err, interfaces.ErrUnauthorized) across the wire.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case api.CodeUnauthorized:
		return interfaces.ErrUnauthorized
	case api.CodeUnauthenticated:
		return handlers.ErrUnauthenticated
	case api.CodeAlreadyInitialized:
		return interfaces.ErrAlreadyInitialized
	case api.CodeNotInitialized:
		return interfaces.ErrNotInitialized
	default:
		return nil
	}
}

// RegistryClient talks to the registry API. Mutating calls are signed with
// the client's key, or carry a caller header when the server trusts one.
type RegistryClient struct {
	baseURL      string
	key          *ecdsa.PrivateKey
	callerHeader interfaces.Identity
	httpClient   *http.Client
	now          func() time.Time
}

// NewRegistryClient creates a client signing requests with key.
//
// Parameters:
//   - baseURL: The base URL of the registry API (e.g., "http://localhost:8080")
//   - key: The caller's secp256k1 key, may be nil for read-only use
//   - timeout: Request timeout duration (optional, default 30 seconds)
func NewRegistryClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
		now: time.Now,
	}
}

// WithCallerHeader makes the client identify as caller through the
// X-Registry-Caller header instead of signing. The server must run in
// trusted-header mode.
func (c *RegistryClient) WithCallerHeader(caller interfaces.Identity) *RegistryClient {
	c.callerHeader = caller
	return c
}

// Identity returns the identity the server will see for this client.
func (c *RegistryClient) Identity() interfaces.Identity {
	if c.callerHeader != "" {
		return c.callerHeader
	}
	if c.key != nil {
		return cryptoutils.SigningIdentity(c.key)
	}
	return ""
}

// Init constructs the registry with this client as owner.
func (c *RegistryClient) Init(ctx context.Context) (interfaces.Identity, error) {
	var resp api.InitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/init", nil, &resp); err != nil {
		return "", err
	}
	return resp.Owner, nil
}

// AddRequesters grants the requester role to ids.
func (c *RegistryClient) AddRequesters(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/requesters", api.IdentitiesRequest{IDs: ids}, nil)
}

// AddProviders grants the provider role to ids.
func (c *RegistryClient) AddProviders(ctx context.Context, ids []string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/providers", api.IdentitiesRequest{IDs: ids}, nil)
}

// CreateRequest stores or overwrites the request under id.
func (c *RegistryClient) CreateRequest(ctx context.Context, id interfaces.RequestID, uri, jsonPath string, period *uint64) (interfaces.Request, error) {
	body := api.CreateRequestRequest{
		URI:      uri,
		JSONPath: jsonPath,
		Period:   period,
	}

	var req interfaces.Request
	if err := c.do(ctx, http.MethodPut, "/api/v1/requests/"+url.PathEscape(id), body, &req); err != nil {
		return interfaces.Request{}, err
	}
	return req, nil
}

// ProvideData stores or overwrites the response for id and returns it with
// the timestamp assigned by the server.
func (c *RegistryClient) ProvideData(ctx context.Context, id interfaces.RequestID, result string) (interfaces.Response, error) {
	var resp api.DataResponse
	if err := c.do(ctx, http.MethodPut, "/api/v1/responses/"+url.PathEscape(id), api.ProvideDataRequest{Result: result}, &resp); err != nil {
		return interfaces.Response{}, err
	}
	return interfaces.Response{Result: resp.Result, Timestamp: resp.Timestamp}, nil
}

// GetDataResponse returns the stored response for id, or nil if there is none.
func (c *RegistryClient) GetDataResponse(ctx context.Context, id interfaces.RequestID) (*interfaces.Response, error) {
	var resp api.DataResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/responses/"+url.PathEscape(id), nil, &resp)
	if isNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &interfaces.Response{Result: resp.Result, Timestamp: resp.Timestamp}, nil
}

// GetRequest returns the stored request for id, or nil if there is none.
func (c *RegistryClient) GetRequest(ctx context.Context, id interfaces.RequestID) (*interfaces.Request, error) {
	var req interfaces.Request
	err := c.do(ctx, http.MethodGet, "/api/v1/requests/"+url.PathEscape(id), nil, &req)
	if isNotFound(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetAllRequests lists every stored request, in no particular order.
func (c *RegistryClient) GetAllRequests(ctx context.Context) ([]interfaces.Request, error) {
	var resp api.RequestsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/requests", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// Members returns the owner and the role sets.
func (c *RegistryClient) Members(ctx context.Context) (interfaces.Membership, error) {
	var members interfaces.Membership
	if err := c.do(ctx, http.MethodGet, "/api/v1/members", nil, &members); err != nil {
		return interfaces.Membership{}, err
	}
	return members, nil
}

func (c *RegistryClient) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method != http.MethodGet {
		if err := c.authenticate(req, raw); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Code != "" {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *RegistryClient) authenticate(req *http.Request, body []byte) error {
	if c.callerHeader != "" {
		req.Header.Set(cryptoutils.CallerHeader, c.callerHeader.String())
		return nil
	}
	if c.key == nil {
		return errors.New("client has no signing key")
	}

	timestamp := c.now().Unix()
	sig, err := cryptoutils.SignRequest(c.key, req.Method, req.URL.EscapedPath(), timestamp, body)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	req.Header.Set(cryptoutils.SignatureHeader, hex.EncodeToString(sig))
	req.Header.Set(cryptoutils.TimestampHeader, strconv.FormatInt(timestamp, 10))
	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
