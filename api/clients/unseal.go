package clients

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/ruteri/data-exchange-registry/api"
)

// UnsealStatus reports whether a sealed server still waits for state key
// shares. The client must point at the server's unseal address.
func (c *RegistryClient) UnsealStatus(ctx context.Context) (api.UnsealStatus, error) {
	var status api.UnsealStatus
	err := c.do(ctx, http.MethodGet, "/admin/unseal/status", nil, &status)
	return status, err
}

// SubmitUnsealShare submits this admin's share of the state key.
func (c *RegistryClient) SubmitUnsealShare(ctx context.Context, share []byte) (api.UnsealStatus, error) {
	var status api.UnsealStatus
	err := c.do(ctx, http.MethodPost, "/admin/unseal/share", api.UnsealShareRequest{Share: hex.EncodeToString(share)}, &status)
	return status, err
}
