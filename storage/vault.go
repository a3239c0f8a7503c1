package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// VaultOptions configures a VaultBackend.
type VaultOptions struct {
	// Address of the Vault server (e.g. https://vault.example.com:8200)
	Address string
	// MountPath of the KV v2 engine (e.g. "secret")
	MountPath string
	// DataPath within the mount (e.g. "registry")
	DataPath string

	// Token authenticates the client. Ignored when ClientCert is set.
	Token string
	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
}

// VaultBackend implements a state backend on a HashiCorp Vault KV v2 engine.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault state backend authenticating with
// either a token or a TLS client certificate.
func NewVaultBackend(opts VaultOptions, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = opts.Address

	if opts.ClientCert != nil {
		config.HttpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{*opts.ClientCert},
				},
			},
			Timeout: 30 * time.Second,
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	if opts.ClientCert == nil && opts.Token != "" {
		client.SetToken(opts.Token)
	}

	mountPath := strings.Trim(opts.MountPath, "/")
	dataPath := strings.Trim(opts.DataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(opts.Address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// Load reads the snapshot secret.
func (b *VaultBackend) Load(ctx context.Context) ([]byte, error) {
	start := time.Now()
	secretPath := b.secretPath()

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		b.log.Debug("State not found in Vault", slog.String("path", secretPath))
		return nil, interfaces.ErrStateNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	content, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content key not found in Vault data")
	}

	state, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
	}

	b.log.Debug("Loaded state from Vault",
		slog.String("path", secretPath),
		slog.Int("size", len(state)),
		slog.Duration("duration", time.Since(start)))

	return state, nil
}

// Save writes a new version of the snapshot secret.
func (b *VaultBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	start := time.Now()
	id := interfaces.ComputeID(data)
	secretPath := b.secretPath()

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content":    base64.StdEncoding.EncodeToString(data),
			"content_id": id.String(),
		},
	}

	_, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData)
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return id, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Saved state to Vault",
		slog.String("path", secretPath),
		slog.String("content_id", id.Short()),
		slog.Duration("duration", time.Since(start)))

	return id, nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// secretPath follows the KV v2 layout: <mount>/data/<path>/<object>.
func (b *VaultBackend) secretPath() string {
	if b.dataPath == "" {
		return fmt.Sprintf("%s/data/%s", b.mountPath, StateObjectName)
	}
	return fmt.Sprintf("%s/data/%s/%s", b.mountPath, b.dataPath, StateObjectName)
}
