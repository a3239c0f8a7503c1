package storage

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/data-exchange-registry/interfaces"
)

// StorageBackendFactory creates state backends from location URIs and
// manages multi-backend configurations for redundant storage.
type StorageBackendFactory struct {
	log *slog.Logger

	mu     sync.Mutex
	memory map[string]*MemoryBackend
}

// NewStorageBackendFactory creates a new factory instance.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log:    logger,
		memory: make(map[string]*MemoryBackend),
	}
}

// StateBackendFor creates a state backend from a location.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///var/lib/registry or file://./relative/dir
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-east-1&endpoint=...&path_style=true
//   - ipfs://127.0.0.1:5001/registry?timeout=30s
//   - vault://vault.example.com:8200/secret/registry?token_env=VAULT_TOKEN&cert=...&key=...&tls=false
//   - memory://name (backends with the same name are shared within the factory)
func (sf *StorageBackendFactory) StateBackendFor(location interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	switch location.Scheme {
	case interfaces.SchemeFile:
		return sf.createFileBackend(location)
	case interfaces.SchemeS3:
		return sf.createS3Backend(location)
	case interfaces.SchemeIPFS:
		return sf.createIPFSBackend(location)
	case interfaces.SchemeVault:
		return sf.createVaultBackend(location)
	case interfaces.SchemeMemory:
		return sf.memoryBackend(location.Host), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of locations.
// Locations that cannot be turned into a backend are logged and skipped.
// Returns an error if no valid backends could be created.
func (sf *StorageBackendFactory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	backends := make([]interfaces.StateBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := sf.StateBackendFor(location)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("locationURI", location.String()))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorageBackend(backends, sf.log), nil
}

// createFileBackend handles file:///absolute/path/ and file://./relative/path/.
func (sf *StorageBackendFactory) createFileBackend(location interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", location.String()))

	path := location.Path
	if location.Host != "" {
		path = location.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, location.String())
	}

	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(location interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", location.Host))

	if location.Host == "" {
		return nil, fmt.Errorf("%w: missing bucket in S3 URI", interfaces.ErrInvalidLocationURI)
	}

	region := location.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	opts := S3Options{
		Bucket:    location.Host,
		Prefix:    location.Path,
		Region:    region,
		Endpoint:  location.GetParam("endpoint"),
		PathStyle: location.GetParamBool("path_style"),
	}

	if u, err := location.URL(); err == nil && u.User != nil {
		opts.AccessKey = u.User.Username()
		opts.SecretKey, _ = u.User.Password()
	}

	return NewS3Backend(opts, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(location interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating IPFS backend", slog.String("uri", location.String()))

	u, err := location.URL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	host := u.Hostname()
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout := 30 * time.Second
	if raw := location.GetParam("timeout"); raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
	}

	return NewIPFSBackend(host, port, location.Path, timeout, sf.log)
}

func (sf *StorageBackendFactory) createVaultBackend(location interfaces.StorageBackendLocation) (interfaces.StateBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("uri", location.String()))

	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	if location.Host == "" || parts[0] == "" {
		return nil, fmt.Errorf("%w: expected vault://host:port/mount[/path]", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if location.GetParam("tls") == "false" {
		scheme = "http"
	}

	opts := VaultOptions{
		Address:   fmt.Sprintf("%s://%s", scheme, location.Host),
		MountPath: parts[0],
	}
	if len(parts) == 2 {
		opts.DataPath = parts[1]
	}

	if certFile, keyFile := location.GetParam("cert"), location.GetParam("key"); certFile != "" || keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load Vault client certificate: %w", err)
		}
		opts.ClientCert = &cert
	} else {
		tokenEnv := location.GetParam("token_env")
		if tokenEnv == "" {
			tokenEnv = "VAULT_TOKEN"
		}
		opts.Token = os.Getenv(tokenEnv)
	}

	return NewVaultBackend(opts, sf.log)
}

func (sf *StorageBackendFactory) memoryBackend(name string) *MemoryBackend {
	sf.mu.Lock()
	defer sf.mu.Unlock()

	if name == "" {
		name = "default"
	}
	backend, ok := sf.memory[name]
	if !ok {
		backend = NewMemoryBackend(name)
		sf.memory[name] = backend
	}
	return backend
}
