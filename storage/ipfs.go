package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// IPFSBackend implements a state backend on an IPFS node's mutable file
// system (MFS). The snapshot lives at a fixed MFS path; every save produces a
// new CID which is logged so operators can pin or audit history.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	mfsPath     string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS state backend connected to the API at host:port.
func NewIPFSBackend(host, port, dir string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	apiURL := fmt.Sprintf("%s:%s", host, port)

	dir = "/" + strings.Trim(dir, "/")
	if dir == "/" {
		dir = "/data-exchange-registry"
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		mfsPath:     path.Join(dir, StateObjectName),
		timeout:     timeout,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, dir, timeout),
	}, nil
}

// Load reads the snapshot from MFS.
// Returns ErrStateNotFound if it doesn't exist, or ErrBackendUnavailable
// if the IPFS node is not accessible.
func (b *IPFSBackend) Load(ctx context.Context) ([]byte, error) {
	start := time.Now()

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return nil, interfaces.ErrBackendUnavailable
	}

	reader, err := b.shell.FilesRead(ctx, b.mfsPath)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			b.log.Debug("State not found in IPFS",
				slog.String("path", b.mfsPath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrStateNotFound
		}

		b.log.Error("Failed to read state from IPFS",
			slog.String("path", b.mfsPath),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read state from IPFS: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read state from IPFS: %w", err)
	}

	b.log.Debug("Loaded state from IPFS",
		slog.String("path", b.mfsPath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Save overwrites the MFS file with data.
// Returns ErrBackendUnavailable if the IPFS node is not accessible.
func (b *IPFSBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)

	if !b.shell.IsUp() {
		return id, interfaces.ErrBackendUnavailable
	}

	err := b.shell.FilesWrite(ctx, b.mfsPath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Truncate(true),
		shell.FilesWrite.Parents(true))
	if err != nil {
		return id, fmt.Errorf("failed to write state to IPFS: %w", err)
	}

	attrs := []any{
		slog.String("path", b.mfsPath),
		slog.String("content_id", id.Short()),
	}
	if stat, err := b.shell.FilesStat(ctx, b.mfsPath); err == nil {
		attrs = append(attrs, slog.String("ipfs_cid", stat.Hash))
	}
	b.log.Debug("Saved state to IPFS", attrs...)

	return id, nil
}

// Available checks if the IPFS node is accessible.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}
