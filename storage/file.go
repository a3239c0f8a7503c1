package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// StateObjectName is the object/file name the registry snapshot is stored
// under in every backend.
const StateObjectName = "registry.state"

// FileBackend implements a state backend using the local file system.
// The snapshot is replaced atomically so a crash never leaves a torn file.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file state backend using the specified base directory.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Load reads the snapshot from disk.
// Returns ErrStateNotFound if it has never been saved.
func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	filePath := b.statePath()

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrStateNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Loaded state from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Save atomically replaces the snapshot on disk.
func (b *FileBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	filePath := b.statePath()

	f, err := atomicfile.New(filePath, 0o600)
	if err != nil {
		return id, fmt.Errorf("failed to create temporary file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return id, fmt.Errorf("failed to write file: %w", err)
	}

	if err := f.Close(); err != nil {
		return id, fmt.Errorf("failed to replace file: %w", err)
	}

	b.log.Debug("Saved state to file",
		slog.String("path", filePath),
		slog.String("content_id", id.Short()))

	return id, nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) statePath() string {
	return filepath.Join(b.baseDir, StateObjectName)
}
