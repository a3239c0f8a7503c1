package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// EncryptedBackend seals snapshots before handing them to the wrapped
// backend, so the storage provider only ever sees ciphertext.
type EncryptedBackend struct {
	inner interfaces.StateBackend
	key   cryptoutils.StateKey
	log   *slog.Logger
}

// NewEncryptedBackend wraps inner with XChaCha20-Poly1305 under key.
func NewEncryptedBackend(inner interfaces.StateBackend, key cryptoutils.StateKey, log *slog.Logger) *EncryptedBackend {
	return &EncryptedBackend{
		inner: inner,
		key:   key,
		log:   log,
	}
}

// Load fetches and decrypts the snapshot. A wrong key or tampered
// ciphertext yields cryptoutils.ErrStateDecryption.
func (b *EncryptedBackend) Load(ctx context.Context) ([]byte, error) {
	sealed, err := b.inner.Load(ctx)
	if err != nil {
		return nil, err
	}

	data, err := cryptoutils.OpenState(b.key, sealed)
	if err != nil {
		b.log.Error("Failed to decrypt state",
			slog.String("backend_name", b.inner.Name()),
			"err", err)
		return nil, err
	}
	return data, nil
}

// Save encrypts data and stores the ciphertext. The returned content ID is
// that of the ciphertext as stored.
func (b *EncryptedBackend) Save(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	sealed, err := cryptoutils.SealState(b.key, data)
	if err != nil {
		return interfaces.ContentID{}, fmt.Errorf("failed to encrypt state: %w", err)
	}
	return b.inner.Save(ctx, sealed)
}

func (b *EncryptedBackend) Available(ctx context.Context) bool {
	return b.inner.Available(ctx)
}

func (b *EncryptedBackend) Name() string {
	return "encrypted-" + b.inner.Name()
}

func (b *EncryptedBackend) LocationURI() string {
	return b.inner.LocationURI()
}
