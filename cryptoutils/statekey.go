package cryptoutils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/vault/shamir"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// StateKey encrypts persisted registry snapshots.
type StateKey [chacha20poly1305.KeySize]byte

// stateAD binds ciphertexts to their purpose.
var stateAD = []byte("data-exchange-registry/state/v1")

var ErrStateDecryption = errors.New("failed to decrypt registry state")

// StateKeyFromHex parses a 64-character hex key.
func StateKeyFromHex(s string) (StateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return StateKey{}, fmt.Errorf("invalid state key: %w", err)
	}
	if len(raw) != len(StateKey{}) {
		return StateKey{}, fmt.Errorf("invalid state key: expected %d bytes, got %d", len(StateKey{}), len(raw))
	}

	var key StateKey
	copy(key[:], raw)
	return key, nil
}

// DeriveStateKey derives a key from a passphrase using Argon2id. The salt
// separates deployments sharing a passphrase.
func DeriveStateKey(passphrase []byte, salt string) StateKey {
	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	raw := argon2.IDKey(passphrase, []byte("REGISTRY-STATE-KEY-"+salt), 1, 64*1024, 4, uint32(len(StateKey{})))

	var key StateKey
	copy(key[:], raw)
	return key
}

// SealState encrypts a snapshot with XChaCha20-Poly1305.
// Format: [24-byte nonce][ciphertext+tag]
func SealState(key StateKey, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, stateAD), nil
}

// OpenState decrypts the output of SealState.
func OpenState(key StateKey, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrStateDecryption)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, stateAD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateDecryption, err)
	}
	return plaintext, nil
}

// SplitStateKey splits key into parts shares, any threshold of which
// reconstruct it.
func SplitStateKey(key StateKey, parts, threshold int) ([][]byte, error) {
	shares, err := shamir.Split(key[:], parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split state key: %w", err)
	}
	return shares, nil
}

// CombineStateKeyShares reconstructs a key from shares produced by
// SplitStateKey. Too few shares yield a wrong key, which surfaces as
// ErrStateDecryption on the first load.
func CombineStateKeyShares(shares [][]byte) (StateKey, error) {
	secret, err := shamir.Combine(shares)
	if err != nil {
		return StateKey{}, fmt.Errorf("failed to combine state key shares: %w", err)
	}
	if len(secret) != len(StateKey{}) {
		return StateKey{}, fmt.Errorf("combined secret has wrong length %d", len(secret))
	}

	var key StateKey
	copy(key[:], secret)
	return key, nil
}
