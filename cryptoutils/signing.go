package cryptoutils

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// Header constants used to authenticate the caller of an HTTP request.
const (
	// SignatureHeader carries the hex-encoded 65-byte secp256k1 signature
	// over SigningPayload.
	SignatureHeader = "X-Registry-Signature"

	// TimestampHeader carries the Unix time (seconds) the client signed at.
	TimestampHeader = "X-Registry-Timestamp"

	// CallerHeader names the caller directly. It is only honoured when the
	// server runs behind a proxy that authenticates callers.
	CallerHeader = "X-Registry-Caller"

	// DefaultMaxClockSkew bounds how far a signed timestamp may drift from
	// the server clock.
	DefaultMaxClockSkew = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing request signature")
	ErrInvalidSignature = errors.New("invalid request signature")
	ErrStaleSignature   = errors.New("request signature timestamp outside allowed window")
)

// SigningPayload returns the message a client signs for a request:
// METHOD, path, timestamp and keccak256(body), newline separated.
func SigningPayload(method, path string, timestamp int64, body []byte) []byte {
	return fmt.Appendf(nil, "%s\n%s\n%d\n%x", strings.ToUpper(method), path, timestamp, crypto.Keccak256(body))
}

// SignRequest signs the request payload under the EIP-191 text prefix.
func SignRequest(key *ecdsa.PrivateKey, method, path string, timestamp int64, body []byte) ([]byte, error) {
	hash := accounts.TextHash(SigningPayload(method, path, timestamp, body))
	return crypto.Sign(hash, key)
}

// RecoverSigner returns the address that produced sig for the request.
func RecoverSigner(sig []byte, method, path string, timestamp int64, body []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash(SigningPayload(method, path, timestamp, body))
	pubkey, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubkey), nil
}

// VerifyRequest parses the signature headers' values, checks the timestamp
// against now and returns the caller identity.
func VerifyRequest(sigHex, timestampStr, method, path string, body []byte, now time.Time, maxSkew time.Duration) (interfaces.Identity, error) {
	if sigHex == "" || timestampStr == "" {
		return "", ErrMissingSignature
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp: %v", ErrInvalidSignature, err)
	}

	skew := now.Sub(time.Unix(timestamp, 0))
	if skew > maxSkew || skew < -maxSkew {
		return "", ErrStaleSignature
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	addr, err := RecoverSigner(sig, method, path, timestamp, body)
	if err != nil {
		return "", err
	}
	return IdentityFromAddress(addr), nil
}

// IdentityFromAddress returns the checksummed hex form used as identity.
func IdentityFromAddress(addr common.Address) interfaces.Identity {
	return interfaces.Identity(addr.Hex())
}

// NormalizeIdentity rewrites hex addresses to their checksummed form so they
// compare equal to recovered signers. Other identities are returned as is.
func NormalizeIdentity(id string) interfaces.Identity {
	if common.IsHexAddress(id) {
		return IdentityFromAddress(common.HexToAddress(id))
	}
	return interfaces.Identity(id)
}

// LoadSigningKey parses a hex-encoded secp256k1 private key.
func LoadSigningKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return key, nil
}

// GenerateSigningKey creates a new secp256k1 key and returns it with its
// hex encoding.
func GenerateSigningKey() (*ecdsa.PrivateKey, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, "", err
	}
	return key, hex.EncodeToString(crypto.FromECDSA(key)), nil
}

// SigningIdentity returns the identity a key signs as.
func SigningIdentity(key *ecdsa.PrivateKey) interfaces.Identity {
	return IdentityFromAddress(crypto.PubkeyToAddress(key.PublicKey))
}
