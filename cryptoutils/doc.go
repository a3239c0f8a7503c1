/*
Package cryptoutils provides the cryptographic helpers of the registry.

# Caller Authentication

Clients sign each HTTP request with a secp256k1 key. The signed message is

	METHOD \n PATH \n UNIX_TIMESTAMP \n keccak256(BODY)

hashed with the EIP-191 text prefix. The server recovers the signer address
and uses its checksummed hex form as the caller identity, so identities can
never be forged through the request payload. Timestamps outside
DefaultMaxClockSkew are rejected.

# State Encryption

Registry snapshots may be sealed at rest with XChaCha20-Poly1305. The key is
given directly, derived from a passphrase with Argon2id, or reconstructed
from Shamir shares held by separate operators.
*/
package cryptoutils
