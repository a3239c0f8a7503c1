// Package storage persists registry snapshots on pluggable backends.
//
// Every backend holds exactly one object, the latest encoded registry state
// (see registry.EncodeState), stored under the name "registry.state":
//
//   - File system storage with atomic replacement
//   - S3-compatible object storage
//   - IPFS mutable file system (MFS) on a local or remote node
//   - Vault KV v2, with token or TLS client certificate authentication
//   - In-memory storage for tests and ephemeral deployments
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/registry/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - ipfs://127.0.0.1:5001/registry?timeout=30s
//   - vault://vault.example.com:8200/secret/registry?token_env=VAULT_TOKEN
//   - memory://name
//
// # Redundancy and Encryption
//
// MultiStorageBackend saves to every available backend and loads from the
// first one that holds a snapshot. A load never reports ErrStateNotFound
// while some backend failed for another reason, so an outage cannot be
// mistaken for a fresh deployment.
//
// EncryptedBackend wraps any backend and seals snapshots with
// XChaCha20-Poly1305 under a cryptoutils.StateKey:
//
//	factory := storage.NewStorageBackendFactory(logger)
//	locations := []interfaces.StorageBackendLocation{fileLoc, s3Loc}
//	backend, err := factory.CreateMultiBackend(locations)
//	if err != nil {
//	    return err
//	}
//	backend = storage.NewEncryptedBackend(backend, stateKey, logger)
package storage
