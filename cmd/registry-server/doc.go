// Package main (cmd/registry-server) runs the data exchange registry API.
//
// The server hosts a single registry. Every successful mutation is persisted
// to the configured state backends before the call returns, optionally
// encrypted with a state key given directly, derived from a passphrase or
// reconstructed from Shamir shares.
//
// With --unseal-admin the server starts sealed: it serves only the unseal API
// on --unseal-addr until enough admins have submitted their shares (see
// registry-client split-state-key and submit-share) and the reconstructed
// key decrypts the stored state.
//
// Callers are identified either by a secp256k1 signature over each mutating
// request (default) or, behind a trusted proxy, by the X-Registry-Caller
// header.
//
// Example usage:
//
//	registry-server --listen-addr=0.0.0.0:8080 \
//	    --state-uri=file:///var/lib/registry \
//	    --state-uri='s3://registry-state/prod?region=eu-west-1' \
//	    --state-passphrase="$PASSPHRASE" --state-salt=prod \
//	    --bootstrap-owner=0x71C7656EC7ab88b098defB751B7401B5f6d8976F
package main
