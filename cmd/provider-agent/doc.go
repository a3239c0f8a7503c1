// Package main (cmd/provider-agent) runs an off-chain data provider.
//
// The agent signs as a provider identity, which the registry owner must have
// granted the provider role, and keeps every request's response fresh
// according to its period.
//
//	provider-agent --server-addr=http://registry:8080 --key="$PROVIDER_KEY" \
//	    --poll-interval=15s --workers=8
package main
