// Package main (cmd/registry-client) is a command line client for the
// registry API.
//
// Example session:
//
//	registry-client keygen
//	export REGISTRY_KEY=<owner key>
//	registry-client init
//	registry-client add-requesters 0x71C7656EC7ab88b098defB751B7401B5f6d8976F
//	registry-client add-providers 0xdD2FD4581271e230360230F9337D5c0430Bf44C0
//	REGISTRY_KEY=<requester key> registry-client create-request \
//	    --id eth-usd --uri https://api.example.com/price --json-path '$.ethereum.usd' --period 60
//	registry-client get-response --id eth-usd
//
// The server can be discovered through DNS with --srv instead of
// --server-addr.
package main
