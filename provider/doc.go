// Package provider implements an off-chain data provider agent.
//
// The agent polls the registry's request list, decides which requests are
// due (no response yet, or their period elapsed since the stored response),
// fetches each resource over HTTP, extracts the requested value with a
// JSONPath-like expression and submits it with provide_data.
//
// Fetches run on a bounded worker pool. Transient failures are retried with
// exponential backoff; authorization failures and missing paths are not.
package provider
