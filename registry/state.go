package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ruteri/data-exchange-registry/interfaces"
)

// stateVersion prefixes every encoded snapshot.
const stateVersion byte = 1

// ErrUnsupportedStateVersion is returned by DecodeState for snapshots written
// with an unknown format version.
var ErrUnsupportedStateVersion = errors.New("unsupported registry state version")

type encodedRequest struct {
	ID        string
	JSONPath  string
	URI       string
	HasPeriod bool
	Period    uint64
}

type encodedResponse struct {
	ID        string
	Result    string
	Timestamp uint64
}

type encodedState struct {
	Owner      string
	Requesters []string
	Providers  []string
	Requests   []encodedRequest
	Responses  []encodedResponse
}

// EncodeState serializes the owner, both role sets and both maps. Entries are
// written in sorted order so equal registries encode to equal bytes.
func EncodeState(r *Registry) ([]byte, error) {
	if !r.initialized {
		return nil, interfaces.ErrNotInitialized
	}

	st := encodedState{
		Owner:      string(r.owner),
		Requesters: identityStrings(r.requesters),
		Providers:  identityStrings(r.providers),
		Requests:   make([]encodedRequest, 0, len(r.requests)),
		Responses:  make([]encodedResponse, 0, len(r.responses)),
	}

	for _, id := range slices.Sorted(maps.Keys(r.requests)) {
		req := r.requests[id]
		entry := encodedRequest{ID: id, JSONPath: req.JSONPath, URI: req.URI}
		if req.Period != nil {
			entry.HasPeriod = true
			entry.Period = *req.Period
		}
		st.Requests = append(st.Requests, entry)
	}

	for _, id := range slices.Sorted(maps.Keys(r.responses)) {
		resp := r.responses[id]
		st.Responses = append(st.Responses, encodedResponse{ID: id, Result: resp.Result, Timestamp: resp.Timestamp})
	}

	body, err := rlp.EncodeToBytes(&st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry state: %w", err)
	}
	return append([]byte{stateVersion}, body...), nil
}

// DecodeState restores an initialized registry from EncodeState output.
func DecodeState(data []byte) (*Registry, error) {
	if len(data) == 0 {
		return nil, errors.New("empty registry state")
	}
	if data[0] != stateVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedStateVersion, data[0])
	}

	var st encodedState
	if err := rlp.DecodeBytes(data[1:], &st); err != nil {
		return nil, fmt.Errorf("failed to decode registry state: %w", err)
	}

	r := NewRegistry()
	if err := r.Init(interfaces.Env{Caller: interfaces.Identity(st.Owner)}); err != nil {
		return nil, err
	}
	for _, id := range st.Requesters {
		r.requesters[interfaces.Identity(id)] = struct{}{}
	}
	for _, id := range st.Providers {
		r.providers[interfaces.Identity(id)] = struct{}{}
	}
	for _, e := range st.Requests {
		req := interfaces.Request{RequestID: e.ID, JSONPath: e.JSONPath, URI: e.URI}
		if e.HasPeriod {
			req.Period = interfaces.NewPeriod(e.Period)
		}
		r.requests[e.ID] = req
	}
	for _, e := range st.Responses {
		r.responses[e.ID] = interfaces.Response{Result: e.Result, Timestamp: e.Timestamp}
	}
	return r, nil
}

func identityStrings(set map[interfaces.Identity]struct{}) []string {
	out := make([]string, 0, len(set))
	for _, id := range sortedIdentities(set) {
		out = append(out, string(id))
	}
	return out
}
