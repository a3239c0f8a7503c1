package clients

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// DefaultResolverAddr is the local stub resolver.
const DefaultResolverAddr = "127.0.0.53:53"

var ErrNoSRVRecords = errors.New("no SRV records found")

// ResolveServerURL discovers the registry API through a DNS SRV record
// (e.g. "_registry._tcp.example.com") and returns a base URL for the
// preferred target: lowest priority first, then highest weight.
func ResolveServerURL(ctx context.Context, service, resolverAddr, scheme string) (string, error) {
	if resolverAddr == "" {
		resolverAddr = DefaultResolverAddr
	}
	if scheme == "" {
		scheme = "http"
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(service), dns.TypeSRV)
	m.RecursionDesired = true

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, resolverAddr)
	if err != nil {
		return "", fmt.Errorf("SRV lookup for %s failed: %w", service, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("SRV lookup for %s failed: %s", service, dns.RcodeToString[in.Rcode])
	}

	records := make([]*dns.SRV, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoSRVRecords, service)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Priority != records[j].Priority {
			return records[i].Priority < records[j].Priority
		}
		return records[i].Weight > records[j].Weight
	})

	target := strings.TrimSuffix(records[0].Target, ".")
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(target, strconv.Itoa(int(records[0].Port)))), nil
}
