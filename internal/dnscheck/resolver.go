package dnscheck

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

// Resolver returns the IPv4 A records of a host.
type Resolver interface {
	LookupA(ctx context.Context, host string) ([]string, error)
}

// NetResolver queries the given public DNS servers directly so that the
// answer reflects public DNS rather than /etc/hosts or a split-horizon view.
// With no servers it falls back to the system resolver.
type NetResolver struct {
	resolver *net.Resolver
}

func NewNetResolver(servers []string) *NetResolver {
	if len(servers) == 0 {
		return &NetResolver{resolver: net.DefaultResolver}
	}

	var next uint32
	return &NetResolver{resolver: &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: 5 * time.Second}
			server := servers[int(atomic.AddUint32(&next, 1)-1)%len(servers)]
			return d.DialContext(ctx, network, server)
		},
	}}
}

func (r *NetResolver) LookupA(ctx context.Context, host string) ([]string, error) {
	ips, err := r.resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		out = append(out, ip.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("resolve %s: no A records", host)
	}
	return out, nil
}
