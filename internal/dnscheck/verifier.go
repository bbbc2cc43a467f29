package dnscheck

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of a DNS policy check. Any lookup failure is
// reported as a mismatch with Reason set.
type Result struct {
	Matches    bool     `json:"matches"`
	ObservedIP string   `json:"observed_ip"`
	ExpectedIP string   `json:"expected_ip"`
	AllIPs     []string `json:"all_ips,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Verifier compares a domain's public A records against this host's public IP.
type Verifier struct {
	ips      IPSource
	resolver Resolver
	timeout  time.Duration
}

func NewVerifier(ips IPSource, resolver Resolver) *Verifier {
	return &Verifier{ips: ips, resolver: resolver, timeout: 20 * time.Second}
}

// Verify never returns an error; failures fail closed.
func (v *Verifier) Verify(ctx context.Context, name string) Result {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var (
		expected string
		records  []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ip, err := v.ips.PublicIP(gctx)
		if err != nil {
			return fmt.Errorf("determine server IP: %w", err)
		}
		expected = ip
		return nil
	})
	g.Go(func() error {
		ips, err := v.resolver.LookupA(gctx, name)
		if err != nil {
			return err
		}
		records = ips
		return nil
	})
	err := g.Wait()

	res := Result{ExpectedIP: expected, AllIPs: records}
	if len(records) > 0 {
		res.ObservedIP = records[0]
	}
	if err != nil {
		res.Reason = err.Error()
		return res
	}

	for _, ip := range records {
		if ip == expected {
			res.Matches = true
			res.ObservedIP = ip
			return res
		}
	}
	res.Reason = "no A record matches the server IP"
	return res
}

// ResolveIP returns the first A record of name, or "" when it does not resolve.
func (v *Verifier) ResolveIP(ctx context.Context, name string) string {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ips, err := v.resolver.LookupA(ctx, name)
	if err != nil || len(ips) == 0 {
		return ""
	}
	return ips[0]
}
