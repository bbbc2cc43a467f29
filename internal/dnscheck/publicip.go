package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// IPSource reports this host's externally visible IPv4 address.
type IPSource interface {
	PublicIP(ctx context.Context) (string, error)
}

// StaticIP is an IPSource for a host whose public address is configured.
type StaticIP string

func (s StaticIP) PublicIP(context.Context) (string, error) {
	if net.ParseIP(string(s)) == nil {
		return "", fmt.Errorf("invalid static public IP %q", string(s))
	}
	return string(s), nil
}

// HTTPIPSource asks a "what is my IP" endpoint that answers with the bare
// address as plain text. Lookups are retried with exponential backoff, guarded
// by a circuit breaker, and cached for CacheTTL.
type HTTPIPSource struct {
	URL        string
	Client     *http.Client
	MaxRetries uint64
	CacheTTL   time.Duration

	breaker *gobreaker.CircuitBreaker[string]

	mu       sync.Mutex
	cached   string
	cachedAt time.Time
}

func NewHTTPIPSource(url string) *HTTPIPSource {
	return &HTTPIPSource{
		URL:        url,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 2,
		CacheTTL:   5 * time.Minute,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "public-ip",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

func (s *HTTPIPSource) PublicIP(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cached != "" && time.Since(s.cachedAt) < s.CacheTTL {
		ip := s.cached
		s.mu.Unlock()
		return ip, nil
	}
	s.mu.Unlock()

	ip, err := s.breaker.Execute(func() (string, error) {
		return s.fetchWithRetry(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", fmt.Errorf("public IP lookup suspended after repeated failures: %w", err)
		}
		return "", err
	}

	s.mu.Lock()
	s.cached, s.cachedAt = ip, time.Now()
	s.mu.Unlock()
	return ip, nil
}

func (s *HTTPIPSource) fetchWithRetry(ctx context.Context) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second
	bo := backoff.WithContext(backoff.WithMaxRetries(b, s.MaxRetries), ctx)

	var ip string
	err := backoff.Retry(func() error {
		var err error
		ip, err = s.fetch(ctx)
		return err
	}, bo)
	return ip, err
}

func (s *HTTPIPSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("build public IP request: %w", err))
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch public IP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch public IP: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read public IP: %w", err)
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", backoff.Permanent(fmt.Errorf("public IP service returned %q", ip))
	}
	return ip, nil
}
