package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	records map[string][]string
}

func (f *fakeResolver) LookupA(_ context.Context, host string) ([]string, error) {
	ips, ok := f.records[host]
	if !ok {
		return nil, fmt.Errorf("resolve %s: no such host", host)
	}
	return ips, nil
}

type mockIPSource struct {
	mock.Mock
}

func (m *mockIPSource) PublicIP(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func TestVerify_Match(t *testing.T) {
	v := NewVerifier(StaticIP("10.0.0.5"), &fakeResolver{records: map[string][]string{
		"example.com": {"10.0.0.5"},
	}})

	res := v.Verify(context.Background(), "example.com")

	assert.True(t, res.Matches)
	assert.Equal(t, "10.0.0.5", res.ObservedIP)
	assert.Equal(t, "10.0.0.5", res.ExpectedIP)
	assert.Empty(t, res.Reason)
}

func TestVerify_MatchAmongSeveralRecords(t *testing.T) {
	v := NewVerifier(StaticIP("198.51.100.1"), &fakeResolver{records: map[string][]string{
		"multi.example.com": {"203.0.113.9", "198.51.100.1"},
	}})

	res := v.Verify(context.Background(), "multi.example.com")

	assert.True(t, res.Matches)
	assert.Equal(t, "198.51.100.1", res.ObservedIP)
}

func TestVerify_Mismatch(t *testing.T) {
	v := NewVerifier(StaticIP("198.51.100.1"), &fakeResolver{records: map[string][]string{
		"bad.example.com": {"203.0.113.9"},
	}})

	res := v.Verify(context.Background(), "bad.example.com")

	assert.False(t, res.Matches)
	assert.Equal(t, "203.0.113.9", res.ObservedIP)
	assert.Equal(t, "198.51.100.1", res.ExpectedIP)
}

func TestVerify_UnresolvableFailsClosed(t *testing.T) {
	v := NewVerifier(StaticIP("198.51.100.1"), &fakeResolver{records: map[string][]string{}})

	res := v.Verify(context.Background(), "missing.example.com")

	assert.False(t, res.Matches)
	assert.Empty(t, res.ObservedIP)
	assert.Contains(t, res.Reason, "no such host")
}

func TestVerify_ServerIPUnknownFailsClosed(t *testing.T) {
	ips := &mockIPSource{}
	ips.On("PublicIP", mock.Anything).Return("", errors.New("network unreachable")).Once()
	v := NewVerifier(ips, &fakeResolver{records: map[string][]string{
		"example.com": {"10.0.0.5"},
	}})

	res := v.Verify(context.Background(), "example.com")

	assert.False(t, res.Matches)
	assert.Contains(t, res.Reason, "determine server IP")
	ips.AssertExpectations(t)
}

func TestVerify_AsksForServerIPEveryTime(t *testing.T) {
	ips := &mockIPSource{}
	ips.On("PublicIP", mock.Anything).Return("10.0.0.5", nil).Twice()
	v := NewVerifier(ips, &fakeResolver{records: map[string][]string{
		"example.com": {"10.0.0.5"},
	}})

	assert.True(t, v.Verify(context.Background(), "example.com").Matches)
	assert.True(t, v.Verify(context.Background(), "example.com").Matches)
	ips.AssertNumberOfCalls(t, "PublicIP", 2)
}

func TestResolveIP(t *testing.T) {
	v := NewVerifier(StaticIP("10.0.0.5"), &fakeResolver{records: map[string][]string{
		"example.com": {"10.0.0.7"},
	}})

	assert.Equal(t, "10.0.0.7", v.ResolveIP(context.Background(), "example.com"))
	assert.Equal(t, "", v.ResolveIP(context.Background(), "nope.example.com"))
}

func TestStaticIP_Invalid(t *testing.T) {
	_, err := StaticIP("not-an-ip").PublicIP(context.Background())
	require.Error(t, err)
}

func TestHTTPIPSource_FetchAndCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprintln(w, "198.51.100.1")
	}))
	defer srv.Close()

	src := NewHTTPIPSource(srv.URL)

	ip, err := src.PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", ip)

	ip, err = src.PublicIP(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", ip)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHTTPIPSource_GarbageIsPermanent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, "<html>rate limited</html>")
	}))
	defer srv.Close()

	src := NewHTTPIPSource(srv.URL)

	_, err := src.PublicIP(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHTTPIPSource_BreakerOpensAfterFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src := NewHTTPIPSource(srv.URL)
	src.MaxRetries = 0

	for i := 0; i < 3; i++ {
		_, err := src.PublicIP(context.Background())
		require.Error(t, err)
	}
	_, err := src.PublicIP(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suspended")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}
