package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClientDefaults(t *testing.T) {
	client := NewHTTPClient(Options{})
	assert.Equal(t, defaultTimeout, client.Timeout)

	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	require.NotNil(t, tr.TLSClientConfig)
	assert.False(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.NotNil(t, tr.DialContext)
}

func TestNewHTTPClientOptions(t *testing.T) {
	client := NewHTTPClient(Options{
		Timeout:            2 * time.Second,
		InsecureSkipVerify: true,
		DisableDNSCache:    true,
	})
	assert.Equal(t, 2*time.Second, client.Timeout)

	tr := client.Transport.(*http.Transport)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)
	assert.Nil(t, tr.DialContext)
}

func TestClientRefusesRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(Options{}).Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect")
}

func TestDialContextWithCacheLiteralIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(Options{}).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestDialContextWithCacheBadAddress(t *testing.T) {
	_, err := DialContextWithCache(context.Background(), "tcp", "missing-port")
	assert.Error(t, err)
}

func TestSetDNSCacheTTL(t *testing.T) {
	t.Cleanup(func() { SetDNSCacheTTL(defaultDNSCacheTTL) })

	SetDNSCacheTTL(time.Minute)
	resolverMutex.RLock()
	assert.Equal(t, time.Minute, resolverRefreshTTL)
	resolverMutex.RUnlock()

	SetDNSCacheTTL(0)
	resolverMutex.RLock()
	assert.Equal(t, defaultDNSCacheTTL, resolverRefreshTTL)
	resolverMutex.RUnlock()
}
