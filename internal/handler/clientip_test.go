package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyResolver_Resolve(t *testing.T) {
	resolver, err := NewProxyResolver([]string{"10.0.0.0/8", " 192.0.2.10 "})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct client",
			remoteAddr: "203.0.113.7:5555",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from untrusted peer is ignored",
			remoteAddr: "203.0.113.7:5555",
			headers:    map[string]string{"X-Forwarded-For": "10.0.0.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "real ip header from untrusted peer is ignored",
			remoteAddr: "203.0.113.7:5555",
			headers:    map[string]string{"X-Real-IP": "198.51.100.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "spoofed prefix before the real client",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.4, 10.9.9.9"},
			want:       "198.51.100.4",
		},
		{
			name:       "single trusted address",
			remoteAddr: "192.0.2.10:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.5"},
			want:       "198.51.100.5",
		},
		{
			name:       "malformed hop stops the walk",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.4, not-an-ip"},
			want:       "10.1.2.3",
		},
		{
			name:       "real ip behind trusted proxy",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Real-IP": "198.51.100.6"},
			want:       "198.51.100.6",
		},
		{
			name:       "all hops trusted",
			remoteAddr: "10.1.2.3:80",
			headers:    map[string]string{"X-Forwarded-For": "10.4.4.4, 10.5.5.5"},
			want:       "10.4.4.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/trial/start", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, resolver.Resolve(req))
		})
	}
}

func TestProxyResolver_SpoofedHeadersShareOneAddress(t *testing.T) {
	resolver, err := NewProxyResolver(nil)
	require.NoError(t, err)

	var seen []string
	h := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, ClientIP(r))
	}))

	for _, spoofed := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		req := httptest.NewRequest(http.MethodPost, "/api/trial/start", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("X-Forwarded-For", spoofed)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, []string{"203.0.113.7", "203.0.113.7", "203.0.113.7", "203.0.113.7"}, seen)
}

func TestNewProxyResolver_Invalid(t *testing.T) {
	for _, raw := range []string{"10.0.0.0/33", "proxy.internal"} {
		_, err := NewProxyResolver([]string{raw})
		assert.Error(t, err, raw)
	}
}

func TestClientIP_WithoutResolver(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	assert.Equal(t, "203.0.113.7", ClientIP(req))
}
