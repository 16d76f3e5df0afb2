package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		isSecure    bool
		path        string
		wantHSTS    bool
		wantNoStore bool
	}{
		{"production API request", true, "/api/subscription", true, true},
		{"development API request", false, "/api/subscription", false, true},
		{"health check", true, "/health", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewSecurityHeadersMiddleware(tt.isSecure).Handler(okHandler(&called))

			rec := serve(h, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.True(t, called)
			hdr := rec.Header()
			assert.Equal(t, "DENY", hdr.Get("X-Frame-Options"))
			assert.Equal(t, "nosniff", hdr.Get("X-Content-Type-Options"))
			assert.Equal(t, "no-referrer", hdr.Get("Referrer-Policy"))
			assert.Contains(t, hdr.Get("Content-Security-Policy"), "default-src 'none'")
			assert.Contains(t, hdr.Get("Permissions-Policy"), "camera=()")
			assert.Equal(t, tt.wantHSTS, hdr.Get("Strict-Transport-Security") != "")
			assert.Equal(t, tt.wantNoStore, hdr.Get("Cache-Control") == "no-store")
		})
	}
}
