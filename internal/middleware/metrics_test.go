package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		user, pass string
		setAuth    bool
		reqUser    string
		reqPass    string
		wantStatus int
	}{
		{"disabled when unconfigured", "", "", false, "", "", http.StatusOK},
		{"valid credentials", "prom", "s3cret", true, "prom", "s3cret", http.StatusOK},
		{"wrong password", "prom", "s3cret", true, "prom", "nope", http.StatusUnauthorized},
		{"wrong username", "prom", "s3cret", true, "admin", "s3cret", http.StatusUnauthorized},
		{"missing header", "prom", "s3cret", false, "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewMetricsAuthMiddleware(tt.user, tt.pass).Handler(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.reqUser, tt.reqPass)
			}
			rec := serve(h, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="metrics"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
