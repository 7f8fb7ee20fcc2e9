package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

func TestRequestContext(t *testing.T) {
	var gotID, gotIP, gotUA string
	handler := RequestContext(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = contextkeys.GetRequestID(r.Context())
		gotIP = contextkeys.GetClientIP(r.Context())
		gotUA = contextkeys.GetUserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("User-Agent", "tenantguard-test")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, gotID)
	assert.Equal(t, gotID, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "192.0.2.10", gotIP)
	assert.Equal(t, "tenantguard-test", gotUA)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", gotID)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "198.51.100.4:443", "198.51.100.4"},
		{"remote addr without port", nil, "198.51.100.4", "198.51.100.4"},
		{"forwarded for first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.2:80", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
