package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := requestIDMiddleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "custom-id-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "custom-id-123", rr.Header().Get("X-Request-ID"))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"deny when unconfigured", nil, "http://localhost:3000", ""},
		{"wildcard", []string{"*"}, "http://localhost:3000", "http://localhost:3000"},
		{"listed origin", []string{"http://ops.example"}, "http://ops.example", "http://ops.example"},
		{"unlisted origin", []string{"http://ops.example"}, "http://evil.example", ""},
		{"no origin header", []string{"*"}, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/health", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			corsMiddleware(okHandler(), tt.allowed).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest("OPTIONS", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	corsMiddleware(okHandler(), nil).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestRecoverMiddleware(t *testing.T) {
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") })

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		recoverMiddleware(boom, testLog()).ServeHTTP(rr, httptest.NewRequest("GET", "/health", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rr.Body.String())
}

func TestStatusWriter(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, sw.status)

	// httptest.ResponseRecorder cannot be hijacked.
	_, _, err := sw.Hijack()
	assert.Error(t, err)
}

func TestWithMiddleware(t *testing.T) {
	handler := withMiddleware(okHandler(), testLog(), []string{"http://ops.example"})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://ops.example")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "http://ops.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
