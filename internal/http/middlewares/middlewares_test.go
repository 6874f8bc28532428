package middlewares

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/snsoauth/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("a"), mark("b"), mark("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestWithRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		WithRequestID(), WithLogging(), WithRecover())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "panic recovered", body["detail"])
	assert.NotEmpty(t, body["request_id"])
}

func TestSecurityHeaders(t *testing.T) {
	h := Chain(okHandler(), WithSecurityHeaders(), WithNoStore())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	h.ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRateLimit(t *testing.T) {
	h := WithRateLimit(RateLimitConfig{Limiter: rate.NewMemoryLimiter(2, time.Hour), KeyFunc: IPOnlyRateKey})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/oauth2/token", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	// otra IP tiene su propia ventana
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/oauth2/token", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (rate.Result, error) {
	return rate.Result{}, errors.New("redis down")
}

func TestRateLimit_FailOpenAndWhitelist(t *testing.T) {
	h := WithRateLimit(RateLimitConfig{Limiter: brokenLimiter{}})(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	h = WithRateLimit(RateLimitConfig{Limiter: rate.NewMemoryLimiter(0, time.Minute), Whitelist: []string{"127.0.0.1"}})(okHandler())
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "127.0.0.1, 10.1.1.1")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCSRF(t *testing.T) {
	h := WithCSRF(CSRFConfig{})(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "t1"})
	req.Header.Set("X-CSRF-Token", "t2")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CSRF_TOKEN")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(url.Values{"csrf_token": {"t1"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "t1"})
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWithBearer(t *testing.T) {
	var got Bearer
	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetBearer(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		style  string
		build  func() *http.Request
		status int
		token  string
	}{
		{"query default", "", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/r?access_token=q1&openid=o1", nil)
		}, http.StatusNoContent, "q1"},
		{"query ignores header", TokenInQuery, func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/r", nil)
			req.Header.Set("Authorization", "Bearer h1")
			return req
		}, http.StatusBadRequest, ""},
		{"header", TokenInHeader, func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/r?openid=o1", nil)
			req.Header.Set("Authorization", "bearer h1")
			return req
		}, http.StatusNoContent, "h1"},
		{"body", TokenInBody, func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/r", strings.NewReader("access_token=b1&openid=o1"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			return req
		}, http.StatusNoContent, "b1"},
		{"auto prefers header", TokenAuto, func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/r?access_token=q1&openid=o1", nil)
			req.Header.Set("Authorization", "Bearer h1")
			return req
		}, http.StatusNoContent, "h1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got = Bearer{}
			rec := httptest.NewRecorder()
			WithBearer(tc.style)(capture).ServeHTTP(rec, tc.build())
			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusBadRequest {
				assert.JSONEq(t, `{"error":"invalid_request","error_description":"access_token is required"}`, rec.Body.String())
				return
			}
			assert.Equal(t, tc.token, got.AccessToken)
			assert.Equal(t, "o1", got.OpenID)
		})
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := recorderFor(rec)
	sr.WriteHeader(http.StatusTeapot)
	sr.WriteHeader(http.StatusOK)
	_, _ = sr.Write([]byte("hi"))
	assert.Equal(t, http.StatusTeapot, sr.status)
	assert.Equal(t, 2, sr.bytes)
	assert.Same(t, sr, recorderFor(sr))
}
