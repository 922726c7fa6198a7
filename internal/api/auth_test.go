package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"xstation/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAuth(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "desk", Extra: "desk-extra", Permissions: []string{permReadTimers, permWriteBookings}},
				{Key: "admin", Extra: "admin-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewHTTPAuth(cfg).Wrap(ok)

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		extra  string
		want   int
	}{
		{"health without key", http.MethodGet, "/healthz", "", "", http.StatusNoContent},
		{"missing headers", http.MethodGet, "/api/v1/timers", "", "", http.StatusUnauthorized},
		{"unknown key", http.MethodGet, "/api/v1/timers", "nope", "x", http.StatusUnauthorized},
		{"wrong extra", http.MethodGet, "/api/v1/timers", "desk", "wrong", http.StatusUnauthorized},
		{"read timers", http.MethodGet, "/api/v1/timers", "desk", "desk-extra", http.StatusNoContent},
		{"catalog", http.MethodGet, "/api/v1/catalog/rooms", "desk", "desk-extra", http.StatusNoContent},
		{"end booking", http.MethodPost, "/api/v1/bookings/4/end", "desk", "desk-extra", http.StatusNoContent},
		{"journal denied", http.MethodGet, "/api/v1/journal", "desk", "desk-extra", http.StatusForbidden},
		{"report denied", http.MethodGet, "/api/v1/reports/auto-end.xlsx", "desk", "desk-extra", http.StatusForbidden},
		{"allow-all key", http.MethodGet, "/api/v1/journal", "admin", "admin-extra", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("x-api-key", tt.key)
			}
			if tt.extra != "" {
				req.Header.Set("x-api-extra", tt.extra)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHTTPAuth_RateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2}}
	handler := NewHTTPAuth(cfg).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/timers", nil)
		req.Header.Set("x-api-key", "client-a")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other clients have their own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/v1/timers", nil)
	req.Header.Set("x-api-key", "client-b")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAuth_RateLimitPerScope(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}}
	handler := NewHTTPAuth(cfg).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	serve := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("x-api-key", "desk")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve(http.MethodGet, "/api/v1/timers"))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodGet, "/api/v1/catalog/rooms"))
	// опрос таймеров не мешает завершить бронь
	assert.Equal(t, http.StatusOK, serve(http.MethodPost, "/api/v1/bookings/1/end"))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost, "/api/v1/orders"))
}

func TestScopeLimiter(t *testing.T) {
	assert.Nil(t, newScopeLimiter(config.APIRateLimitConfig{}))
	var disabled *scopeLimiter
	assert.True(t, disabled.allow("a", permReadTimers))

	l := newScopeLimiter(config.APIRateLimitConfig{RPS: 10})
	assert.Same(t, l.bucket("a", permReadTimers), l.bucket("a", permReadTimers))
	assert.NotSame(t, l.bucket("a", permReadTimers), l.bucket("a", permWriteBookings))
	assert.NotSame(t, l.bucket("a", permReadTimers), l.bucket("b", permReadTimers))
	assert.Equal(t, defaultBurst, l.bucket("a", permReadTimers).Burst())
}
