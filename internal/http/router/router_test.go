package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/youjaegwon/coinwatch/internal/security"
)

func newRouterTestDeps() Dependencies {
	return Dependencies{
		JWTManager:       security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456"),
		AuthRateLimitRPM: 1000,
		APIRateLimitRPM:  1000,
	}
}

func perform(r http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestRouterLivenessProbe(t *testing.T) {
	r := NewRouter(newRouterTestDeps())
	rr := perform(r, http.MethodGet, "/health/live", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterReadinessSkipsUnconfiguredChecks(t *testing.T) {
	r := NewRouter(newRouterTestDeps())
	rr := perform(r, http.MethodGet, "/health/ready", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	data, _ := body["data"].(map[string]any)
	checks, _ := data["checks"].(map[string]any)
	if checks["database"] != "skipped" || checks["redis"] != "skipped" {
		t.Fatalf("expected skipped checks, got %v", checks)
	}
}

func TestRouterReadinessReportsDownDependency(t *testing.T) {
	deps := newRouterTestDeps()
	deps.DBPinger = func(ctx context.Context) error { return errors.New("db down") }
	r := NewRouter(deps)

	rr := perform(r, http.MethodGet, "/health/ready", nil, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	if success, _ := body["success"].(bool); success {
		t.Fatal("expected failure envelope")
	}
}

func TestRouterVersionEndpoint(t *testing.T) {
	r := NewRouter(newRouterTestDeps())
	rr := perform(r, http.MethodGet, "/version", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeEnvelope(t, rr)
	data, _ := body["data"].(map[string]any)
	if data["app"] != "coinwatch" || data["go"] == nil {
		t.Fatalf("expected version payload, got %v", data)
	}
}

func TestRouterProtectedRoutesRequireToken(t *testing.T) {
	r := NewRouter(newRouterTestDeps())
	for _, target := range []string{"/api/v1/me", "/api/v1/me/sessions"} {
		rr := perform(r, http.MethodGet, target, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rr.Code)
		}
	}
}

func TestRouterMarketRoutesAbsentWithoutHandler(t *testing.T) {
	r := NewRouter(newRouterTestDeps())
	rr := perform(r, http.MethodGet, "/api/v1/markets", nil, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when market upstream is not configured, got %d", rr.Code)
	}
}

func TestRouterAuthRateLimit(t *testing.T) {
	deps := newRouterTestDeps()
	deps.AuthRateLimitRPM = 2
	r := NewRouter(deps)

	var lastCode int
	for i := 0; i < 3; i++ {
		rr := perform(r, http.MethodPost, "/api/v1/auth/login", nil, `{"email":"","password":""}`)
		lastCode = rr.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", lastCode)
	}
}
