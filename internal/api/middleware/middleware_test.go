package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func authRouter(keys []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(APIKeyAuth(func() []string { return keys }))
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return engine
}

func TestAPIKeyAuth_Bearer(t *testing.T) {
	router := authRouter([]string{"sk-good"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer sk-good")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAPIKeyAuth_XAPIKey(t *testing.T) {
	router := authRouter([]string{"sk-good"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("x-api-key", "sk-good")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestAPIKeyAuth_Rejections(t *testing.T) {
	router := authRouter([]string{"sk-good"})

	cases := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"missing key", func(r *http.Request) {}},
		{"wrong key", func(r *http.Request) { r.Header.Set("x-api-key", "sk-bad") }},
		{"bare token without bearer", func(r *http.Request) { r.Header.Set("Authorization", "sk-good") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			tc.setup(req)
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d", rec.Code)
			}
			if got := gjson.Get(rec.Body.String(), "error.type").String(); got != "authentication_error" {
				t.Errorf("error type = %q", got)
			}
		})
	}
}

func TestAPIKeyAuth_OpenWhenNoKeys(t *testing.T) {
	router := authRouter(nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func rateLimitRouter(params *RateLimitParams) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RateLimit(func() RateLimitParams { return *params }))
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return engine
}

func TestRateLimit(t *testing.T) {
	params := &RateLimitParams{Enabled: true, RPS: 1, Burst: 2}
	engine := rateLimitRouter(params)

	var limited int
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		engine.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
			if got := gjson.Get(rec.Body.String(), "error.type").String(); got != "rate_limit_error" {
				t.Errorf("error type = %q", got)
			}
		}
	}
	if limited != 3 {
		t.Errorf("limited %d of 5 with burst 2", limited)
	}

	// A different IP has its own bucket.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("fresh ip status = %d", rec.Code)
	}
}

func TestRateLimit_Reconfigure(t *testing.T) {
	// Disabled at startup, enabled by a config reload.
	params := &RateLimitParams{Enabled: false, RPS: 1, Burst: 1}
	engine := rateLimitRouter(params)

	send := func(ip string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = ip + ":1234"
		engine.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 5; i++ {
		if code := send("10.1.0.1"); code != http.StatusOK {
			t.Fatalf("disabled limiter returned %d", code)
		}
	}

	params.Enabled = true
	if code := send("10.1.0.2"); code != http.StatusOK {
		t.Fatalf("first request after enable = %d", code)
	}
	if code := send("10.1.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("second request after enable = %d, want 429", code)
	}

	// A raised burst applies to buckets created afterwards.
	params.Burst = 10
	var ok int
	for i := 0; i < 5; i++ {
		if send("10.1.0.3") == http.StatusOK {
			ok++
		}
	}
	if ok != 5 {
		t.Errorf("after burst raise, %d of 5 allowed", ok)
	}
}

func TestRequestTracking(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestTracking())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}
	if rec.Header().Get("X-Process-Time") == "" {
		t.Error("X-Process-Time not set")
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-abc" {
		t.Errorf("client request id not honored: %q", got)
	}
}
