package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/config"
	"github.com/iliyamo/slot-reservation/internal/utils"
)

const testSecret = "test-secret"

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(t *testing.T, userID uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, userID, role, 5)
	if err != nil {
		t.Fatalf("NewAccessToken() error = %v", err)
	}
	return "Bearer " + tok.Token
}

func identityEcho() *echo.Echo {
	e := echo.New()
	g := e.Group("", JWTAuth(testSecret))
	g.GET("/me", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"id": UserID(c), "role": Role(c)})
	})
	g.GET("/owner", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole("OWNER"))
	return e
}

func TestJWTAuth(t *testing.T) {
	e := identityEcho()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", bearer(t, 42, "CUSTOMER"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(e, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, 42, "CUSTOMER"))
	var body struct {
		ID   uint64 `json:"id"`
		Role string `json:"role"`
	}
	if err := json.Unmarshal(serve(e, req).Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ID != 42 || body.Role != "CUSTOMER" {
		t.Errorf("identity = %+v", body)
	}
}

func TestJWTAuthRejectsOtherSecret(t *testing.T) {
	tok, _ := utils.NewAccessToken("other", 1, "CUSTOMER", 5)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	if rec := serve(identityEcho(), req); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	e := identityEcho()
	for role, want := range map[string]int{"OWNER": http.StatusNoContent, "CUSTOMER": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/owner", nil)
		req.Header.Set("Authorization", bearer(t, 7, role))
		if rec := serve(e, req); rec.Code != want {
			t.Errorf("role %s: status = %d, want %d", role, rec.Code, want)
		}
	}
}

func TestUserIDConversions(t *testing.T) {
	e := echo.New()
	for _, v := range []any{uint64(9), float64(9), "9"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set(ContextUserID, v)
		if got := UserID(c); got != 9 {
			t.Errorf("UserID(%T) = %d", v, got)
		}
	}
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if UserID(c) != 0 || identityKey(c) != "anon" {
		t.Error("anonymous request should have no identity")
	}
}

func TestTokenBucketLocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, nil, nil))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = serve(e, req)
		codes[i] = last.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	if rec := serve(e, req); rec.Code != http.StatusOK {
		t.Errorf("other ip status = %d, want 200", rec.Code)
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	e := echo.New()
	e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil, nil))
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
	for i := 0; i < 5; i++ {
		if rec := serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/cart", nil)
	req.RemoteAddr = "10.0.0.1:1"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/cart")
	c.Set(ContextUserID, uint64(3))

	tests := map[string]string{
		"ip":            "rl:ip:10.0.0.1",
		"user":          "rl:user:3",
		"route":         "rl:route:POST /v1/cart",
		"ip_user_route": "rl:ip:10.0.0.1:user:3:route:POST /v1/cart",
	}
	for strategy, want := range tests {
		got := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
		if got != want {
			t.Errorf("%s: key = %q, want %q", strategy, got, want)
		}
	}
}

func TestRequestLogging(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogging(nil))
	e.GET("/id", func(c echo.Context) error { return c.String(http.StatusOK, RequestID(c)) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/id", nil))
	id := rec.Header().Get(HeaderRequestID)
	if id == "" || rec.Body.String() != id {
		t.Errorf("request id header %q, body %q", id, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	if rec := serve(e, req); rec.Header().Get(HeaderRequestID) != "abc-123" {
		t.Errorf("caller id not kept: %q", rec.Header().Get(HeaderRequestID))
	}
}

func TestRecovery(t *testing.T) {
	e := echo.New()
	e.Use(Recovery(nil))
	e.GET("/boom", func(c echo.Context) error { panic(errors.New("boom")) })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["code"] != "STORE_ERROR" || body["error"] != "internal server error" {
		t.Errorf("body = %v", body)
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := packEntry(http.StatusOK, hdr, []byte(`{"ok":true}`))
	if err != nil {
		t.Fatal(err)
	}
	status, got, body, ok := unpackEntry(bs)
	if !ok || status != http.StatusOK || got.Get("Content-Type") != "application/json" || string(body) != `{"ok":true}` {
		t.Errorf("unpack = %d %v %q %v", status, got, body, ok)
	}
	if _, _, _, ok := unpackEntry([]byte{0, 0}); ok {
		t.Error("short entry should not decode")
	}
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	e := echo.New()
	calls := 0
	e.Use(NewRedisCache(config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}, nil, nil))
	e.GET("/slots", func(c echo.Context) error { calls++; return c.String(http.StatusOK, "x") })
	serve(e, httptest.NewRequest(http.MethodGet, "/slots", nil))
	serve(e, httptest.NewRequest(http.MethodGet, "/slots", nil))
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}
