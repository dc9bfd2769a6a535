package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alamriomar/moeen/backend/config"
	"github.com/alamriomar/moeen/backend/pkg/jwt"
	"github.com/alamriomar/moeen/backend/pkg/redis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJWT() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{JWTSecret: "middleware-test-secret-0123", AccessTokenTTL: time.Hour})
}

func TestJWTAuth_InjectsOwner(t *testing.T) {
	mgr := newJWT()
	token, err := mgr.GenerateAccessToken("lecturer-9", 0)
	if err != nil {
		t.Fatalf("签发 token 应成功: %v", err)
	}

	var owner string
	r := gin.New()
	r.GET("/me", JWTAuth(mgr), func(c *gin.Context) {
		owner = c.GetString(ContextOwnerID)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if owner != "lecturer-9" {
		t.Errorf("期望 owner_id=lecturer-9，实际=%q", owner)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	mgr := newJWT()
	other := jwt.NewManager(&config.AuthConfig{JWTSecret: "another-secret-0123456789", AccessTokenTTL: time.Hour})
	foreign, _ := other.GenerateAccessToken("lecturer-9", 0)

	cases := map[string]string{
		"缺少认证头":  "",
		"非Bearer": "Basic abc",
		"签名不匹配":  "Bearer " + foreign,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			r := gin.New()
			r.GET("/me", JWTAuth(mgr), func(c *gin.Context) { called = true })

			req := httptest.NewRequest("GET", "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			if called {
				t.Error("认证失败时不应进入后续处理器")
			}
		})
	}
}

func TestRateLimit_NilClientPassesThrough(t *testing.T) {
	r := gin.New()
	r.POST("/w", RateLimit(nil, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/w", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求 expected 200, got %d", i+1, w.Code)
		}
	}
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redis.NewFromClient(rdb, zap.NewNop()), mr
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	rdb, _ := newRedis(t)
	r := gin.New()
	r.POST("/w", RateLimit(rdb, 2, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/w", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求 expected 200, got %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/w", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("超限请求 expected 429, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"code":10004`) {
		t.Errorf("响应应携带业务码 10004: %s", w.Body.String())
	}
}

func TestRateLimit_CountsPerOwner(t *testing.T) {
	rdb, _ := newRedis(t)
	r := gin.New()
	r.POST("/w",
		func(c *gin.Context) { c.Set(ContextOwnerID, c.GetHeader("X-Owner")) },
		RateLimit(rdb, 1, time.Minute),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	send := func(owner string) int {
		req := httptest.NewRequest("POST", "/w", nil)
		req.Header.Set("X-Owner", owner)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("a"); code != http.StatusOK {
		t.Fatalf("owner a 首次请求 expected 200, got %d", code)
	}
	if code := send("b"); code != http.StatusOK {
		t.Errorf("owner b 不应受 owner a 计数影响, got %d", code)
	}
	if code := send("a"); code != http.StatusTooManyRequests {
		t.Errorf("owner a 第二次请求 expected 429, got %d", code)
	}
}

func TestRateLimit_RedisDownPassesThrough(t *testing.T) {
	rdb, mr := newRedis(t)
	mr.Close()

	r := gin.New()
	r.POST("/w", RateLimit(rdb, 1, time.Minute), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("POST", "/w", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Redis 不可用时应降级放行, 第 %d 次 got %d", i+1, w.Code)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodyLimit(16))
	r.POST("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/b", strings.NewReader(strings.Repeat("x", 32))))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/b", strings.NewReader("small")))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "trace-123" {
		t.Errorf("应沿用请求头中的 ID，实际=%q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("a", requestIDMaxLen+1))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Errorf("超长 ID 应被替换为 UUID，实际=%q", got)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173/"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("预检请求 expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Error("允许的来源应回写 Allow-Origin")
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("未授权来源不应回写 Allow-Origin")
	}
}
