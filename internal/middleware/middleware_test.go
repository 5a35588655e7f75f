package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okHandler(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"code": 200, "user": GetUsername(c)}) }

func withJWTConfig(t *testing.T, cfg *JWTConfig) {
	SetJWTConfig(cfg)
	t.Cleanup(func() { SetJWTConfig(DefaultJWTConfig()) })
}

// ==================== JWT ====================

func TestJWTAuth_DisabledWithoutSecret(t *testing.T) {
	withJWTConfig(t, DefaultJWTConfig())

	r := gin.New()
	r.GET("/x", JWTAuth(), okHandler)

	w := performRequest(r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := GenerateAccessToken("admin", RoleAdmin)
	assert.Error(t, err)
}

func TestJWTAuth_ValidatesBearerToken(t *testing.T) {
	withJWTConfig(t, &JWTConfig{SecretKey: "s3cret", AccessTokenTTL: time.Hour, Issuer: "moysklad-sync"})

	r := gin.New()
	r.GET("/x", JWTAuth(), okHandler)

	token, err := GenerateAccessToken("alice", RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Token " + token, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := performRequest(r, http.MethodGet, "/x", headers)
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user":"alice"`)
			}
		})
	}
}

func TestParseToken_RejectsOtherSecretAndExpired(t *testing.T) {
	withJWTConfig(t, &JWTConfig{SecretKey: "one", AccessTokenTTL: time.Hour, Issuer: "moysklad-sync"})
	token, err := GenerateAccessToken("bob", RoleAdmin)
	require.NoError(t, err)

	SetJWTConfig(&JWTConfig{SecretKey: "two", AccessTokenTTL: time.Hour, Issuer: "moysklad-sync"})
	_, err = ParseToken(token)
	assert.Error(t, err)

	SetJWTConfig(&JWTConfig{SecretKey: "two", AccessTokenTTL: -time.Minute, Issuer: "moysklad-sync"})
	expired, err := GenerateAccessToken("bob", RoleAdmin)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)
}

// ==================== 限流 ====================

func TestSyncRateLimiter_Check(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewSyncRateLimiter()
	limiter.now = func() time.Time { return now }

	key := GlobalSyncKey(SyncTypeInventory)
	assert.True(t, limiter.Check(key, 30*time.Second).Allowed)

	now = now.Add(10 * time.Second)
	res := limiter.Check(key, 30*time.Second)
	assert.False(t, res.Allowed)
	assert.Equal(t, 20*time.Second, res.RetryAfter)

	assert.True(t, limiter.Check(GlobalSyncKey(SyncTypeOrders), 30*time.Second).Allowed, "keys are independent")

	now = now.Add(20 * time.Second)
	assert.True(t, limiter.Check(key, 30*time.Second).Allowed)

	limiter.Reset(key)
	assert.True(t, limiter.Check(key, 30*time.Second).Allowed)
}

func TestSyncRateLimit_Middleware(t *testing.T) {
	limiter := NewSyncRateLimiter()
	r := gin.New()
	r.POST("/sync", syncRateLimit(limiter, SyncTypeProducts, time.Minute), okHandler)

	assert.Equal(t, http.StatusOK, performRequest(r, http.MethodPost, "/sync", nil).Code)

	w := performRequest(r, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "sync cooling down")
}

func TestGetInterval_Defaults(t *testing.T) {
	assert.Equal(t, time.Minute, GetInterval(SyncTypeProducts))
	assert.Equal(t, 30*time.Second, GetInterval(SyncType("unknown")))
}

func TestFormatRetryMessage(t *testing.T) {
	assert.Equal(t, "sync cooling down, retry in 5 s", formatRetryMessage(4*time.Second))
	assert.Equal(t, "sync cooling down, retry in 2 min", formatRetryMessage(119*time.Second))
	assert.Equal(t, "sync cooling down, retry in 1 min 30 s", formatRetryMessage(89*time.Second))
}

// ==================== Webhook 密钥 ====================

func TestWebhookSecret(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret(func(h string) bool { return h == "abc" }), okHandler)

	w := performRequest(r, http.MethodPost, "/hook", map[string]string{WebhookSecretHeader: "abc"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(r, http.MethodPost, "/hook", map[string]string{WebhookSecretHeader: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performRequest(r, http.MethodPost, "/hook", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
