package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ==================== JWT 配置 ====================

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL time.Duration
	Issuer         string
}

// DefaultJWTConfig has no secret, which leaves the admin API open.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		AccessTokenTTL: 12 * time.Hour,
		Issuer:         "moysklad-sync",
	}
}

var jwtConfig = DefaultJWTConfig()

func SetJWTConfig(cfg *JWTConfig) {
	jwtConfig = cfg
}

// AuthEnabled reports whether a signing secret is configured.
func AuthEnabled() bool {
	return jwtConfig.SecretKey != ""
}

// ==================== Claims 定义 ====================

// AdminClaims identify an operator of the admin API.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

const RoleAdmin = "admin"

// ==================== Token 生成 ====================

func GenerateAccessToken(username, role string) (string, error) {
	if !AuthEnabled() {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := &AdminClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtConfig.Issuer,
			Subject:   "access",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(jwtConfig.AccessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtConfig.SecretKey))
}

// ==================== Token 解析 ====================

func ParseToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(jwtConfig.SecretKey), nil
	}, jwt.WithIssuer(jwtConfig.Issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AdminClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// ==================== Gin 中间件 ====================

const (
	ContextKeyUsername = "username"
	ContextKeyRole     = "role"
)

// JWTAuth requires a Bearer access token. Without a configured secret every
// request passes.
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !AuthEnabled() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "authorization header must be Bearer {token}")
			return
		}

		claims, err := ParseToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "token is invalid or expired")
			return
		}
		if claims.Subject != "access" {
			abortUnauthorized(c, "wrong token type")
			return
		}

		c.Set(ContextKeyUsername, claims.Username)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    401,
		"message": msg,
	})
}

// GetUsername is empty when auth is disabled.
func GetUsername(c *gin.Context) string {
	if name, exists := c.Get(ContextKeyUsername); exists {
		return name.(string)
	}
	return ""
}
