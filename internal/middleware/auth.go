package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rmashqip/internal/auth"
	"rmashqip/internal/client"
	"rmashqip/internal/models"
)

const (
	CheckUserKey = "user"
	ClientKey    = "client"

	clientIDSessionKey = "client_id"
	readyTimeout       = 6 * time.Second
)

// TokenVerifier 校验 Bearer 访问令牌，由 *auth.Provider 实现
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.AccessClaims, error)
}

// LoadClient 识别客户端并挂载其会话与本地缓存
// Bearer 令牌中的客户端 ID 优先，否则使用 cookie 会话中的 client_id
func LoadClient(registry *client.Registry, verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := bearerClientID(c, verifier)
		if clientID == "" {
			session := sessions.Default(c)
			if id, ok := session.Get(clientIDSessionKey).(string); ok && id != "" {
				clientID = id
			} else {
				clientID = uuid.NewString()
				session.Set(clientIDSessionKey, clientID)
				_ = session.Save()
			}
		}

		cc := registry.Get(c.Request.Context(), clientID)
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		_ = cc.Session.WaitReady(ctx)
		cancel()

		c.Set(ClientKey, cc)
		if profile := cc.Session.Profile(); profile != nil && cc.Session.User() != nil {
			c.Set(CheckUserKey, profile)
		}
		c.Next()
	}
}

func bearerClientID(c *gin.Context, verifier TokenVerifier) string {
	if verifier == nil {
		return ""
	}
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ""
	}
	claims, err := verifier.VerifyAccessToken(token)
	if err != nil {
		return ""
	}
	return claims.ClientID
}

// CurrentClient 当前请求的客户端上下文
func CurrentClient(c *gin.Context) *client.Context {
	v, ok := c.Get(ClientKey)
	if !ok {
		return nil
	}
	cc, _ := v.(*client.Context)
	return cc
}

// CurrentProfile 当前登录用户的资料，未登录返回 nil
func CurrentProfile(c *gin.Context) *models.Profile {
	v, ok := c.Get(CheckUserKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Profile)
	return p
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentProfile(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireModerator 版主或管理员
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentProfile(c).IsModerator() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentProfile(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
