package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/auth"
	"rmashqip/internal/middleware"
	"rmashqip/internal/session"
)

// AuthBackend 第三方登录回调和令牌刷新，由 *auth.Provider 实现
type AuthBackend interface {
	CompleteOAuth(ctx context.Context, provider, state, code string) (*auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Session, error)
}

type AuthHandler struct {
	backend AuthBackend
	log     zerolog.Logger
}

// NewAuthHandler backend 为 nil 时回调直接返回首页
func NewAuthHandler(backend AuthBackend, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{backend: backend, log: log}
}

type signInRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type signUpRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
	FullName string `json:"full_name" form:"full_name"`
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Plotësoni email-in dhe fjalëkalimin")
		return
	}

	store := middleware.CurrentClient(c).Session
	if !store.SignInWithPassword(c.Request.Context(), req.Email, req.Password) {
		JSON(c, http.StatusUnauthorized, gin.H{"error": "sign_in_failed"})
		return
	}
	JSON(c, http.StatusOK, sessionPayload(store))
}

// SignUp 注册后需要再登录
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Plotësoni email-in dhe fjalëkalimin")
		return
	}

	store := middleware.CurrentClient(c).Session
	if !store.SignUpWithPassword(c.Request.Context(), req.Email, req.Password, req.FullName) {
		JSON(c, http.StatusBadRequest, gin.H{"error": "sign_up_failed"})
		return
	}
	JSON(c, http.StatusCreated, gin.H{"ok": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email" form:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Code     string `json:"code" form:"code" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// ForgotPassword 发送重置验证码，不透露邮箱是否注册
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Plotësoni email-in")
		return
	}

	store := middleware.CurrentClient(c).Session
	if !store.RequestPasswordReset(c.Request.Context(), req.Email) {
		JSON(c, http.StatusBadRequest, gin.H{"error": "reset_request_failed"})
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

// ResetPassword 用验证码设置新密码，之后需要重新登录
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Plotësoni email-in, kodin dhe fjalëkalimin")
		return
	}

	store := middleware.CurrentClient(c).Session
	if !store.ResetPassword(c.Request.Context(), req.Email, req.Code, req.Password) {
		JSON(c, http.StatusBadRequest, gin.H{"error": "reset_failed"})
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

// OAuth 跳转到第三方授权页
func (h *AuthHandler) OAuth(c *gin.Context) {
	store := middleware.CurrentClient(c).Session
	url, ok := store.SignInWithOAuth(c.Request.Context(), c.Param("provider"))
	if !ok {
		JSON(c, http.StatusBadRequest, gin.H{"error": "oauth_unavailable"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback 第三方授权回调；登录事件会推送到发起授权的客户端
func (h *AuthHandler) Callback(c *gin.Context) {
	store := middleware.CurrentClient(c).Session
	provider := c.Param("provider")

	if h.backend == nil {
		store.Notify(session.Notification{Title: "Gabim", Description: "Shërbimi i autentikimit nuk është konfiguruar. Ju lutem kontaktoni administratorin.", Variant: session.VariantDestructive})
		c.Redirect(http.StatusFound, "/")
		return
	}
	if errParam := c.Query("error"); errParam != "" {
		h.log.Info().Str("provider", provider).Str("error", errParam).Msg("oauth denied")
		store.NotifyError("Nuk u arrit lidhja me " + session.ProviderLabel(provider))
		c.Redirect(http.StatusFound, "/")
		return
	}

	if _, err := h.backend.CompleteOAuth(c.Request.Context(), provider, c.Query("state"), c.Query("code")); err != nil {
		h.log.Warn().Err(err).Str("provider", provider).Msg("oauth callback failed")
		if errors.Is(err, auth.ErrEmailNotVerified) {
			store.NotifyError("Email-i i llogarisë " + session.ProviderLabel(provider) + " nuk është verifikuar")
		} else {
			store.NotifyError("Nuk u arrit lidhja me " + session.ProviderLabel(provider))
		}
		c.Redirect(http.StatusFound, "/")
		return
	}

	store.Notify(session.Notification{Title: "Mirësevini!", Description: "Jeni kyçur me sukses"})
	c.Redirect(http.StatusFound, "/")
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	store := middleware.CurrentClient(c).Session
	if !store.SignOut(c.Request.Context()) {
		JSON(c, http.StatusInternalServerError, gin.H{"error": "sign_out_failed"})
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 用刷新令牌换取新的访问令牌
func (h *AuthHandler) Refresh(c *gin.Context) {
	if h.backend == nil {
		JSON(c, http.StatusServiceUnavailable, gin.H{"error": "auth_not_configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSON(c, http.StatusBadRequest, gin.H{"error": "invalid_input"})
		return
	}

	sess, err := h.backend.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.log.Debug().Err(err).Msg("refresh failed")
		JSON(c, http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
		return
	}
	JSON(c, http.StatusOK, gin.H{"session": sess})
}

// Session 当前客户端的登录状态
func (h *AuthHandler) Session(c *gin.Context) {
	store := middleware.CurrentClient(c).Session
	JSON(c, http.StatusOK, sessionPayload(store))
}

func sessionPayload(store *session.Store) gin.H {
	return gin.H{
		"state":        store.State().String(),
		"loading":      store.Loading(),
		"user":         store.User(),
		"session":      store.Session(),
		"profile":      store.Profile(),
		"is_admin":     store.IsAdmin(),
		"is_moderator": store.IsModerator(),
	}
}
