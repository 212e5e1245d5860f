package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/middleware"
	"rmashqip/internal/postcache"
	"rmashqip/internal/session"
)

type SettingsHandler struct {
	log zerolog.Logger
}

func NewSettingsHandler(log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{log: log}
}

// Get 本地保存的偏好设置，缺失时为默认值
func (h *SettingsHandler) Get(c *gin.Context) {
	cache := middleware.CurrentClient(c).Posts
	JSON(c, http.StatusOK, gin.H{"settings": cache.LoadSettings(c.Request.Context())})
}

func (h *SettingsHandler) Update(c *gin.Context) {
	cc := middleware.CurrentClient(c)

	settings := postcache.DefaultSettings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Cilësimet nuk janë të vlefshme")
		return
	}
	if err := settings.Validate(); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Cilësimet nuk janë të vlefshme")
		return
	}

	// 持久化失败时缓存会退回内存模式，设置在本次会话内仍然有效
	if err := cc.Posts.SaveSettings(c.Request.Context(), settings); err != nil {
		h.log.Warn().Err(err).Msg("save settings failed")
	}
	cc.Session.Notify(session.Notification{Title: "Cilësimet u ruajtën"})
	JSON(c, http.StatusOK, gin.H{"settings": settings})
}
