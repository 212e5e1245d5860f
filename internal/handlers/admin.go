package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/middleware"
	"rmashqip/internal/models"
	"rmashqip/internal/remote"
	"rmashqip/internal/session"
	"rmashqip/internal/utils"
)

// AdminHandler 管理员与版主操作，权限由路由中间件检查
type AdminHandler struct {
	remote *remote.Client
	cache  *utils.TTLCache[any]
	log    zerolog.Logger
}

func NewAdminHandler(remote *remote.Client, cache *utils.TTLCache[any], log zerolog.Logger) *AdminHandler {
	return &AdminHandler{remote: remote, cache: cache, log: log}
}

func (h *AdminHandler) notify(c *gin.Context, title string) {
	if cc := middleware.CurrentClient(c); cc != nil {
		cc.Session.Notify(session.Notification{Title: title})
	}
}

func (h *AdminHandler) audit(c *gin.Context) *zerolog.Event {
	reqLog := middleware.RequestLogger(c, h.log)
	return reqLog.Info().Str("admin_id", viewerID(c))
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	profiles, err := h.remote.ListProfiles(c.Request.Context(), c.Query("q"), utils.IntOr(c.Query("limit"), 100))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"users": profiles})
}

type roleRequest struct {
	Role string `json:"role" form:"role" binding:"required"`
}

func (h *AdminHandler) SetRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBind(&req); err != nil || !models.ValidRole(req.Role) {
		fail(c, http.StatusBadRequest, "invalid_role", "Roli nuk është i vlefshëm")
		return
	}
	id := c.Param("id")
	if id == viewerID(c) {
		fail(c, http.StatusBadRequest, "self_role", "Nuk mund të ndryshoni rolin tuaj")
		return
	}

	if err := h.remote.SetRole(c.Request.Context(), id, req.Role); err != nil {
		failRemote(c, err)
		return
	}
	h.audit(c).Str("user_id", id).Str("role", req.Role).Msg("role changed")
	h.notify(c, "Roli u përditësua")
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) Ban(c *gin.Context)   { h.setBanned(c, true) }
func (h *AdminHandler) Unban(c *gin.Context) { h.setBanned(c, false) }

func (h *AdminHandler) setBanned(c *gin.Context, banned bool) {
	id := c.Param("id")
	if id == viewerID(c) {
		fail(c, http.StatusBadRequest, "self_ban", "Nuk mund të pezulloni veten")
		return
	}
	if err := h.remote.SetBanned(c.Request.Context(), id, banned); err != nil {
		failRemote(c, err)
		return
	}
	h.audit(c).Str("user_id", id).Bool("banned", banned).Msg("ban state changed")
	if banned {
		h.notify(c, "Përdoruesi u pezullua")
	} else {
		h.notify(c, "Pezullimi u hoq")
	}
	JSON(c, http.StatusOK, gin.H{"banned": banned})
}

func (h *AdminHandler) CreateEvent(c *gin.Context) {
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
		return
	}
	event.ID = 0
	event.CreatedBy = viewerID(c)

	created, err := h.remote.CreateEvent(c.Request.Context(), &event)
	if err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	h.notify(c, "Aktiviteti u krijua")
	JSON(c, http.StatusCreated, gin.H{"event": created})
}

func (h *AdminHandler) UpdateEvent(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	var event models.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
		return
	}

	updated, err := h.remote.UpdateEvent(c.Request.Context(), id, &event)
	if err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	JSON(c, http.StatusOK, gin.H{"event": updated})
}

func (h *AdminHandler) DeleteEvent(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	if err := h.remote.DeleteEvent(c.Request.Context(), id); err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	h.audit(c).Uint("event_id", id).Msg("event deleted")
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *AdminHandler) CreateMatch(c *gin.Context) {
	var match models.Match
	if err := c.ShouldBindJSON(&match); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
		return
	}
	match.ID = 0

	created, err := h.remote.CreateMatch(c.Request.Context(), &match)
	if err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	h.notify(c, "Ndeshja u shtua")
	JSON(c, http.StatusCreated, gin.H{"match": created})
}

func (h *AdminHandler) UpdateMatch(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	var match models.Match
	if err := c.ShouldBindJSON(&match); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
		return
	}

	updated, err := h.remote.UpdateMatch(c.Request.Context(), id, &match)
	if err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	JSON(c, http.StatusOK, gin.H{"match": updated})
}

func (h *AdminHandler) DeleteMatch(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	if err := h.remote.DeleteMatch(c.Request.Context(), id); err != nil {
		failRemote(c, err)
		return
	}
	invalidateContent(h.cache)
	h.audit(c).Uint("match_id", id).Msg("match deleted")
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

type postStatusRequest struct {
	Status string `json:"status" form:"status" binding:"required"`
}

// SetPostStatus 版主隐藏或恢复帖子
func (h *AdminHandler) SetPostStatus(c *gin.Context) {
	var req postStatusRequest
	if err := c.ShouldBind(&req); err != nil || !models.ValidPostStatus(req.Status) {
		fail(c, http.StatusBadRequest, "invalid_status", "Statusi nuk është i vlefshëm")
		return
	}
	id := c.Param("id")
	if err := h.remote.SetPostStatus(c.Request.Context(), id, req.Status); err != nil {
		failRemote(c, err)
		return
	}
	h.audit(c).Str("post_id", id).Str("status", req.Status).Msg("post status changed")
	JSON(c, http.StatusOK, gin.H{"status": req.Status})
}

func (h *AdminHandler) DeletePost(c *gin.Context) {
	id := c.Param("id")
	if err := h.remote.DeletePost(c.Request.Context(), id, viewerID(c), true); err != nil {
		failRemote(c, err)
		return
	}
	h.audit(c).Str("post_id", id).Msg("post deleted by moderator")
	h.notify(c, "Postimi u fshi")
	JSON(c, http.StatusOK, gin.H{"ok": true})
}
