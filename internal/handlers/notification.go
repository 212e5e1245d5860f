package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rmashqip/internal/remote"
	"rmashqip/internal/utils"
)

const notificationLimit = 50

type NotificationHandler struct {
	remote *remote.Client
}

func NewNotificationHandler(remote *remote.Client) *NotificationHandler {
	return &NotificationHandler{remote: remote}
}

func (h *NotificationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID := viewerID(c)

	notifications, err := h.remote.GetNotifications(ctx, userID, utils.IntOr(c.Query("limit"), notificationLimit))
	if err != nil {
		failRemote(c, err)
		return
	}
	unread, err := h.remote.UnreadCount(ctx, userID)
	if err != nil {
		failRemote(c, err)
		return
	}

	JSON(c, http.StatusOK, gin.H{
		"items":  notifications,
		"unread": unread,
	})
}

func (h *NotificationHandler) Read(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	if err := h.remote.MarkAsRead(c.Request.Context(), id, viewerID(c)); err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}
	if err := h.remote.DeleteNotification(c.Request.Context(), id, viewerID(c)); err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

func (h *NotificationHandler) ReadAll(c *gin.Context) {
	if err := h.remote.MarkAllAsRead(c.Request.Context(), viewerID(c)); err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}
