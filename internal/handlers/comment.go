package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/middleware"
	"rmashqip/internal/remote"
	"rmashqip/internal/utils"
)

type CommentHandler struct {
	remote *remote.Client
	log    zerolog.Logger
}

func NewCommentHandler(remote *remote.Client, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{remote: remote, log: log}
}

type commentRequest struct {
	Content string `json:"content" form:"content" binding:"required"`
}

func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.remote.GetComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"comments": comments})
}

func (h *CommentHandler) Create(c *gin.Context) {
	profile := middleware.CurrentProfile(c)
	if rejectBanned(c, profile) {
		return
	}

	var req commentRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, "invalid_input", "Komenti nuk mund të jetë bosh")
		return
	}

	comment, err := h.remote.CreateComment(c.Request.Context(), c.Param("id"), profile.ID, req.Content)
	if err != nil {
		h.log.Warn().Err(err).Str("post_id", c.Param("id")).Msg("create comment failed")
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusCreated, gin.H{"comment": comment})
}

// Update 只有作者可以编辑
func (h *CommentHandler) Update(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}

	var req commentRequest
	if err := c.ShouldBind(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, "invalid_input", "Komenti nuk mund të jetë bosh")
		return
	}

	comment, err := h.remote.UpdateComment(c.Request.Context(), id, viewerID(c), req.Content)
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"comment": comment})
}

// Delete 作者或版主可以删除
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		fail(c, http.StatusBadRequest, "invalid_id", "")
		return
	}

	profile := middleware.CurrentProfile(c)
	if err := h.remote.DeleteComment(c.Request.Context(), id, profile.ID, profile.IsModerator()); err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}
