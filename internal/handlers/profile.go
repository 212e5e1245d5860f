package handlers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/media/sniffer"
	"rmashqip/internal/middleware"
	"rmashqip/internal/postcache"
	"rmashqip/internal/remote"
	"rmashqip/internal/session"
	"rmashqip/internal/utils"
)

const membersLimit = 50

type ProfileHandler struct {
	remote        *remote.Client
	maxMediaBytes int64
	log           zerolog.Logger
}

func NewProfileHandler(remote *remote.Client, maxMediaBytes int64, log zerolog.Logger) *ProfileHandler {
	return &ProfileHandler{remote: remote, maxMediaBytes: maxMediaBytes, log: log}
}

// Get 用户主页：资料、关注数，以及当前用户是否已关注
func (h *ProfileHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	profile, err := h.remote.GetProfile(ctx, id)
	if err != nil {
		failRemote(c, err)
		return
	}
	counts, err := h.remote.GetFollowCounts(ctx, id)
	if err != nil {
		failRemote(c, err)
		return
	}

	following := false
	if viewer := viewerID(c); viewer != "" && viewer != id {
		following, err = h.remote.IsFollowing(ctx, viewer, id)
		if err != nil {
			h.log.Warn().Err(err).Msg("check following failed")
		}
	}

	JSON(c, http.StatusOK, gin.H{
		"profile":      profile,
		"followers":    counts.Followers,
		"following":    counts.Following,
		"is_following": following,
		"is_self":      viewerID(c) == id,
	})
}

func (h *ProfileHandler) Posts(c *gin.Context) {
	posts, err := h.remote.GetUserPosts(c.Request.Context(), c.Param("id"), viewerID(c))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"posts": toPostViews(postcache.FromModels(posts))})
}

type updateProfileRequest struct {
	FullName *string `json:"full_name" form:"full_name"`
	Username *string `json:"username" form:"username"`
	Bio      *string `json:"bio" form:"bio"`
}

// Update 修改当前用户的资料，成功提示由会话存储发出
func (h *ProfileHandler) Update(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
		return
	}

	store := middleware.CurrentClient(c).Session
	profile, err := store.UpdateProfile(c.Request.Context(), remote.ProfileUpdate{
		FullName: req.FullName,
		Username: req.Username,
		Bio:      req.Bio,
	})
	if err != nil {
		h.respondUpdateError(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"profile": profile})
}

// UploadAvatar 头像只接受图片
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	ctx := c.Request.Context()
	store := middleware.CurrentClient(c).Session
	userID := viewerID(c)

	fh, err := c.FormFile("avatar")
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_media", "Zgjidhni një imazh")
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid_media", "Skedari nuk u lexua")
		return
	}
	defer f.Close()

	m, err := postcache.MediaEncode(f, fh.Header.Get("Content-Type"), h.maxMediaBytes)
	if errors.Is(err, postcache.ErrMediaTooLarge) {
		fail(c, http.StatusBadRequest, "media_too_large", "Skedari është shumë i madh")
		return
	}
	if err != nil || m.Kind != sniffer.KindImage {
		fail(c, http.StatusBadRequest, "invalid_media", "Lejohen vetëm imazhe")
		return
	}

	url, err := h.remote.UploadAvatar(ctx, userID, fh.Filename, bytes.NewReader(m.Bytes), int64(len(m.Bytes)), m.MIME)
	if err != nil {
		if !errors.Is(err, remote.ErrNotConfigured) {
			h.log.Warn().Err(err).Msg("upload avatar failed, embedding data url")
		}
		url = m.DataURL
	}

	profile, err := store.UpdateProfile(ctx, remote.ProfileUpdate{AvatarURL: &url})
	if err != nil {
		h.respondUpdateError(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"profile": profile, "avatar_url": url})
}

func (h *ProfileHandler) respondUpdateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotSignedIn):
		JSON(c, http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, remote.ErrConflict):
		JSON(c, http.StatusConflict, gin.H{"error": "username_taken"})
	case errors.Is(err, remote.ErrInvalidInput):
		JSON(c, http.StatusBadRequest, gin.H{"error": "invalid_input"})
	case errors.Is(err, remote.ErrNotConfigured):
		JSON(c, http.StatusServiceUnavailable, gin.H{"error": "backend_not_configured"})
	default:
		h.log.Error().Err(err).Msg("update profile failed")
		JSON(c, http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *ProfileHandler) Follow(c *gin.Context) {
	if err := h.remote.FollowUser(c.Request.Context(), viewerID(c), c.Param("id")); err != nil && !errors.Is(err, remote.ErrConflict) {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"following": true})
}

func (h *ProfileHandler) Unfollow(c *gin.Context) {
	if err := h.remote.UnfollowUser(c.Request.Context(), viewerID(c), c.Param("id")); err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"following": false})
}

func (h *ProfileHandler) Followers(c *gin.Context) {
	profiles, err := h.remote.GetFollowers(c.Request.Context(), c.Param("id"))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"profiles": profiles})
}

func (h *ProfileHandler) Following(c *gin.Context) {
	profiles, err := h.remote.GetFollowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"profiles": profiles})
}

func (h *ProfileHandler) Members(c *gin.Context) {
	profiles, err := h.remote.ListProfiles(c.Request.Context(), c.Query("q"), utils.IntOr(c.Query("limit"), membersLimit))
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"profiles": profiles})
}
