package handlers

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"rmashqip/internal/middleware"
	"rmashqip/internal/models"
	"rmashqip/internal/postcache"
	"rmashqip/internal/remote"
	"rmashqip/internal/session"
	"rmashqip/internal/utils"
)

// Render helper to inject common variables like 'current user'
func Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}

	if profile := middleware.CurrentProfile(c); profile != nil {
		obj["CurrentUser"] = profile
		obj["IsModerator"] = profile.IsModerator()
	}
	obj["Notifications"] = drainNotifications(c)
	obj["CurrentPath"] = c.Request.URL.Path

	c.HTML(code, name, obj)
}

// JSON 所有接口响应都带上待显示的提示
func JSON(c *gin.Context, code int, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}
	obj["notifications"] = drainNotifications(c)
	c.JSON(code, obj)
}

func RenderError(c *gin.Context, code int, message string) {
	Render(c, code, "error.html", gin.H{"Error": message})
}

func drainNotifications(c *gin.Context) []session.Notification {
	cc := middleware.CurrentClient(c)
	if cc == nil {
		return []session.Notification{}
	}
	notes := cc.Session.Notifications()
	if notes == nil {
		notes = []session.Notification{}
	}
	return notes
}

// fail 返回错误并留下一条提示
func fail(c *gin.Context, code int, errCode, message string) {
	if cc := middleware.CurrentClient(c); cc != nil && message != "" {
		cc.Session.NotifyError(message)
	}
	JSON(c, code, gin.H{"error": errCode})
}

// failRemote 远程调用错误映射为 HTTP 状态
func failRemote(c *gin.Context, err error) {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found", "Nuk u gjet")
	case errors.Is(err, remote.ErrForbidden):
		fail(c, http.StatusForbidden, "forbidden", "Nuk keni leje për këtë veprim")
	case errors.Is(err, remote.ErrConflict):
		fail(c, http.StatusConflict, "conflict", "Ekziston tashmë")
	case errors.Is(err, remote.ErrSelfFollow):
		fail(c, http.StatusBadRequest, "self_follow", "Nuk mund të ndiqni veten")
	case errors.Is(err, remote.ErrInvalidInput):
		fail(c, http.StatusBadRequest, "invalid_input", "Të dhëna të pavlefshme")
	case errors.Is(err, remote.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, "backend_not_configured", "Shërbimi nuk është i disponueshëm")
	default:
		fail(c, http.StatusInternalServerError, "internal_error", "Ndodhi një gabim. Provoni përsëri.")
	}
}

// viewerID 未登录时为空
func viewerID(c *gin.Context) string {
	if p := middleware.CurrentProfile(c); p != nil {
		return p.ID
	}
	return ""
}

// rejectBanned 被封禁用户不能发布内容
func rejectBanned(c *gin.Context, profile *models.Profile) bool {
	if profile != nil && profile.IsBanned {
		fail(c, http.StatusForbidden, "banned", "Llogaria juaj është pezulluar")
		return true
	}
	return false
}

type postView struct {
	postcache.Post
	ContentHTML template.HTML `json:"contentHtml"`
}

func toPostView(p postcache.Post) postView {
	return postView{Post: p, ContentHTML: utils.RenderContent(p.Content)}
}

func toPostViews(posts []postcache.Post) []postView {
	out := make([]postView, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostView(p))
	}
	return out
}
