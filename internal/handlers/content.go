package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rmashqip/internal/middleware"
	"rmashqip/internal/models"
	"rmashqip/internal/remote"
	"rmashqip/internal/utils"
)

const contentTTL = 2 * time.Minute

var contentKeys = []string{"events:all", "events:upcoming", "matches:all", "matches:upcoming"}

// ContentHandler 活动、赛程和页面渲染
type ContentHandler struct {
	remote *remote.Client
	cache  *utils.TTLCache[any]
	log    zerolog.Logger
}

func NewContentHandler(remote *remote.Client, cache *utils.TTLCache[any], log zerolog.Logger) *ContentHandler {
	return &ContentHandler{remote: remote, cache: cache, log: log}
}

// invalidateContent 管理员修改活动或赛程后清空缓存
func invalidateContent(cache *utils.TTLCache[any]) {
	if cache == nil {
		return
	}
	for _, key := range contentKeys {
		cache.Delete(key)
	}
}

func (h *ContentHandler) events(ctx context.Context, upcoming bool) ([]models.Event, error) {
	key := "events:all"
	if upcoming {
		key = "events:upcoming"
	}
	if v, ok := h.cache.Get(key); ok {
		return v.([]models.Event), nil
	}
	events, err := h.remote.ListEvents(ctx, upcoming)
	if err != nil {
		return nil, err
	}
	h.cache.Set(key, events, contentTTL)
	return events, nil
}

func (h *ContentHandler) matches(ctx context.Context, upcoming bool) ([]models.Match, error) {
	key := "matches:all"
	if upcoming {
		key = "matches:upcoming"
	}
	if v, ok := h.cache.Get(key); ok {
		return v.([]models.Match), nil
	}
	matches, err := h.remote.ListMatches(ctx, upcoming)
	if err != nil {
		return nil, err
	}
	h.cache.Set(key, matches, contentTTL)
	return matches, nil
}

func (h *ContentHandler) Events(c *gin.Context) {
	events, err := h.events(c.Request.Context(), c.Query("upcoming") == "1")
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"events": events})
}

func (h *ContentHandler) Matches(c *gin.Context) {
	matches, err := h.matches(c.Request.Context(), c.Query("upcoming") == "1")
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"matches": matches})
}

// Home 首页动态，远程不可用时只显示本地缓存
func (h *ContentHandler) Home(c *gin.Context) {
	ctx := c.Request.Context()
	cc := middleware.CurrentClient(c)
	posts, _ := feedFor(ctx, h.remote, cc, viewerID(c), h.log)

	upcoming, _ := h.matches(ctx, true)
	if len(upcoming) > 3 {
		upcoming = upcoming[:3]
	}

	Render(c, http.StatusOK, "feed.html", gin.H{
		"Title":    "Ballina",
		"Posts":    toPostViews(posts),
		"Upcoming": upcoming,
		"Settings": cc.Posts.LoadSettings(ctx),
	})
}

func (h *ContentHandler) EventsPage(c *gin.Context) {
	events, err := h.events(c.Request.Context(), false)
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		h.log.Warn().Err(err).Msg("load events failed")
		RenderError(c, http.StatusInternalServerError, "Aktivitetet nuk u ngarkuan")
		return
	}
	Render(c, http.StatusOK, "events.html", gin.H{
		"Title":  "Aktivitetet",
		"Events": events,
	})
}

func (h *ContentHandler) MatchesPage(c *gin.Context) {
	matches, err := h.matches(c.Request.Context(), false)
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		h.log.Warn().Err(err).Msg("load matches failed")
		RenderError(c, http.StatusInternalServerError, "Ndeshjet nuk u ngarkuan")
		return
	}
	Render(c, http.StatusOK, "matches.html", gin.H{
		"Title":   "Ndeshjet",
		"Matches": matches,
	})
}

func (h *ContentHandler) MembersPage(c *gin.Context) {
	query := c.Query("q")
	members, err := h.remote.ListProfiles(c.Request.Context(), query, membersLimit)
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		h.log.Warn().Err(err).Msg("load members failed")
		RenderError(c, http.StatusInternalServerError, "Anëtarët nuk u ngarkuan")
		return
	}
	Render(c, http.StatusOK, "members.html", gin.H{
		"Title":   "Anëtarët",
		"Members": members,
		"Query":   query,
	})
}
