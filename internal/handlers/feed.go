package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"rmashqip/internal/client"
	"rmashqip/internal/media/sniffer"
	"rmashqip/internal/middleware"
	"rmashqip/internal/models"
	"rmashqip/internal/postcache"
	"rmashqip/internal/remote"
	"rmashqip/internal/session"
)

const (
	maxPostLength    = 5000
	trendingMinLikes = 5
	trendingLimit    = 10
)

type FeedHandler struct {
	remote        *remote.Client
	maxMediaBytes int64
	log           zerolog.Logger
}

// NewFeedHandler remote 为 nil 时只使用客户端本地缓存
func NewFeedHandler(remote *remote.Client, maxMediaBytes int64, log zerolog.Logger) *FeedHandler {
	return &FeedHandler{remote: remote, maxMediaBytes: maxMediaBytes, log: log}
}

// List 本地缓存与远程列表合并后返回，并回写到本地
func (h *FeedHandler) List(c *gin.Context) {
	cc := middleware.CurrentClient(c)
	posts, err := feedFor(c.Request.Context(), h.remote, cc, viewerID(c), h.log)
	if err != nil {
		if !errors.Is(err, remote.ErrNotConfigured) {
			cc.Session.NotifyError("Postimet nuk u ngarkuan")
		}
		JSON(c, http.StatusOK, gin.H{"posts": toPostViews(posts), "offline": true})
		return
	}
	JSON(c, http.StatusOK, gin.H{"posts": toPostViews(posts)})
}

// feedFor 拉取远程动态与本地缓存合并并回写；远程失败时返回本地缓存和错误
func feedFor(ctx context.Context, data *remote.Client, cc *client.Context, viewer string, log zerolog.Logger) ([]postcache.Post, error) {
	local := cc.Posts.Load(ctx)

	posts, err := data.GetPosts(ctx, viewer)
	if err != nil {
		if !errors.Is(err, remote.ErrNotConfigured) {
			log.Warn().Err(err).Msg("fetch remote feed failed, serving local cache")
		}
		return local, err
	}

	merged := postcache.Merge(local, postcache.FromModels(posts))
	if err := cc.Posts.Replace(ctx, merged); err != nil {
		log.Warn().Err(err).Msg("write back feed failed")
	}
	return merged, nil
}

// Trending 远程不可用时从本地缓存中挑选
func (h *FeedHandler) Trending(c *gin.Context) {
	ctx := c.Request.Context()
	posts, err := h.remote.GetTrendingPosts(ctx, viewerID(c))
	if err == nil {
		JSON(c, http.StatusOK, gin.H{"posts": toPostViews(postcache.FromModels(posts))})
		return
	}
	if !errors.Is(err, remote.ErrNotConfigured) {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"posts": toPostViews(localTrending(middleware.CurrentClient(c).Posts.Load(ctx)))})
}

func localTrending(posts []postcache.Post) []postcache.Post {
	out := make([]postcache.Post, 0, len(posts))
	for _, p := range posts {
		if p.Likes >= trendingMinLikes {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Likes > out[j].Likes
	})
	if len(out) > trendingLimit {
		out = out[:trendingLimit]
	}
	return out
}

func (h *FeedHandler) Saved(c *gin.Context) {
	ctx := c.Request.Context()
	posts, err := h.remote.GetSavedPosts(ctx, viewerID(c))
	if err == nil {
		JSON(c, http.StatusOK, gin.H{"posts": toPostViews(postcache.FromModels(posts))})
		return
	}
	if !errors.Is(err, remote.ErrNotConfigured) {
		failRemote(c, err)
		return
	}

	saved := []postcache.Post{}
	for _, p := range middleware.CurrentClient(c).Posts.Load(ctx) {
		if p.IsSaved {
			saved = append(saved, p)
		}
	}
	JSON(c, http.StatusOK, gin.H{"posts": toPostViews(saved)})
}

// Create 发布帖子，可附带一张图片或一段视频
func (h *FeedHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	cc := middleware.CurrentClient(c)
	profile := middleware.CurrentProfile(c)
	if rejectBanned(c, profile) {
		return
	}

	content := strings.TrimSpace(c.PostForm("content"))
	if len([]rune(content)) > maxPostLength {
		fail(c, http.StatusBadRequest, "content_too_long", "Postimi është shumë i gjatë")
		return
	}

	var media *postcache.Media
	var mediaURL string
	if fh, err := c.FormFile("media"); err == nil {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "invalid_media", "Skedari nuk u lexua")
			return
		}
		m, err := postcache.MediaEncode(f, fh.Header.Get("Content-Type"), h.maxMediaBytes)
		f.Close()
		switch {
		case errors.Is(err, postcache.ErrMediaTooLarge):
			fail(c, http.StatusBadRequest, "media_too_large", "Skedari është shumë i madh")
			return
		case err != nil:
			fail(c, http.StatusBadRequest, "invalid_media", "Lejohen vetëm imazhe ose video")
			return
		}
		media = &m
		mediaURL = h.uploadMedia(c, profile.ID, fh.Filename, m)
	}

	if content == "" && media == nil {
		fail(c, http.StatusBadRequest, "empty_post", "Shkruani diçka ose shtoni një imazh")
		return
	}

	input := remote.PostInput{AuthorID: profile.ID, Content: content}
	if media != nil {
		if media.Kind == sniffer.KindVideo {
			input.VideoURL = mediaURL
		} else {
			input.ImageURL = mediaURL
		}
	}

	var post postcache.Post
	created, err := h.remote.CreatePost(ctx, input)
	switch {
	case err == nil:
		created.Author = *profile
		post = postcache.FromModel(*created)
	case errors.Is(err, remote.ErrNotConfigured):
		post = localPost(profile, input)
	default:
		h.log.Error().Err(err).Str("author_id", profile.ID).Msg("create post failed")
		failRemote(c, err)
		return
	}

	if _, err := cc.Posts.Append(ctx, post); err != nil {
		h.log.Warn().Err(err).Msg("cache new post failed")
	}
	JSON(c, http.StatusCreated, gin.H{"post": toPostView(post)})
}

// uploadMedia 上传到对象存储，未配置时退回 data URL
func (h *FeedHandler) uploadMedia(c *gin.Context, userID, filename string, m postcache.Media) string {
	url, err := h.remote.UploadImage(c.Request.Context(), userID, filename, bytes.NewReader(m.Bytes), int64(len(m.Bytes)), m.MIME)
	if err != nil {
		if !errors.Is(err, remote.ErrNotConfigured) {
			h.log.Warn().Err(err).Msg("upload media failed, embedding data url")
		}
		return m.DataURL
	}
	return url
}

func localPost(profile *models.Profile, input remote.PostInput) postcache.Post {
	now := time.Now()
	return postcache.Post{
		ID:       ksuid.New().String(),
		AuthorID: profile.ID,
		Author: postcache.Author{
			Name:     models.DisplayName(profile.FullName, profile.Email),
			Username: profile.Username,
			Avatar:   profile.AvatarURL,
		},
		Content:   input.Content,
		Image:     input.ImageURL,
		Video:     input.VideoURL,
		Timestamp: now,
		UpdatedAt: now,
	}
}

type updatePostRequest struct {
	Content string `json:"content" form:"content" binding:"required"`
}

func (h *FeedHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	cc := middleware.CurrentClient(c)
	id := c.Param("id")

	var req updatePostRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_input", "Postimi nuk mund të jetë bosh")
		return
	}

	updated, err := h.remote.UpdatePost(ctx, id, viewerID(c), req.Content)
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		failRemote(c, err)
		return
	}

	var post postcache.Post
	if updated != nil {
		post = postcache.FromModel(*updated)
		h.putCached(c, post)
	} else {
		post, err = cc.Posts.Edit(ctx, id, strings.TrimSpace(req.Content))
		if err != nil {
			fail(c, http.StatusNotFound, "not_found", "Postimi nuk u gjet")
			return
		}
	}
	JSON(c, http.StatusOK, gin.H{"post": toPostView(post)})
}

// putCached 用服务器副本覆盖本地条目，本地没有时忽略
func (h *FeedHandler) putCached(c *gin.Context, post postcache.Post) {
	err := middleware.CurrentClient(c).Posts.Put(c.Request.Context(), post)
	if err != nil && !errors.Is(err, postcache.ErrPostNotFound) {
		h.log.Warn().Err(err).Str("post_id", post.ID).Msg("update cached post failed")
	}
}

func (h *FeedHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	cc := middleware.CurrentClient(c)
	id := c.Param("id")
	profile := middleware.CurrentProfile(c)

	err := h.remote.DeletePost(ctx, id, profile.ID, profile.IsModerator())
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		failRemote(c, err)
		return
	}
	if err := cc.Posts.Remove(ctx, id); err != nil {
		h.log.Warn().Err(err).Str("post_id", id).Msg("remove cached post failed")
	}
	JSON(c, http.StatusOK, gin.H{"ok": true})
}

// Like 切换点赞；以远程记录的状态为准决定方向
func (h *FeedHandler) Like(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	userID := viewerID(c)

	current, err := h.remote.GetPost(ctx, id, userID)
	if errors.Is(err, remote.ErrNotConfigured) {
		h.toggleLocalLike(c, id)
		return
	}
	if err != nil {
		failRemote(c, err)
		return
	}

	var likes int
	if current.IsLiked {
		likes, err = h.remote.UnlikePost(ctx, id, userID)
	} else {
		likes, err = h.remote.LikePost(ctx, id, userID)
	}
	if err != nil {
		failRemote(c, err)
		return
	}

	// 本地副本换成服务器最新状态，其他用户的点赞一并带回
	if fresh, err := h.remote.GetPost(ctx, id, userID); err == nil {
		h.putCached(c, postcache.FromModel(*fresh))
	} else {
		h.log.Warn().Err(err).Str("post_id", id).Msg("refresh liked post failed")
	}
	JSON(c, http.StatusOK, gin.H{"liked": !current.IsLiked, "likes": likes})
}

func (h *FeedHandler) toggleLocalLike(c *gin.Context, id string) {
	cache := middleware.CurrentClient(c).Posts
	var liked bool
	for _, p := range cache.Load(c.Request.Context()) {
		if p.ID == id {
			liked = p.IsLiked
			break
		}
	}
	post, err := cache.ToggleLike(c.Request.Context(), id, liked)
	if err != nil {
		fail(c, http.StatusNotFound, "not_found", "Postimi nuk u gjet")
		return
	}
	JSON(c, http.StatusOK, gin.H{"liked": post.IsLiked, "likes": post.Likes})
}

func (h *FeedHandler) Save(c *gin.Context) {
	ctx := c.Request.Context()
	cc := middleware.CurrentClient(c)
	id := c.Param("id")

	saved, err := h.remote.ToggleSaved(ctx, id, viewerID(c))
	if err != nil && !errors.Is(err, remote.ErrNotConfigured) {
		failRemote(c, err)
		return
	}

	post, cacheErr := cc.Posts.ToggleSaved(ctx, id)
	if err != nil {
		if cacheErr != nil {
			fail(c, http.StatusNotFound, "not_found", "Postimi nuk u gjet")
			return
		}
		saved = post.IsSaved
	} else if cacheErr == nil && post.IsSaved != saved {
		if _, err := cc.Posts.ToggleSaved(ctx, id); err != nil {
			h.log.Warn().Err(err).Str("post_id", id).Msg("realign cached saved flag failed")
		}
	}
	if saved {
		cc.Session.Notify(session.Notification{Title: "Postimi u ruajt"})
	}
	JSON(c, http.StatusOK, gin.H{"saved": saved})
}

// Share 分享计数只在服务器上维护，没有后端时返回 503
func (h *FeedHandler) Share(c *gin.Context) {
	id := c.Param("id")
	shares, err := h.remote.SharePost(c.Request.Context(), id)
	if err != nil {
		failRemote(c, err)
		return
	}
	JSON(c, http.StatusOK, gin.H{"shares": shares, "url": "/?post=" + id})
}
