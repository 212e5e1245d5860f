package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"

	"rmashqip/internal/models"
)

const (
	feedLimit        = 100
	trendingMinLikes = 5
	trendingLimit    = 10
	maxContentLength = 5000
)

type PostInput struct {
	AuthorID string
	Content  string
	ImageURL string
	VideoURL string
}

// GetPosts 最新在前的可见帖子，按查看者标注点赞与收藏
func (c *Client) GetPosts(ctx context.Context, viewerID string) ([]models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	err = db.Preload("Author").
		Where("status = ?", models.PostStatusActive).
		Order("created_at DESC").
		Limit(feedLimit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("get posts: %w", err)
	}
	return posts, c.annotate(ctx, viewerID, posts)
}

// GetTrendingPosts 点赞数不少于 5 的帖子，按点赞数倒序取前 10
func (c *Client) GetTrendingPosts(ctx context.Context, viewerID string) ([]models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	err = db.Preload("Author").
		Where("status = ? AND likes_count >= ?", models.PostStatusActive, trendingMinLikes).
		Order("likes_count DESC, created_at DESC").
		Limit(trendingLimit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("get trending posts: %w", err)
	}
	return posts, c.annotate(ctx, viewerID, posts)
}

func (c *Client) GetUserPosts(ctx context.Context, authorID, viewerID string) ([]models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	err = db.Preload("Author").
		Where("author_id = ? AND status = ?", authorID, models.PostStatusActive).
		Order("created_at DESC").
		Limit(feedLimit).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("get user posts: %w", err)
	}
	return posts, c.annotate(ctx, viewerID, posts)
}

// GetSavedPosts 查看者收藏的帖子
func (c *Client) GetSavedPosts(ctx context.Context, userID string) ([]models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var posts []models.Post
	err = db.Preload("Author").
		Joins("JOIN saved_posts ON saved_posts.post_id = posts.id").
		Where("saved_posts.user_id = ? AND posts.status = ?", userID, models.PostStatusActive).
		Order("saved_posts.created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("get saved posts: %w", err)
	}
	return posts, c.annotate(ctx, userID, posts)
}

// GetPost 已删除的帖子视为不存在
func (c *Client) GetPost(ctx context.Context, id, viewerID string) (*models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var post models.Post
	err = db.Preload("Author").
		Where("id = ? AND status <> ?", id, models.PostStatusDeleted).
		First(&post).Error
	if err != nil {
		return nil, notFound(err)
	}

	posts := []models.Post{post}
	if err := c.annotate(ctx, viewerID, posts); err != nil {
		return nil, err
	}
	return &posts[0], nil
}

func (c *Client) CreatePost(ctx context.Context, input PostInput) (*models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	input.Content = strings.TrimSpace(input.Content)
	if input.AuthorID == "" {
		return nil, fmt.Errorf("%w: author required", ErrInvalidInput)
	}
	if input.Content == "" && input.ImageURL == "" && input.VideoURL == "" {
		return nil, fmt.Errorf("%w: empty post", ErrInvalidInput)
	}
	if len([]rune(input.Content)) > maxContentLength {
		return nil, fmt.Errorf("%w: content too long", ErrInvalidInput)
	}
	if err := checkAuthor(db, input.AuthorID); err != nil {
		return nil, err
	}

	post := models.Post{
		ID:       ksuid.New().String(),
		AuthorID: input.AuthorID,
		Content:  input.Content,
		ImageURL: input.ImageURL,
		VideoURL: input.VideoURL,
		Status:   models.PostStatusActive,
	}
	if err := db.Omit("Author").Create(&post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	return c.GetPost(ctx, post.ID, input.AuthorID)
}

// UpdatePost 只有作者可以修改内容
func (c *Client) UpdatePost(ctx context.Context, id, editorID, content string) (*models.Post, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxContentLength {
		return nil, fmt.Errorf("%w: content", ErrInvalidInput)
	}

	var post models.Post
	if err := db.Where("id = ? AND status <> ?", id, models.PostStatusDeleted).First(&post).Error; err != nil {
		return nil, notFound(err)
	}
	if post.AuthorID != editorID {
		return nil, ErrForbidden
	}

	if err := db.Model(&post).Update("content", content).Error; err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return c.GetPost(ctx, id, editorID)
}

// DeletePost 作者或版主可删除，软删除
func (c *Client) DeletePost(ctx context.Context, id, actorID string, moderator bool) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}

	var post models.Post
	if err := db.Where("id = ? AND status <> ?", id, models.PostStatusDeleted).First(&post).Error; err != nil {
		return notFound(err)
	}
	if post.AuthorID != actorID && !moderator {
		return ErrForbidden
	}

	if err := db.Model(&post).Update("status", models.PostStatusDeleted).Error; err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// SetPostStatus 版主隐藏或恢复帖子
func (c *Client) SetPostStatus(ctx context.Context, id, status string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if !models.ValidPostStatus(status) {
		return fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}

	res := db.Model(&models.Post{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("set post status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) SharePost(ctx context.Context, id string) (int, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}

	res := db.Model(&models.Post{}).
		Where("id = ? AND status = ?", id, models.PostStatusActive).
		UpdateColumn("shares_count", gorm.Expr("shares_count + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("share post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}

	var post models.Post
	if err := db.Select("shares_count").First(&post, "id = ?", id).Error; err != nil {
		return 0, notFound(err)
	}
	return post.SharesCount, nil
}

// annotate 填充查看者的点赞/收藏状态
func (c *Client) annotate(ctx context.Context, viewerID string, posts []models.Post) error {
	if viewerID == "" || len(posts) == 0 {
		return nil
	}
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}

	var liked []string
	if err := db.Model(&models.PostLike{}).
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &liked).Error; err != nil {
		return fmt.Errorf("load likes: %w", err)
	}
	var saved []string
	if err := db.Model(&models.SavedPost{}).
		Where("user_id = ? AND post_id IN ?", viewerID, ids).
		Pluck("post_id", &saved).Error; err != nil {
		return fmt.Errorf("load saved: %w", err)
	}

	likedSet := toSet(liked)
	savedSet := toSet(saved)
	for i := range posts {
		posts[i].IsLiked = likedSet[posts[i].ID]
		posts[i].IsSaved = savedSet[posts[i].ID]
	}
	return nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
