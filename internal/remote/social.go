package remote

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"rmashqip/internal/models"
)

// FollowUser 关注；不允许关注自己，重复关注不报错
func (c *Client) FollowUser(ctx context.Context, followerID, followingID string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if followerID == followingID {
		return ErrSelfFollow
	}
	if _, err := c.GetProfile(ctx, followingID); err != nil {
		return err
	}

	var count int64
	if err := db.Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	if count > 0 {
		return nil
	}

	if err := db.Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error; err != nil {
		return fmt.Errorf("follow: %w", err)
	}

	c.notifyAsync(models.Notification{
		UserID:    followingID,
		Title:     "Ndjekës i ri",
		Message:   "Dikush filloi t'ju ndjekë",
		Type:      models.NotificationTypeFollow,
		RelatedID: followerID,
	})
	return nil
}

func (c *Client) UnfollowUser(ctx context.Context, followerID, followingID string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{}).Error; err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

func (c *Client) IsFollowing(ctx context.Context, followerID, followingID string) (bool, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("is following: %w", err)
	}
	return count > 0, nil
}

func (c *Client) GetFollowers(ctx context.Context, userID string) ([]models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	err = db.Joins("JOIN follows ON follows.follower_id = profiles.id").
		Where("follows.following_id = ?", userID).
		Order("follows.created_at DESC").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("get followers: %w", err)
	}
	return profiles, nil
}

func (c *Client) GetFollowing(ctx context.Context, userID string) ([]models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	var profiles []models.Profile
	err = db.Joins("JOIN follows ON follows.following_id = profiles.id").
		Where("follows.follower_id = ?", userID).
		Order("follows.created_at DESC").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("get following: %w", err)
	}
	return profiles, nil
}

type FollowCounts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

func (c *Client) GetFollowCounts(ctx context.Context, userID string) (FollowCounts, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return FollowCounts{}, err
	}
	var counts FollowCounts
	if err := db.Model(&models.Follow{}).Where("following_id = ?", userID).Count(&counts.Followers).Error; err != nil {
		return FollowCounts{}, fmt.Errorf("count followers: %w", err)
	}
	if err := db.Model(&models.Follow{}).Where("follower_id = ?", userID).Count(&counts.Following).Error; err != nil {
		return FollowCounts{}, fmt.Errorf("count following: %w", err)
	}
	return counts, nil
}

func (c *Client) GetComments(ctx context.Context, postID string) ([]models.Comment, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	var comments []models.Comment
	if err := db.Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("get comments: %w", err)
	}
	return comments, nil
}

func (c *Client) CreateComment(ctx context.Context, postID, authorID, content string) (*models.Comment, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxContentLength {
		return nil, fmt.Errorf("%w: comment content", ErrInvalidInput)
	}
	if err := checkAuthor(db, authorID); err != nil {
		return nil, err
	}

	var post models.Post
	if err := db.Where("id = ? AND status = ?", postID, models.PostStatusActive).First(&post).Error; err != nil {
		return nil, notFound(err)
	}

	comment := models.Comment{PostID: postID, AuthorID: authorID, Content: content}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Author").Create(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("comments_count", gorm.Expr("comments_count + ?", 1)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	c.scheduleRecount(postID)
	if post.AuthorID != authorID {
		c.notifyAsync(models.Notification{
			UserID:    post.AuthorID,
			Title:     "Koment i ri",
			Message:   "Dikush komentoi postimin tuaj",
			Type:      models.NotificationTypeComment,
			RelatedID: postID,
		})
	}

	if err := db.Preload("Author").First(&comment, comment.ID).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

func (c *Client) UpdateComment(ctx context.Context, id uint, authorID, content string) (*models.Comment, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxContentLength {
		return nil, fmt.Errorf("%w: comment content", ErrInvalidInput)
	}

	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	if comment.AuthorID != authorID {
		return nil, ErrForbidden
	}
	if err := db.Model(&comment).Update("content", content).Error; err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	if err := db.Preload("Author").First(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

func (c *Client) DeleteComment(ctx context.Context, id uint, actorID string, moderator bool) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}

	var comment models.Comment
	if err := db.First(&comment, id).Error; err != nil {
		return notFound(err)
	}
	if comment.AuthorID != actorID && !moderator {
		return ErrForbidden
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&comment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ? AND comments_count > 0", comment.PostID).
			UpdateColumn("comments_count", gorm.Expr("comments_count - ?", 1)).Error
	})
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	c.scheduleRecount(comment.PostID)
	return nil
}
