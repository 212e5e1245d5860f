package remote

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"rmashqip/internal/models"
)

// LikePost 点赞；已点过赞时直接返回当前点赞数
func (c *Client) LikePost(ctx context.Context, postID, userID string) (int, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}

	var post models.Post
	if err := db.Where("id = ? AND status = ?", postID, models.PostStatusActive).First(&post).Error; err != nil {
		return 0, notFound(err)
	}

	created := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var existing models.PostLike
		if err := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&existing).Error; err == nil {
			return nil
		}

		if err := tx.Create(&models.PostLike{PostID: postID, UserID: userID}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count + ?", 1)).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("like post: %w", err)
	}

	if created {
		c.scheduleRecount(postID)
		if post.AuthorID != userID {
			c.notifyAsync(models.Notification{
				UserID:    post.AuthorID,
				Title:     "Pëlqim i ri",
				Message:   "Dikush pëlqeu postimin tuaj",
				Type:      models.NotificationTypeLike,
				RelatedID: postID,
			})
		}
	}

	return c.likesCount(ctx, postID)
}

// UnlikePost 取消点赞；未点过赞时不改变计数
func (c *Client) UnlikePost(ctx context.Context, postID, userID string) (int, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}

	removed := false
	err = db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		return tx.Model(&models.Post{}).Where("id = ? AND likes_count > 0", postID).
			UpdateColumn("likes_count", gorm.Expr("likes_count - ?", 1)).Error
	})
	if err != nil {
		return 0, fmt.Errorf("unlike post: %w", err)
	}
	if removed {
		c.scheduleRecount(postID)
	}

	return c.likesCount(ctx, postID)
}

// ToggleSaved 切换收藏状态，返回切换后的状态
func (c *Client) ToggleSaved(ctx context.Context, postID, userID string) (bool, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return false, err
	}

	var post models.Post
	if err := db.Select("id").Where("id = ? AND status <> ?", postID, models.PostStatusDeleted).First(&post).Error; err != nil {
		return false, notFound(err)
	}

	var existing models.SavedPost
	if err := db.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error; err == nil {
		if err := db.Delete(&existing).Error; err != nil {
			return false, fmt.Errorf("unsave post: %w", err)
		}
		return false, nil
	}

	if err := db.Create(&models.SavedPost{UserID: userID, PostID: postID}).Error; err != nil {
		return false, fmt.Errorf("save post: %w", err)
	}
	return true, nil
}

func (c *Client) likesCount(ctx context.Context, postID string) (int, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	var post models.Post
	if err := db.Select("likes_count").First(&post, "id = ?", postID).Error; err != nil {
		return 0, notFound(err)
	}
	return post.LikesCount, nil
}
