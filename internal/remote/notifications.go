package remote

import (
	"context"
	"fmt"

	"rmashqip/internal/models"
)

func (c *Client) GetNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var notifications []models.Notification
	if err := db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	return notifications, nil
}

func (c *Client) UnreadCount(ctx context.Context, userID string) (int64, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (c *Client) MarkAsRead(ctx context.Context, id uint, userID string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark as read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) MarkAllAsRead(ctx context.Context, userID string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if err := db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error; err != nil {
		return fmt.Errorf("mark all as read: %w", err)
	}
	return nil
}

func (c *Client) CreateNotification(ctx context.Context, n *models.Notification) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if n.UserID == "" || n.Title == "" {
		return fmt.Errorf("%w: notification", ErrInvalidInput)
	}
	if n.Type == "" {
		n.Type = models.NotificationTypeSystem
	}
	if err := db.Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// notifyAsync 副作用通知，失败只记录日志
func (c *Client) notifyAsync(n models.Notification) {
	go func() {
		if err := c.CreateNotification(context.Background(), &n); err != nil {
			c.log.Warn().Err(err).Str("user_id", n.UserID).Str("type", string(n.Type)).Msg("create notification failed")
		}
	}()
}

func (c *Client) DeleteNotification(ctx context.Context, id uint, userID string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
