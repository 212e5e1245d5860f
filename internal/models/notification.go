package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeLike    NotificationType = "like"
	NotificationTypeComment NotificationType = "comment"
	NotificationTypeFollow  NotificationType = "follow"
	NotificationTypeMatch   NotificationType = "match"
	NotificationTypeSystem  NotificationType = "system"
)

type Notification struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	UserID    string           `gorm:"size:36;not null;index" json:"user_id"` // 接收者
	Title     string           `gorm:"size:200;not null" json:"title"`
	Message   string           `gorm:"type:text" json:"message"`
	Type      NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	RelatedID string           `gorm:"size:36" json:"related_id,omitempty"`
	IsRead    bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
