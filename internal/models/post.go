package models

import (
	"time"
)

const (
	PostStatusActive  = "active"
	PostStatusHidden  = "hidden"
	PostStatusDeleted = "deleted"
)

type Post struct {
	ID            string    `gorm:"primaryKey;size:27" json:"id"` // ksuid，按时间有序
	AuthorID      string    `gorm:"size:36;not null;index" json:"author_id"`
	Author        Profile   `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	ImageURL      string    `json:"image_url,omitempty"`
	VideoURL      string    `json:"video_url,omitempty"`
	Status        string    `gorm:"size:10;default:'active';not null;index" json:"status"`
	LikesCount    int       `gorm:"default:0" json:"likes_count"`
	CommentsCount int       `gorm:"default:0" json:"comments_count"`
	SharesCount   int       `gorm:"default:0" json:"shares_count"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// 非数据库字段，按当前查看者填充
	IsLiked bool `gorm:"-" json:"is_liked"`
	IsSaved bool `gorm:"-" json:"is_saved"`
}

func ValidPostStatus(status string) bool {
	switch status {
	case PostStatusActive, PostStatusHidden, PostStatusDeleted:
		return true
	}
	return false
}

// PostLike 每个用户对每篇帖子至多一条
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    string    `gorm:"size:27;not null;uniqueIndex:idx_like_pair" json:"post_id"`
	UserID    string    `gorm:"size:36;not null;index;uniqueIndex:idx_like_pair" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SavedPost 收藏
type SavedPost struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;index;uniqueIndex:idx_saved_pair" json:"user_id"`
	PostID    string    `gorm:"size:27;not null;uniqueIndex:idx_saved_pair" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}
