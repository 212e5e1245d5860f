package remote

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"rmashqip/internal/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrConflict      = errors.New("record already exists")
	ErrSelfFollow    = errors.New("cannot follow yourself")
	ErrNotConfigured = errors.New("remote backend not configured")
	ErrForbidden     = errors.New("not allowed")
	ErrInvalidInput  = errors.New("invalid input")
)

// Uploader 对象存储
type Uploader interface {
	Put(ctx context.Context, bucket, path string, r io.Reader, size int64, contentType string) (string, error)
	ImagesBucket() string
	AvatarsBucket() string
}

// Recounter 异步重算帖子计数
type Recounter interface {
	ScheduleRecount(postID string)
}

// Client 远程数据访问，所有方法返回 (数据, error)
// nil *Client 的所有调用返回 ErrNotConfigured
type Client struct {
	db        *gorm.DB
	uploader  Uploader
	recounter Recounter
	log       zerolog.Logger
}

func NewClient(db *gorm.DB, log zerolog.Logger) *Client {
	return &Client{db: db, log: log}
}

func (c *Client) WithUploader(u Uploader) *Client {
	c.uploader = u
	return c
}

func (c *Client) WithRecounter(r Recounter) *Client {
	c.recounter = r
	return c
}

func (c *Client) conn(ctx context.Context) (*gorm.DB, error) {
	if c == nil || c.db == nil {
		return nil, ErrNotConfigured
	}
	return c.db.WithContext(ctx), nil
}

func (c *Client) scheduleRecount(postID string) {
	if c.recounter != nil {
		c.recounter.ScheduleRecount(postID)
	}
}

// ErrBanned 被封禁的用户不能发帖或评论
var ErrBanned = fmt.Errorf("%w: user is banned", ErrForbidden)

// checkAuthor 作者资料必须存在且未被封禁
func checkAuthor(db *gorm.DB, authorID string) error {
	var profile models.Profile
	if err := db.Select("id", "is_banned").First(&profile, "id = ?", authorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: author %s has no profile", ErrInvalidInput, authorID)
		}
		return fmt.Errorf("load author: %w", err)
	}
	if profile.IsBanned {
		return ErrBanned
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
