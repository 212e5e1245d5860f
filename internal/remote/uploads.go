package remote

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// UploadImage 上传到 images 桶：<userID>/<时间戳>-<文件名>
func (c *Client) UploadImage(ctx context.Context, userID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if c == nil || c.uploader == nil {
		return "", ErrNotConfigured
	}
	path := fmt.Sprintf("%s/%d-%s", userID, time.Now().UnixMilli(), cleanName(filename))
	return c.uploader.Put(ctx, c.uploader.ImagesBucket(), path, r, size, contentType)
}

// UploadAvatar 上传到 avatars 桶，返回公开地址
func (c *Client) UploadAvatar(ctx context.Context, userID, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if c == nil || c.uploader == nil {
		return "", ErrNotConfigured
	}
	ext := strings.ToLower(filepath.Ext(filename))
	path := fmt.Sprintf("%s/avatar-%d%s", userID, time.Now().UnixMilli(), ext)
	return c.uploader.Put(ctx, c.uploader.AvatarsBucket(), path, r, size, contentType)
}

func cleanName(name string) string {
	name = filepath.Base(name)
	name = unsafeName.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "_" {
		return "file"
	}
	return name
}
