package postcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rmashqip/internal/storage"
)

const (
	PostsKey    = "rma-posts"
	AvatarKey   = "user-avatar"
	SettingsKey = "rma-settings"
)

var (
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrPostNotFound       = errors.New("post not in local cache")
)

type Author struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Post 本地缓存的帖子副本，图片/视频可能是 data URL
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId,omitempty"`
	Author    Author    `json:"author"`
	Content   string    `json:"content"`
	Image     string    `json:"image,omitempty"`
	Video     string    `json:"video,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedAt time.Time `json:"updatedAt"`
	Likes     int       `json:"likes"`
	Comments  int       `json:"comments"`
	Shares    int       `json:"shares"`
	IsLiked   bool      `json:"isLiked"`
	IsSaved   bool      `json:"isSaved"`
	// Synced 服务器确认过的副本；远程列表里消失即视为已删除或隐藏
	Synced bool `json:"synced,omitempty"`
}

// Cache 单个客户端的本地帖子缓存
// 持久化失败后切换为纯内存模式，直到该客户端上下文结束
type Cache struct {
	mu       sync.Mutex
	kv       storage.KV
	memory   map[string]string
	degraded bool
	now      func() time.Time
	log      zerolog.Logger
}

func New(kv storage.KV, log zerolog.Logger) *Cache {
	return &Cache{
		kv:     kv,
		memory: make(map[string]string),
		now:    time.Now,
		log:    log,
	}
}

// Degraded 是否已退化为纯内存
func (c *Cache) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// Load 返回最新在前的帖子；不存在、格式错误或不可读时返回空列表
func (c *Cache) Load(ctx context.Context) []Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx)
}

func (c *Cache) loadLocked(ctx context.Context) []Post {
	raw, ok := c.read(ctx, PostsKey)
	if !ok {
		return []Post{}
	}
	var posts []Post
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		c.log.Debug().Err(err).Msg("malformed cached posts, starting empty")
		return []Post{}
	}
	if posts == nil {
		posts = []Post{}
	}
	return posts
}

// Append 插入到最前面；同 ID 的旧条目被替换
func (c *Cache) Append(ctx context.Context, post Post) ([]Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if post.Timestamp.IsZero() {
		post.Timestamp = c.now()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.Timestamp
	}

	posts := c.loadLocked(ctx)
	next := make([]Post, 0, len(posts)+1)
	next = append(next, post)
	for _, p := range posts {
		if p.ID != post.ID {
			next = append(next, p)
		}
	}
	return next, c.persistLocked(ctx, next)
}

// ToggleLike 按调用方看到的状态翻转，点赞数精确 ±1
func (c *Cache) ToggleLike(ctx context.Context, id string, currentlyLiked bool) (Post, error) {
	return c.update(ctx, id, func(p *Post) {
		p.IsLiked = !currentlyLiked
		if currentlyLiked {
			p.Likes--
		} else {
			p.Likes++
		}
	})
}

func (c *Cache) ToggleSaved(ctx context.Context, id string) (Post, error) {
	return c.update(ctx, id, func(p *Post) {
		p.IsSaved = !p.IsSaved
	})
}

func (c *Cache) Edit(ctx context.Context, id, content string) (Post, error) {
	return c.update(ctx, id, func(p *Post) {
		p.Content = content
	})
}

// Remove 删除指定帖子，不存在时不做任何事
func (c *Cache) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts := c.loadLocked(ctx)
	next := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != id {
			next = append(next, p)
		}
	}
	if len(next) == len(posts) {
		return nil
	}
	return c.persistLocked(ctx, next)
}

// Put 用服务器副本原位替换同 ID 条目
func (c *Cache) Put(ctx context.Context, post Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts := c.loadLocked(ctx)
	for i := range posts {
		if posts[i].ID == post.ID {
			posts[i] = post
			return c.persistLocked(ctx, posts)
		}
	}
	return ErrPostNotFound
}

// Replace 用远程结果覆盖整个列表（拉取合并后回写）
func (c *Cache) Replace(ctx context.Context, posts []Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked(ctx, posts)
}

func (c *Cache) update(ctx context.Context, id string, fn func(p *Post)) (Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	posts := c.loadLocked(ctx)
	for i := range posts {
		if posts[i].ID != id {
			continue
		}
		fn(&posts[i])
		// 已同步的帖子以服务器的 updated_at 为准，本地标记不参与合并竞争
		if !posts[i].Synced {
			posts[i].UpdatedAt = c.now()
		}
		return posts[i], c.persistLocked(ctx, posts)
	}
	return Post{}, ErrPostNotFound
}

func (c *Cache) persistLocked(ctx context.Context, posts []Post) error {
	data, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	return c.write(ctx, PostsKey, string(data))
}

func (c *Cache) read(ctx context.Context, key string) (string, bool) {
	if v, ok := c.memory[key]; ok {
		return v, true
	}
	if c.degraded || c.kv == nil {
		return "", false
	}
	v, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.log.Warn().Err(err).Str("key", key).Msg("local storage read failed")
		}
		return "", false
	}
	return v, true
}

// write 失败时保留内存副本并切换到内存模式，只在切换那一次返回错误
func (c *Cache) write(ctx context.Context, key, value string) error {
	if c.degraded || c.kv == nil {
		c.memory[key] = value
		return nil
	}
	if err := c.kv.Set(ctx, key, value); err != nil {
		c.degradeLocked(ctx)
		c.memory[key] = value
		c.log.Warn().Err(err).Str("key", key).Msg("local storage write failed, keeping data in memory")
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (c *Cache) remove(ctx context.Context, key string) {
	delete(c.memory, key)
	if c.degraded || c.kv == nil {
		// 内存模式下用空值遮蔽底层存储
		c.memory[key] = ""
		return
	}
	if err := c.kv.Remove(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("local storage remove failed")
	}
}

// degradeLocked 切换前把已有数据拷到内存，保证后续读取一致
func (c *Cache) degradeLocked(ctx context.Context) {
	for _, key := range []string{PostsKey, AvatarKey, SettingsKey} {
		if _, ok := c.memory[key]; ok {
			continue
		}
		if v, err := c.kv.Get(ctx, key); err == nil {
			c.memory[key] = v
		}
	}
	c.degraded = true
}
