package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"rmashqip/internal/postcache"
	"rmashqip/internal/session"
	"rmashqip/internal/storage"
)

const DefaultMaxClients = 2000

// Context 一个浏览器客户端的会话与本地缓存
type Context struct {
	ID      string
	Session *session.Store
	Posts   *postcache.Cache
}

type Options struct {
	Auth        session.Authenticator // nil 表示认证服务未配置
	Profiles    session.ProfileSource
	Storage     storage.Pool
	LoadTimeout time.Duration
	MaxClients  int
	Log         zerolog.Logger
}

// Registry 按客户端 ID 绑定会话与缓存，超出容量时淘汰最久未使用的客户端
type Registry struct {
	opts    Options
	clients *lru.Cache[string, *Context]
	mu      sync.Mutex
	log     zerolog.Logger
}

func NewRegistry(opts Options) (*Registry, error) {
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.Storage == nil {
		return nil, fmt.Errorf("client registry: storage pool required")
	}

	r := &Registry{opts: opts, log: opts.Log}
	l, err := lru.NewWithEvict[string, *Context](opts.MaxClients, func(id string, c *Context) {
		// 淘汰时取消认证订阅
		c.Session.Close()
		r.log.Debug().Str("client_id", id).Msg("client evicted")
	})
	if err != nil {
		return nil, fmt.Errorf("create client registry: %w", err)
	}
	r.clients = l
	return r, nil
}

// Get 返回客户端上下文，第一次访问时创建并开始加载会话
func (r *Registry) Get(ctx context.Context, clientID string) *Context {
	r.mu.Lock()
	c, ok := r.clients.Get(clientID)
	if !ok {
		posts := postcache.New(r.opts.Storage.Open(clientID), r.log.With().Str("client_id", clientID).Logger())
		c = &Context{
			ID:    clientID,
			Posts: posts,
			Session: session.New(session.Options{
				ClientID:    clientID,
				Auth:        r.opts.Auth,
				Profiles:    r.opts.Profiles,
				Avatars:     posts,
				LoadTimeout: r.opts.LoadTimeout,
				Log:         r.log,
			}),
		}
		r.clients.Add(clientID, c)
	}
	r.mu.Unlock()

	c.Session.Initialize(ctx)
	return c
}

// Peek 不创建、不更新使用顺序
func (r *Registry) Peek(clientID string) (*Context, bool) {
	return r.clients.Peek(clientID)
}

func (r *Registry) Len() int {
	return r.clients.Len()
}

// Close 关闭所有客户端
func (r *Registry) Close() {
	r.clients.Purge()
}
