package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rmashqip/internal/auth"
	"rmashqip/internal/models"
	"rmashqip/internal/remote"
)

// Authenticator 认证服务，由 *auth.Provider 实现
type Authenticator interface {
	GetSession(ctx context.Context, clientID string) (*auth.Session, error)
	SignInWithPassword(ctx context.Context, clientID, email, password string) (*auth.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*auth.User, error)
	SignInWithOAuth(ctx context.Context, clientID, provider string) (string, error)
	SignOut(ctx context.Context, clientID string) error
	UpdateUser(ctx context.Context, clientID, userID string, update auth.UserUpdate) (*auth.User, error)
	OnAuthStateChange(clientID string, listener auth.Listener) func()
	MailEnabled() bool
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// ProfileSource 资料读写，由 *remote.Client 实现
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	CreateProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id string, update remote.ProfileUpdate) (*models.Profile, error)
}

// AvatarSink 本地头像缓存，由 *postcache.Cache 实现
type AvatarSink interface {
	SaveAvatar(ctx context.Context, url string) error
	ClearAvatar(ctx context.Context)
}

type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "uninitialized"
}

const DefaultLoadTimeout = 5 * time.Second

const resolveTimeout = 10 * time.Second

var ErrNotSignedIn = errors.New("not signed in")

// Store 单个客户端的会话状态：当前用户、会话与资料
type Store struct {
	clientID    string
	auth        Authenticator
	profiles    ProfileSource
	avatars     AvatarSink
	loadTimeout time.Duration
	log         zerolog.Logger

	mu            sync.Mutex
	state         State
	session       *auth.Session
	user          *auth.User
	profile       *models.Profile
	generation    uint64
	notifications []Notification
	watchdog      *time.Timer
	unsubscribe   func()

	initOnce  sync.Once
	ready     chan struct{}
	readyOnce sync.Once
}

type Options struct {
	ClientID    string
	Auth        Authenticator // nil 表示认证服务未配置
	Profiles    ProfileSource
	Avatars     AvatarSink
	LoadTimeout time.Duration
	Log         zerolog.Logger
}

func New(opts Options) *Store {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	return &Store{
		clientID:    opts.ClientID,
		auth:        opts.Auth,
		profiles:    opts.Profiles,
		avatars:     opts.Avatars,
		loadTimeout: opts.LoadTimeout,
		log:         opts.Log.With().Str("client_id", opts.ClientID).Logger(),
		ready:       make(chan struct{}),
	}
}

// Initialize 开始加载会话并立即返回；只有第一次调用生效
// 看门狗保证 loadTimeout 之后加载一定结束
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		if s.auth == nil {
			s.mu.Lock()
			s.state = StateAnonymous
			s.pushLocked(configErrorNotification())
			s.mu.Unlock()
			s.markReady()
			return
		}

		s.mu.Lock()
		s.state = StateLoading
		s.watchdog = time.AfterFunc(s.loadTimeout, s.forceReady)
		s.mu.Unlock()

		unsubscribe := s.auth.OnAuthStateChange(s.clientID, s.onAuthStateChange)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()

		go s.load(context.WithoutCancel(ctx))
	})
}

func (s *Store) load(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	session, err := s.auth.GetSession(ctx, s.clientID)
	if err != nil {
		s.log.Error().Err(err).Msg("load session failed")
		s.finishLoading()
		return
	}
	if session == nil {
		s.finishLoading()
		return
	}

	s.mu.Lock()
	if gen == s.generation {
		s.setSessionLocked(session)
	}
	s.mu.Unlock()

	s.resolve(ctx, gen, &session.User)
	s.finishLoading()
}

// onAuthStateChange 按发出顺序处理认证事件
func (s *Store) onAuthStateChange(event auth.Event, session *auth.Session) {
	s.log.Debug().Str("event", string(event)).Msg("auth state change")

	s.mu.Lock()
	s.generation++
	gen := s.generation
	if session == nil {
		s.session = nil
		s.user = nil
		s.profile = nil
		s.state = StateAnonymous
		s.mu.Unlock()

		if s.avatars != nil {
			s.avatars.ClearAvatar(context.Background())
		}
		s.markReady()
		return
	}
	s.setSessionLocked(session)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()
	s.resolve(ctx, gen, &session.User)
	s.markReady()
}

func (s *Store) setSessionLocked(session *auth.Session) {
	user := session.User
	s.session = session
	s.user = &user
}

// ResolveProfile 获取或创建当前用户的资料，失败时本地合成
func (s *Store) ResolveProfile(ctx context.Context, user *auth.User) *models.Profile {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	return s.resolve(ctx, gen, user)
}

func (s *Store) resolve(ctx context.Context, gen uint64, user *auth.User) *models.Profile {
	profile := s.fetchOrCreateProfile(ctx, user)

	if profile.AvatarURL != "" && s.avatars != nil {
		if err := s.avatars.SaveAvatar(ctx, profile.AvatarURL); err != nil {
			s.log.Warn().Err(err).Msg("save avatar failed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 更新的事件已经到达，丢弃这次结果
	if gen != s.generation {
		s.log.Debug().Uint64("generation", gen).Msg("discarding stale profile resolution")
		return profile
	}
	s.profile = profile
	if s.user != nil {
		s.state = StateAuthenticated
	}
	return profile
}

func (s *Store) fetchOrCreateProfile(ctx context.Context, user *auth.User) *models.Profile {
	if s.profiles == nil {
		return synthesizeProfile(user)
	}

	profile, err := s.profiles.GetProfile(ctx, user.ID)
	if err == nil {
		return profile
	}
	if !errors.Is(err, remote.ErrNotFound) {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("fetch profile failed, using local profile")
		return synthesizeProfile(user)
	}

	created, err := s.profiles.CreateProfile(ctx, &models.Profile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  models.DisplayName(user.Metadata["full_name"], user.Email),
		Username:  user.Metadata["username"],
		AvatarURL: user.Metadata["avatar_url"],
		Role:      models.RoleUser,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("create profile failed, using local profile")
		return synthesizeProfile(user)
	}
	return created
}

func synthesizeProfile(user *auth.User) *models.Profile {
	return &models.Profile{
		ID:          user.ID,
		Email:       user.Email,
		FullName:    models.DisplayName(user.Metadata["full_name"], user.Email),
		Username:    user.Metadata["username"],
		AvatarURL:   user.Metadata["avatar_url"],
		Role:        models.RoleUser,
		Synthesized: true,
	}
}

// forceReady 看门狗：加载超时后强制结束
func (s *Store) forceReady() {
	s.mu.Lock()
	if s.state == StateLoading {
		s.log.Warn().Dur("timeout", s.loadTimeout).Msg("session load timed out")
		if s.user != nil {
			if s.profile == nil {
				s.profile = synthesizeProfile(s.user)
			}
			s.state = StateAuthenticated
		} else {
			s.state = StateAnonymous
		}
	}
	s.mu.Unlock()
	s.markReady()
}

func (s *Store) finishLoading() {
	s.mu.Lock()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.state == StateLoading {
		if s.user != nil {
			if s.profile == nil {
				s.profile = synthesizeProfile(s.user)
			}
			s.state = StateAuthenticated
		} else {
			s.state = StateAnonymous
		}
	}
	s.mu.Unlock()
	s.markReady()
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// WaitReady 等待首次加载结束
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignInWithPassword 成功与否都会留下一条提示
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) bool {
	if s.auth == nil {
		s.push(configErrorNotification())
		return false
	}
	if _, err := s.auth.SignInWithPassword(ctx, s.clientID, email, password); err != nil {
		s.push(errorNotification(authErrorMessage(err)))
		return false
	}
	s.push(Notification{Title: "Mirësevini!", Description: "Jeni kyçur me sukses"})
	return true
}

// SignUpWithPassword 注册后不自动登录
func (s *Store) SignUpWithPassword(ctx context.Context, email, password, fullName string) bool {
	if s.auth == nil {
		s.push(configErrorNotification())
		return false
	}
	if _, err := s.auth.SignUp(ctx, email, password, fullName); err != nil {
		s.push(errorNotification(authErrorMessage(err)))
		return false
	}
	description := "Tani mund të kyçeni"
	if s.auth.MailEnabled() {
		description = "Ju dërguam një email mirëseardhjeje. Tani mund të kyçeni"
	}
	s.push(Notification{Title: "Llogaria u krijua!", Description: description})
	return true
}

// RequestPasswordReset 发送重置验证码；邮箱是否存在都给出同样的提示
func (s *Store) RequestPasswordReset(ctx context.Context, email string) bool {
	if s.auth == nil {
		s.push(configErrorNotification())
		return false
	}
	if err := s.auth.RequestPasswordReset(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("password reset request failed")
		s.push(errorNotification(authErrorMessage(err)))
		return false
	}
	s.push(Notification{Title: "Kontrolloni email-in", Description: "Nëse llogaria ekziston, ju dërguam një kod për rivendosjen e fjalëkalimit"})
	return true
}

func (s *Store) ResetPassword(ctx context.Context, email, code, newPassword string) bool {
	if s.auth == nil {
		s.push(configErrorNotification())
		return false
	}
	if err := s.auth.ResetPassword(ctx, email, code, newPassword); err != nil {
		s.push(errorNotification(authErrorMessage(err)))
		return false
	}
	s.push(Notification{Title: "Fjalëkalimi u ndryshua", Description: "Kyçuni me fjalëkalimin e ri"})
	return true
}

// SignInWithOAuth 返回第三方登录跳转地址
func (s *Store) SignInWithOAuth(ctx context.Context, provider string) (string, bool) {
	if s.auth == nil {
		s.push(configErrorNotification())
		return "", false
	}
	url, err := s.auth.SignInWithOAuth(ctx, s.clientID, provider)
	if err != nil {
		s.log.Warn().Err(err).Str("provider", provider).Msg("oauth sign in failed")
		s.push(errorNotification("Nuk u arrit lidhja me " + ProviderLabel(provider)))
		return "", false
	}
	return url, true
}

func (s *Store) SignOut(ctx context.Context) bool {
	if s.auth == nil {
		s.push(configErrorNotification())
		return false
	}
	if err := s.auth.SignOut(ctx, s.clientID); err != nil {
		s.push(errorNotification(authErrorMessage(err)))
		return false
	}
	s.push(Notification{Title: "Dilni", Description: "Jeni shkëputur me sukses"})
	return true
}

// UpdateProfile 修改资料并同步到认证元数据
func (s *Store) UpdateProfile(ctx context.Context, update remote.ProfileUpdate) (*models.Profile, error) {
	s.mu.Lock()
	user := s.user
	s.mu.Unlock()
	if user == nil {
		return nil, ErrNotSignedIn
	}
	if s.profiles == nil {
		return nil, remote.ErrNotConfigured
	}

	profile, err := s.profiles.UpdateProfile(ctx, user.ID, update)
	if err != nil {
		s.push(errorNotification("Profili nuk u përditësua"))
		return nil, err
	}

	if s.auth != nil && (update.FullName != nil || update.AvatarURL != nil) {
		if _, err := s.auth.UpdateUser(ctx, s.clientID, user.ID, auth.UserUpdate{
			FullName:  update.FullName,
			AvatarURL: update.AvatarURL,
		}); err != nil {
			s.log.Warn().Err(err).Msg("update auth metadata failed")
		}
	}
	if update.AvatarURL != nil && s.avatars != nil {
		if err := s.avatars.SaveAvatar(ctx, *update.AvatarURL); err != nil {
			s.log.Warn().Err(err).Msg("save avatar failed")
		}
	}

	s.mu.Lock()
	if s.user != nil && s.user.ID == user.ID {
		s.generation++
		s.profile = profile
		s.state = StateAuthenticated
	}
	s.mu.Unlock()

	s.push(Notification{Title: "Profili u përditësua", Description: "Ndryshimet u ruajtën"})
	return profile, nil
}

// Close 取消订阅并停止看门狗
func (s *Store) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Loading() bool {
	select {
	case <-s.ready:
		return false
	default:
		return true
	}
}

func (s *Store) User() *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Store) Session() *auth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	sess := *s.session
	return &sess
}

func (s *Store) Profile() *models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

func (s *Store) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.IsAdmin()
}

// IsModerator 版主或管理员
func (s *Store) IsModerator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.IsModerator()
}

// ProviderLabel 第三方登录的显示名称
func ProviderLabel(provider string) string {
	switch strings.ToLower(provider) {
	case auth.ProviderGoogle:
		return "Google"
	case auth.ProviderFacebook:
		return "Facebook"
	}
	return provider
}
