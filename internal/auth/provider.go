package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"rmashqip/internal/models"
)

type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	EventUserUpdated    Event = "USER_UPDATED"
)

var (
	ErrInvalidCredentials    = errors.New("invalid login credentials")
	ErrUserBanned            = errors.New("user is banned")
	ErrEmailTaken            = errors.New("user already registered")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrWeakPassword          = errors.New("password should be at least 6 characters")
	ErrProviderNotConfigured = errors.New("oauth provider not configured")
	ErrInvalidState          = errors.New("invalid oauth state")
	ErrEmailNotVerified      = errors.New("oauth email not verified")
	ErrInvalidToken          = errors.New("invalid or expired token")
	ErrSessionNotFound       = errors.New("session not found")
)

const minPasswordLength = 6

// User 认证用户
type User struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Provider string            `json:"provider"`
	Metadata map[string]string `json:"user_metadata"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Listener 认证状态变化回调；session 为 nil 表示已登出
type Listener func(event Event, session *Session)

type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Provider 基于数据库的认证服务，按客户端 ID 维护会话并广播状态变化
type Provider struct {
	db         *gorm.DB
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time

	oauthMu sync.Mutex
	oauth   map[string]*oauthProvider
	states  map[string]oauthState

	listenersMu sync.RWMutex
	listeners   map[string]map[uint64]Listener
	nextID      uint64

	// 串行化事件派发，保证按发出顺序送达
	emitMu sync.Mutex

	mailer Mailer
}

func NewProvider(db *gorm.DB, opts Options, log zerolog.Logger) *Provider {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Provider{
		db:         db,
		secret:     []byte(opts.Secret),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		log:        log,
		now:        time.Now,
		oauth:      make(map[string]*oauthProvider),
		states:     make(map[string]oauthState),
		listeners:  make(map[string]map[uint64]Listener),
	}
}

// OnAuthStateChange 订阅某客户端的状态变化，返回取消订阅函数
func (p *Provider) OnAuthStateChange(clientID string, listener Listener) func() {
	p.listenersMu.Lock()
	p.nextID++
	id := p.nextID
	if p.listeners[clientID] == nil {
		p.listeners[clientID] = make(map[uint64]Listener)
	}
	p.listeners[clientID][id] = listener
	p.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.listenersMu.Lock()
			defer p.listenersMu.Unlock()
			delete(p.listeners[clientID], id)
			if len(p.listeners[clientID]) == 0 {
				delete(p.listeners, clientID)
			}
		})
	}
}

func (p *Provider) emit(clientID string, event Event, session *Session) {
	p.emitMu.Lock()
	defer p.emitMu.Unlock()

	p.listenersMu.RLock()
	targets := make([]Listener, 0, len(p.listeners[clientID]))
	for _, l := range p.listeners[clientID] {
		targets = append(targets, l)
	}
	p.listenersMu.RUnlock()

	p.log.Debug().Str("client_id", clientID).Str("event", string(event)).Msg("auth state change")
	for _, l := range targets {
		l(event, session)
	}
}

// SignUp 注册邮箱密码账号，不自动登录
func (p *Provider) SignUp(ctx context.Context, email, password, fullName string) (*User, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	var existing models.Identity
	err := p.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	local, _, _ := strings.Cut(email, "@")
	identity := models.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Provider:     "email",
		FullName:     strings.TrimSpace(fullName),
		Username:     local,
	}
	if err := p.db.WithContext(ctx).Create(&identity).Error; err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	if p.MailEnabled() {
		p.mailer.SendWelcomeEmail(identity.Email, models.DisplayName(identity.FullName, identity.Email))
	}

	user := toUser(identity)
	return &user, nil
}

// SignInWithPassword 校验密码并为客户端建立会话
func (p *Provider) SignInWithPassword(ctx context.Context, clientID, email, password string) (*Session, error) {
	var identity models.Identity
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if identity.PasswordHash == "" || !checkPassword(password, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return p.startSession(ctx, clientID, identity)
}

func (p *Provider) startSession(ctx context.Context, clientID string, identity models.Identity) (*Session, error) {
	if banned, err := p.isBanned(ctx, identity.ID); err != nil {
		return nil, err
	} else if banned {
		return nil, ErrUserBanned
	}

	refreshToken, hash, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	now := p.now()
	record := models.RefreshSession{
		ClientID:        clientID,
		UserID:          identity.ID,
		TokenHash:       hash,
		AccessExpiresAt: now.Add(p.accessTTL),
		ExpiresAt:       now.Add(p.refreshTTL),
	}

	// 同一客户端只保留一个会话
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", clientID).Delete(&models.RefreshSession{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	session, err := p.buildSession(identity, clientID, now, record.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	session.RefreshToken = refreshToken

	p.emit(clientID, EventSignedIn, session)
	return session, nil
}

// GetSession 读取客户端当前会话；访问令牌过期时重新签发并广播 TOKEN_REFRESHED
func (p *Provider) GetSession(ctx context.Context, clientID string) (*Session, error) {
	now := p.now()

	var record models.RefreshSession
	err := p.db.WithContext(ctx).
		Where("client_id = ? AND expires_at > ?", clientID, now).
		Order("created_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.db.WithContext(ctx).Where("client_id = ? AND expires_at <= ?", clientID, now).Delete(&models.RefreshSession{})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var identity models.Identity
	if err := p.db.WithContext(ctx).First(&identity, "id = ?", record.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			p.db.WithContext(ctx).Delete(&record)
			return nil, nil
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	refreshed := false
	if !record.AccessExpiresAt.After(now) {
		record.AccessExpiresAt = now.Add(p.accessTTL)
		if err := p.db.WithContext(ctx).Model(&record).Update("access_expires_at", record.AccessExpiresAt).Error; err != nil {
			return nil, fmt.Errorf("refresh session: %w", err)
		}
		refreshed = true
	}

	session, err := p.buildSession(identity, clientID, now, record.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	if refreshed {
		p.emit(clientID, EventTokenRefreshed, session)
	}
	return session, nil
}

// Refresh 用刷新令牌换取新的访问令牌（API 客户端使用）
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	now := p.now()

	var record models.RefreshSession
	err := p.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at > ?", hashRefreshToken(refreshToken), now).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var identity models.Identity
	if err := p.db.WithContext(ctx).First(&identity, "id = ?", record.UserID).Error; err != nil {
		return nil, ErrInvalidToken
	}

	record.AccessExpiresAt = now.Add(p.accessTTL)
	if err := p.db.WithContext(ctx).Model(&record).Update("access_expires_at", record.AccessExpiresAt).Error; err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	session, err := p.buildSession(identity, record.ClientID, now, record.AccessExpiresAt)
	if err != nil {
		return nil, err
	}
	p.emit(record.ClientID, EventTokenRefreshed, session)
	return session, nil
}

// SignOut 删除客户端会话并广播 SIGNED_OUT
func (p *Provider) SignOut(ctx context.Context, clientID string) error {
	if err := p.db.WithContext(ctx).Where("client_id = ?", clientID).Delete(&models.RefreshSession{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	p.emit(clientID, EventSignedOut, nil)
	return nil
}

type UserUpdate struct {
	FullName  *string
	AvatarURL *string
}

// UpdateUser 更新用户元数据并广播 USER_UPDATED
func (p *Provider) UpdateUser(ctx context.Context, clientID, userID string, update UserUpdate) (*User, error) {
	var identity models.Identity
	if err := p.db.WithContext(ctx).First(&identity, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	updates := map[string]interface{}{}
	if update.FullName != nil {
		identity.FullName = *update.FullName
		updates["full_name"] = identity.FullName
	}
	if update.AvatarURL != nil {
		identity.AvatarURL = *update.AvatarURL
		updates["avatar_url"] = identity.AvatarURL
	}
	if len(updates) > 0 {
		if err := p.db.WithContext(ctx).Model(&identity).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update identity: %w", err)
		}
	}

	user := toUser(identity)
	session, err := p.GetSession(ctx, clientID)
	if err == nil && session != nil {
		p.emit(clientID, EventUserUpdated, session)
	}
	return &user, nil
}

// VerifyAccessToken 校验访问令牌，返回其中的用户与客户端 ID
func (p *Provider) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims, err := parseAccessToken(token, p.secret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// PurgeExpired 清理过期会话与 OAuth state
func (p *Provider) PurgeExpired(ctx context.Context) (int64, error) {
	now := p.now()

	p.oauthMu.Lock()
	for k, s := range p.states {
		if now.After(s.expiresAt) {
			delete(p.states, k)
		}
	}
	p.oauthMu.Unlock()

	res := p.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.RefreshSession{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (p *Provider) buildSession(identity models.Identity, clientID string, issuedAt, expiresAt time.Time) (*Session, error) {
	token, err := generateAccessToken(p.secret, identity.ID, clientID, identity.Email, issuedAt, expiresAt)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        toUser(identity),
	}, nil
}

func (p *Provider) isBanned(ctx context.Context, userID string) (bool, error) {
	var profile models.Profile
	err := p.db.WithContext(ctx).Select("is_banned").First(&profile, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load profile: %w", err)
	}
	return profile.IsBanned, nil
}

func toUser(identity models.Identity) User {
	return User{
		ID:       identity.ID,
		Email:    identity.Email,
		Provider: identity.Provider,
		Metadata: identity.Metadata(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	return ok && local != "" && domain != "" && !strings.Contains(domain, "@")
}
