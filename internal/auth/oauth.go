package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"rmashqip/internal/config"
	"rmashqip/internal/models"
)

const (
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"

	oauthStateTTL = 10 * time.Minute
)

type oauthProvider struct {
	config      *oauth2.Config
	userInfoURL string
	parse       func([]byte) (oauthUserInfo, error)
}

type oauthState struct {
	clientID  string
	provider  string
	expiresAt time.Time
}

type oauthUserInfo struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string
	// EmailVerified 第三方确认过邮箱归属，只有这时才按邮箱关联已有账号
	EmailVerified bool
}

// ConfigureOAuth 根据配置注册 Google / Facebook，未填 ClientID 的跳过
func (p *Provider) ConfigureOAuth(cfg config.OAuthConfig) {
	siteURL := strings.TrimRight(cfg.SiteURL, "/")

	if cfg.Google.ClientID != "" {
		p.RegisterOAuth(ProviderGoogle, &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  siteURL + "/api/auth/callback/google",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}, "https://www.googleapis.com/oauth2/v2/userinfo")
	}

	if cfg.Facebook.ClientID != "" {
		p.RegisterOAuth(ProviderFacebook, &oauth2.Config{
			ClientID:     cfg.Facebook.ClientID,
			ClientSecret: cfg.Facebook.ClientSecret,
			RedirectURL:  siteURL + "/api/auth/callback/facebook",
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		}, "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)")
	}
}

func (p *Provider) RegisterOAuth(name string, cfg *oauth2.Config, userInfoURL string) {
	parse := parseGoogleUserInfo
	if name == ProviderFacebook {
		parse = parseFacebookUserInfo
	}

	p.oauthMu.Lock()
	defer p.oauthMu.Unlock()
	p.oauth[name] = &oauthProvider{config: cfg, userInfoURL: userInfoURL, parse: parse}
}

// SignInWithOAuth 生成第三方授权跳转地址，state 绑定发起的客户端
func (p *Provider) SignInWithOAuth(_ context.Context, clientID, provider string) (string, error) {
	p.oauthMu.Lock()
	defer p.oauthMu.Unlock()

	op, ok := p.oauth[provider]
	if !ok {
		return "", ErrProviderNotConfigured
	}

	state, err := generateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	p.states[state] = oauthState{
		clientID:  clientID,
		provider:  provider,
		expiresAt: p.now().Add(oauthStateTTL),
	}

	return op.config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteOAuth 处理回调：校验 state、换取令牌、查找或创建身份并登录
func (p *Provider) CompleteOAuth(ctx context.Context, provider, state, code string) (*Session, error) {
	p.oauthMu.Lock()
	pending, ok := p.states[state]
	delete(p.states, state)
	op := p.oauth[provider]
	p.oauthMu.Unlock()

	if !ok || pending.provider != provider || p.now().After(pending.expiresAt) {
		return nil, ErrInvalidState
	}
	if op == nil {
		return nil, ErrProviderNotConfigured
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidState)
	}

	token, err := op.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	info, err := p.fetchUserInfo(ctx, op, token)
	if err != nil {
		return nil, err
	}

	identity, err := p.findOrCreateOAuthIdentity(ctx, provider, info)
	if err != nil {
		return nil, err
	}

	return p.startSession(ctx, pending.clientID, identity)
}

func (p *Provider) fetchUserInfo(ctx context.Context, op *oauthProvider, token *oauth2.Token) (oauthUserInfo, error) {
	client := op.config.Client(ctx, token)
	resp, err := client.Get(op.userInfoURL)
	if err != nil {
		return oauthUserInfo{}, fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return oauthUserInfo{}, fmt.Errorf("fetch user info: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return oauthUserInfo{}, fmt.Errorf("read user info: %w", err)
	}
	info, err := op.parse(body)
	if err != nil {
		return oauthUserInfo{}, err
	}
	if info.ID == "" {
		return oauthUserInfo{}, errors.New("user info without id")
	}
	if info.Email != "" && !info.EmailVerified {
		return oauthUserInfo{}, ErrEmailNotVerified
	}
	return info, nil
}

func (p *Provider) findOrCreateOAuthIdentity(ctx context.Context, provider string, info oauthUserInfo) (models.Identity, error) {
	var identity models.Identity
	query := p.db.WithContext(ctx).Where("provider = ? AND provider_user_id = ?", provider, info.ID)
	if info.Email != "" && info.EmailVerified {
		query = query.Or("email = ?", normalizeEmail(info.Email))
	}
	err := query.First(&identity).Error
	if err == nil {
		// 已有账号，补充第三方信息
		updates := map[string]interface{}{}
		if identity.ProviderUserID == "" {
			updates["provider_user_id"] = info.ID
		}
		if identity.AvatarURL == "" && info.AvatarURL != "" {
			updates["avatar_url"] = info.AvatarURL
			identity.AvatarURL = info.AvatarURL
		}
		if len(updates) > 0 {
			p.db.WithContext(ctx).Model(&identity).Updates(updates)
		}
		return identity, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}

	email := normalizeEmail(info.Email)
	if email == "" {
		email = fmt.Sprintf("%s-%s@users.noreply.rmashqip", provider, info.ID)
	}
	local, _, _ := strings.Cut(email, "@")
	identity = models.Identity{
		ID:             uuid.NewString(),
		Email:          email,
		Provider:       provider,
		ProviderUserID: info.ID,
		FullName:       info.Name,
		Username:       local,
		AvatarURL:      info.AvatarURL,
	}
	if err := p.db.WithContext(ctx).Create(&identity).Error; err != nil {
		return models.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return identity, nil
}

func parseGoogleUserInfo(body []byte) (oauthUserInfo, error) {
	var raw struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return oauthUserInfo{}, fmt.Errorf("decode google user info: %w", err)
	}
	return oauthUserInfo{
		ID:            raw.ID,
		Email:         raw.Email,
		Name:          raw.Name,
		AvatarURL:     raw.Picture,
		EmailVerified: raw.VerifiedEmail,
	}, nil
}

func parseFacebookUserInfo(body []byte) (oauthUserInfo, error) {
	var raw struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return oauthUserInfo{}, fmt.Errorf("decode facebook user info: %w", err)
	}
	// Graph API 只返回已确认的邮箱
	return oauthUserInfo{
		ID:            raw.ID,
		Email:         raw.Email,
		Name:          raw.Name,
		AvatarURL:     raw.Picture.Data.URL,
		EmailVerified: raw.Email != "",
	}, nil
}
