package models

import (
	"strings"
	"time"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Identity 认证身份（邮箱密码或 OAuth），ID 同时是 Profile 的主键
type Identity struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string    `json:"-"`
	Provider       string    `gorm:"size:20;default:'email';not null" json:"provider"` // email, google, facebook
	ProviderUserID string    `gorm:"index" json:"provider_user_id"`
	FullName       string    `json:"full_name"`
	Username       string    `json:"username"`
	AvatarURL      string    `json:"avatar_url"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// 密码重置验证码，只存哈希
	ResetCodeHash  string     `json:"-"`
	ResetExpiresAt *time.Time `json:"-"`
	ResetAttempts  int        `gorm:"default:0" json:"-"`
}

// Metadata 与前端约定的 user_metadata 字段
func (i *Identity) Metadata() map[string]string {
	return map[string]string{
		"full_name":  i.FullName,
		"username":   i.Username,
		"avatar_url": i.AvatarURL,
	}
}

// Profile 用户资料，每个 Identity 至多一条
type Profile struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"index" json:"email"`
	FullName  string    `json:"full_name"`
	Username  string    `gorm:"index" json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Bio       string    `gorm:"size:200" json:"bio"`
	Role      string    `gorm:"size:20;default:'user';not null" json:"role"` // user, moderator, admin
	IsBanned  bool      `gorm:"default:false" json:"is_banned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 远程获取失败时由本地合成，不落库
	Synthesized bool `gorm:"-" json:"synthesized,omitempty"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

func (p *Profile) IsModerator() bool {
	return p != nil && (p.Role == RoleModerator || p.Role == RoleAdmin)
}

// DisplayName 优先 full_name，否则使用邮箱前缀
func DisplayName(fullName, email string) string {
	if strings.TrimSpace(fullName) != "" {
		return fullName
	}
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// Follow 关注关系
type Follow struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FollowerID  string    `gorm:"size:36;not null;uniqueIndex:idx_follow_pair" json:"follower_id"`
	FollowingID string    `gorm:"size:36;not null;index;uniqueIndex:idx_follow_pair" json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RefreshSession 按客户端保存的刷新凭证，只存哈希
type RefreshSession struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ClientID        string    `gorm:"size:64;not null;index" json:"client_id"`
	UserID          string    `gorm:"size:36;not null;index" json:"user_id"`
	TokenHash       []byte    `gorm:"not null" json:"-"`
	AccessExpiresAt time.Time `json:"access_expires_at"` // 过期后在读取会话时重新签发
	ExpiresAt       time.Time `gorm:"index" json:"expires_at"`
	CreatedAt       time.Time `json:"created_at"`
}
