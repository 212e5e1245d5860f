package postcache

import (
	"context"
	"encoding/json"
	"fmt"
)

type NotificationSettings struct {
	NewPosts bool `json:"newPosts"`
	Comments bool `json:"comments"`
	Likes    bool `json:"likes"`
	Matches  bool `json:"matches"`
}

type PrivacySettings struct {
	ProfilePublic bool `json:"profilePublic"`
	ShowEmail     bool `json:"showEmail"`
}

type Settings struct {
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
	Theme         string               `json:"theme"`    // light, dark, system
	Language      string               `json:"language"` // sq, en, es
}

func DefaultSettings() Settings {
	return Settings{
		Notifications: NotificationSettings{NewPosts: true, Comments: true, Likes: false, Matches: true},
		Privacy:       PrivacySettings{ProfilePublic: true, ShowEmail: false},
		Theme:         "light",
		Language:      "sq",
	}
}

func (s Settings) Validate() error {
	switch s.Theme {
	case "light", "dark", "system":
	default:
		return fmt.Errorf("invalid theme %q", s.Theme)
	}
	switch s.Language {
	case "sq", "en", "es":
	default:
		return fmt.Errorf("invalid language %q", s.Language)
	}
	return nil
}

// LoadSettings 不存在或格式错误时返回默认值
func (c *Cache) LoadSettings(ctx context.Context) Settings {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.read(ctx, SettingsKey)
	if !ok || raw == "" {
		return DefaultSettings()
	}
	settings := DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return DefaultSettings()
	}
	if settings.Validate() != nil {
		return DefaultSettings()
	}
	return settings
}

func (c *Cache) SaveSettings(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, SettingsKey, string(data))
}

// SaveAvatar 记录最近使用的头像地址
func (c *Cache) SaveAvatar(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(ctx, AvatarKey, url)
}

func (c *Cache) Avatar(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.read(ctx, AvatarKey)
	return v
}

func (c *Cache) ClearAvatar(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(ctx, AvatarKey)
}
