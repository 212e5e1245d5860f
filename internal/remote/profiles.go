package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"rmashqip/internal/models"
)

func (c *Client) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	if err := db.First(&profile, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &profile, nil
}

// CreateProfile 每个用户至多一条资料，重复创建返回 ErrConflict
func (c *Client) CreateProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, fmt.Errorf("%w: profile id required", ErrInvalidInput)
	}
	if profile.Role == "" {
		profile.Role = models.RoleUser
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("id = ?", profile.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(profile).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

type ProfileUpdate struct {
	FullName  *string
	Username  *string
	Bio       *string
	AvatarURL *string
}

func (c *Client) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if update.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*update.FullName)
	}
	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if username == "" {
			return nil, fmt.Errorf("%w: username", ErrInvalidInput)
		}
		updates["username"] = username
	}
	if update.Bio != nil {
		if len([]rune(*update.Bio)) > 200 {
			return nil, fmt.Errorf("%w: bio too long", ErrInvalidInput)
		}
		updates["bio"] = *update.Bio
	}
	if update.AvatarURL != nil {
		updates["avatar_url"] = *update.AvatarURL
	}

	profile, err := c.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return profile, nil
	}
	if err := db.Model(profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return c.GetProfile(ctx, id)
}

// ListProfiles 成员列表，可按名称或邮箱过滤
func (c *Client) ListProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	db, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := db.Order("created_at DESC").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where("LOWER(full_name) LIKE ? OR LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var profiles []models.Profile
	if err := q.Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return profiles, nil
}

func (c *Client) SetRole(ctx context.Context, id, role string) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if !models.ValidRole(role) {
		return fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}

	res := db.Model(&models.Profile{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("set role: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) SetBanned(ctx context.Context, id string, banned bool) error {
	db, err := c.conn(ctx)
	if err != nil {
		return err
	}

	res := db.Model(&models.Profile{}).Where("id = ?", id).Update("is_banned", banned)
	if res.Error != nil {
		return fmt.Errorf("set banned: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
