package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"

	"rmashqip/internal/models"
)

const (
	resetCodeTTL     = 15 * time.Minute
	maxResetAttempts = 5
)

var (
	ErrMailNotConfigured = errors.New("mail delivery not configured")
	ErrInvalidResetCode  = errors.New("invalid or expired reset code")
)

// Mailer 账号相关邮件，由 *services.MailService 实现
type Mailer interface {
	Enabled() bool
	SendWelcomeEmail(email, name string)
	SendPasswordResetEmail(email, code string)
}

func (p *Provider) WithMailer(m Mailer) *Provider {
	p.mailer = m
	return p
}

func (p *Provider) MailEnabled() bool {
	return p.mailer != nil && p.mailer.Enabled()
}

// RequestPasswordReset 生成 6 位验证码并发到邮箱
// 邮箱未注册时同样返回成功，不暴露账号是否存在
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	if !p.MailEnabled() {
		return ErrMailNotConfigured
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrInvalidEmail
	}

	var identity models.Identity
	err := p.db.WithContext(ctx).Where("email = ?", email).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.log.Info().Msg("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup identity: %w", err)
	}

	code, err := generateResetCode()
	if err != nil {
		return err
	}
	hash, err := hashPassword(code)
	if err != nil {
		return fmt.Errorf("hash reset code: %w", err)
	}

	err = p.db.WithContext(ctx).Model(&identity).Updates(map[string]interface{}{
		"reset_code_hash":  hash,
		"reset_expires_at": p.now().Add(resetCodeTTL),
		"reset_attempts":   0,
	}).Error
	if err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}

	p.mailer.SendPasswordResetEmail(identity.Email, code)
	return nil
}

// ResetPassword 校验验证码后设置新密码，该用户所有客户端的会话随之失效
func (p *Provider) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	var identity models.Identity
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidResetCode
	}
	if err != nil {
		return fmt.Errorf("lookup identity: %w", err)
	}

	if identity.ResetCodeHash == "" ||
		identity.ResetExpiresAt == nil ||
		!p.now().Before(*identity.ResetExpiresAt) ||
		identity.ResetAttempts >= maxResetAttempts {
		return ErrInvalidResetCode
	}
	if !checkPassword(code, identity.ResetCodeHash) {
		p.db.WithContext(ctx).Model(&identity).
			UpdateColumn("reset_attempts", gorm.Expr("reset_attempts + ?", 1))
		return ErrInvalidResetCode
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var clients []string
	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&identity).Updates(map[string]interface{}{
			"password_hash":    hash,
			"reset_code_hash":  "",
			"reset_expires_at": nil,
			"reset_attempts":   0,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.RefreshSession{}).
			Where("user_id = ?", identity.ID).
			Distinct("client_id").
			Pluck("client_id", &clients).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", identity.ID).Delete(&models.RefreshSession{}).Error
	})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	for _, clientID := range clients {
		p.emit(clientID, EventSignedOut, nil)
	}
	p.log.Info().Str("user_id", identity.ID).Int("sessions", len(clients)).Msg("password reset")
	return nil
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
