package services

import (
	"bytes"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"rmashqip/internal/config"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// MailService 异步发送账号相关邮件，未配置 SMTP 时所有发送都是空操作
type MailService struct {
	cfg          config.MailConfig
	templatesDir string
	log          zerolog.Logger
	send         sendFunc
	wg           sync.WaitGroup
}

func NewMailService(cfg config.MailConfig, templatesDir string, log zerolog.Logger) *MailService {
	if !cfg.Enabled() {
		log.Warn().Msg("mail service disabled: RMA_MAIL_* not fully set")
	}
	return &MailService{
		cfg:          cfg,
		templatesDir: templatesDir,
		log:          log,
		send:         smtp.SendMail,
	}
}

func (s *MailService) Enabled() bool {
	return s != nil && s.cfg.Enabled()
}

// Wait 等待已发出的邮件全部结束，关闭服务时调用
func (s *MailService) Wait() {
	s.wg.Wait()
}

func (s *MailService) SendWelcomeEmail(email, name string) {
	s.deliver(email, "Mirësevini në RMA Shqip", "welcome.html", map[string]string{"Name": name})
}

func (s *MailService) SendPasswordResetEmail(email, code string) {
	s.deliver(email, "Kodi për rivendosjen e fjalëkalimit", "reset.html", map[string]string{"Code": code})
}

func (s *MailService) deliver(to, subject, templateName string, data any) {
	if !s.Enabled() {
		return
	}
	body, err := s.render(templateName, data)
	if err != nil {
		s.log.Error().Err(err).Str("template", templateName).Msg("render email failed")
		return
	}
	s.sendAsync(to, subject, body)
}

func (s *MailService) render(name string, data any) (string, error) {
	t, err := template.ParseFiles(filepath.Join(s.templatesDir, "email", name))
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *MailService) sendAsync(to, subject, body string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		msg := buildMessage(s.cfg.From, to, subject, body)

		if err := s.send(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
			s.log.Error().Err(err).Str("to", to).Msg("send email failed")
			return
		}
		s.log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	}()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: RMA Shqip <" + from + ">\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
