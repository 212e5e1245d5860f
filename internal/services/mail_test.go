package services

import (
	"errors"
	"net/smtp"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmashqip/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

type mailbox struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mailbox) send(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
	return nil
}

func newTestMailService(t *testing.T, cfg config.MailConfig) (*MailService, *mailbox) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "email"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "email", "reset.html"), []byte(`<p>Kodi: {{.Code}}</p>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "email", "welcome.html"), []byte(`<p>Mirësevini, {{.Name}}</p>`), 0o644))

	box := &mailbox{}
	s := NewMailService(cfg, dir, zerolog.Nop())
	s.send = box.send
	return s, box
}

var smtpConfig = config.MailConfig{
	Host:     "smtp.example.com",
	Port:     587,
	Username: "rma",
	Password: "secret",
	From:     "no-reply@rmashqip.al",
}

func TestMailServiceSendsReset(t *testing.T) {
	s, box := newTestMailService(t, smtpConfig)
	require.True(t, s.Enabled())

	s.SendPasswordResetEmail("fan@example.com", "123456")
	s.Wait()

	require.Len(t, box.sent, 1)
	mail := box.sent[0]
	assert.Equal(t, "smtp.example.com:587", mail.addr)
	assert.Equal(t, "no-reply@rmashqip.al", mail.from)
	assert.Equal(t, []string{"fan@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Kodi: 123456")
	assert.Contains(t, mail.msg, "Subject: =?utf-8?q?")
	assert.True(t, strings.Contains(mail.msg, "Content-Type: text/html"))
}

func TestMailServiceDisabledIsNoop(t *testing.T) {
	s, box := newTestMailService(t, config.MailConfig{Host: "smtp.example.com"})
	assert.False(t, s.Enabled())

	s.SendWelcomeEmail("fan@example.com", "Luka")
	s.Wait()
	assert.Empty(t, box.sent)

	var nilService *MailService
	assert.False(t, nilService.Enabled())
}

func TestMailServiceSendFailureIsLogged(t *testing.T) {
	s, box := newTestMailService(t, smtpConfig)
	box.err = errors.New("connection refused")

	s.SendWelcomeEmail("fan@example.com", "Luka")
	s.Wait()
	assert.Empty(t, box.sent)
}
