package session

import (
	"errors"

	"rmashqip/internal/auth"
)

const VariantDestructive = "destructive"

const maxPending = 20

// Notification 给用户的提示消息
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant,omitempty"`
}

func configErrorNotification() Notification {
	return errorNotification("Shërbimi i autentikimit nuk është konfiguruar. Ju lutem kontaktoni administratorin.")
}

func errorNotification(description string) Notification {
	return Notification{Title: "Gabim", Description: description, Variant: VariantDestructive}
}

// authErrorMessage 认证错误的用户可读文本，未知错误不暴露细节
func authErrorMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Email ose fjalëkalim i pasaktë"
	case errors.Is(err, auth.ErrUserBanned):
		return "Llogaria juaj është pezulluar"
	case errors.Is(err, auth.ErrEmailTaken):
		return "Ky email është i regjistruar tashmë"
	case errors.Is(err, auth.ErrInvalidEmail):
		return "Adresa e email-it nuk është e vlefshme"
	case errors.Is(err, auth.ErrWeakPassword):
		return "Fjalëkalimi duhet të ketë të paktën 6 karaktere"
	case errors.Is(err, auth.ErrInvalidResetCode):
		return "Kodi është i pasaktë ose ka skaduar"
	case errors.Is(err, auth.ErrMailNotConfigured):
		return "Dërgimi i email-eve nuk është konfiguruar"
	case errors.Is(err, auth.ErrEmailNotVerified):
		return "Email-i i llogarisë nuk është verifikuar"
	}
	return "Ndodhi një gabim. Provoni përsëri."
}

// Notify 由视图层追加提示
func (s *Store) Notify(n Notification) {
	s.push(n)
}

// NotifyError 追加一条错误提示
func (s *Store) NotifyError(description string) {
	s.push(errorNotification(description))
}

func (s *Store) push(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushLocked(n)
}

func (s *Store) pushLocked(n Notification) {
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxPending {
		s.notifications = s.notifications[len(s.notifications)-maxPending:]
	}
}

// Notifications 取出并清空待显示的提示
func (s *Store) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.notifications
	s.notifications = nil
	return out
}
