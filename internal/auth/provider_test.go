package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"rmashqip/internal/db"
	"rmashqip/internal/models"
)

func newTestProvider(t *testing.T) (*Provider, *gorm.DB) {
	t.Helper()
	gdb, err := db.OpenTest()
	require.NoError(t, err)
	p := NewProvider(gdb, Options{Secret: "test-secret", AccessTTL: time.Minute, RefreshTTL: time.Hour}, zerolog.Nop())
	return p, gdb
}

type recorder struct {
	events []Event
}

func (r *recorder) listen(event Event, _ *Session) {
	r.events = append(r.events, event)
}

func TestSignUpValidation(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "not-an-email", "secret1", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = p.SignUp(ctx, "a@b.com", "12345", "")
	assert.ErrorIs(t, err, ErrWeakPassword)

	user, err := p.SignUp(ctx, "Fan@Example.com", "123456", "Luka Fan")
	require.NoError(t, err)
	assert.Equal(t, "fan@example.com", user.Email)
	assert.Equal(t, "Luka Fan", user.Metadata["full_name"])
	assert.Equal(t, "fan", user.Metadata["username"])

	_, err = p.SignUp(ctx, "fan@example.com", "abcdef", "")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInEmitsSignedInAndPersistsSession(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "fan@example.com", "hala-madrid", "")
	require.NoError(t, err)

	rec := &recorder{}
	unsubscribe := p.OnAuthStateChange("client-1", rec.listen)
	defer unsubscribe()

	_, err = p.SignInWithPassword(ctx, "client-1", "fan@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignInWithPassword(ctx, "client-1", "nobody@example.com", "hala-madrid")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := p.SignInWithPassword(ctx, "client-1", "fan@example.com", "hala-madrid")
	require.NoError(t, err)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, []Event{EventSignedIn}, rec.events)

	got, err := p.GetSession(ctx, "client-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.User.ID, got.User.ID)

	claims, err := p.VerifyAccessToken(got.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "client-1", claims.ClientID)
	assert.Equal(t, session.User.ID, claims.UserID)

	other, err := p.GetSession(ctx, "client-2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestBannedUserCannotSignIn(t *testing.T) {
	p, gdb := newTestProvider(t)
	ctx := context.Background()

	user, err := p.SignUp(ctx, "banned@example.com", "123456", "")
	require.NoError(t, err)
	require.NoError(t, gdb.Create(&models.Profile{ID: user.ID, Email: user.Email, Role: models.RoleUser, IsBanned: true}).Error)

	_, err = p.SignInWithPassword(ctx, "c", "banned@example.com", "123456")
	assert.ErrorIs(t, err, ErrUserBanned)
}

func TestGetSessionRefreshesExpiredAccessToken(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	_, err := p.SignUp(ctx, "fan@example.com", "123456", "")
	require.NoError(t, err)
	_, err = p.SignInWithPassword(ctx, "c", "fan@example.com", "123456")
	require.NoError(t, err)

	rec := &recorder{}
	defer p.OnAuthStateChange("c", rec.listen)()

	now = now.Add(2 * time.Minute)
	session, err := p.GetSession(ctx, "c")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, now.Add(time.Minute), session.ExpiresAt)
	assert.Equal(t, []Event{EventTokenRefreshed}, rec.events)

	// 刷新令牌过期后会话消失
	now = now.Add(2 * time.Hour)
	session, err = p.GetSession(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestSignOutEmitsAndClears(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "fan@example.com", "123456", "")
	require.NoError(t, err)

	rec := &recorder{}
	defer p.OnAuthStateChange("c", rec.listen)()

	_, err = p.SignInWithPassword(ctx, "c", "fan@example.com", "123456")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, "c"))

	assert.Equal(t, []Event{EventSignedIn, EventSignedOut}, rec.events)
	session, err := p.GetSession(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	rec := &recorder{}
	unsubscribe := p.OnAuthStateChange("c", rec.listen)
	unsubscribe()
	unsubscribe()

	require.NoError(t, p.SignOut(ctx, "c"))
	assert.Empty(t, rec.events)
}

func TestRefreshWithToken(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "fan@example.com", "123456", "")
	require.NoError(t, err)
	session, err := p.SignInWithPassword(ctx, "c", "fan@example.com", "123456")
	require.NoError(t, err)

	refreshed, err := p.Refresh(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, refreshed.User.ID)

	_, err = p.Refresh(ctx, "bogus")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPurgeExpired(t *testing.T) {
	p, gdb := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&models.RefreshSession{ClientID: "old", UserID: "u", TokenHash: []byte("h"), ExpiresAt: time.Now().Add(-time.Hour)}).Error)
	require.NoError(t, gdb.Create(&models.RefreshSession{ClientID: "new", UserID: "u", TokenHash: []byte("h2"), ExpiresAt: time.Now().Add(time.Hour)}).Error)

	n, err := p.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOAuthUnknownProvider(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.SignInWithOAuth(context.Background(), "c", "myspace")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

// newOAuthServer 模拟第三方的 token 与用户信息接口
func newOAuthServer(t *testing.T, p *Provider, provider, userInfo string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
		case "/userinfo":
			_, _ = w.Write([]byte(userInfo))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	p.RegisterOAuth(provider, &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/api/auth/callback/" + provider,
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	}, srv.URL+"/userinfo")
}

func startOAuth(t *testing.T, p *Provider, clientID, provider string) string {
	t.Helper()
	redirect, err := p.SignInWithOAuth(context.Background(), clientID, provider)
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthFlowCreatesIdentity(t *testing.T) {
	p, gdb := newTestProvider(t)
	ctx := context.Background()
	newOAuthServer(t, p, ProviderGoogle, `{"id":"g-1","email":"vini@example.com","verified_email":true,"name":"Vini","picture":"https://img/vini.png"}`)

	state := startOAuth(t, p, "browser-1", ProviderGoogle)

	rec := &recorder{}
	defer p.OnAuthStateChange("browser-1", rec.listen)()

	_, err := p.CompleteOAuth(ctx, ProviderFacebook, state, "code")
	assert.ErrorIs(t, err, ErrInvalidState)

	// state 只能使用一次
	state = startOAuth(t, p, "browser-1", ProviderGoogle)

	session, err := p.CompleteOAuth(ctx, ProviderGoogle, state, "code")
	require.NoError(t, err)
	assert.Equal(t, "vini@example.com", session.User.Email)
	assert.Equal(t, "https://img/vini.png", session.User.Metadata["avatar_url"])
	assert.Equal(t, []Event{EventSignedIn}, rec.events)

	var identity models.Identity
	require.NoError(t, gdb.First(&identity, "email = ?", "vini@example.com").Error)
	assert.Equal(t, ProviderGoogle, identity.Provider)
	assert.Equal(t, "g-1", identity.ProviderUserID)
}

func TestOAuthUnverifiedEmailCannotTakeOverAccount(t *testing.T) {
	p, gdb := newTestProvider(t)
	ctx := context.Background()
	_, err := p.SignUp(ctx, "luka@example.com", "hala-madrid", "Luka")
	require.NoError(t, err)

	newOAuthServer(t, p, ProviderGoogle, `{"id":"g-evil","email":"luka@example.com","verified_email":false,"name":"Not Luka"}`)
	state := startOAuth(t, p, "browser-1", ProviderGoogle)

	_, err = p.CompleteOAuth(ctx, ProviderGoogle, state, "code")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	var identity models.Identity
	require.NoError(t, gdb.First(&identity, "email = ?", "luka@example.com").Error)
	assert.Equal(t, "email", identity.Provider)
	assert.Empty(t, identity.ProviderUserID)
}

func TestOAuthWithoutEmailDoesNotLink(t *testing.T) {
	p, gdb := newTestProvider(t)
	ctx := context.Background()
	existing, err := p.SignUp(ctx, "luka@example.com", "hala-madrid", "Luka")
	require.NoError(t, err)

	newOAuthServer(t, p, ProviderFacebook, `{"id":"fb-1","name":"Luka FB"}`)
	state := startOAuth(t, p, "browser-2", ProviderFacebook)

	session, err := p.CompleteOAuth(ctx, ProviderFacebook, state, "code")
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, session.User.ID)
	assert.Equal(t, "facebook-fb-1@users.noreply.rmashqip", session.User.Email)

	var count int64
	require.NoError(t, gdb.Model(&models.Identity{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
