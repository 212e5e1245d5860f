package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmashqip/internal/auth"
	"rmashqip/internal/db"
	"rmashqip/internal/models"
	"rmashqip/internal/postcache"
	"rmashqip/internal/remote"
	"rmashqip/internal/storage"
)

type fixture struct {
	provider *auth.Provider
	remote   *remote.Client
	cache    *postcache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.OpenTest()
	require.NoError(t, err)
	return &fixture{
		provider: auth.NewProvider(gdb, auth.Options{Secret: "test-secret"}, zerolog.Nop()),
		remote:   remote.NewClient(gdb, zerolog.Nop()),
		cache:    postcache.New(storage.NewMemoryKV(0), zerolog.Nop()),
	}
}

func (f *fixture) store(clientID string) *Store {
	return New(Options{
		ClientID: clientID,
		Auth:     f.provider,
		Profiles: f.remote,
		Avatars:  f.cache,
		Log:      zerolog.Nop(),
	})
}

func ready(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Initialize(ctx)
	require.NoError(t, s.WaitReady(ctx))
}

func TestNoAuthConfigured(t *testing.T) {
	s := New(Options{ClientID: "c1", Log: zerolog.Nop()})
	ready(t, s)

	assert.Equal(t, StateAnonymous, s.State())
	assert.False(t, s.Loading())
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Gabim", notes[0].Title)
	assert.Equal(t, VariantDestructive, notes[0].Variant)

	assert.False(t, s.SignInWithPassword(context.Background(), "a@b.com", "123456"))
	assert.False(t, s.SignOut(context.Background()))
	assert.Len(t, s.Notifications(), 2)
	assert.Empty(t, s.Notifications())
}

func TestInitializeWithoutSession(t *testing.T) {
	f := newFixture(t)
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	assert.Equal(t, StateAnonymous, s.State())
	assert.Nil(t, s.User())
	assert.Nil(t, s.Profile())
	assert.Empty(t, s.Notifications())
}

func TestSignUpThenSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	require.True(t, s.SignUpWithPassword(ctx, "fan@example.com", "hala-madrid", "Luka Fan"))
	assert.Equal(t, StateAnonymous, s.State())
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Llogaria u krijua!", notes[0].Title)
	assert.Equal(t, "Tani mund të kyçeni", notes[0].Description)

	require.True(t, s.SignInWithPassword(ctx, "fan@example.com", "hala-madrid"))
	assert.Equal(t, StateAuthenticated, s.State())
	require.NotNil(t, s.Session())
	assert.Equal(t, "fan@example.com", s.User().Email)

	profile := s.Profile()
	require.NotNil(t, profile)
	assert.Equal(t, "Luka Fan", profile.FullName)
	assert.Equal(t, models.RoleUser, profile.Role)
	assert.False(t, profile.Synthesized)

	// 资料已落库
	stored, err := f.remote.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "Luka Fan", stored.FullName)

	notes = s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Mirësevini!", notes[0].Title)
}

func TestFailedSignInNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	assert.False(t, s.SignInWithPassword(ctx, "nobody@example.com", "wrong-pass"))
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Gabim", notes[0].Title)
	assert.Equal(t, "Email ose fjalëkalim i pasaktë", notes[0].Description)
	assert.Equal(t, StateAnonymous, s.State())
}

func TestInitializeRestoresExistingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provider.SignUp(ctx, "fan@example.com", "hala-madrid", "")
	require.NoError(t, err)
	_, err = f.provider.SignInWithPassword(ctx, "c1", "fan@example.com", "hala-madrid")
	require.NoError(t, err)

	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	assert.Equal(t, StateAuthenticated, s.State())
	// 没有 full_name 时使用邮箱前缀
	assert.Equal(t, "fan", s.Profile().FullName)
}

func TestSignOutClearsProfileAndAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	require.True(t, s.SignUpWithPassword(ctx, "fan@example.com", "hala-madrid", "Luka"))
	require.True(t, s.SignInWithPassword(ctx, "fan@example.com", "hala-madrid"))

	avatar := "https://cdn.example.com/avatars/me.png"
	_, err := s.UpdateProfile(ctx, remote.ProfileUpdate{AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, avatar, s.Profile().AvatarURL)
	assert.Equal(t, avatar, f.cache.Avatar(ctx))
	s.Notifications()

	require.True(t, s.SignOut(ctx))
	assert.Equal(t, StateAnonymous, s.State())
	assert.Nil(t, s.Profile())
	assert.Nil(t, s.User())
	assert.Empty(t, f.cache.Avatar(ctx))

	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Dilni", notes[0].Title)
}

func TestUpdateProfileRequiresUser(t *testing.T) {
	f := newFixture(t)
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	name := "x"
	_, err := s.UpdateProfile(context.Background(), remote.ProfileUpdate{FullName: &name})
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	require.True(t, s.SignUpWithPassword(ctx, "mod@example.com", "hala-madrid", "Mod"))
	require.True(t, s.SignInWithPassword(ctx, "mod@example.com", "hala-madrid"))
	assert.False(t, s.IsModerator())
	assert.False(t, s.IsAdmin())

	user := s.User()
	require.NoError(t, f.remote.SetRole(ctx, user.ID, models.RoleModerator))
	s.ResolveProfile(ctx, user)
	assert.True(t, s.IsModerator())
	assert.False(t, s.IsAdmin())

	require.NoError(t, f.remote.SetRole(ctx, user.ID, models.RoleAdmin))
	s.ResolveProfile(ctx, user)
	assert.True(t, s.IsModerator())
	assert.True(t, s.IsAdmin())
}

func TestBannedUserCannotSignIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	user, err := f.provider.SignUp(ctx, "bad@example.com", "hala-madrid", "")
	require.NoError(t, err)
	_, err = f.remote.CreateProfile(ctx, &models.Profile{ID: user.ID, Email: user.Email})
	require.NoError(t, err)
	require.NoError(t, f.remote.SetBanned(ctx, user.ID, true))

	assert.False(t, s.SignInWithPassword(ctx, "bad@example.com", "hala-madrid"))
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Llogaria juaj është pezulluar", notes[0].Description)
}

type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, string) (*models.Profile, error) {
	return nil, errors.New("connection refused")
}

func (failingProfiles) CreateProfile(context.Context, *models.Profile) (*models.Profile, error) {
	return nil, errors.New("connection refused")
}

func (failingProfiles) UpdateProfile(context.Context, string, remote.ProfileUpdate) (*models.Profile, error) {
	return nil, errors.New("connection refused")
}

func TestResolveProfileSynthesizesOnError(t *testing.T) {
	cache := postcache.New(storage.NewMemoryKV(0), zerolog.Nop())
	s := New(Options{ClientID: "c1", Profiles: failingProfiles{}, Avatars: cache, Log: zerolog.Nop()})
	ctx := context.Background()

	p := s.ResolveProfile(ctx, &auth.User{
		ID:       "u1",
		Email:    "fan@example.com",
		Metadata: map[string]string{"avatar_url": "https://cdn.example.com/a.png"},
	})
	assert.True(t, p.Synthesized)
	assert.Equal(t, "fan", p.FullName)
	assert.Equal(t, models.RoleUser, p.Role)
	assert.Equal(t, "https://cdn.example.com/a.png", cache.Avatar(ctx))

	p = s.ResolveProfile(ctx, &auth.User{ID: "u2", Metadata: map[string]string{}})
	assert.Equal(t, "User", p.FullName)
}

func TestInitializeWithFailingProfileSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.provider.SignUp(ctx, "fan@example.com", "hala-madrid", "Luka Fan")
	require.NoError(t, err)
	_, err = f.provider.SignInWithPassword(ctx, "c1", "fan@example.com", "hala-madrid")
	require.NoError(t, err)

	s := New(Options{ClientID: "c1", Auth: f.provider, Profiles: failingProfiles{}, Log: zerolog.Nop()})
	defer s.Close()
	ready(t, s)

	assert.Equal(t, StateAuthenticated, s.State())
	require.NotNil(t, s.Profile())
	assert.True(t, s.Profile().Synthesized)
	assert.Equal(t, "Luka Fan", s.Profile().FullName)
}

func TestInitializeWithHangingProfileSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.provider.SignUp(ctx, "fan@example.com", "hala-madrid", "")
	require.NoError(t, err)
	_, err = f.provider.SignInWithPassword(ctx, "c1", "fan@example.com", "hala-madrid")
	require.NoError(t, err)

	bp := &blockingProfiles{release: make(chan struct{}), started: make(chan struct{})}
	defer close(bp.release)

	s := New(Options{ClientID: "c1", Auth: f.provider, Profiles: bp, LoadTimeout: 50 * time.Millisecond, Log: zerolog.Nop()})
	defer s.Close()

	start := time.Now()
	ready(t, s)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, s.Loading())
	assert.Equal(t, StateAuthenticated, s.State())
	require.NotNil(t, s.Profile())
	assert.True(t, s.Profile().Synthesized)
	assert.Equal(t, "fan@example.com", s.User().Email)
}

// blockingProfiles 第一次 GetProfile 阻塞到 release 关闭
type blockingProfiles struct {
	failingProfiles
	once    sync.Once
	release chan struct{}
	started chan struct{}
}

func (b *blockingProfiles) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.started)
		<-b.release
	}
	return &models.Profile{ID: id, FullName: id, Role: models.RoleUser}, nil
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	bp := &blockingProfiles{release: make(chan struct{}), started: make(chan struct{})}
	s := New(Options{ClientID: "c1", Profiles: bp, Log: zerolog.Nop()})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		s.ResolveProfile(ctx, &auth.User{ID: "old"})
		close(done)
	}()
	<-bp.started

	s.ResolveProfile(ctx, &auth.User{ID: "new"})
	close(bp.release)
	<-done

	assert.Equal(t, "new", s.Profile().ID)
}

// hangingAuth GetSession 永不返回，模拟认证服务无响应
type hangingAuth struct {
	unblock chan struct{}
}

func (h *hangingAuth) GetSession(ctx context.Context, _ string) (*auth.Session, error) {
	<-h.unblock
	return nil, nil
}

func (h *hangingAuth) SignInWithPassword(context.Context, string, string, string) (*auth.Session, error) {
	return nil, auth.ErrInvalidCredentials
}

func (h *hangingAuth) SignUp(context.Context, string, string, string) (*auth.User, error) {
	return nil, auth.ErrEmailTaken
}

func (h *hangingAuth) SignInWithOAuth(context.Context, string, string) (string, error) {
	return "", auth.ErrProviderNotConfigured
}

func (h *hangingAuth) SignOut(context.Context, string) error { return nil }

func (h *hangingAuth) UpdateUser(context.Context, string, string, auth.UserUpdate) (*auth.User, error) {
	return nil, auth.ErrSessionNotFound
}

func (h *hangingAuth) OnAuthStateChange(string, auth.Listener) func() { return func() {} }

func (h *hangingAuth) MailEnabled() bool { return false }

func (h *hangingAuth) RequestPasswordReset(context.Context, string) error {
	return auth.ErrMailNotConfigured
}

func (h *hangingAuth) ResetPassword(context.Context, string, string, string) error {
	return auth.ErrInvalidResetCode
}

func TestWatchdogEndsLoading(t *testing.T) {
	h := &hangingAuth{unblock: make(chan struct{})}
	defer close(h.unblock)

	s := New(Options{ClientID: "c1", Auth: h, LoadTimeout: 50 * time.Millisecond, Log: zerolog.Nop()})
	defer s.Close()

	start := time.Now()
	ready(t, s)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StateAnonymous, s.State())
	assert.False(t, s.Loading())
}

func TestOAuthFailureNotification(t *testing.T) {
	h := &hangingAuth{unblock: make(chan struct{})}
	close(h.unblock)
	s := New(Options{ClientID: "c1", Auth: h, Log: zerolog.Nop()})

	url, ok := s.SignInWithOAuth(context.Background(), auth.ProviderFacebook)
	assert.False(t, ok)
	assert.Empty(t, url)
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, "Nuk u arrit lidhja me Facebook", notes[0].Description)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "anonymous", StateAnonymous.String())
}

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *fakeMailer) Enabled() bool { return true }

func (m *fakeMailer) SendWelcomeEmail(string, string) {}

func (m *fakeMailer) SendPasswordResetEmail(email, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
}

func TestPasswordResetThroughStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mailer := &fakeMailer{codes: map[string]string{}}
	f.provider.WithMailer(mailer)

	s := f.store("c1")
	defer s.Close()
	ready(t, s)

	require.True(t, s.SignUpWithPassword(ctx, "fan@example.com", "old-password", ""))
	notes := s.Notifications()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Description, "email mirëseardhjeje")

	require.True(t, s.SignInWithPassword(ctx, "fan@example.com", "old-password"))
	assert.Equal(t, StateAuthenticated, s.State())
	s.Notifications()

	require.True(t, s.RequestPasswordReset(ctx, "fan@example.com"))
	assert.Equal(t, "Kontrolloni email-in", s.Notifications()[0].Title)

	assert.False(t, s.ResetPassword(ctx, "fan@example.com", "nope", "new-password"))
	assert.Equal(t, "Kodi është i pasaktë ose ka skaduar", s.Notifications()[0].Description)

	mailer.mu.Lock()
	code := mailer.codes["fan@example.com"]
	mailer.mu.Unlock()
	require.True(t, s.ResetPassword(ctx, "fan@example.com", code, "new-password"))

	// 重置后所有会话失效
	assert.Equal(t, StateAnonymous, s.State())
	assert.Nil(t, s.User())
	assert.Equal(t, "Fjalëkalimi u ndryshua", s.Notifications()[0].Title)

	require.True(t, s.SignInWithPassword(ctx, "fan@example.com", "new-password"))
}
