package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/api/apifake"
	"github.com/identkit/identcli/credstore"
	"github.com/identkit/identcli/session"
)

const (
	testEmail    = "a@b.com"
	testPassword = "Secret1"
)

// fakeTimer records whether it was cancelled without ever firing.
type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return true
}

// recordingTimers captures every armed duration and never fires.
type recordingTimers struct {
	mu        sync.Mutex
	durations []time.Duration
	timers    []*fakeTimer
}

func (r *recordingTimers) factory(d time.Duration, _ func()) session.TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	timer := &fakeTimer{}
	r.durations = append(r.durations, d)
	r.timers = append(r.timers, timer)
	return timer
}

func (r *recordingTimers) armed() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.durations...)
}

type managerFixture struct {
	fake     *apifake.Server
	server   *httptest.Server
	store    *credstore.Memory
	state    *session.State
	manager  *session.Manager
	timers   *recordingTimers
	signOuts *int
	mu       *sync.Mutex
}

func (f *managerFixture) signOutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.signOuts
}

func setupManager(t *testing.T, options ...session.ManagerOption) *managerFixture {
	t.Helper()

	fake := apifake.New()
	fake.SeedUser(testEmail, testPassword, false)
	server := httptest.NewServer(fake.Handler())
	t.Cleanup(server.Close)

	store := credstore.NewMemory()
	state := session.NewState()
	timers := &recordingTimers{}
	signOuts := 0
	var mu sync.Mutex

	options = append([]session.ManagerOption{
		session.WithTimerFactory(timers.factory),
		session.WithSignOut(func() {
			mu.Lock()
			defer mu.Unlock()
			signOuts++
		}),
	}, options...)

	manager, err := session.NewManager(store, state, server.URL, options...)
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return &managerFixture{
		fake:     fake,
		server:   server,
		store:    store,
		state:    state,
		manager:  manager,
		timers:   timers,
		signOuts: &signOuts,
		mu:       &mu,
	}
}

func (f *managerFixture) seedCredentials(t *testing.T) api.AuthTokens {
	t.Helper()
	tokens := f.fake.IssueTokens(testEmail)
	require.NotEmpty(t, tokens.AccessToken)
	require.NoError(t, f.store.SetPair(tokens.AccessToken, tokens.RefreshToken))
	return tokens
}

func TestRenewSingleFlight(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)
	f.fake.DelayRefresh(150 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make([]*api.AuthTokens, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.manager.Renew(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.fake.Calls("POST /auth/refresh"))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outcomes[i])
		assert.Equal(t, outcomes[0].AccessToken, outcomes[i].AccessToken)
		assert.Equal(t, outcomes[0].RefreshToken, outcomes[i].RefreshToken)
	}
	assert.True(t, f.state.Authenticated())
}

func TestRenewRotatesStoredCredentials(t *testing.T) {
	f := setupManager(t)
	seeded := f.seedCredentials(t)

	tokens, err := f.manager.Renew(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, seeded.RefreshToken, tokens.RefreshToken)

	access, ok, err := f.store.Get(credstore.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tokens.AccessToken, access)

	refresh, ok, err := f.store.Get(credstore.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tokens.RefreshToken, refresh)
}

func TestRenewFatalFailureSignsOut(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)
	f.state.SetAuthenticated(true)
	f.fake.FailRefresh(http.StatusUnauthorized, "refresh token expired")

	_, err := f.manager.Renew(context.Background())
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	assert.False(t, f.state.Authenticated())
	assert.Nil(t, f.state.CurrentUser())
	assert.Equal(t, 1, f.signOutCount())

	_, ok, err := f.store.Get(credstore.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = f.store.Get(credstore.RefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenewTransientFailureKeepsSession(t *testing.T) {
	retryDelay := 45 * time.Second
	f := setupManager(t, session.WithRetryDelay(retryDelay))
	seeded := f.seedCredentials(t)
	f.state.SetAuthenticated(true)
	f.fake.FailRefresh(http.StatusServiceUnavailable, "upstream unavailable")

	_, err := f.manager.Renew(context.Background())
	require.Error(t, err)

	assert.True(t, f.state.Authenticated())
	assert.Zero(t, f.signOutCount())

	access, ok, err := f.store.Get(credstore.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, seeded.AccessToken, access)

	durations := f.timers.armed()
	require.NotEmpty(t, durations)
	assert.Equal(t, retryDelay, durations[len(durations)-1])
}

func TestRenewWithoutRefreshCredentialSignsOut(t *testing.T) {
	f := setupManager(t)

	_, err := f.manager.Renew(context.Background())
	require.ErrorIs(t, err, session.ErrNoRefreshCredential)
	assert.False(t, f.state.Authenticated())
	assert.Equal(t, 1, f.signOutCount())
	assert.Equal(t, 0, f.fake.Calls("POST /auth/refresh"))
}

func TestChangePassword401NeverTriggersRenewal(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)
	f.state.SetAuthenticated(true)

	err := f.manager.Client().ChangePassword(context.Background(), api.ChangePasswordRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "NewSecret1",
	})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))

	assert.Equal(t, 0, f.fake.Calls("POST /auth/refresh"))
	assert.True(t, f.state.Authenticated())
	assert.Zero(t, f.signOutCount())
}

func TestInitializeWithFreshCredentialNeedsNoNetwork(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.True(t, f.state.Authenticated())
	assert.Nil(t, f.state.CurrentUser()) // lazy: fetched on first access
	assert.Equal(t, 0, f.fake.Calls("POST /auth/refresh"))
	assert.Equal(t, 0, f.fake.Calls("GET /user/profile"))
	assert.NotEmpty(t, f.timers.armed())
}

func TestInitializeWithExpiredCredentialRenewsOnce(t *testing.T) {
	f := setupManager(t)
	tokens := f.fake.IssueTokens(testEmail)
	expired := f.fake.MintAccessToken(testEmail, -time.Minute)
	require.NoError(t, f.store.SetPair(expired, tokens.RefreshToken))

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.True(t, f.state.Authenticated())
	assert.Equal(t, 1, f.fake.Calls("POST /auth/refresh"))
}

func TestInitializeWithUndecodableCredentialRenewsOnce(t *testing.T) {
	f := setupManager(t)
	tokens := f.fake.IssueTokens(testEmail)
	require.NoError(t, f.store.SetPair("not-a-jwt", tokens.RefreshToken))

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.True(t, f.state.Authenticated())
	assert.Equal(t, 1, f.fake.Calls("POST /auth/refresh"))
}

func TestInitializeWithoutCredentials(t *testing.T) {
	f := setupManager(t)

	require.NoError(t, f.manager.Initialize(context.Background()))

	assert.False(t, f.state.Authenticated())
	assert.Nil(t, f.state.CurrentUser())
	assert.Equal(t, 0, f.fake.Calls("POST /auth/refresh"))
}

func TestInitializeWithExpiredRefreshCredentialSignsOut(t *testing.T) {
	f := setupManager(t)
	expiredAccess := f.fake.MintAccessToken(testEmail, -time.Minute)
	expiredRefresh := f.fake.MintAccessToken(testEmail, -time.Hour)
	require.NoError(t, f.store.SetPair(expiredAccess, expiredRefresh))

	err := f.manager.Initialize(context.Background())
	require.ErrorIs(t, err, session.ErrRefreshExpired)

	assert.False(t, f.state.Authenticated())
	assert.Equal(t, 0, f.fake.Calls("POST /auth/refresh"))
	assert.Equal(t, 1, f.signOutCount())
}

func TestLoginPersistsCredentialsAndArmsRenewal(t *testing.T) {
	f := setupManager(t)

	result, err := f.manager.Login(context.Background(), api.LoginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	require.NoError(t, err)
	require.Equal(t, testEmail, result.User.Email)

	access, ok, err := f.store.Get(credstore.AccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Tokens.AccessToken, access)

	refresh, ok, err := f.store.Get(credstore.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Tokens.RefreshToken, refresh)

	assert.True(t, f.state.Authenticated())
	require.NotNil(t, f.state.CurrentUser())
	assert.Equal(t, testEmail, f.state.CurrentUser().Email)

	// Armed for expiry minus the two minute lead.
	durations := f.timers.armed()
	require.Len(t, durations, 1)
	assert.InDelta(t, float64(time.Hour-2*time.Minute), float64(durations[0]), float64(5*time.Second))
}

func TestLoginWithWrongPassword(t *testing.T) {
	f := setupManager(t)

	_, err := f.manager.Login(context.Background(), api.LoginRequest{
		Email:    testEmail,
		Password: "nope",
	})
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusUnauthorized))
	assert.False(t, f.state.Authenticated())
}

func TestAuthenticatorRenewsAndRetriesOnce(t *testing.T) {
	f := setupManager(t)
	tokens := f.fake.IssueTokens(testEmail)
	expired := f.fake.MintAccessToken(testEmail, -time.Minute)
	require.NoError(t, f.store.SetPair(expired, tokens.RefreshToken))

	user, err := f.manager.Client().Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)

	assert.Equal(t, 1, f.fake.Calls("POST /auth/refresh"))
	assert.Equal(t, 2, f.fake.Calls("GET /user/profile"))
}

func TestAuthenticatorPropagatesRenewalFailure(t *testing.T) {
	f := setupManager(t)
	tokens := f.fake.IssueTokens(testEmail)
	expired := f.fake.MintAccessToken(testEmail, -time.Minute)
	require.NoError(t, f.store.SetPair(expired, tokens.RefreshToken))
	f.fake.FailRefresh(http.StatusForbidden, "invalid token")

	_, err := f.manager.Client().Profile(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, f.fake.Calls("POST /auth/refresh"))
	assert.Equal(t, 1, f.fake.Calls("GET /user/profile"))
	assert.False(t, f.state.Authenticated())
}

func TestCurrentUserFetchesLazilyOnce(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)
	require.NoError(t, f.manager.Initialize(context.Background()))
	require.Equal(t, 0, f.fake.Calls("GET /user/profile"))

	user, err := f.manager.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Email)
	assert.Equal(t, 1, f.fake.Calls("GET /user/profile"))

	again, err := f.manager.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Same(t, user, again)
	assert.Equal(t, 1, f.fake.Calls("GET /user/profile"))
}

func TestLogoutClearsLocalSession(t *testing.T) {
	f := setupManager(t)
	f.seedCredentials(t)
	f.state.SetAuthenticated(true)

	f.manager.Logout(context.Background())

	assert.Equal(t, 1, f.fake.Calls("POST /auth/logout"))
	assert.False(t, f.state.Authenticated())
	_, ok, err := f.store.Get(credstore.AccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
}
