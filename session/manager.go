package session

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/credstore"
	"github.com/identkit/identcli/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetryDelay is the fixed backoff after a transient renewal
	// failure.
	DefaultRetryDelay = 60 * time.Second

	defaultRenewTimeout = 30 * time.Second
	defaultHTTPTimeout  = 30 * time.Second
)

// fatalMarkers are server messages that mean the refresh credential is
// unusable; matching any of them ends the session.
var fatalMarkers = []string{
	"jwt malformed",
	"jwt expired",
	"invalid token",
	"refresh token expired",
	"refresh token not found",
}

// pendingRenewal is the shared in-flight handle. Late-arriving callers
// wait on done and read the same outcome; at most one exists per
// Manager.
type pendingRenewal struct {
	done   chan struct{}
	tokens *api.AuthTokens
	err    error
}

// Manager coordinates the authentication session: it holds the session
// state, renews credentials before they expire, serializes concurrent
// renewal attempts and signs the session out on unrecoverable failures.
type Manager struct {
	store     credstore.Store
	state     *State
	client    *api.Client
	scheduler *Scheduler

	signOut      func()
	retryDelay   time.Duration
	renewTimeout time.Duration
	lead         time.Duration
	now          func() time.Time

	mu      sync.Mutex
	pending *pendingRenewal
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	signOut       func()
	retryDelay    time.Duration
	renewTimeout  time.Duration
	httpTimeout   time.Duration
	lead          time.Duration
	now           func() time.Time
	timerFactory  TimerFactory
	baseTransport http.RoundTripper
}

// WithSignOut installs the callback invoked after a forced sign-out,
// typically navigation to the sign-in surface.
func WithSignOut(signOut func()) ManagerOption {
	return func(c *managerConfig) {
		c.signOut = signOut
	}
}

// WithRetryDelay overrides the transient-failure backoff.
func WithRetryDelay(delay time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.retryDelay = delay
	}
}

// WithLeadTime overrides how long before expiry the proactive renewal
// fires.
func WithLeadTime(lead time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.lead = lead
	}
}

// WithNowFunc overrides the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(c *managerConfig) {
		c.now = now
	}
}

// WithTimerFactory overrides scheduler timer creation (primarily for
// testing).
func WithTimerFactory(factory TimerFactory) ManagerOption {
	return func(c *managerConfig) {
		c.timerFactory = factory
	}
}

// WithBaseTransport replaces the transport beneath the request
// authenticator.
func WithBaseTransport(base http.RoundTripper) ManagerOption {
	return func(c *managerConfig) {
		c.baseTransport = base
	}
}

// WithHTTPTimeout overrides the per-request timeout of the API client.
func WithHTTPTimeout(timeout time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.httpTimeout = timeout
	}
}

// NewManager wires the session core for the identity API at baseURL.
// The returned manager owns the API client: Client() routes every
// request through the request authenticator.
func NewManager(store credstore.Store, state *State, baseURL string, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if state == nil {
		return nil, errors.New("[NewManager] session state is required")
	}

	cfg := managerConfig{
		retryDelay:   DefaultRetryDelay,
		renewTimeout: defaultRenewTimeout,
		httpTimeout:  defaultHTTPTimeout,
		lead:         DefaultLeadTime,
		now:          time.Now,
	}
	for _, opt := range options {
		opt(&cfg)
	}

	m := &Manager{
		store:        store,
		state:        state,
		signOut:      cfg.signOut,
		retryDelay:   cfg.retryDelay,
		renewTimeout: cfg.renewTimeout,
		lead:         cfg.lead,
		now:          cfg.now,
	}

	schedulerOptions := []SchedulerOption{
		WithSchedulerLead(cfg.lead),
		WithSchedulerNow(cfg.now),
	}
	if cfg.timerFactory != nil {
		schedulerOptions = append(schedulerOptions, WithSchedulerTimerFactory(cfg.timerFactory))
	}
	m.scheduler = NewScheduler(m.renewFromTimer, schedulerOptions...)

	pathPrefix := ""
	if parsed, parseErr := url.Parse(baseURL); parseErr == nil {
		pathPrefix = parsed.Path
	}
	authenticator := NewAuthenticator(cfg.baseTransport, store, m, pathPrefix)
	client, err := api.New(baseURL, api.WithHTTPClient(&http.Client{
		Transport: authenticator,
		Timeout:   cfg.httpTimeout,
	}))
	if err != nil {
		return nil, errors.Wrap(err, "[NewManager]")
	}
	m.client = client

	return m, nil
}

// Client returns the API client whose requests carry the session's
// credentials and recover from expiry transparently.
func (m *Manager) Client() *api.Client {
	return m.client
}

// State returns the observable session state.
func (m *Manager) State() *State {
	return m.state
}

// Initialize restores the session from persisted credentials at process
// start. A still-fresh access credential authenticates without any
// network call; an expired or undecodable one gets one silent renewal
// before the session is declared dead.
func (m *Manager) Initialize(ctx context.Context) error {
	access, haveAccess, err := m.store.Get(credstore.AccessToken)
	if err != nil {
		return errors.Wrap(err, "[Manager.Initialize] read access credential")
	}
	refresh, haveRefresh, err := m.store.Get(credstore.RefreshToken)
	if err != nil {
		return errors.Wrap(err, "[Manager.Initialize] read refresh credential")
	}

	if !haveAccess || !haveRefresh {
		m.state.SetUser(nil)
		m.state.SetAuthenticated(false)
		return nil
	}

	if expMillis, ok := token.ExpiryMillis(access); ok && time.UnixMilli(expMillis).After(m.now()) {
		// The user stays unfetched here and loads lazily via
		// CurrentUser, so a restart never blocks on the profile call.
		m.state.SetAuthenticated(true)
		m.scheduler.Arm(access)
		return nil
	}

	// Skip the network round trip when the refresh credential is
	// self-describing and already expired. Opaque credentials proceed;
	// the server is the authority either way.
	if expMillis, ok := token.ExpiryMillis(refresh); ok && !time.UnixMilli(expMillis).After(m.now()) {
		m.forceSignOut()
		return errors.Wrap(ErrRefreshExpired, "[Manager.Initialize]")
	}

	if _, err := m.Renew(ctx); err != nil {
		return errors.Wrap(err, "[Manager.Initialize] silent renewal")
	}
	return nil
}

// Renew exchanges the refresh credential for a new pair, guaranteeing
// at most one renewal call in flight. Callers arriving while a renewal
// is running wait for it and receive the identical outcome.
func (m *Manager) Renew(ctx context.Context) (*api.AuthTokens, error) {
	m.mu.Lock()
	if m.pending != nil {
		waiter := m.pending
		m.mu.Unlock()
		select {
		case <-waiter.done:
			return waiter.tokens, waiter.err
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "[Manager.Renew] awaiting in-flight renewal")
		}
	}

	refresh, ok, err := m.store.Get(credstore.RefreshToken)
	if err != nil {
		m.mu.Unlock()
		return nil, errors.Wrap(err, "[Manager.Renew] read refresh credential")
	}
	if !ok || refresh == "" {
		m.mu.Unlock()
		m.forceSignOut()
		return nil, errors.Wrap(ErrNoRefreshCredential, "[Manager.Renew]")
	}

	// The in-flight handle is published before any I/O starts, so a
	// second trigger can only ever attach as a waiter.
	renewal := &pendingRenewal{done: make(chan struct{})}
	m.pending = renewal
	m.mu.Unlock()

	tokens, renewErr := m.client.Refresh(ctx, refresh)

	// Back to Idle before any waiter observes the outcome.
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()

	if renewErr != nil {
		m.settleFailure(renewal, renewErr)
		return nil, renewErr
	}

	if err := m.store.SetPair(tokens.AccessToken, tokens.RefreshToken); err != nil {
		wrapped := errors.Wrap(err, "[Manager.Renew] persist credentials")
		renewal.err = wrapped
		close(renewal.done)
		return nil, wrapped
	}
	m.state.SetAuthenticated(true)
	m.scheduler.Arm(tokens.AccessToken)

	renewal.tokens = tokens
	close(renewal.done)
	return tokens, nil
}

// settleFailure classifies a renewal failure. Fatal failures end the
// session; transient ones leave the session state untouched and arm a
// fixed-delay retry.
func (m *Manager) settleFailure(renewal *pendingRenewal, renewErr error) {
	if renewalIsFatal(renewErr) {
		log.Warn().Err(renewErr).Msg("credential renewal rejected, signing out")
		m.forceSignOut()
	} else {
		log.Debug().Err(renewErr).Dur("retry_in", m.retryDelay).
			Msg("credential renewal failed transiently, retry scheduled")
		m.scheduler.ArmRetry(m.retryDelay)
	}
	renewal.err = renewErr
	close(renewal.done)
}

// renewalIsFatal reports whether a renewal failure is unrecoverable.
// 401/403 from the renewal endpoint and explicit invalid-token signals
// are fatal; transport failures, timeouts and 5xx are not.
func renewalIsFatal(err error) bool {
	if errors.Is(err, ErrNoRefreshCredential) || errors.Is(err, ErrRefreshExpired) {
		return true
	}
	status := api.StatusOf(err)
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		message := strings.ToLower(apiErr.Message)
		for _, marker := range fatalMarkers {
			if strings.Contains(message, marker) {
				return true
			}
		}
	}
	return false
}

// renewFromTimer runs when the proactive timer or the retry timer
// elapses. If another path already renewed the credential, it only
// re-arms.
func (m *Manager) renewFromTimer() {
	if access, ok, err := m.store.Get(credstore.AccessToken); err == nil && ok {
		if expMillis, decodable := token.ExpiryMillis(access); decodable {
			if time.UnixMilli(expMillis).Sub(m.now()) > m.lead {
				m.scheduler.Arm(access)
				return
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.renewTimeout)
	defer cancel()
	if _, err := m.Renew(ctx); err != nil {
		// Renew already classified the failure: signed out or armed a
		// retry. Background failures are logged, never surfaced.
		log.Debug().Err(err).Msg("scheduled credential renewal failed")
	}
}

// Login authenticates with the identity API, persists the issued
// credential pair and arms the proactive renewal. The profile fetch
// afterwards is best effort: its failure leaves the session
// authenticated with the user loading lazily.
func (m *Manager) Login(ctx context.Context, req api.LoginRequest) (*api.LoginResult, error) {
	result, err := m.client.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetPair(result.Tokens.AccessToken, result.Tokens.RefreshToken); err != nil {
		return nil, errors.Wrap(err, "[Manager.Login] persist credentials")
	}
	m.state.SetAuthenticated(true)
	m.scheduler.Arm(result.Tokens.AccessToken)

	if user, err := m.client.Profile(ctx); err != nil {
		log.Warn().Err(err).Msg("profile fetch after login failed")
	} else {
		m.state.SetUser(user)
	}
	return result, nil
}

// CurrentUser returns the cached user or fetches it lazily. A fetch
// failure after the authenticator's single retry means the session is
// not usable, so it ends.
func (m *Manager) CurrentUser(ctx context.Context) (*api.User, error) {
	if user := m.state.CurrentUser(); user != nil {
		return user, nil
	}
	user, err := m.client.Profile(ctx)
	if err != nil {
		m.forceSignOut()
		return nil, errors.Wrap(err, "[Manager.CurrentUser] profile fetch")
	}
	m.state.SetUser(user)
	return user, nil
}

// SetUser force-sets the current user, used after a successful profile
// update.
func (m *Manager) SetUser(user *api.User) {
	m.state.SetUser(user)
}

// Logout ends the session. The server-side logout is best effort: local
// credentials are cleared regardless.
func (m *Manager) Logout(ctx context.Context) {
	if _, ok, err := m.store.Get(credstore.AccessToken); err == nil && ok && m.state.Authenticated() {
		if err := m.client.Logout(ctx); err != nil {
			log.Debug().Err(err).Msg("server logout failed, clearing local session anyway")
		}
	}
	m.forceSignOut()
}

// Close cancels the live renewal timer. Call on process teardown so a
// torn-down session cannot act.
func (m *Manager) Close() {
	m.scheduler.Disarm()
}

// forceSignOut clears everything the session owns and notifies the
// sign-out callback.
func (m *Manager) forceSignOut() {
	m.scheduler.Disarm()
	if err := m.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("clearing credential store failed")
	}
	m.state.SetUser(nil)
	m.state.SetAuthenticated(false)
	if m.signOut != nil {
		m.signOut()
	}
}
