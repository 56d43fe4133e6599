// Package apifake is an in-memory identity API used by tests. It mints
// real HS256 credentials, rotates refresh credentials, records per-route
// call counts and supports failure injection on the renewal endpoint.
package apifake

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/identkit/identcli/api"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	// TOTPCode is the code every enrolled fake account accepts.
	TOTPCode = "123456"
)

type userRecord struct {
	user        api.User
	password    string
	backupCodes []string
	pending2FA  bool
}

// Server is the fake identity API.
type Server struct {
	router     *mux.Router
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	mu             sync.Mutex
	usersByEmail   map[string]*userRecord
	usersByID      map[string]*userRecord
	refreshTokens  map[string]string // refresh credential -> user ID
	sessions       map[string][]api.UserSession
	oauthAccounts  map[string][]api.OAuthAccount
	auditLogs      []api.AuditLog
	calls          map[string]int
	refreshStatus  int // 0 renews normally
	refreshMessage string
	refreshDelay   time.Duration
}

// Option configures the fake server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of minted access credentials.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

// WithNow overrides the fake's clock.
func WithNow(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithSigningKey overrides the HS256 key used for minted credentials.
func WithSigningKey(key []byte) Option {
	return func(s *Server) {
		s.signingKey = key
	}
}

// New creates an empty fake identity API.
func New(options ...Option) *Server {
	s := &Server{
		signingKey:    []byte("apifake-signing-key"),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
		usersByEmail:  make(map[string]*userRecord),
		usersByID:     make(map[string]*userRecord),
		refreshTokens: make(map[string]string),
		sessions:      make(map[string][]api.UserSession),
		oauthAccounts: make(map[string][]api.OAuthAccount),
		calls:         make(map[string]int),
	}
	for _, opt := range options {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the HTTP surface, ready for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Calls returns how many requests hit a route, keyed as
// "METHOD /path/template".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailRefresh makes POST /auth/refresh reply with the given status and
// message until RestoreRefresh is called.
func (s *Server) FailRefresh(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
	s.refreshMessage = message
}

// DelayRefresh holds every renewal reply for d, widening the window in
// which concurrent callers pile onto one in-flight renewal.
func (s *Server) DelayRefresh(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// RestoreRefresh re-enables normal renewal.
func (s *Server) RestoreRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = 0
	s.refreshMessage = ""
}

// SeedUser registers an active account and returns its record.
func (s *Server) SeedUser(email, password string, admin bool) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC().Format(time.RFC3339)
	record := &userRecord{
		user: api.User{
			ID:            uuid.New().String(),
			Email:         email,
			EmailVerified: true,
			IsAdmin:       admin,
			Status:        api.UserStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		password: password,
	}
	s.usersByEmail[email] = record
	s.usersByID[record.user.ID] = record
	return record.user
}

// SeedSession attaches a device session to a user.
func (s *Server) SeedSession(userID string, session api.UserSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	s.sessions[userID] = append(s.sessions[userID], session)
}

// SeedAuditLog appends one audit trail entry.
func (s *Server) SeedAuditLog(entry api.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.auditLogs = append(s.auditLogs, entry)
}

// IssueTokens mints a credential pair for a seeded user, as a login
// would.
func (s *Server) IssueTokens(email string) api.AuthTokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByEmail[email]
	if !ok {
		return api.AuthTokens{}
	}
	return s.issueLocked(record)
}

// MintAccessToken mints an access credential with an arbitrary TTL.
// Negative TTLs produce already-expired credentials.
func (s *Server) MintAccessToken(email string, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByEmail[email]
	if !ok {
		return ""
	}
	return s.mintLocked(record, ttl)
}

func (s *Server) issueLocked(record *userRecord) api.AuthTokens {
	refresh := uuid.New().String()
	s.refreshTokens[refresh] = record.user.ID
	return api.AuthTokens{
		AccessToken:  s.mintLocked(record, s.accessTTL),
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
}

func (s *Server) mintLocked(record *userRecord, ttl time.Duration) string {
	now := s.now()
	claims := jwtlib.MapClaims{
		"sub":      record.user.ID,
		"email":    record.user.Email,
		"is_admin": record.user.IsAdmin,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countCalls)

	r.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	r.HandleFunc("/auth/resend-verification", s.handleAccepted).Methods(http.MethodPost)
	r.HandleFunc("/auth/forgot-password", s.handleAccepted).Methods(http.MethodPost)
	r.HandleFunc("/auth/reset-password", s.handleResetPassword).Methods(http.MethodPost)

	r.HandleFunc("/auth/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)
	r.HandleFunc("/auth/change-password", s.authed(s.handleChangePassword)).Methods(http.MethodPost)

	r.HandleFunc("/user/profile", s.authed(s.handleProfile)).Methods(http.MethodGet)
	r.HandleFunc("/user/profile", s.authed(s.handleUpdateProfile)).Methods(http.MethodPut)
	r.HandleFunc("/user/profile", s.authed(s.handleDeleteAccount)).Methods(http.MethodDelete)
	r.HandleFunc("/user/sessions", s.authed(s.handleSessions)).Methods(http.MethodGet)
	r.HandleFunc("/user/sessions", s.authed(s.handleRevokeAllSessions)).Methods(http.MethodDelete)
	r.HandleFunc("/user/sessions/{id}", s.authed(s.handleRevokeSession)).Methods(http.MethodDelete)
	r.HandleFunc("/user/security-info", s.authed(s.handleSecurityInfo)).Methods(http.MethodGet)
	r.HandleFunc("/user/oauth-accounts", s.authed(s.handleOAuthAccounts)).Methods(http.MethodGet)
	r.HandleFunc("/user/oauth-accounts/link", s.authed(s.handleLinkOAuth)).Methods(http.MethodPost)
	r.HandleFunc("/user/oauth-accounts/{id}", s.authed(s.handleUnlinkOAuth)).Methods(http.MethodDelete)
	r.HandleFunc("/user/enable-2fa", s.authed(s.handleEnable2FA)).Methods(http.MethodPost)
	r.HandleFunc("/user/verify-2fa", s.authed(s.handleVerify2FA)).Methods(http.MethodPost)
	r.HandleFunc("/user/disable-2fa", s.authed(s.handleDisable2FA)).Methods(http.MethodPost)
	r.HandleFunc("/user/backup-codes/regenerate", s.authed(s.handleBackupCodes)).Methods(http.MethodPost)

	r.HandleFunc("/admin/users", s.admin(s.handleListUsers)).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id}", s.admin(s.handleGetUser)).Methods(http.MethodGet)
	r.HandleFunc("/admin/users/{id}/status", s.admin(s.handleSetStatus)).Methods(http.MethodPut)
	r.HandleFunc("/admin/users/{id}/admin", s.admin(s.handleSetAdmin)).Methods(http.MethodPut)
	r.HandleFunc("/admin/audit-logs", s.admin(s.handleAuditLogs)).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", s.admin(s.handleStats)).Methods(http.MethodGet)

	return r
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				template = t
			}
		}
		s.mu.Lock()
		s.calls[r.Method+" "+template]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, record *userRecord)

func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, ok := s.bearerUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, record)
	}
}

func (s *Server) admin(next authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, record *userRecord) {
		if !record.user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r, record)
	})
}

func (s *Server) bearerUser(r *http.Request) (*userRecord, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return nil, false
	}
	parsed, err := jwtlib.Parse(header[len(prefix):], func(t *jwtlib.Token) (any, error) {
		return s.signingKey, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, false
	}
	sub, _ := claims["sub"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.usersByID[sub]
	return record, ok
}

func writeEnvelope(w http.ResponseWriter, status int, env map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeOK(w http.ResponseWriter, message string) {
	writeEnvelope(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, map[string]any{"success": false, "message": message})
}
