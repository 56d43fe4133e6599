package api

// UserStatus is the lifecycle state of an account as reported by the identity API.
type UserStatus string

const (
	UserStatusActive              UserStatus = "active"
	UserStatusInactive            UserStatus = "inactive"
	UserStatusSuspended           UserStatus = "suspended"
	UserStatusPendingVerification UserStatus = "pending_verification"
)

// User is the server-owned profile record. The client treats it as
// read-mostly; local mutation happens only through a successful
// profile-update response.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	DisplayName      string     `json:"display_name,omitempty"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	DateOfBirth      string     `json:"date_of_birth,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	Locale           string     `json:"locale,omitempty"`
	Timezone         string     `json:"timezone,omitempty"`
	EmailVerified    bool       `json:"email_verified"`
	PhoneVerified    bool       `json:"phone_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	IsAdmin          bool       `json:"is_admin"`
	Status           UserStatus `json:"status"`
	CreatedAt        string     `json:"created_at"`
	UpdatedAt        string     `json:"updated_at"`
}

// AuthTokens is the credential pair issued on login, OAuth callback and refresh.
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	User   User       `json:"user"`
	Tokens AuthTokens `json:"tokens"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates with email/password, optionally carrying a
// TOTP code or a backup code when two-factor is enabled.
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Code       string `json:"code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdateProfileRequest carries a partial profile update. Nil fields are
// omitted and left untouched by the server.
type UpdateProfileRequest struct {
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Locale      *string `json:"locale,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
}

// SessionLocation describes where a device session was last seen from.
type SessionLocation struct {
	City         string  `json:"city"`
	State        string  `json:"state"`
	Country      string  `json:"country"`
	CountryCode  string  `json:"country_code"`
	IsVPN        bool    `json:"is_vpn"`
	IsTor        bool    `json:"is_tor"`
	IsProxy      bool    `json:"is_proxy"`
	IsDatacenter bool    `json:"is_datacenter"`
	IsMobile     bool    `json:"is_mobile"`
	RiskScore    float64 `json:"risk_score"`
}

// UserSession is one device session held by the identity API.
type UserSession struct {
	ID              string          `json:"id"`
	SessionToken    string          `json:"session_token"`
	CreatedAt       string          `json:"created_at"`
	LastAccessedAt  string          `json:"last_accessed_at"`
	ExpiresAt       string          `json:"expires_at"`
	IPAddress       string          `json:"ip_address"`
	DeviceType      string          `json:"device_type"`
	Browser         string          `json:"browser"`
	OS              string          `json:"os"`
	Location        SessionLocation `json:"location"`
	IsActive        bool            `json:"is_active"`
	IsCurrent       bool            `json:"is_current"`
	LocationDisplay string          `json:"location_display"`
}

// OAuthAccount is a linked third-party identity.
type OAuthAccount struct {
	ID               string `json:"id"`
	Provider         string `json:"provider"`
	ProviderID       string `json:"provider_id"`
	ProviderEmail    string `json:"provider_email,omitempty"`
	ProviderUsername string `json:"provider_username,omitempty"`
	LinkedAt         string `json:"linked_at"`
}

// LinkOAuthRequest links a provider identity to the current account.
type LinkOAuthRequest struct {
	Provider         string `json:"provider"`
	ProviderID       string `json:"provider_id"`
	ProviderEmail    string `json:"provider_email,omitempty"`
	ProviderUsername string `json:"provider_username,omitempty"`
}

// Enable2FAResult carries the provisioning material returned when
// two-factor enrolment starts.
type Enable2FAResult struct {
	Secret        string   `json:"secret"`
	OtpauthURL    string   `json:"otpauth_url"`
	QRCodeDataURL string   `json:"qrcode_data_url"`
	BackupCodes   []string `json:"backup_codes"`
}

type BackupCodesResult struct {
	Codes []string `json:"codes"`
}

// SecurityInfo summarises the account's security posture.
type SecurityInfo struct {
	FailedLoginAttempts int    `json:"failed_login_attempts"`
	IsLocked            bool   `json:"is_locked"`
	LockedUntil         string `json:"locked_until,omitempty"`
	LastLoginAt         string `json:"last_login_at,omitempty"`
	LastLoginIP         string `json:"last_login_ip,omitempty"`
	TwoFactorEnabled    bool   `json:"two_factor_enabled"`
	PhoneVerified       bool   `json:"phone_verified"`
	EmailVerified       bool   `json:"email_verified"`
}

// Page is the identity API's pagination envelope.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// AdminUser extends User with operational counters visible to admins.
type AdminUser struct {
	User
	LastLoginAt        string `json:"last_login_at,omitempty"`
	OAuthAccountsCount int    `json:"oauth_accounts_count,omitempty"`
	SessionsCount      int    `json:"sessions_count,omitempty"`
}

// AuditLog is one entry of the identity API's audit trail.
type AuditLog struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Success   bool           `json:"success"`
	CreatedAt string         `json:"created_at"`
}

// AdminStats is the aggregate counters panel of the admin console.
type AdminStats struct {
	UserCount      int `json:"userCount"`
	OAuthCount     int `json:"oauthCount"`
	ActiveSessions int `json:"activeSessions"`
}

// ListUsersQuery filters GET /admin/users. Nil/zero fields are omitted.
type ListUsersQuery struct {
	Page             int
	Limit            int
	Status           UserStatus
	Q                string
	EmailVerified    *bool
	TwoFactorEnabled *bool
	From             string
	To               string
}

// ListAuditLogsQuery filters GET /admin/audit-logs.
type ListAuditLogsQuery struct {
	Page    int
	Limit   int
	UserID  string
	Action  string
	Success *bool
	From    string
	To      string
}

type UpdateUserStatusRequest struct {
	Status UserStatus `json:"status"`
}

type UpdateUserAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}
