package api

import (
	"context"
	"net/http"
)

// Profile fetches the current user's record.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user/profile", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile applies a partial profile update and returns the
// resulting record.
func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPut, "/user/profile", nil, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteAccount permanently removes the authenticated account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/user/profile", nil, nil, nil)
}

// Sessions lists the account's device sessions.
func (c *Client) Sessions(ctx context.Context) ([]UserSession, error) {
	var sessions []UserSession
	if err := c.do(ctx, http.MethodGet, "/user/sessions", nil, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// RevokeSession terminates one device session by ID.
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/user/sessions/"+sessionID, nil, nil, nil)
}

// RevokeAllSessions terminates every device session except the current one.
func (c *Client) RevokeAllSessions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/user/sessions", nil, nil, nil)
}

// OAuthAccounts lists linked provider identities.
func (c *Client) OAuthAccounts(ctx context.Context) ([]OAuthAccount, error) {
	var accounts []OAuthAccount
	if err := c.do(ctx, http.MethodGet, "/user/oauth-accounts", nil, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// LinkOAuthAccount attaches a provider identity to the account.
func (c *Client) LinkOAuthAccount(ctx context.Context, req LinkOAuthRequest) error {
	return c.do(ctx, http.MethodPost, "/user/oauth-accounts/link", nil, req, nil)
}

// UnlinkOAuthAccount detaches a linked provider identity.
func (c *Client) UnlinkOAuthAccount(ctx context.Context, accountID string) error {
	return c.do(ctx, http.MethodDelete, "/user/oauth-accounts/"+accountID, nil, nil, nil)
}

// Enable2FA starts two-factor enrolment and returns the provisioning
// secret, otpauth URL and backup codes.
func (c *Client) Enable2FA(ctx context.Context) (*Enable2FAResult, error) {
	var result Enable2FAResult
	if err := c.do(ctx, http.MethodPost, "/user/enable-2fa", nil, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Verify2FA confirms enrolment with a TOTP code.
func (c *Client) Verify2FA(ctx context.Context, code string) error {
	body := map[string]string{"code": code}
	return c.do(ctx, http.MethodPost, "/user/verify-2fa", nil, body, nil)
}

// Disable2FA turns two-factor off for the account.
func (c *Client) Disable2FA(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/user/disable-2fa", nil, struct{}{}, nil)
}

// RegenerateBackupCodes replaces the account's backup codes.
func (c *Client) RegenerateBackupCodes(ctx context.Context) (*BackupCodesResult, error) {
	var result BackupCodesResult
	if err := c.do(ctx, http.MethodPost, "/user/backup-codes/regenerate", nil, struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SecurityInfo fetches the account's security posture summary.
func (c *Client) SecurityInfo(ctx context.Context) (*SecurityInfo, error) {
	var info SecurityInfo
	if err := c.do(ctx, http.MethodGet, "/user/security-info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
