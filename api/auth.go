package api

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// Register creates a new account. The account starts in
// pending_verification until the emailed token is confirmed.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/register", nil, req, nil)
}

// Login exchanges credentials for a token pair and the user record.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var result LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// refreshData unwraps the nested tokens object of POST /auth/refresh.
type refreshData struct {
	Tokens AuthTokens `json:"tokens"`
}

// Refresh exchanges a refresh credential for a new token pair. The
// server may rotate the refresh credential.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var data refreshData
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, body, &data); err != nil {
		return nil, err
	}
	if data.Tokens.AccessToken == "" {
		return nil, errors.Wrap(ErrNoData, "[Client.Refresh] empty token pair")
	}
	return &data.Tokens, nil
}

// Logout invalidates the current server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, struct{}{}, nil)
}

// VerifyEmail confirms an address with the emailed token.
func (c *Client) VerifyEmail(ctx context.Context, req VerifyEmailRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/verify-email", nil, req, nil)
}

// ResendVerification requests a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, req ResendVerificationRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/resend-verification", nil, req, nil)
}

// ForgotPassword starts the password recovery flow.
func (c *Client) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot-password", nil, req, nil)
}

// ResetPassword completes recovery with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/reset-password", nil, req, nil)
}

// ChangePassword rotates the password of the authenticated account. A
// 401 here means the supplied current password was wrong, not that the
// session expired; the request authenticator leaves it untouched.
func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/auth/change-password", nil, req, nil)
}
