package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListUsers pages through user records matching the filters.
func (c *Client) ListUsers(ctx context.Context, query ListUsersQuery) (*Page[AdminUser], error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Status != "" {
		params.Set("status", string(query.Status))
	}
	if query.Q != "" {
		params.Set("q", query.Q)
	}
	if query.EmailVerified != nil {
		params.Set("email_verified", strconv.FormatBool(*query.EmailVerified))
	}
	if query.TwoFactorEnabled != nil {
		params.Set("two_factor_enabled", strconv.FormatBool(*query.TwoFactorEnabled))
	}
	if query.From != "" {
		params.Set("from", query.From)
	}
	if query.To != "" {
		params.Set("to", query.To)
	}

	var page Page[AdminUser]
	if err := c.do(ctx, http.MethodGet, "/admin/users", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetUser fetches one user record by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*AdminUser, error) {
	var user AdminUser
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+userID, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserStatus moves a user to a new lifecycle status.
func (c *Client) UpdateUserStatus(ctx context.Context, userID string, req UpdateUserStatusRequest) error {
	return c.do(ctx, http.MethodPut, "/admin/users/"+userID+"/status", nil, req, nil)
}

// UpdateUserAdmin grants or revokes the admin role.
func (c *Client) UpdateUserAdmin(ctx context.Context, userID string, req UpdateUserAdminRequest) error {
	return c.do(ctx, http.MethodPut, "/admin/users/"+userID+"/admin", nil, req, nil)
}

// ListAuditLogs pages through the audit trail matching the filters.
func (c *Client) ListAuditLogs(ctx context.Context, query ListAuditLogsQuery) (*Page[AuditLog], error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.UserID != "" {
		params.Set("userId", query.UserID)
	}
	if query.Action != "" {
		params.Set("action", query.Action)
	}
	if query.Success != nil {
		params.Set("success", strconv.FormatBool(*query.Success))
	}
	if query.From != "" {
		params.Set("from", query.From)
	}
	if query.To != "" {
		params.Set("to", query.To)
	}

	var page Page[AuditLog]
	if err := c.do(ctx, http.MethodGet, "/admin/audit-logs", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Stats fetches the aggregate counters for the admin console.
func (c *Client) Stats(ctx context.Context) (*AdminStats, error) {
	var stats AdminStats
	if err := c.do(ctx, http.MethodGet, "/admin/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}
