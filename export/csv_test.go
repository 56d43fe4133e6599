package export_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identkit/identcli/api"
	"github.com/identkit/identcli/export"
)

func TestAuditLogsCSVEmpty(t *testing.T) {
	var out strings.Builder

	require.NoError(t, export.AuditLogsCSV(&out, nil))

	assert.Equal(t, "id,user_id,action,ip_address,user_agent,success,created_at,details\n", out.String())
}

func TestAuditLogsCSVRows(t *testing.T) {
	var out strings.Builder
	logs := []api.AuditLog{
		{
			ID:        "l1",
			UserID:    "u1",
			Action:    "login",
			IPAddress: "203.0.113.7",
			UserAgent: "curl/8.5",
			Success:   true,
			CreatedAt: "2025-06-01T12:00:00Z",
		},
		{
			ID:        "l2",
			UserID:    "u1",
			Action:    "password_change",
			Success:   false,
			CreatedAt: "2025-06-01T12:05:00Z",
			Details:   map[string]any{"reason": "wrong current password"},
		},
	}

	require.NoError(t, export.AuditLogsCSV(&out, logs))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "l1,u1,login,203.0.113.7,curl/8.5,true,2025-06-01T12:00:00Z,", lines[1])
	// The details blob is JSON and gets CSV-quoted.
	assert.Contains(t, lines[2], `"{""reason"":""wrong current password""}"`)
	assert.Contains(t, lines[2], "l2,u1,password_change,,,false,")
}
