// Package export renders identity API records into portable formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/identkit/identcli/api"
	"github.com/pkg/errors"
)

var auditLogHeader = []string{
	"id", "user_id", "action", "ip_address", "user_agent", "success", "created_at", "details",
}

// AuditLogsCSV writes audit log entries as CSV, one row per entry with
// a leading header row. Details are flattened to a JSON blob.
func AuditLogsCSV(w io.Writer, logs []api.AuditLog) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(auditLogHeader); err != nil {
		return errors.Wrap(err, "[export.AuditLogsCSV] header")
	}
	for _, entry := range logs {
		details := ""
		if len(entry.Details) > 0 {
			encoded, err := json.Marshal(entry.Details)
			if err != nil {
				return errors.Wrapf(err, "[export.AuditLogsCSV] details of %s", entry.ID)
			}
			details = string(encoded)
		}
		row := []string{
			entry.ID,
			entry.UserID,
			entry.Action,
			entry.IPAddress,
			entry.UserAgent,
			strconv.FormatBool(entry.Success),
			entry.CreatedAt,
			details,
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrapf(err, "[export.AuditLogsCSV] row %s", entry.ID)
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "[export.AuditLogsCSV] flush")
}
