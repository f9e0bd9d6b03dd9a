package audit

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{
	"id", "created_at", "action_type", "action_description", "user_id", "admin_id",
	"affected_table", "affected_id", "status", "ip_address",
}

// WriteCSV serialises entries in the persisted row shape.
func WriteCSV(w io.Writer, entries []LogEntry) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			string(e.ActionType),
			safeCell(e.Description),
			formatOptionalInt(e.UserID),
			formatOptionalInt(e.AdminID),
			safeCell(formatOptionalString(e.AffectedTable)),
			formatOptionalInt(e.AffectedID),
			string(e.Status),
			e.IPAddress,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatOptionalString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// safeCell quotes free text that spreadsheets would evaluate as a formula.
func safeCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}
