package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"
)

// unixToTime converts a Unix timestamp to time.Time
func unixToTime(unix int64) time.Time {
	return time.Unix(unix, 0).UTC()
}

// nullUnix converts an optional time into a nullable Unix integer
func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Valid: true, Int64: t.Unix()}
}

// nullUnixToTime converts a nullable Unix integer back into *time.Time
func nullUnixToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := unixToTime(v.Int64)
	return &t
}

// nullString wraps a string, treating empty as NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{Valid: true, String: s}
}

// boolToInt converts a bool for SQLite integer columns
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalJSON serializes v, returning "{}" for nil values
func marshalJSON(v interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
