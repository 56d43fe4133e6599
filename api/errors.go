package api

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBaseURL = errors.New("empty base URL")
	ErrNoData       = errors.New("response carried no data")
)

// Error is a non-2xx reply from the identity API. Message carries the
// server-supplied text, when present.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity api: status %d", e.Status)
	}
	return fmt.Sprintf("identity api: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an identity API error with the given
// HTTP status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == status
}

// StatusOf returns the HTTP status of an identity API error, or 0 when
// err is a transport-level failure.
func StatusOf(err error) int {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return 0
	}
	return apiErr.Status
}
