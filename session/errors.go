package session

import "errors"

var (
	ErrNoRefreshCredential = errors.New("no refresh credential available")
	ErrRefreshExpired      = errors.New("refresh credential expired")
	ErrBodyNotReplayable   = errors.New("request body cannot be replayed")
)
