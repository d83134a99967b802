package flow

import "errors"

var (
	// ErrNoRefreshToken indicates neither a stored nor a supplied refresh
	// token exists. Expected for anonymous visitors.
	ErrNoRefreshToken = errors.New("no refresh token found")
	// ErrRefreshFailed indicates the refresh call was rejected; the stored
	// token record has been cleared.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrFieldMismatch indicates a declared must-match field pair was
	// submitted with differing values.
	ErrFieldMismatch = errors.New("form fields do not match")
	// ErrNoAction indicates the current conversation offered no action to
	// invoke.
	ErrNoAction = errors.New("no action available in current conversation")
)
