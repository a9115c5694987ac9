package linkedin

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the client id or secret is missing.
	ErrNotConfigured = errors.New("linkedin: client id and secret are not configured")
	// ErrNoSecret is returned by a SecretStore that holds no token.
	ErrNoSecret = errors.New("linkedin: no stored credentials")

	ErrTokenExchangeFailed = errors.New("linkedin: token exchange failed")
	ErrProfileLookupFailed = errors.New("linkedin: profile lookup failed")
	ErrPostFailed          = errors.New("linkedin: post failed")
	// ErrPostIDMissing is returned when a share succeeded but LinkedIn
	// reported no id for it in either the header or the body.
	ErrPostIDMissing = errors.New("linkedin: post created without an id")
)

// UpstreamError carries the status and body of a failed LinkedIn response.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func upstream(kind error, status int, body []byte) error {
	return fmt.Errorf("%w: %w", kind, &UpstreamError{Status: status, Body: string(body)})
}
