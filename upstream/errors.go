package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned by a TokenStore that holds no token.
	ErrNoToken = errors.New("upstream: no cached token")
	// ErrEmptyToken signals a successful login response without an access token.
	ErrEmptyToken = errors.New("upstream: login returned an empty access token")
)

// AuthError reports that a fresh upstream token could not be obtained.
// Every caller waiting on the same login receives the same value.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "upstream: login failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("upstream: status %d: %s", e.Status, body)
}

// APIError is a 2xx response whose envelope reports isSuccess=false.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return "upstream: request rejected: " + e.Message
}
