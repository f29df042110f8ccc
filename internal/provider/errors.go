package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCredentialsExpired is returned when a request failed authorization
// and a token refresh could not recover it. The next scheduled sync
// starts over with a fresh refresh attempt.
var ErrCredentialsExpired = errors.New("provider: credentials expired")

// FetchError is any non-2xx provider response normalized into status
// code plus the provider's own message.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("provider: status=%d message=%s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether err is a 429 from the provider.
func IsRateLimit(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether err is a 5xx from the provider.
func IsServerError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.StatusCode >= http.StatusInternalServerError
}

// IsClientError reports whether err is a 4xx other than rate limit or
// authorization failure, e.g. a missing permission scope.
func IsClientError(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.StatusCode {
	case http.StatusUnauthorized, http.StatusTooManyRequests:
		return false
	}
	return fe.StatusCode >= http.StatusBadRequest && fe.StatusCode < http.StatusInternalServerError
}
