package github

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"folio/api/internal/hosting"
)

// APIError is a non-2xx answer from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Unwrap maps the status onto the hosting error taxonomy so callers can use
// errors.Is without knowing about GitHub.
func (e *APIError) Unwrap() error {
	message := strings.ToLower(e.Message)
	switch {
	case e.StatusCode == http.StatusNotFound:
		return hosting.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return hosting.ErrConflict
	case e.StatusCode == http.StatusUnprocessableEntity &&
		(strings.Contains(message, "already exists") || strings.Contains(message, "sha")):
		return hosting.ErrConflict
	case e.StatusCode >= 500:
		return hosting.ErrUnavailable
	}
	return nil
}

// RateLimitError is returned when GitHub refuses a call because the token's
// quota is spent.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error {
	return hosting.ErrUnavailable
}

// IsNotFound checks if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, hosting.ErrNotFound)
}

// IsRateLimited checks if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}
