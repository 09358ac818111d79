package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"folio/api/internal/auth"
	"folio/api/internal/draft"
	"folio/api/internal/github"
	"folio/api/internal/hosting"
	"folio/api/internal/reactions"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// mapError turns any error returned by the service into the response
// status, code, message and details. Upstream and unknown failures are
// logged; their text never reaches the client.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validation *draft.ValidationError
	if errors.As(err, &validation) {
		var fieldDetails any
		if validation.Field != "" {
			fieldDetails = map[string]any{"field": validation.Field}
		}
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validation.Message, fieldDetails
	}

	switch {
	case errors.Is(err, reactions.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "Too many reactions, try again in a minute", nil
	case errors.Is(err, reactions.ErrInvalid):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", strings.TrimPrefix(err.Error(), reactions.ErrInvalid.Error()+": "), nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrBadPassword):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, draft.ErrBusy):
		return http.StatusConflict, "CONFLICT", "Draft has an operation in progress", nil
	case errors.Is(err, draft.ErrPullRequestExists):
		return http.StatusConflict, "CONFLICT", "A pull request is already open for this branch", nil
	case errors.Is(err, draft.ErrInvalidState):
		return http.StatusConflict, "CONFLICT", "Operation not allowed in the draft's current state", nil
	case errors.Is(err, hosting.ErrNotAFile):
		return http.StatusBadRequest, "NOT_A_FILE", "Path is a directory, not a file", nil
	case errors.Is(err, hosting.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, hosting.ErrConflict):
		return http.StatusConflict, "CONFLICT", "The branch or file changed upstream", nil
	case errors.Is(err, hosting.ErrUnavailable):
		log.Printf(`{"event":"upstream_error","error":%q}`, err.Error())
		var upstreamDetails any
		if github.IsRateLimited(err) {
			upstreamDetails = map[string]any{"rateLimited": true}
		}
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Content host unavailable", upstreamDetails
	}

	log.Printf(`{"event":"server_error","error":%q}`, err.Error())
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
