// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found) mirror common HTTP status
//     semantics to aid interoperability.
//   - Provider codes tell a client whether to fix its request (unknown_provider),
//     fix server configuration (configuration_error) or retry later
//     (provider_error).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "configuration_error",
//	  "message": "provider Anthropic is not configured: no API key (set ANTHROPIC_API_KEY)"
//	}
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tbourn/go-llm-chat/internal/domain"
	"github.com/tbourn/go-llm-chat/internal/providers"
	"github.com/tbourn/go-llm-chat/internal/services"
	"github.com/tbourn/go-llm-chat/internal/speech"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeUnavailable      = "unavailable"

	// Domain-specific:
	ErrCodeUnknownProvider    = "unknown_provider"
	ErrCodeConfigurationError = "configuration_error"
	ErrCodeProviderError      = "provider_error"
	ErrCodeStorageError       = "storage_error"
	ErrCodeCancelled          = "cancelled"
)

// statusClientClosed is the de facto status for a client that went away.
const statusClientClosed = 499

// classify maps a service error to an HTTP status and error code.
func classify(err error) (int, string) {
	var (
		unknown *providers.UnknownProviderError
		cfgErr  *providers.ConfigurationError
		provErr *providers.ProviderError
		stErr   *services.StorageError
		spErr   *speech.Error
	)
	switch {
	case errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, services.ErrMessageNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidSelection),
		errors.Is(err, speech.ErrEmptyText):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.As(err, &unknown):
		return http.StatusBadRequest, ErrCodeUnknownProvider
	case errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity, ErrCodeConfigurationError
	case errors.As(err, &provErr),
		errors.As(err, &spErr),
		errors.Is(err, services.ErrEmptyReply),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, ErrCodeProviderError
	case errors.Is(err, speech.ErrDisabled):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosed, ErrCodeCancelled
	case errors.As(err, &stErr):
		return http.StatusInternalServerError, ErrCodeStorageError
	}
	return http.StatusInternalServerError, ErrCodeInternal
}
