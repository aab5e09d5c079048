package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the single failure taxonomy surfaced to all callers
// regardless of upstream cause.
type ErrorKind string

const (
	// ErrorKindNotConfigured indicates a missing provider credential.
	ErrorKindNotConfigured ErrorKind = "not_configured"

	// ErrorKindProviderNotFound indicates no provider serves the requested
	// model.
	ErrorKindProviderNotFound ErrorKind = "provider_not_found"

	// ErrorKindModelNotFound indicates the provider exists but does not
	// serve the requested model.
	ErrorKindModelNotFound ErrorKind = "model_not_found"

	// ErrorKindRateLimited indicates upstream rate limiting.
	ErrorKindRateLimited ErrorKind = "rate_limited"

	// ErrorKindAuthenticationFailed indicates a rejected credential.
	ErrorKindAuthenticationFailed ErrorKind = "authentication_failed"

	// ErrorKindValidationFailed indicates malformed caller input.
	ErrorKindValidationFailed ErrorKind = "validation_failed"

	// ErrorKindStreamingFailed indicates a broken or malformed stream.
	ErrorKindStreamingFailed ErrorKind = "streaming_failed"

	// ErrorKindProvider is the catch-all for upstream failures; the original
	// message is preserved in Detail.
	ErrorKindProvider ErrorKind = "provider_error"
)

// GatewayError is the canonical error type. Message is safe to show to end
// users; Detail preserves the original upstream text for diagnostics.
type GatewayError struct {
	Kind    ErrorKind
	Message string
	Detail  string

	// RetryAfter is set for rate-limit errors when the upstream reported it.
	RetryAfter time.Duration
}

func (e *GatewayError) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match on kind using the sentinel constructors below.
func (e *GatewayError) Is(target error) bool {
	var ge *GatewayError
	if errors.As(target, &ge) {
		return e.Kind == ge.Kind
	}
	return false
}

// HTTPStatus returns the status code used when the error surfaces before
// streaming starts. Once a stream is open, errors travel as terminal error
// events instead.
func (e *GatewayError) HTTPStatus() int {
	switch e.Kind {
	case ErrorKindValidationFailed:
		return http.StatusBadRequest
	case ErrorKindAuthenticationFailed:
		return http.StatusUnauthorized
	case ErrorKindProviderNotFound, ErrorKindModelNotFound:
		return http.StatusNotFound
	case ErrorKindRateLimited:
		return http.StatusTooManyRequests
	case ErrorKindNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// ErrNotConfigured indicates the provider has no credential configured.
func ErrNotConfigured(provider string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindNotConfigured,
		Message: fmt.Sprintf("provider %s is not configured", provider),
	}
}

// ErrProviderNotFound indicates no provider serves the model.
func ErrProviderNotFound(model string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindProviderNotFound,
		Message: fmt.Sprintf("no provider serves model %q", model),
	}
}

// ErrModelNotFound indicates the provider does not serve the model.
func ErrModelNotFound(provider, model string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindModelNotFound,
		Message: fmt.Sprintf("model %q is not served by provider %s", model, provider),
	}
}

// ErrRateLimited indicates upstream rate limiting.
func ErrRateLimited(detail string, retryAfter time.Duration) *GatewayError {
	return &GatewayError{
		Kind:       ErrorKindRateLimited,
		Message:    "upstream rate limit exceeded",
		Detail:     detail,
		RetryAfter: retryAfter,
	}
}

// ErrAuthenticationFailed indicates a rejected credential.
func ErrAuthenticationFailed(detail string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindAuthenticationFailed,
		Message: "upstream authentication failed",
		Detail:  detail,
	}
}

// ErrValidationFailed indicates malformed caller input.
func ErrValidationFailed(message string) *GatewayError {
	return &GatewayError{Kind: ErrorKindValidationFailed, Message: message}
}

// ErrStreamingFailed indicates a broken stream.
func ErrStreamingFailed(detail string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindStreamingFailed,
		Message: "streaming from provider failed",
		Detail:  detail,
	}
}

// ErrProvider is the catch-all for upstream failures.
func ErrProvider(detail string) *GatewayError {
	return &GatewayError{
		Kind:    ErrorKindProvider,
		Message: "provider request failed",
		Detail:  detail,
	}
}

// ClassifyError maps an arbitrary error onto the taxonomy. A *GatewayError
// passes through unchanged; everything else is matched on message substrings
// and falls through to ErrorKindProvider. Classification itself never fails.
func ClassifyError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "429"):
		return ErrRateLimited(err.Error(), 0)
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ErrAuthenticationFailed(err.Error())
	case strings.Contains(msg, "api key not"), strings.Contains(msg, "not configured"),
		strings.Contains(msg, "missing credential"):
		return &GatewayError{Kind: ErrorKindNotConfigured, Message: "provider is not configured", Detail: err.Error()}
	case strings.Contains(msg, "model not found"), strings.Contains(msg, "unknown model"):
		return &GatewayError{Kind: ErrorKindModelNotFound, Message: "model not found", Detail: err.Error()}
	case strings.Contains(msg, "stream"), strings.Contains(msg, "unexpected eof"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "timeout"):
		return ErrStreamingFailed(err.Error())
	case strings.Contains(msg, "invalid request"), strings.Contains(msg, "validation"),
		strings.Contains(msg, "400"):
		return ErrValidationFailed(err.Error())
	default:
		return ErrProvider(err.Error())
	}
}

// ClassifyStatus maps an upstream HTTP status code and body to the taxonomy.
// Used by provider clients before any stream opens.
func ClassifyStatus(status int, body string) *GatewayError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthenticationFailed(body)
	case status == http.StatusTooManyRequests:
		return ErrRateLimited(body, 0)
	case status == http.StatusNotFound:
		return &GatewayError{Kind: ErrorKindModelNotFound, Message: "model not found", Detail: body}
	case status >= 400 && status < 500:
		return &GatewayError{Kind: ErrorKindValidationFailed, Message: fmt.Sprintf("upstream rejected request (status %d)", status), Detail: body}
	default:
		return ErrProvider(fmt.Sprintf("status %d: %s", status, body))
	}
}
