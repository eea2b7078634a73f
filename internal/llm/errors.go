package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Reason categorizes a provider failure for retry decisions.
type Reason string

const (
	ReasonRateLimit     Reason = "rate_limit"
	ReasonTimeout       Reason = "timeout"
	ReasonServerError   Reason = "server_error"
	ReasonNetwork       Reason = "network"
	ReasonAuth          Reason = "auth"
	ReasonInvalidInput  Reason = "invalid_request"
	ReasonContentFilter Reason = "content_filter"
	ReasonUnknown       Reason = "unknown"
)

// Retryable reports whether a failure with this reason is transient.
// Only 429s, 5xx, timeouts, and network faults qualify; client errors and
// parse failures never do.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError, ReasonNetwork:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure from a model backend.
type ProviderError struct {
	Reason   Reason
	Provider string
	Model    string
	Status   int
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason), e.Provider}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause and wraps it with provider context.
func NewProviderError(provider, model string, cause error) *ProviderError {
	e := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   Classify(cause),
	}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// WithStatus records the HTTP status and reclassifies from it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if r := classifyStatus(status); r != ReasonUnknown {
		e.Reason = r
	}
	return e
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.Retryable()
	}
	return Classify(err).Retryable()
}

// Classify inspects an arbitrary error and assigns a failure reason.
func Classify(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "deadline exceeded"):
		return ReasonTimeout
	case strings.Contains(s, "rate limit"),
		strings.Contains(s, "rate_limit"),
		strings.Contains(s, "too many requests"),
		strings.Contains(s, "429"):
		return ReasonRateLimit
	case strings.Contains(s, "unauthorized"),
		strings.Contains(s, "invalid api key"),
		strings.Contains(s, "authentication"),
		strings.Contains(s, "permission"):
		return ReasonAuth
	case strings.Contains(s, "content_filter"),
		strings.Contains(s, "content policy"),
		strings.Contains(s, "safety"):
		return ReasonContentFilter
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "broken pipe"):
		return ReasonNetwork
	case strings.Contains(s, "internal server"),
		strings.Contains(s, "bad gateway"),
		strings.Contains(s, "service unavailable"),
		strings.Contains(s, "overloaded"),
		strings.Contains(s, "500"),
		strings.Contains(s, "502"),
		strings.Contains(s, "503"),
		strings.Contains(s, "504"):
		return ReasonServerError
	}
	return ReasonUnknown
}

func classifyStatus(status int) Reason {
	switch {
	case status == http.StatusTooManyRequests:
		return ReasonRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ReasonAuth
	case status == http.StatusBadRequest ||
		status == http.StatusNotFound ||
		status == http.StatusUnprocessableEntity:
		return ReasonInvalidInput
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ReasonTimeout
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// ErrNoProviderConfigured is returned when no backend has credentials.
type ErrNoProviderConfigured struct {
	// Required lists the credential env vars that would enable a backend.
	Required []string
}

func (e *ErrNoProviderConfigured) Error() string {
	return "no AI provider configured; set one of: " + strings.Join(e.Required, ", ")
}
