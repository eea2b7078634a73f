// Package agent runs the orchestration loop: build the prompt, call the
// model, execute requested tools, feed results back, and persist the turn.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/quartermasterhq/quartermaster/internal/conversation"
	"github.com/quartermasterhq/quartermaster/internal/llm"
	"github.com/quartermasterhq/quartermaster/internal/reliability"
)

// Code classifies a turn failure. Codes are part of the API surface;
// clients and tests key on them.
type Code string

const (
	CodeValidationFailed        Code = "ValidationFailed"
	CodePromptInjectionRejected Code = "PromptInjectionRejected"
	CodeContentModerated        Code = "ContentModerated"
	CodeUnauthorized            Code = "Unauthorized"
	CodeRateLimited             Code = "RateLimited"
	CodeCircuitOpen             Code = "CircuitOpen"
	CodeProviderUnavailable     Code = "ProviderUnavailable"
	CodeTimeout                 Code = "Timeout"
	CodeToolTimeout             Code = "ToolTimeout"
	CodeToolExecutionFailed     Code = "ToolExecutionFailed"
	CodeTokenLimitExceeded      Code = "TokenLimitExceeded"
	CodePersistenceFailed       Code = "PersistenceFailed"
	CodeInternal                Code = "Internal"
)

// Error is a classified turn failure.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// E builds a classified error without a cause.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the failure code, classifying foreign errors on the way.
// Unrecognized errors are Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return classify(err).Code
}

// classify maps lower-layer failures onto the public taxonomy.
func classify(err error) *Error {
	switch {
	case errors.Is(err, reliability.ErrQueueFull):
		return Wrap(CodeRateLimited, "too many requests in flight, try again shortly", err)
	case errors.Is(err, reliability.ErrCircuitOpen):
		return Wrap(CodeCircuitOpen, "the AI provider is temporarily unavailable", err)
	case errors.Is(err, conversation.ErrTokenLimitExceeded):
		return Wrap(CodeTokenLimitExceeded, "message is too long to process", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, "the request timed out", err)
	}

	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		switch pe.Reason {
		case llm.ReasonRateLimit:
			return Wrap(CodeRateLimited, "the AI provider is rate limiting requests", err)
		case llm.ReasonTimeout:
			return Wrap(CodeTimeout, "the AI provider timed out", err)
		case llm.ReasonContentFilter:
			return Wrap(CodeContentModerated, "the request was blocked by the provider's content filter", err)
		default:
			return Wrap(CodeProviderUnavailable, "the AI provider returned an error", err)
		}
	}
	return Wrap(CodeInternal, "internal error", err)
}
