package tools

import "fmt"

// Tool error types surfaced to the model inside result envelopes. These are
// stable strings the model and downstream clients key on.
const (
	ErrTypeValidation   = "ValidationFailed"
	ErrTypeUnauthorized = "Unauthorized"
	ErrTypeTimeout      = "ToolTimeout"
	ErrTypeExecution    = "ToolExecutionFailed"
)

// ToolError is a classified tool failure. The executor serializes it into
// the result envelope; it never propagates as a turn failure.
type ToolError struct {
	Tool    string
	Type    string
	Message string
	Cause   error
}

func (e *ToolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Tool, e.Type, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tool, e.Type, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Type)
}

func (e *ToolError) Unwrap() error { return e.Cause }

// message returns the text for the envelope's error field.
func (e *ToolError) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Type
}
