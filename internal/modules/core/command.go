package core

import "fmt"

type Unit struct{}

// Error codes surfaced to API consumers.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeServerError     = "SERVER_ERROR"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Message string `json:"error"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
}

func (e ErrorBody) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type CommandError struct {
	Payload    interface{}
	StatusCode int
	Reason     *string
}

type CommandErrorOption func(*CommandError)

func WithReason(reason string) CommandErrorOption {
	return func(e *CommandError) {
		e.Reason = &reason
	}
}

func NewCommandError(statusCode int, payload interface{}, opts ...CommandErrorOption) CommandError {
	e := CommandError{
		StatusCode: statusCode,
		Payload:    payload,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

// NewValidationError rejects a request before any store access. The field
// name travels with the response so the caller knows what to correct.
func NewValidationError(field, message string) CommandError {
	return NewCommandError(400, ErrorBody{
		Message: message,
		Field:   field,
		Code:    CodeValidationError,
	})
}

func NewNotFoundError(message string) CommandError {
	return NewCommandError(404, ErrorBody{
		Message: message,
		Code:    CodeNotFound,
	})
}

// NewServerError wraps a store or transport failure. The original error is
// kept as the reason for logging; the payload carries its message so callers
// can decide whether to retry.
func NewServerError(err error) CommandError {
	msg := "internal server error"
	if err != nil {
		msg = err.Error()
	}

	return NewCommandError(500, ErrorBody{
		Message: msg,
		Code:    CodeServerError,
	}, WithReason(msg))
}

func (r CommandError) Error() string {
	var values struct {
		Payload    interface{}
		StatusCode int
		Reason     string
	}

	values.Payload = r.Payload
	values.StatusCode = r.StatusCode

	if r.Reason != nil {
		values.Reason = *r.Reason
	}

	return fmt.Sprintf("%+v", values)
}
