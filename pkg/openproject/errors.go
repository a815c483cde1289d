package openproject

import (
	"errors"
	"fmt"
)

// ErrorType categorizes client failures.
type ErrorType string

const (
	ErrorTypeRequest        ErrorType = "request"
	ErrorTypeConnection     ErrorType = "connection"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeAPI            ErrorType = "api"
)

// ClientError is a typed client failure.
type ClientError struct {
	Type    ErrorType
	Message string
	Err     error
	Context string
}

func (e *ClientError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("openproject %s error: %s (%s)", e.Type, e.Message, e.Context)
	}
	return fmt.Sprintf("openproject %s error: %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsAuthenticationError reports whether err is an authentication failure.
func IsAuthenticationError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrorTypeAuthentication
}

// IsNotFoundError reports whether err is a missing-resource failure.
func IsNotFoundError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrorTypeNotFound
}
